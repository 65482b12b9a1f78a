// Copyright 2025 MeetMesh, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package meshsdk

import (
	"encoding/json"
	"fmt"
)

// SignalType identifies a message on the signaling channel.
type SignalType string

const (
	SignalTypeReady              SignalType = "ready"
	SignalTypePeerJoined         SignalType = "peer-joined"
	SignalTypePeerLeft           SignalType = "peer-left"
	SignalTypeOffer              SignalType = "offer"
	SignalTypeAnswer             SignalType = "answer"
	SignalTypeICECandidate       SignalType = "ice-candidate"
	SignalTypeMediaStateChanged  SignalType = "media-state-changed"
	SignalTypeHostJoin           SignalType = "host-join"
	SignalTypeJoinRequest        SignalType = "join-request"
	SignalTypeJoinRequestPending SignalType = "join-request-pending"
	SignalTypePendingJoinRequest SignalType = "pending-join-request"
	SignalTypeApproveJoinRequest SignalType = "approve-join-request"
	SignalTypeRejectJoinRequest  SignalType = "reject-join-request"
	SignalTypeJoinApproved       SignalType = "join-approved"
	SignalTypeJoinRejected       SignalType = "join-rejected"
	SignalTypeScreenShareStarted SignalType = "screen-share-started"
	SignalTypeScreenShareStopped SignalType = "screen-share-stopped"
	SignalTypePing               SignalType = "ping"
)

// SignalMessage is the envelope carried on the signaling channel. From and To
// are participant identities; Data holds the type-specific payload.
type SignalMessage struct {
	Type SignalType      `json:"type"`
	From string          `json:"from,omitempty"`
	To   string          `json:"to,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type SessionDescriptionPayload struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

type ICECandidatePayload struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

type PeerInfoPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type MediaStatePayload struct {
	IsMuted   bool `json:"is_muted"`
	IsVideoOn bool `json:"is_video_on"`
}

type JoinRequestPayload struct {
	HostUserID string `json:"host_user_id"`
	Email      string `json:"email"`
}

type PendingJoinRequestPayload struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Timestamp int64  `json:"timestamp"`
}

type JoinDecisionPayload struct {
	UserID string `json:"user_id"`
}

// NewSignalMessage marshals payload into a ready-to-send envelope.
func NewSignalMessage(t SignalType, to string, payload any) (*SignalMessage, error) {
	msg := &SignalMessage{Type: t, To: to}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		msg.Data = data
	}
	return msg, nil
}

// DecodePayload unmarshals the envelope data into out. Malformed payloads are
// a protocol error, reported to the caller so it can log and drop the message.
func (m *SignalMessage) DecodePayload(out any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, out); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", m.Type, err)
	}
	return nil
}
