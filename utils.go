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
	"strings"

	"github.com/pion/webrtc/v4"
)

func ToSessionDescriptionPayload(sd webrtc.SessionDescription) *SessionDescriptionPayload {
	return &SessionDescriptionPayload{
		SDP:  sd.SDP,
		Type: sd.Type.String(),
	}
}

func FromSessionDescriptionPayload(p *SessionDescriptionPayload) webrtc.SessionDescription {
	var sdType webrtc.SDPType
	switch p.Type {
	case webrtc.SDPTypeOffer.String():
		sdType = webrtc.SDPTypeOffer
	case webrtc.SDPTypeAnswer.String():
		sdType = webrtc.SDPTypeAnswer
	case webrtc.SDPTypePranswer.String():
		sdType = webrtc.SDPTypePranswer
	case webrtc.SDPTypeRollback.String():
		sdType = webrtc.SDPTypeRollback
	}
	return webrtc.SessionDescription{
		Type: sdType,
		SDP:  p.SDP,
	}
}

func ToICECandidatePayload(init webrtc.ICECandidateInit) *ICECandidatePayload {
	p := &ICECandidatePayload{Candidate: init.Candidate}
	if init.SDPMid != nil {
		p.SDPMid = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		p.SDPMLineIndex = *init.SDPMLineIndex
	}
	return p
}

func FromICECandidatePayload(p *ICECandidatePayload) webrtc.ICECandidateInit {
	mid := p.SDPMid
	index := p.SDPMLineIndex
	return webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	}
}

func ToHTTPURL(url string) string {
	if strings.HasPrefix(url, "ws") {
		return strings.Replace(url, "ws", "http", 1)
	}
	return url
}

func ToWebsocketURL(url string) string {
	if strings.HasPrefix(url, "http") {
		return strings.Replace(url, "http", "ws", 1)
	}
	return url
}
