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
	"sort"
	"sync"

	"go.uber.org/atomic"
)

// presenceRelay owns the mirrored roster and the out-of-band media-state
// exchange. It never touches peer links: presence is independent of whether
// any track is flowing.
type presenceRelay struct {
	sender        SignalSender
	localIdentity string
	localUsername string

	lock         sync.Mutex
	participants map[string]*RemoteParticipant
	presenterID  atomic.String

	onMediaState  func(p *RemoteParticipant)
	onScreenShare func(presenterID string, started bool)
}

func newPresenceRelay(sender SignalSender, localIdentity, localUsername string) *presenceRelay {
	r := &presenceRelay{
		sender:        sender,
		localIdentity: localIdentity,
		localUsername: localUsername,
		participants:  make(map[string]*RemoteParticipant),
	}
	r.presenterID.Store("")
	return r
}

// Upsert records or refreshes a roster entry fed from the events channel or
// the REST roster.
func (r *presenceRelay) Upsert(identity, name string, role ParticipantRole) *RemoteParticipant {
	r.lock.Lock()
	defer r.lock.Unlock()
	if p, ok := r.participants[identity]; ok {
		p.update(name, role)
		return p
	}
	p := newRemoteParticipant(identity, name, role)
	r.participants[identity] = p
	return p
}

func (r *presenceRelay) Remove(identity string) {
	r.lock.Lock()
	delete(r.participants, identity)
	r.lock.Unlock()
	// a leaving presenter implicitly stops presenting
	r.presenterID.CompareAndSwap(identity, "")
}

func (r *presenceRelay) Get(identity string) (*RemoteParticipant, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	p, ok := r.participants[identity]
	return p, ok
}

// Participants returns the roster sorted by identity for stable iteration.
func (r *presenceRelay) Participants() []*RemoteParticipant {
	r.lock.Lock()
	out := make([]*RemoteParticipant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	r.lock.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].identity < out[j].identity })
	return out
}

func (r *presenceRelay) Clear() {
	r.lock.Lock()
	r.participants = make(map[string]*RemoteParticipant)
	r.lock.Unlock()
	r.presenterID.Store("")
}

// PresenterID returns the identity currently announced as screen-share
// presenter, or empty.
func (r *presenceRelay) PresenterID() string {
	return r.presenterID.Load()
}

// HandleMessage consumes presence traffic from the signaling channel. Returns
// false for message types the relay does not own.
func (r *presenceRelay) HandleMessage(msg *SignalMessage) bool {
	switch msg.Type {
	case SignalTypeMediaStateChanged:
		var p MediaStatePayload
		if err := msg.DecodePayload(&p); err != nil {
			logger().Warn().Err(err).Str("peer", msg.From).Msg("dropping malformed media state")
			return true
		}
		participant, ok := r.Get(msg.From)
		if !ok {
			logger().Warn().Str("peer", msg.From).Msg("media state for unknown participant dropped")
			return true
		}
		participant.isMuted.Store(p.IsMuted)
		participant.isVideoOn.Store(p.IsVideoOn)
		if f := r.onMediaState; f != nil {
			f(participant)
		}
		return true

	case SignalTypeScreenShareStarted:
		var p PeerInfoPayload
		if err := msg.DecodePayload(&p); err != nil {
			logger().Warn().Err(err).Msg("dropping malformed screen share announcement")
			return true
		}
		r.presenterID.Store(p.UserID)
		if participant, ok := r.Get(p.UserID); ok {
			participant.isSharing.Store(true)
		}
		if f := r.onScreenShare; f != nil {
			f(p.UserID, true)
		}
		return true

	case SignalTypeScreenShareStopped:
		var p PeerInfoPayload
		if err := msg.DecodePayload(&p); err != nil {
			logger().Warn().Err(err).Msg("dropping malformed screen share announcement")
			return true
		}
		r.presenterID.CompareAndSwap(p.UserID, "")
		if participant, ok := r.Get(p.UserID); ok {
			participant.isSharing.Store(false)
		}
		if f := r.onScreenShare; f != nil {
			f(p.UserID, false)
		}
		return true
	}
	return false
}

// BroadcastMediaState announces the local mute/camera flags. Sent on every
// toggle so remote UIs stay accurate even when no track is flowing.
func (r *presenceRelay) BroadcastMediaState(muted, videoOn bool) error {
	msg, err := NewSignalMessage(SignalTypeMediaStateChanged, "", &MediaStatePayload{
		IsMuted:   muted,
		IsVideoOn: videoOn,
	})
	if err != nil {
		return err
	}
	return r.sender.Send(msg)
}

// BroadcastScreenShare announces the local participant starting or stopping a
// screen share.
func (r *presenceRelay) BroadcastScreenShare(started bool) error {
	t := SignalTypeScreenShareStarted
	if !started {
		t = SignalTypeScreenShareStopped
	}
	msg, err := NewSignalMessage(t, "", &PeerInfoPayload{
		UserID:   r.localIdentity,
		Username: r.localUsername,
	})
	if err != nil {
		return err
	}
	return r.sender.Send(msg)
}
