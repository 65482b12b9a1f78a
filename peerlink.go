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
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/atomic"
)

// NegotiationState tracks where a peer link is in its current offer/answer
// cycle. Exactly one side of a pair goes through Offering, the other through
// Answering.
type NegotiationState int32

const (
	NegotiationStateNone NegotiationState = iota
	NegotiationStateOffering
	NegotiationStateAnswering
	NegotiationStateConnected
	NegotiationStateClosed
)

func (s NegotiationState) String() string {
	switch s {
	case NegotiationStateNone:
		return "none"
	case NegotiationStateOffering:
		return "offering"
	case NegotiationStateAnswering:
		return "answering"
	case NegotiationStateConnected:
		return "connected"
	case NegotiationStateClosed:
		return "closed"
	}
	return "unknown"
}

// PeerLink holds the complete negotiation and media state for one direct
// connection to one remote participant. It is owned by the registry; at most
// one link exists per remote identity.
type PeerLink struct {
	identity string
	username atomic.String

	transport *PCTransport

	state         atomic.Int32
	lastICEChange atomic.Time
	closed        atomic.Bool

	// senders keyed by source, not by codec kind. The camera sender and the
	// screen sender are never the same handle.
	lock    sync.Mutex
	senders map[TrackSource]*webrtc.RTPSender
}

func newPeerLink(identity, username string, config webrtc.Configuration) (*PeerLink, error) {
	t, err := NewPCTransport(config)
	if err != nil {
		return nil, err
	}
	l := &PeerLink{
		identity:  identity,
		transport: t,
		senders:   make(map[TrackSource]*webrtc.RTPSender),
	}
	l.username.Store(username)
	return l, nil
}

func (l *PeerLink) Identity() string {
	return l.identity
}

func (l *PeerLink) Username() string {
	return l.username.Load()
}

func (l *PeerLink) setUsername(name string) {
	if name != "" {
		l.username.Store(name)
	}
}

func (l *PeerLink) Transport() *PCTransport {
	return l.transport
}

func (l *PeerLink) State() NegotiationState {
	return NegotiationState(l.state.Load())
}

func (l *PeerLink) setState(s NegotiationState) {
	l.state.Store(int32(s))
}

func (l *PeerLink) markICEChange() {
	l.lastICEChange.Store(time.Now())
}

func (l *PeerLink) LastICEChange() time.Time {
	return l.lastICEChange.Load()
}

// Sender returns the sender recorded for source, if any.
func (l *PeerLink) Sender(source TrackSource) (*webrtc.RTPSender, bool) {
	l.lock.Lock()
	defer l.lock.Unlock()
	s, ok := l.senders[source]
	return s, ok
}

// AttachTrack adds track as a new sender for source and records the mapping.
func (l *PeerLink) AttachTrack(source TrackSource, track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	sender, err := l.transport.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	l.lock.Lock()
	l.senders[source] = sender
	l.lock.Unlock()
	return sender, nil
}

// ReplaceTrack swaps the track on the recorded sender for source without
// renegotiation. A nil track leaves the sender in place but sending nothing.
// Returns false with no error when no sender is recorded for source.
func (l *PeerLink) ReplaceTrack(source TrackSource, track webrtc.TrackLocal) (bool, error) {
	l.lock.Lock()
	sender, ok := l.senders[source]
	l.lock.Unlock()
	if !ok {
		return false, nil
	}
	return true, sender.ReplaceTrack(track)
}

// ReplaceOrAttachTrack replaces the recorded sender's track, or attaches a new
// sender when none is recorded for source. Reports whether an attach happened,
// since an attach requires renegotiation while a replace does not.
func (l *PeerLink) ReplaceOrAttachTrack(source TrackSource, track webrtc.TrackLocal) (attached bool, err error) {
	replaced, err := l.ReplaceTrack(source, track)
	if err != nil {
		return false, err
	}
	if replaced {
		return false, nil
	}
	_, err = l.AttachTrack(source, track)
	return err == nil, err
}

// DetachTrack removes the sender recorded for source from the session.
func (l *PeerLink) DetachTrack(source TrackSource) error {
	l.lock.Lock()
	sender, ok := l.senders[source]
	delete(l.senders, source)
	l.lock.Unlock()
	if !ok {
		return nil
	}
	return l.transport.pc.RemoveTrack(sender)
}

// Close releases all senders and the underlying session. Idempotent.
func (l *PeerLink) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.setState(NegotiationStateClosed)
	l.lock.Lock()
	l.senders = make(map[TrackSource]*webrtc.RTPSender)
	l.lock.Unlock()
	return l.transport.Close()
}

func (l *PeerLink) IsClosed() bool {
	return l.closed.Load()
}
