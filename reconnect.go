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
)

const (
	defaultDisconnectedGrace = 5 * time.Second
	defaultRecreateWindow    = 10 * time.Second
)

// ReconnectParams tunes the tiered recovery policy. Tests compress these.
type ReconnectParams struct {
	// DisconnectedGrace is how long a link may sit in disconnected before an
	// ICE restart is attempted.
	DisconnectedGrace time.Duration
	// RecreateWindow is how long a failed link's ICE restart gets to recover
	// before the session is torn down and rebuilt from scratch.
	RecreateWindow time.Duration
}

func defaultReconnectParams() ReconnectParams {
	return ReconnectParams{
		DisconnectedGrace: defaultDisconnectedGrace,
		RecreateWindow:    defaultRecreateWindow,
	}
}

// reconnectSupervisor watches each link's ICE and overall connection state and
// drives recovery at two time scales: ICE restart on the same session, then
// full recreation. Restart and recreate are supplied by the room so the
// supervisor never touches the registry directly.
type reconnectSupervisor struct {
	params   ReconnectParams
	restart  func(identity string)
	recreate func(identity string)

	lock           sync.Mutex
	graceTimers    map[string]*time.Timer
	recreateTimers map[string]*time.Timer
	closed         bool
}

func newReconnectSupervisor(params ReconnectParams, restart, recreate func(identity string)) *reconnectSupervisor {
	return &reconnectSupervisor{
		params:         params,
		restart:        restart,
		recreate:       recreate,
		graceTimers:    make(map[string]*time.Timer),
		recreateTimers: make(map[string]*time.Timer),
	}
}

// HandleICEState reacts to per-link ICE connection state transitions.
func (s *reconnectSupervisor) HandleICEState(identity string, state webrtc.ICEConnectionState) {
	switch state {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		s.CancelPeer(identity)
	case webrtc.ICEConnectionStateFailed:
		logger().Info().Str("peer", identity).Msg("ICE failed, restarting")
		s.restart(identity)
	case webrtc.ICEConnectionStateDisconnected:
		s.scheduleGraceRestart(identity)
	}
}

// HandleConnectionState reacts to per-link overall connection state
// transitions, independently of the ICE signal.
func (s *reconnectSupervisor) HandleConnectionState(identity string, state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		s.CancelPeer(identity)
	case webrtc.PeerConnectionStateFailed:
		logger().Info().Str("peer", identity).Msg("connection failed, restarting with recreate window")
		s.restart(identity)
		s.scheduleRecreate(identity)
	case webrtc.PeerConnectionStateDisconnected:
		s.scheduleGraceRestart(identity)
	}
}

func (s *reconnectSupervisor) scheduleGraceRestart(identity string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return
	}
	if _, ok := s.graceTimers[identity]; ok {
		// grace period already running; do not extend it
		return
	}
	s.graceTimers[identity] = time.AfterFunc(s.params.DisconnectedGrace, func() {
		s.lock.Lock()
		delete(s.graceTimers, identity)
		closed := s.closed
		s.lock.Unlock()
		if closed {
			return
		}
		logger().Info().Str("peer", identity).Msg("still disconnected after grace period, restarting ICE")
		s.restart(identity)
	})
}

func (s *reconnectSupervisor) scheduleRecreate(identity string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.recreateTimers[identity]; ok {
		t.Stop()
	}
	s.recreateTimers[identity] = time.AfterFunc(s.params.RecreateWindow, func() {
		s.lock.Lock()
		delete(s.recreateTimers, identity)
		closed := s.closed
		s.lock.Unlock()
		if closed {
			return
		}
		logger().Info().Str("peer", identity).Msg("restart window expired, recreating session")
		s.recreate(identity)
	})
}

// CancelPeer stops every pending timer for identity, called when the link
// reaches Connected or is destroyed so no timer acts on stale state.
func (s *reconnectSupervisor) CancelPeer(identity string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if t, ok := s.graceTimers[identity]; ok {
		t.Stop()
		delete(s.graceTimers, identity)
	}
	if t, ok := s.recreateTimers[identity]; ok {
		t.Stop()
		delete(s.recreateTimers, identity)
	}
}

// Close cancels everything; the supervisor is unusable afterwards.
func (s *reconnectSupervisor) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed = true
	for id, t := range s.graceTimers {
		t.Stop()
		delete(s.graceTimers, id)
	}
	for id, t := range s.recreateTimers {
		t.Stop()
		delete(s.recreateTimers, id)
	}
}

// pendingTimerCount reports how many timers are live, for tests.
func (s *reconnectSupervisor) pendingTimerCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.graceTimers) + len(s.recreateTimers)
}
