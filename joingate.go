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

	"github.com/gammazero/deque"
	"go.uber.org/atomic"
)

// JoinApprovalState gates whether peer signaling may run for this session.
type JoinApprovalState int32

const (
	JoinStateIdle JoinApprovalState = iota
	JoinStatePendingApproval
	JoinStateApproved
	JoinStateRejected
)

func (s JoinApprovalState) String() string {
	switch s {
	case JoinStateIdle:
		return "idle"
	case JoinStatePendingApproval:
		return "pending-approval"
	case JoinStateApproved:
		return "approved"
	case JoinStateRejected:
		return "rejected"
	}
	return "unknown"
}

// JoinRequest is one queued host-side approval request.
type JoinRequest struct {
	UserID     string
	Username   string
	Email      string
	ReceivedAt time.Time
}

// joinGate runs the admission state machine. The host path self-approves; the
// non-host path waits on an explicit host decision. Once Rejected the gate is
// terminal and the session must end.
type joinGate struct {
	sender SignalSender
	state  atomic.Int32

	isHost bool
	hostID string
	email  string

	lock    sync.Mutex
	pending deque.Deque[JoinRequest]

	onApproved func()
	onRejected func()
	onPending  func(req JoinRequest)
}

func newJoinGate(sender SignalSender, isHost bool, hostID, email string) *joinGate {
	return &joinGate{
		sender: sender,
		isHost: isHost,
		hostID: hostID,
		email:  email,
	}
}

func (g *joinGate) State() JoinApprovalState {
	return JoinApprovalState(g.state.Load())
}

// Approved reports whether peer signaling is armed.
func (g *joinGate) Approved() bool {
	return g.State() == JoinStateApproved
}

// Request starts admission. Re-triggering while a request is in flight
// returns ErrJoinInProgress so re-entrant events cannot double-send.
func (g *joinGate) Request() error {
	switch g.State() {
	case JoinStatePendingApproval:
		return ErrJoinInProgress
	case JoinStateApproved:
		return nil
	case JoinStateRejected:
		return ErrJoinRejected
	}

	if g.isHost {
		msg, err := NewSignalMessage(SignalTypeHostJoin, "", struct{}{})
		if err != nil {
			return err
		}
		if err := g.sender.Send(msg); err != nil {
			return err
		}
		g.state.Store(int32(JoinStateApproved))
		if f := g.onApproved; f != nil {
			f()
		}
		return nil
	}

	msg, err := NewSignalMessage(SignalTypeJoinRequest, g.hostID, &JoinRequestPayload{
		HostUserID: g.hostID,
		Email:      g.email,
	})
	if err != nil {
		return err
	}
	if err := g.sender.Send(msg); err != nil {
		return err
	}
	g.state.Store(int32(JoinStatePendingApproval))
	return nil
}

// HandleMessage consumes admission traffic. Returns false for message types
// the gate does not own.
func (g *joinGate) HandleMessage(msg *SignalMessage) bool {
	switch msg.Type {
	case SignalTypeJoinRequestPending:
		// server acknowledged the request; nothing to change, we are
		// already in PendingApproval
		return true

	case SignalTypePendingJoinRequest:
		var p PendingJoinRequestPayload
		if err := msg.DecodePayload(&p); err != nil {
			logger().Warn().Err(err).Msg("dropping malformed join request")
			return true
		}
		req := JoinRequest{
			UserID:     p.UserID,
			Username:   p.Username,
			Email:      p.Email,
			ReceivedAt: time.Unix(p.Timestamp, 0),
		}
		g.lock.Lock()
		g.pending.PushBack(req)
		g.lock.Unlock()
		if f := g.onPending; f != nil {
			f(req)
		}
		return true

	case SignalTypeJoinApproved:
		if g.state.CompareAndSwap(int32(JoinStatePendingApproval), int32(JoinStateApproved)) {
			if f := g.onApproved; f != nil {
				f()
			}
		}
		return true

	case SignalTypeJoinRejected:
		prev := JoinApprovalState(g.state.Swap(int32(JoinStateRejected)))
		if prev != JoinStateRejected {
			if f := g.onRejected; f != nil {
				f()
			}
		}
		return true
	}
	return false
}

// PendingRequests snapshots the host-side approval queue in arrival order.
func (g *joinGate) PendingRequests() []JoinRequest {
	g.lock.Lock()
	defer g.lock.Unlock()
	out := make([]JoinRequest, 0, g.pending.Len())
	for i := 0; i < g.pending.Len(); i++ {
		out = append(out, g.pending.At(i))
	}
	return out
}

// Approve resolves a queued request positively and removes it.
func (g *joinGate) Approve(userID string) error {
	return g.resolve(SignalTypeApproveJoinRequest, userID)
}

// Reject resolves a queued request negatively and removes it.
func (g *joinGate) Reject(userID string) error {
	return g.resolve(SignalTypeRejectJoinRequest, userID)
}

func (g *joinGate) resolve(decision SignalType, userID string) error {
	msg, err := NewSignalMessage(decision, userID, &JoinDecisionPayload{UserID: userID})
	if err != nil {
		return err
	}
	if err := g.sender.Send(msg); err != nil {
		return err
	}

	g.lock.Lock()
	for i := 0; i < g.pending.Len(); i++ {
		if g.pending.At(i).UserID == userID {
			g.pending.Remove(i)
			break
		}
	}
	g.lock.Unlock()
	return nil
}
