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
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"go.uber.org/atomic"
)

const (
	heartbeatInterval     = 30 * time.Second
	signalWriteTimeout    = 10 * time.Second
	maxSignalReconnects   = 5
	signalReconnectDelay  = 5 * time.Second
	maxSignalMessageBytes = 512 * 1024
)

// SignalSender is the outbound half of the signaling channel. Room and its
// components send through this interface so tests can capture traffic.
type SignalSender interface {
	Send(msg *SignalMessage) error
}

// SignalClient carries the JSON signaling envelope over a websocket. A single
// read loop feeds every inbound message to OnMessage; there is no per-type
// listener registration.
type SignalClient struct {
	lock        sync.Mutex
	conn        *websocket.Conn
	wsURL       string
	meetingID   string
	token       string
	isConnected atomic.Bool
	reconnects  atomic.Int32
	closeFuse   core.Fuse

	OnMessage func(msg *SignalMessage)
	OnClose   func()
}

func NewSignalClient() *SignalClient {
	return &SignalClient{}
}

// Dial connects to the signaling endpoint for a meeting. The access token is
// carried as a query parameter, matching the backend contract.
func (c *SignalClient) Dial(urlPrefix, meetingID, token string) error {
	if urlPrefix == "" {
		return ErrURLNotProvided
	}

	u, err := url.Parse(ToWebsocketURL(urlPrefix))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCannotDialSignal, err)
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("meeting_id", meetingID)
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCannotDialSignal, err)
	}
	conn.SetReadLimit(maxSignalMessageBytes)

	c.lock.Lock()
	c.conn = conn
	c.wsURL = urlPrefix
	c.meetingID = meetingID
	c.token = token
	c.lock.Unlock()
	c.isConnected.Store(true)
	c.reconnects.Store(0)

	go c.readWorker(conn)
	go c.heartbeatWorker(conn)
	return nil
}

func (c *SignalClient) IsConnected() bool {
	return c.isConnected.Load()
}

func (c *SignalClient) Close() {
	c.closeFuse.Once(func() {
		c.isConnected.Store(false)
		c.lock.Lock()
		conn := c.conn
		c.conn = nil
		c.lock.Unlock()
		if conn != nil {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client leaving"),
				time.Now().Add(signalWriteTimeout),
			)
			_ = conn.Close()
		}
	})
}

// Send writes one envelope. Safe for concurrent use.
func (c *SignalClient) Send(msg *SignalMessage) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(signalWriteTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *SignalClient) SendOffer(to string, sd webrtc.SessionDescription) error {
	msg, err := NewSignalMessage(SignalTypeOffer, to, ToSessionDescriptionPayload(sd))
	if err != nil {
		return err
	}
	return c.Send(msg)
}

func (c *SignalClient) SendAnswer(to string, sd webrtc.SessionDescription) error {
	msg, err := NewSignalMessage(SignalTypeAnswer, to, ToSessionDescriptionPayload(sd))
	if err != nil {
		return err
	}
	return c.Send(msg)
}

func (c *SignalClient) SendICECandidate(to string, init webrtc.ICECandidateInit) error {
	msg, err := NewSignalMessage(SignalTypeICECandidate, to, ToICECandidatePayload(init))
	if err != nil {
		return err
	}
	return c.Send(msg)
}

func (c *SignalClient) readWorker(conn *websocket.Conn) {
	defer c.handleReadClosed()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		// the backend may batch multiple envelopes into one frame,
		// separated by newlines
		for _, raw := range bytes.Split(payload, []byte{'\n'}) {
			raw = bytes.TrimSpace(raw)
			if len(raw) == 0 {
				continue
			}
			msg := &SignalMessage{}
			if err := json.Unmarshal(raw, msg); err != nil {
				logger().Warn().Err(err).Msg("dropping unparseable signal message")
				continue
			}
			if f := c.OnMessage; f != nil {
				f(msg)
			}
		}
	}
}

func (c *SignalClient) heartbeatWorker(conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closeFuse.Watch():
			return
		case <-ticker.C:
			c.lock.Lock()
			current := c.conn
			c.lock.Unlock()
			if current != conn {
				return
			}
			if err := c.Send(&SignalMessage{Type: SignalTypePing}); err != nil {
				return
			}
		}
	}
}

func (c *SignalClient) handleReadClosed() {
	if c.closeFuse.IsBroken() {
		return
	}
	c.isConnected.Store(false)

	for c.reconnects.Inc() <= maxSignalReconnects {
		time.Sleep(signalReconnectDelay)
		if c.closeFuse.IsBroken() {
			return
		}
		c.lock.Lock()
		wsURL, meetingID, token := c.wsURL, c.meetingID, c.token
		c.lock.Unlock()
		attempt := c.reconnects.Load()
		logger().Info().Int32("attempt", attempt).Msg("reconnecting signal connection")
		if err := c.Dial(wsURL, meetingID, token); err == nil {
			return
		}
	}

	logger().Error().Msg("signal reconnect attempts exhausted")
	if f := c.OnClose; f != nil {
		f()
	}
}
