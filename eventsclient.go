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
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/frostbyte73/core"
	"go.uber.org/atomic"
)

// Event types pushed by the meeting backend over the events stream. These
// cover roster and chat updates; peer negotiation stays on the signal socket.
const (
	EventChatMessage        = "chat_message"
	EventParticipantJoined  = "participant_joined"
	EventParticipantLeft    = "participant_left"
	EventParticipantUpdated = "participant_updated"
	EventRecordingStarted   = "recording_started"
	EventRecordingStopped   = "recording_stopped"
	EventMeetingEnded       = "meeting_ended"
)

const (
	maxEventsReconnects  = 5
	eventsReconnectDelay = 3 * time.Second
)

// ServerEvent is one decoded server-sent event.
type ServerEvent struct {
	Type string
	Data json.RawMessage
}

// EventsClient consumes the backend's server-sent event stream for one
// meeting. Stream loss is retried a few times before OnClose fires.
type EventsClient struct {
	baseURL    string
	meetingID  string
	token      string
	httpClient *http.Client

	isConnected atomic.Bool
	reconnects  atomic.Int32
	closeFuse   core.Fuse
	cancel      atomic.Pointer[context.CancelFunc]

	OnEvent func(ev *ServerEvent)
	OnClose func(err error)
}

func NewEventsClient(urlPrefix, meetingID, token string) *EventsClient {
	return &EventsClient{
		baseURL:   strings.TrimSuffix(ToHTTPURL(urlPrefix), "/"),
		meetingID: meetingID,
		token:     token,
		// no client timeout, the stream is long-lived
		httpClient: &http.Client{},
	}
}

// Connect opens the stream and starts the read loop. It returns once the
// stream is established.
func (c *EventsClient) Connect() error {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel.Store(&cancel)

	res, err := c.open(ctx)
	if err != nil {
		cancel()
		return err
	}
	c.isConnected.Store(true)
	c.reconnects.Store(0)
	go c.readWorker(ctx, res)
	return nil
}

func (c *EventsClient) open(ctx context.Context) (*http.Response, error) {
	url := c.baseURL + "/api/meetings/" + c.meetingID + "/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, &APIError{StatusCode: res.StatusCode, Message: "events stream refused"}
	}
	return res, nil
}

func (c *EventsClient) readWorker(ctx context.Context, res *http.Response) {
	defer res.Body.Close()

	var eventType string
	var data strings.Builder
	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// blank line terminates one event
			if data.Len() > 0 {
				c.dispatch(eventType, data.String())
			}
			eventType = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	c.isConnected.Store(false)
	c.handleStreamClosed(ctx, scanner.Err())
}

// The backend wraps every event payload in {"type":...,"data":{...}}.
type eventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c *EventsClient) dispatch(eventType, payload string) {
	body := json.RawMessage(payload)
	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 {
		if eventType == "" {
			eventType = env.Type
		}
		body = env.Data
	}
	if eventType == "" {
		eventType = "message"
	}
	if c.OnEvent != nil {
		c.OnEvent(&ServerEvent{Type: eventType, Data: body})
	}
}

func (c *EventsClient) handleStreamClosed(ctx context.Context, err error) {
	if c.closeFuse.IsBroken() || ctx.Err() != nil {
		return
	}
	if n := c.reconnects.Inc(); n <= maxEventsReconnects {
		logger().Warn().Err(err).Int32("attempt", n).Msg("events stream lost, reconnecting")
		time.Sleep(eventsReconnectDelay)
		if c.closeFuse.IsBroken() || ctx.Err() != nil {
			return
		}
		res, openErr := c.open(ctx)
		if openErr != nil {
			c.handleStreamClosed(ctx, openErr)
			return
		}
		c.isConnected.Store(true)
		c.readWorker(ctx, res)
		return
	}
	logger().Error().Err(err).Msg("events stream lost, giving up")
	if c.OnClose != nil {
		c.OnClose(err)
	}
}

func (c *EventsClient) IsConnected() bool {
	return c.isConnected.Load()
}

func (c *EventsClient) Close() {
	c.closeFuse.Once(func() {
		if cancel := c.cancel.Load(); cancel != nil {
			(*cancel)()
		}
	})
}
