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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// User is the account behind a participant.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// Meeting is the REST resource the orchestrator reads identities and roles
// from. It never stores negotiation state server-side.
type Meeting struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Title       string `json:"title"`
	HostID      string `json:"host_id"`
	Host        User   `json:"host"`
	Status      string `json:"status"`
	MaxUsers    int    `json:"max_users"`
	IsRecording bool   `json:"is_recording"`
}

// MeetingParticipant is one roster entry as served by the REST collaborator.
type MeetingParticipant struct {
	ID        string          `json:"id"`
	MeetingID string          `json:"meeting_id"`
	User      User            `json:"user"`
	Role      ParticipantRole `json:"role"`
	IsMuted   bool            `json:"is_muted"`
	IsVideoOn bool            `json:"is_video_on"`
	IsSharing bool            `json:"is_sharing"`
}

// ChatMessage is one chat entry, delivered over the events channel and loaded
// as history over REST.
type ChatMessage struct {
	ID        string    `json:"id"`
	MeetingID string    `json:"meeting_id"`
	User      User      `json:"user"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// APIError carries a non-2xx response from the REST collaborator.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// APIClient talks to the meeting REST backend. The orchestrator core uses it
// only for membership and identity data.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimSuffix(ToHTTPURL(baseURL), "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api"+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &APIError{StatusCode: res.StatusCode}
		_ = json.NewDecoder(res.Body).Decode(apiErr)
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(res.Body).Decode(out)
	}
	return nil
}

func (c *APIClient) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *APIClient) MeetingByCode(ctx context.Context, code string) (*Meeting, error) {
	var m Meeting
	if err := c.do(ctx, http.MethodGet, "/meetings/code/"+code, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// JoinMeeting registers membership. An "already in meeting" conflict is not
// an error: hosts re-entering their own meeting hit it routinely.
func (c *APIClient) JoinMeeting(ctx context.Context, code string) error {
	err := c.do(ctx, http.MethodPost, "/meetings/join", map[string]string{"code": code}, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusConflict ||
			strings.Contains(strings.ToLower(apiErr.Message), "already") {
			return nil
		}
	}
	return err
}

func (c *APIClient) LeaveMeeting(ctx context.Context, meetingID string) error {
	return c.do(ctx, http.MethodPost, "/meetings/"+meetingID+"/leave", nil, nil)
}

func (c *APIClient) Participants(ctx context.Context, meetingID string) ([]MeetingParticipant, error) {
	var list []MeetingParticipant
	if err := c.do(ctx, http.MethodGet, "/meetings/"+meetingID+"/participants", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *APIClient) ChatHistory(ctx context.Context, meetingID string) ([]ChatMessage, error) {
	var list []ChatMessage
	if err := c.do(ctx, http.MethodGet, "/meetings/"+meetingID+"/messages", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *APIClient) SendChatMessage(ctx context.Context, meetingID, content string) error {
	return c.do(ctx, http.MethodPost, "/meetings/"+meetingID+"/messages", map[string]string{
		"content": content,
		"type":    "text",
	}, nil)
}

func (c *APIClient) StartRecording(ctx context.Context, meetingID string) error {
	return c.do(ctx, http.MethodPost, "/meetings/"+meetingID+"/recording/start", nil, nil)
}

func (c *APIClient) StopRecording(ctx context.Context, meetingID string) error {
	return c.do(ctx, http.MethodPost, "/meetings/"+meetingID+"/recording/stop", nil, nil)
}
