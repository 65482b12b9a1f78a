package meshsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAPIClientRequests(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/api/auth/me":
			json.NewEncoder(w).Encode(User{ID: "user-1", Username: "alice"})
		case "/api/meetings/code/abc123":
			json.NewEncoder(w).Encode(Meeting{ID: "meeting-1", Code: "abc123", HostID: "user-1"})
		case "/api/meetings/meeting-1/participants":
			json.NewEncoder(w).Encode([]MeetingParticipant{
				{User: User{ID: "user-1"}, Role: RoleHost},
				{User: User{ID: "user-2"}, Role: RoleParticipant},
			})
		case "/api/meetings/meeting-1/messages":
			if r.Method == http.MethodPost {
				var body map[string]string
				json.NewDecoder(r.Body).Decode(&body)
				require.Equal(t, "hello", body["content"])
				w.WriteHeader(http.StatusCreated)
				return
			}
			json.NewEncoder(w).Encode([]ChatMessage{{ID: "msg-1", Content: "hi"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := NewAPIClient(server.URL, "tok-1")
	ctx := context.Background()

	me, err := c.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice", me.Username)
	require.Equal(t, "Bearer tok-1", gotAuth)

	meeting, err := c.MeetingByCode(ctx, "abc123")
	require.NoError(t, err)
	require.Equal(t, "meeting-1", meeting.ID)

	participants, err := c.Participants(ctx, "meeting-1")
	require.NoError(t, err)
	require.Len(t, participants, 2)
	require.Equal(t, RoleHost, participants[0].Role)

	history, err := c.ChatHistory(ctx, "meeting-1")
	require.NoError(t, err)
	require.Len(t, history, 1)

	require.NoError(t, c.SendChatMessage(ctx, "meeting-1", "hello"))
}

func TestAPIClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "meeting not found"})
	}))
	defer server.Close()

	c := NewAPIClient(server.URL, "")
	_, err := c.MeetingByCode(context.Background(), "nope")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.Contains(t, apiErr.Error(), "meeting not found")
}

func TestAPIClientJoinConflictIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/meetings/join", r.URL.Path)
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "user already in meeting"})
	}))
	defer server.Close()

	c := NewAPIClient(server.URL, "")
	require.NoError(t, c.JoinMeeting(context.Background(), "abc123"))
}

func TestAPIClientNormalizesWebsocketURL(t *testing.T) {
	c := NewAPIClient("ws://example.com/", "")
	require.Equal(t, "http://example.com", c.baseURL)
}
