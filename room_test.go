package meshsdk

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

// newTestRoom assembles a Room around a dead backend and a recording signal
// sender, approved and ready for peer traffic unless approve is false.
func newTestRoom(t *testing.T, approve bool) (*Room, *signalRecorder) {
	t.Helper()
	rec := &signalRecorder{}
	r := &Room{
		connectInfo:       ConnectInfo{URL: "http://127.0.0.1:1"},
		callback:          NewRoomCallback(),
		api:               NewAPIClient("http://127.0.0.1:1", ""),
		signal:            NewSignalClient(),
		rtcConfig:         webrtc.Configuration{},
		reconnectParams:   testReconnectParams(),
		renegotiateParams: RenegotiateParams{MaxAttempts: 1, BaseDelay: time.Millisecond},
		meeting:           &Meeting{ID: "meeting-1", Code: "abc", HostID: "me"},
		local:             &User{ID: "me", Username: "Me", Email: "me@example.com"},
		isHost:            true,
		approvedChan:      make(chan struct{}),
		rejectedChan:      make(chan struct{}),
	}
	r.media = newLocalMediaController(&fakeMediaProvider{})
	r.buildComponents()

	// keep admission and presence traffic off the dead socket
	r.gate.sender = rec
	r.presence.sender = rec

	if approve {
		require.NoError(t, r.gate.Request())
		require.True(t, r.gate.Approved())
	}
	t.Cleanup(func() { r.teardown(false) })
	return r, rec
}

func remoteOffer(t *testing.T) webrtc.SessionDescription {
	t.Helper()
	transport, err := NewPCTransport(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { transport.Close() })

	_, err = transport.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio)
	require.NoError(t, err)

	var offer webrtc.SessionDescription
	transport.OnOffer = func(sd webrtc.SessionDescription) { offer = sd }
	require.NoError(t, transport.CreateAndSendOffer(nil))
	require.NotEmpty(t, offer.SDP)
	return offer
}

func TestRoomOffersToNewPeer(t *testing.T) {
	r, _ := newTestRoom(t, true)

	var connected *RemoteParticipant
	r.callback.OnParticipantConnected = func(p *RemoteParticipant) { connected = p }

	msg, err := NewSignalMessage(SignalTypePeerJoined, "", &PeerInfoPayload{
		UserID:   "peer-1",
		Username: "Peer",
	})
	require.NoError(t, err)
	r.handleSignal(msg)

	link, ok := r.links.Get("peer-1")
	require.True(t, ok)
	require.Equal(t, NegotiationStateOffering, link.State())
	// the offer was produced and installed even though the send failed
	require.Equal(t, webrtc.SignalingStateHaveLocalOffer, link.Transport().PeerConnection().SignalingState())
	require.NotNil(t, connected)
	require.Equal(t, "Peer", connected.Name())

	// a repeated announcement must not reset the link
	r.handleSignal(msg)
	again, _ := r.links.Get("peer-1")
	require.Same(t, link, again)
}

func TestRoomAnswersIncomingOffer(t *testing.T) {
	r, _ := newTestRoom(t, true)

	offer := remoteOffer(t)
	msg, err := NewSignalMessage(SignalTypeOffer, "", ToSessionDescriptionPayload(offer))
	require.NoError(t, err)
	msg.From = "peer-1"
	r.handleSignal(msg)

	link, ok := r.links.Get("peer-1")
	require.True(t, ok)
	require.Equal(t, NegotiationStateAnswering, link.State())

	pc := link.Transport().PeerConnection()
	require.NotNil(t, pc.RemoteDescription())
	// local answer installed, cycle complete on our side
	require.Equal(t, webrtc.SignalingStateStable, pc.SignalingState())
}

func TestRoomIgnoresPeersBeforeApproval(t *testing.T) {
	r, _ := newTestRoom(t, false)

	joined, err := NewSignalMessage(SignalTypePeerJoined, "", &PeerInfoPayload{UserID: "peer-1"})
	require.NoError(t, err)
	r.handleSignal(joined)
	require.Equal(t, 0, r.links.Len())

	offer := remoteOffer(t)
	offerMsg, err := NewSignalMessage(SignalTypeOffer, "", ToSessionDescriptionPayload(offer))
	require.NoError(t, err)
	offerMsg.From = "peer-1"
	r.handleSignal(offerMsg)
	require.Equal(t, 0, r.links.Len())
}

func TestRoomDropsTrafficFromUnknownPeers(t *testing.T) {
	r, _ := newTestRoom(t, true)

	answer, err := NewSignalMessage(SignalTypeAnswer, "", &SessionDescriptionPayload{
		SDP: "v=0", Type: "answer",
	})
	require.NoError(t, err)
	answer.From = "stranger"
	r.handleSignal(answer)
	require.Equal(t, 0, r.links.Len())

	candidate, err := NewSignalMessage(SignalTypeICECandidate, "", &ICECandidatePayload{
		Candidate: testHostCandidate,
	})
	require.NoError(t, err)
	candidate.From = "stranger"
	r.handleSignal(candidate)
	require.Equal(t, 0, r.links.Len())
}

func TestRoomPeerLeft(t *testing.T) {
	r, _ := newTestRoom(t, true)

	var disconnected *RemoteParticipant
	r.callback.OnParticipantDisconnected = func(p *RemoteParticipant) { disconnected = p }

	joined, err := NewSignalMessage(SignalTypePeerJoined, "", &PeerInfoPayload{UserID: "peer-1", Username: "Peer"})
	require.NoError(t, err)
	r.handleSignal(joined)
	link, _ := r.links.Get("peer-1")

	left := &SignalMessage{Type: SignalTypePeerLeft, From: "peer-1"}
	r.handleSignal(left)

	require.Equal(t, 0, r.links.Len())
	require.True(t, link.IsClosed())
	_, present := r.presence.Get("peer-1")
	require.False(t, present)
	require.NotNil(t, disconnected)

	// a second leave for the same peer is harmless
	r.handleSignal(left)
}

func TestRoomCandidateAppliedToKnownPeer(t *testing.T) {
	r, _ := newTestRoom(t, true)

	joined, err := NewSignalMessage(SignalTypePeerJoined, "", &PeerInfoPayload{UserID: "peer-1"})
	require.NoError(t, err)
	r.handleSignal(joined)
	link, _ := r.links.Get("peer-1")

	candidate, err := NewSignalMessage(SignalTypeICECandidate, "", &ICECandidatePayload{
		Candidate: testHostCandidate,
	})
	require.NoError(t, err)
	candidate.From = "peer-1"
	r.handleSignal(candidate)

	// no remote description yet, so the candidate waits on the transport
	require.Equal(t, 1, link.Transport().PendingCandidateCount())
}

func TestRoomRecreatePeer(t *testing.T) {
	r, _ := newTestRoom(t, true)

	joined, err := NewSignalMessage(SignalTypePeerJoined, "", &PeerInfoPayload{UserID: "peer-1", Username: "Peer"})
	require.NoError(t, err)
	r.handleSignal(joined)
	old, _ := r.links.Get("peer-1")

	r.recreatePeer("peer-1")

	fresh, ok := r.links.Get("peer-1")
	require.True(t, ok)
	require.NotSame(t, old, fresh)
	require.True(t, old.IsClosed())
	require.Equal(t, "Peer", fresh.Username())
	require.Equal(t, NegotiationStateOffering, fresh.State())

	// recreating an unknown identity does nothing
	r.recreatePeer("stranger")
	require.Equal(t, 1, r.links.Len())
}

func TestRoomTeardown(t *testing.T) {
	r, _ := newTestRoom(t, true)

	joined, err := NewSignalMessage(SignalTypePeerJoined, "", &PeerInfoPayload{UserID: "peer-1"})
	require.NoError(t, err)
	r.handleSignal(joined)
	link, _ := r.links.Get("peer-1")

	r.teardown(false)
	require.Equal(t, 0, r.links.Len())
	require.True(t, link.IsClosed())
	require.Empty(t, r.Participants())

	// signal traffic after teardown is ignored
	r.handleSignal(joined)
	require.Equal(t, 0, r.links.Len())

	r.teardown(false)
}

func TestRoomWaitForJoinOnClosedRoom(t *testing.T) {
	r, _ := newTestRoom(t, false)
	r.teardown(false)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.ErrorIs(t, r.WaitForJoin(ctx), ErrRoomClosed)
}

func TestRoomRejectionEndsSession(t *testing.T) {
	rec := &signalRecorder{}
	r := &Room{
		connectInfo:       ConnectInfo{URL: "http://127.0.0.1:1"},
		callback:          NewRoomCallback(),
		api:               NewAPIClient("http://127.0.0.1:1", ""),
		signal:            NewSignalClient(),
		rtcConfig:         webrtc.Configuration{},
		reconnectParams:   testReconnectParams(),
		renegotiateParams: defaultRenegotiateParams(),
		meeting:           &Meeting{ID: "meeting-1", HostID: "host-1"},
		local:             &User{ID: "guest-1", Username: "Guest"},
		approvedChan:      make(chan struct{}),
		rejectedChan:      make(chan struct{}),
	}
	r.media = newLocalMediaController(&fakeMediaProvider{})
	r.buildComponents()
	r.gate.sender = rec
	r.presence.sender = rec

	rejectedSeen := false
	r.callback.OnJoinRejected = func() { rejectedSeen = true }

	require.NoError(t, r.gate.Request())
	require.Equal(t, JoinStatePendingApproval, r.JoinState())

	r.handleSignal(&SignalMessage{Type: SignalTypeJoinRejected})
	require.True(t, rejectedSeen)
	require.Equal(t, JoinStateRejected, r.JoinState())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.ErrorIs(t, r.WaitForJoin(ctx), ErrJoinRejected)
}

func TestRoomMirrorsBackendEvents(t *testing.T) {
	r, _ := newTestRoom(t, true)

	var chat *ChatMessage
	r.callback.OnChatMessage = func(m ChatMessage) { chat = &m }
	var left *RemoteParticipant
	r.callback.OnParticipantDisconnected = func(p *RemoteParticipant) { left = p }

	r.handleEvent(&ServerEvent{
		Type: EventParticipantJoined,
		Data: json.RawMessage(`{"user":{"id":"u2","username":"Remote"},"role":"participant"}`),
	})
	p, ok := r.GetParticipant("u2")
	require.True(t, ok)
	require.Equal(t, "Remote", p.Name())

	r.handleEvent(&ServerEvent{
		Type: EventChatMessage,
		Data: json.RawMessage(`{"id":"c1","content":"hi there","user":{"id":"u2"}}`),
	})
	require.NotNil(t, chat)
	require.Equal(t, "hi there", chat.Content)

	// participant_left only carries the user id
	r.handleEvent(&ServerEvent{
		Type: EventParticipantLeft,
		Data: json.RawMessage(`{"user_id":"u2"}`),
	})
	require.NotNil(t, left)
	require.Equal(t, "u2", left.Identity())
	_, ok = r.GetParticipant("u2")
	require.False(t, ok)
}
