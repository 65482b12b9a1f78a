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
	"context"
	"encoding/json"
	"time"

	"github.com/frostbyte73/core"
	"github.com/pion/webrtc/v4"
)

// ConnectInfo carries everything needed to enter a meeting.
type ConnectInfo struct {
	// URL of the meeting backend, http(s) or ws(s) scheme.
	URL string
	// MeetingCode is the human-shareable meeting code.
	MeetingCode string
	// Token is the bearer access token for the backend.
	Token string
}

// RoomOption customizes a Room before it connects.
type RoomOption func(r *Room)

// WithMediaProvider supplies the capture backend for microphone, camera and
// screen tracks. Without one the room joins receive-only.
func WithMediaProvider(p MediaProvider) RoomOption {
	return func(r *Room) {
		r.media = newLocalMediaController(p)
	}
}

func WithICEServers(servers []webrtc.ICEServer) RoomOption {
	return func(r *Room) {
		r.rtcConfig.ICEServers = servers
	}
}

func WithReconnectParams(params ReconnectParams) RoomOption {
	return func(r *Room) {
		r.reconnectParams = params
	}
}

func WithRenegotiateParams(params RenegotiateParams) RoomOption {
	return func(r *Room) {
		r.renegotiateParams = params
	}
}

// Room orchestrates one participant's full-mesh session: admission, one peer
// link per remote participant, local track fan-out and presence. All signal
// traffic flows through handleSignal on the signal client's read goroutine.
type Room struct {
	connectInfo ConnectInfo
	callback    *RoomCallback

	engineDone core.Fuse

	api    *APIClient
	signal *SignalClient
	events *EventsClient

	gate       *joinGate
	links      *peerLinkRegistry
	media      *localMediaController
	tracks     *trackManager
	presence   *presenceRelay
	supervisor *reconnectSupervisor

	rtcConfig         webrtc.Configuration
	reconnectParams   ReconnectParams
	renegotiateParams RenegotiateParams

	meeting *Meeting
	local   *User
	isHost  bool

	approvedChan chan struct{}
	rejectedChan chan struct{}
}

// ConnectToRoom resolves the meeting, registers membership and starts the
// admission flow. Hosts come back approved; everyone else is in
// PendingApproval until the host decides — use WaitForJoin to block on the
// outcome. Peer links form only after approval.
func ConnectToRoom(info ConnectInfo, callback *RoomCallback, opts ...RoomOption) (*Room, error) {
	if info.URL == "" {
		return nil, ErrURLNotProvided
	}
	if callback == nil {
		callback = NewRoomCallback()
	}

	r := &Room{
		connectInfo: info,
		callback:    callback.merge(),
		api:         NewAPIClient(info.URL, info.Token),
		signal:      NewSignalClient(),
		rtcConfig: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{
				{URLs: []string{"stun:stun.l.google.com:19302"}},
			},
		},
		reconnectParams:   defaultReconnectParams(),
		renegotiateParams: defaultRenegotiateParams(),
		approvedChan:      make(chan struct{}),
		rejectedChan:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	me, err := r.api.Me(ctx)
	if err != nil {
		return nil, err
	}
	r.local = me

	meeting, err := r.api.MeetingByCode(ctx, info.MeetingCode)
	if err != nil {
		return nil, err
	}
	r.meeting = meeting
	r.isHost = meeting.HostID == me.ID

	if err := r.api.JoinMeeting(ctx, info.MeetingCode); err != nil {
		return nil, err
	}

	r.buildComponents()
	r.acquireInitialTracks()

	if err := r.signal.Dial(info.URL, meeting.ID, info.Token); err != nil {
		r.media.StopAll()
		return nil, err
	}

	if err := r.gate.Request(); err != nil {
		r.signal.Close()
		r.media.StopAll()
		return nil, err
	}
	return r, nil
}

func (r *Room) buildComponents() {
	if r.media == nil {
		r.media = newLocalMediaController(nil)
	}
	r.presence = newPresenceRelay(r.signal, r.local.ID, r.local.Username)
	r.presence.onMediaState = r.callback.OnParticipantMediaChanged
	r.presence.onScreenShare = r.callback.OnScreenShareChanged

	r.links = newPeerLinkRegistry(func(identity, username string) (*PeerLink, error) {
		return newPeerLink(identity, username, r.rtcConfig)
	})
	r.supervisor = newReconnectSupervisor(r.reconnectParams, r.restartPeer, r.recreatePeer)
	r.links.onDestroy = r.supervisor.CancelPeer

	r.tracks = newTrackManager(r.media, r.links, r.presence)
	r.tracks.reneg = r.renegotiateParams

	r.gate = newJoinGate(r.signal, r.isHost, r.meeting.HostID, r.local.Email)
	r.gate.onApproved = r.onJoinApproved
	r.gate.onRejected = r.onJoinRejected
	r.gate.onPending = r.callback.OnPendingJoinRequest

	r.signal.OnMessage = r.handleSignal
	r.signal.OnClose = r.onSignalLost
}

// acquireInitialTracks opens microphone and camera using the default devices.
// Failures downgrade the corresponding media state instead of failing the
// join; capture problems should not keep a participant out of the meeting.
func (r *Room) acquireInitialTracks() {
	if _, err := r.media.Acquire(TrackSourceAudio, ""); err != nil {
		logger().Warn().Err(err).Msg("could not open microphone")
		r.media.mutateState(func(s *LocalMediaState) { s.AudioEnabled = false })
	}
	if _, err := r.media.Acquire(TrackSourceCamera, ""); err != nil {
		logger().Warn().Err(err).Msg("could not open camera")
		r.media.mutateState(func(s *LocalMediaState) { s.VideoEnabled = false })
	}
}

// WaitForJoin blocks until the host decides on this participant's admission.
// Hosts return immediately.
func (r *Room) WaitForJoin(ctx context.Context) error {
	// a decision that already landed wins over a later shutdown
	select {
	case <-r.approvedChan:
		return nil
	case <-r.rejectedChan:
		return ErrJoinRejected
	default:
	}
	select {
	case <-r.approvedChan:
		return nil
	case <-r.rejectedChan:
		return ErrJoinRejected
	case <-r.engineDone.Watch():
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) onJoinApproved() {
	close(r.approvedChan)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if list, err := r.api.Participants(ctx, r.meeting.ID); err != nil {
		logger().Warn().Err(err).Msg("could not load participant roster")
	} else {
		for _, mp := range list {
			if mp.User.ID == r.local.ID {
				continue
			}
			r.presence.Upsert(mp.User.ID, mp.User.Username, mp.Role)
		}
	}

	r.events = NewEventsClient(r.connectInfo.URL, r.meeting.ID, r.connectInfo.Token)
	r.events.OnEvent = r.handleEvent
	r.events.OnClose = func(err error) {
		logger().Warn().Err(err).Msg("events stream closed")
	}
	if err := r.events.Connect(); err != nil {
		logger().Warn().Err(err).Msg("could not open events stream")
	}

	// announce readiness so existing participants dial toward us; we never
	// start the offer toward peers that were here first
	if msg, err := NewSignalMessage(SignalTypeReady, "", struct{}{}); err == nil {
		if err := r.signal.Send(msg); err != nil {
			logger().Warn().Err(err).Msg("could not announce readiness")
		}
	}

	r.callback.OnJoinApproved()
}

func (r *Room) onJoinRejected() {
	close(r.rejectedChan)
	r.callback.OnJoinRejected()
	r.teardown(false)
}

// handleSignal routes every inbound envelope. Admission and presence messages
// are consumed by their components; the rest drive peer negotiation.
func (r *Room) handleSignal(msg *SignalMessage) {
	if r.engineDone.IsBroken() {
		return
	}
	if r.gate.HandleMessage(msg) {
		return
	}
	if r.presence.HandleMessage(msg) {
		return
	}

	switch msg.Type {
	case SignalTypeReady, SignalTypePing:
		// server acknowledgements, nothing to do
	case SignalTypePeerJoined:
		r.handlePeerJoined(msg)
	case SignalTypePeerLeft:
		r.handlePeerLeft(msg)
	case SignalTypeOffer:
		r.handleOffer(msg)
	case SignalTypeAnswer:
		r.handleAnswer(msg)
	case SignalTypeICECandidate:
		r.handleICECandidate(msg)
	default:
		logger().Debug().Str("type", string(msg.Type)).Msg("ignoring unhandled signal message")
	}
}

// handlePeerJoined fires on the side that was already in the meeting. That
// side always makes the first offer; the newcomer only ever answers.
func (r *Room) handlePeerJoined(msg *SignalMessage) {
	if !r.gate.Approved() {
		return
	}
	info := &PeerInfoPayload{}
	if err := msg.DecodePayload(info); err != nil {
		logger().Warn().Err(err).Msg("dropping malformed peer-joined")
		return
	}
	identity := info.UserID
	if identity == "" {
		identity = msg.From
	}
	if identity == "" || identity == r.local.ID {
		return
	}

	p := r.presence.Upsert(identity, info.Username, RoleParticipant)
	r.callback.OnParticipantConnected(p)

	link, created, err := r.linkFor(identity, info.Username)
	if err != nil {
		logger().Error().Err(err).Str("peer", identity).Msg("could not create peer link")
		r.callback.OnPeerFailed(identity, err)
		return
	}
	if !created {
		return
	}
	link.setState(NegotiationStateOffering)
	if err := link.Transport().CreateAndSendOffer(nil); err != nil {
		logger().Error().Err(err).Str("peer", identity).Msg("could not send initial offer")
		r.callback.OnPeerFailed(identity, err)
	}
}

func (r *Room) handlePeerLeft(msg *SignalMessage) {
	identity := msg.From
	if identity == "" {
		info := &PeerInfoPayload{}
		if err := msg.DecodePayload(info); err == nil {
			identity = info.UserID
		}
	}
	if identity == "" {
		return
	}
	r.links.Destroy(identity)
	if p, ok := r.presence.Get(identity); ok {
		r.presence.Remove(identity)
		r.callback.OnParticipantDisconnected(p)
	}
}

func (r *Room) handleOffer(msg *SignalMessage) {
	if !r.gate.Approved() || msg.From == "" {
		return
	}
	payload := &SessionDescriptionPayload{}
	if err := msg.DecodePayload(payload); err != nil {
		logger().Warn().Err(err).Str("peer", msg.From).Msg("dropping malformed offer")
		return
	}

	link, created, err := r.linkFor(msg.From, "")
	if err != nil {
		logger().Error().Err(err).Str("peer", msg.From).Msg("could not create peer link for offer")
		r.callback.OnPeerFailed(msg.From, err)
		return
	}
	if created || link.State() != NegotiationStateConnected {
		link.setState(NegotiationStateAnswering)
	}

	t := link.Transport()
	if err := t.SetRemoteDescription(FromSessionDescriptionPayload(payload)); err != nil {
		logger().Error().Err(err).Str("peer", msg.From).Msg("could not apply remote offer")
		r.callback.OnPeerFailed(msg.From, err)
		return
	}
	answer, err := t.PeerConnection().CreateAnswer(nil)
	if err != nil {
		logger().Error().Err(err).Str("peer", msg.From).Msg("could not create answer")
		r.callback.OnPeerFailed(msg.From, err)
		return
	}
	if err := t.PeerConnection().SetLocalDescription(answer); err != nil {
		logger().Error().Err(err).Str("peer", msg.From).Msg("could not set local answer")
		r.callback.OnPeerFailed(msg.From, err)
		return
	}
	if err := r.signal.SendAnswer(msg.From, answer); err != nil {
		logger().Error().Err(err).Str("peer", msg.From).Msg("could not send answer")
	}
}

func (r *Room) handleAnswer(msg *SignalMessage) {
	link, ok := r.links.Get(msg.From)
	if !ok {
		logger().Warn().Err(ErrNoSuchPeer).Str("peer", msg.From).Msg("dropping answer from unknown peer")
		return
	}
	payload := &SessionDescriptionPayload{}
	if err := msg.DecodePayload(payload); err != nil {
		logger().Warn().Err(err).Str("peer", msg.From).Msg("dropping malformed answer")
		return
	}
	if err := link.Transport().SetRemoteDescription(FromSessionDescriptionPayload(payload)); err != nil {
		logger().Error().Err(err).Str("peer", msg.From).Msg("could not apply remote answer")
		r.callback.OnPeerFailed(msg.From, err)
	}
}

func (r *Room) handleICECandidate(msg *SignalMessage) {
	link, ok := r.links.Get(msg.From)
	if !ok {
		logger().Warn().Err(ErrNoSuchPeer).Str("peer", msg.From).Msg("dropping candidate from unknown peer")
		return
	}
	payload := &ICECandidatePayload{}
	if err := msg.DecodePayload(payload); err != nil {
		logger().Warn().Err(err).Str("peer", msg.From).Msg("dropping malformed candidate")
		return
	}
	if err := link.Transport().AddICECandidate(FromICECandidatePayload(payload)); err != nil {
		logger().Warn().Err(err).Str("peer", msg.From).Msg("could not add remote candidate")
	}
}

// linkFor returns the link for identity, creating and wiring a fresh one on
// first use. New links carry every current local track before any offer.
func (r *Room) linkFor(identity, username string) (*PeerLink, bool, error) {
	link, created, err := r.links.GetOrCreate(identity, username)
	if err != nil {
		return nil, false, err
	}
	if created {
		r.wireLink(link)
		if err := r.tracks.attachLocalTracks(link); err != nil {
			r.links.Destroy(identity)
			return nil, false, err
		}
	}
	return link, created, nil
}

func (r *Room) wireLink(link *PeerLink) {
	identity := link.Identity()
	t := link.Transport()

	t.OnOffer = func(sd webrtc.SessionDescription) {
		if err := r.signal.SendOffer(identity, sd); err != nil {
			logger().Error().Err(err).Str("peer", identity).Msg("could not send offer")
		}
	}

	pc := t.PeerConnection()
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := r.signal.SendICECandidate(identity, c.ToJSON()); err != nil {
			logger().Warn().Err(err).Str("peer", identity).Msg("could not send candidate")
		}
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		link.markICEChange()
		logger().Debug().Str("peer", identity).Str("state", state.String()).Msg("ICE connection state changed")
		if state == webrtc.ICEConnectionStateConnected {
			if link.State() != NegotiationStateConnected {
				link.setState(NegotiationStateConnected)
				r.callback.OnPeerConnected(identity)
			}
		}
		r.supervisor.HandleICEState(identity, state)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		r.supervisor.HandleConnectionState(identity, state)
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		r.callback.OnTrack(identity, track, receiver)
	})
}

// restartPeer renegotiates connectivity on the existing session.
func (r *Room) restartPeer(identity string) {
	link, ok := r.links.Get(identity)
	if !ok || link.IsClosed() {
		return
	}
	logger().Info().Str("peer", identity).Msg("restarting ICE")
	if err := link.Transport().CreateAndSendOffer(&webrtc.OfferOptions{ICERestart: true}); err != nil {
		logger().Error().Err(err).Str("peer", identity).Msg("ICE restart failed")
		r.callback.OnPeerFailed(identity, err)
	}
}

// recreatePeer tears the link down and builds a fresh one, the last resort
// after a connection failure outlives the recreation window. Skipped when the
// restart already brought the link back.
func (r *Room) recreatePeer(identity string) {
	link, ok := r.links.Get(identity)
	if !ok {
		return
	}
	if link.Transport().PeerConnection().ConnectionState() == webrtc.PeerConnectionStateConnected {
		return
	}
	logger().Info().Str("peer", identity).Msg("recreating peer link")
	username := link.Username()

	fresh, err := r.links.Replace(identity, username)
	if err != nil {
		logger().Error().Err(err).Str("peer", identity).Msg("could not recreate peer link")
		r.callback.OnPeerFailed(identity, err)
		return
	}
	r.wireLink(fresh)
	if err := r.tracks.attachLocalTracks(fresh); err != nil {
		logger().Error().Err(err).Str("peer", identity).Msg("could not attach tracks to recreated link")
		r.links.Destroy(identity)
		r.callback.OnPeerFailed(identity, err)
		return
	}
	fresh.setState(NegotiationStateOffering)
	if err := fresh.Transport().CreateAndSendOffer(nil); err != nil {
		logger().Error().Err(err).Str("peer", identity).Msg("could not offer on recreated link")
		r.callback.OnPeerFailed(identity, err)
	}
}

func (r *Room) handleEvent(ev *ServerEvent) {
	switch ev.Type {
	case EventChatMessage:
		var msg ChatMessage
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			logger().Warn().Err(err).Msg("dropping malformed chat event")
			return
		}
		r.callback.OnChatMessage(msg)
	case EventParticipantJoined, EventParticipantUpdated:
		var mp MeetingParticipant
		if err := json.Unmarshal(ev.Data, &mp); err != nil {
			return
		}
		if mp.User.ID != "" && mp.User.ID != r.local.ID {
			// roster only: mute and video flags stay owned by the
			// explicit media-state signal messages
			r.presence.Upsert(mp.User.ID, mp.User.Username, mp.Role)
		}
	case EventParticipantLeft:
		// participant_left only carries the user id
		var ref struct {
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(ev.Data, &ref); err != nil {
			return
		}
		// the roster entry goes, the peer link waits for peer-left on the
		// signal channel
		if ref.UserID != "" {
			if p, ok := r.presence.Get(ref.UserID); ok {
				r.presence.Remove(ref.UserID)
				r.callback.OnParticipantDisconnected(p)
			}
		}
	case EventRecordingStarted:
		r.callback.OnRecordingChanged(true)
	case EventRecordingStopped:
		r.callback.OnRecordingChanged(false)
	case EventMeetingEnded:
		r.callback.OnMeetingEnded()
		r.teardown(false)
	}
}

func (r *Room) onSignalLost() {
	logger().Error().Msg("signal connection lost")
	r.teardown(true)
}

// Meeting returns the resolved meeting resource.
func (r *Room) Meeting() *Meeting {
	return r.meeting
}

// LocalIdentity is this participant's user id, the identity peers see.
func (r *Room) LocalIdentity() string {
	return r.local.ID
}

func (r *Room) IsHost() bool {
	return r.isHost
}

func (r *Room) JoinState() JoinApprovalState {
	return r.gate.State()
}

// Participants snapshots the remote roster.
func (r *Room) Participants() []*RemoteParticipant {
	return r.presence.Participants()
}

func (r *Room) GetParticipant(identity string) (*RemoteParticipant, bool) {
	return r.presence.Get(identity)
}

// PresenterID returns the identity currently screen sharing, or "".
func (r *Room) PresenterID() string {
	return r.presence.PresenterID()
}

func (r *Room) LocalMediaState() LocalMediaState {
	return r.media.State()
}

func (r *Room) SetMicrophoneEnabled(enabled bool) error {
	return r.tracks.SetAudioEnabled(enabled)
}

func (r *Room) SetCameraEnabled(enabled bool) error {
	return r.tracks.SetVideoEnabled(enabled)
}

func (r *Room) SwitchMicrophone(deviceID string) error {
	return r.tracks.SwitchDevice(TrackSourceAudio, deviceID)
}

func (r *Room) SwitchCamera(deviceID string) error {
	return r.tracks.SwitchDevice(TrackSourceCamera, deviceID)
}

func (r *Room) StartScreenShare() error {
	return r.tracks.StartScreenShare()
}

func (r *Room) StopScreenShare() error {
	return r.tracks.StopScreenShare()
}

// PendingJoinRequests lists admission requests awaiting this host's decision.
func (r *Room) PendingJoinRequests() []JoinRequest {
	return r.gate.PendingRequests()
}

func (r *Room) ApproveJoin(userID string) error {
	return r.gate.Approve(userID)
}

func (r *Room) RejectJoin(userID string) error {
	return r.gate.Reject(userID)
}

func (r *Room) SendChatMessage(ctx context.Context, content string) error {
	return r.api.SendChatMessage(ctx, r.meeting.ID, content)
}

func (r *Room) ChatHistory(ctx context.Context) ([]ChatMessage, error) {
	return r.api.ChatHistory(ctx, r.meeting.ID)
}

func (r *Room) StartRecording(ctx context.Context) error {
	return r.api.StartRecording(ctx, r.meeting.ID)
}

func (r *Room) StopRecording(ctx context.Context) error {
	return r.api.StopRecording(ctx, r.meeting.ID)
}

// Leave leaves the meeting and releases every local resource. Idempotent.
func (r *Room) Leave() {
	r.teardown(false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.api.LeaveMeeting(ctx, r.meeting.ID); err != nil {
		logger().Warn().Err(err).Msg("could not report leave to backend")
	}
}

// teardown is the hard cancel: every timer, link, capture track and socket
// goes down exactly once, regardless of what triggered it.
func (r *Room) teardown(notify bool) {
	r.engineDone.Once(func() {
		r.supervisor.Close()
		r.links.DestroyAll()
		r.media.StopAll()
		r.signal.Close()
		if r.events != nil {
			r.events.Close()
		}
		r.presence.Clear()
		if notify {
			r.callback.OnDisconnected()
		}
	})
}
