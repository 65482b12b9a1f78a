package meshsdk

import (
	"github.com/pion/webrtc/v4"
)

type RoomCallback struct {
	OnDisconnected            func()
	OnParticipantConnected    func(p *RemoteParticipant)
	OnParticipantDisconnected func(p *RemoteParticipant)
	OnParticipantMediaChanged func(p *RemoteParticipant)
	OnScreenShareChanged      func(presenterID string, active bool)
	OnPendingJoinRequest      func(req JoinRequest)
	OnJoinApproved            func()
	OnJoinRejected            func()
	OnPeerConnected           func(identity string)
	OnPeerFailed              func(identity string, err error)
	OnTrack                   func(identity string, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	OnChatMessage             func(msg ChatMessage)
	OnRecordingChanged        func(active bool)
	OnMeetingEnded            func()
}

func NewRoomCallback() *RoomCallback {
	return &RoomCallback{
		OnDisconnected:            func() {},
		OnParticipantConnected:    func(p *RemoteParticipant) {},
		OnParticipantDisconnected: func(p *RemoteParticipant) {},
		OnParticipantMediaChanged: func(p *RemoteParticipant) {},
		OnScreenShareChanged:      func(presenterID string, active bool) {},
		OnPendingJoinRequest:      func(req JoinRequest) {},
		OnJoinApproved:            func() {},
		OnJoinRejected:            func() {},
		OnPeerConnected:           func(identity string) {},
		OnPeerFailed:              func(identity string, err error) {},
		OnTrack:                   func(identity string, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {},
		OnChatMessage:             func(msg ChatMessage) {},
		OnRecordingChanged:        func(active bool) {},
		OnMeetingEnded:            func() {},
	}
}

// merge fills nil fields with no-ops so callers can set only what they need.
func (cb *RoomCallback) merge() *RoomCallback {
	def := NewRoomCallback()
	if cb == nil {
		return def
	}
	out := *cb
	if out.OnDisconnected == nil {
		out.OnDisconnected = def.OnDisconnected
	}
	if out.OnParticipantConnected == nil {
		out.OnParticipantConnected = def.OnParticipantConnected
	}
	if out.OnParticipantDisconnected == nil {
		out.OnParticipantDisconnected = def.OnParticipantDisconnected
	}
	if out.OnParticipantMediaChanged == nil {
		out.OnParticipantMediaChanged = def.OnParticipantMediaChanged
	}
	if out.OnScreenShareChanged == nil {
		out.OnScreenShareChanged = def.OnScreenShareChanged
	}
	if out.OnPendingJoinRequest == nil {
		out.OnPendingJoinRequest = def.OnPendingJoinRequest
	}
	if out.OnJoinApproved == nil {
		out.OnJoinApproved = def.OnJoinApproved
	}
	if out.OnJoinRejected == nil {
		out.OnJoinRejected = def.OnJoinRejected
	}
	if out.OnPeerConnected == nil {
		out.OnPeerConnected = def.OnPeerConnected
	}
	if out.OnPeerFailed == nil {
		out.OnPeerFailed = def.OnPeerFailed
	}
	if out.OnTrack == nil {
		out.OnTrack = def.OnTrack
	}
	if out.OnChatMessage == nil {
		out.OnChatMessage = def.OnChatMessage
	}
	if out.OnRecordingChanged == nil {
		out.OnRecordingChanged = def.OnRecordingChanged
	}
	if out.OnMeetingEnded == nil {
		out.OnMeetingEnded = def.OnMeetingEnded
	}
	return &out
}
