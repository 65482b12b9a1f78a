package meshsdk

import (
	"go.uber.org/atomic"
)

type ParticipantRole string

const (
	RoleHost        ParticipantRole = "host"
	RoleCoHost      ParticipantRole = "co_host"
	RoleParticipant ParticipantRole = "participant"
)

// RemoteParticipant mirrors the roster entry for one remote identity along
// with its presence state. Presence flags are authoritative only from explicit
// media-state messages, never inferred from track presence: a camera can be
// off while the participant is unmuted.
type RemoteParticipant struct {
	identity string
	name     atomic.String
	role     atomic.String

	isMuted   atomic.Bool
	isVideoOn atomic.Bool
	isSharing atomic.Bool
}

func newRemoteParticipant(identity, name string, role ParticipantRole) *RemoteParticipant {
	p := &RemoteParticipant{identity: identity}
	p.name.Store(name)
	p.role.Store(string(role))
	// meetings start unmuted with video on unless told otherwise
	p.isVideoOn.Store(true)
	return p
}

func (p *RemoteParticipant) Identity() string {
	return p.identity
}

func (p *RemoteParticipant) Name() string {
	return p.name.Load()
}

func (p *RemoteParticipant) Role() ParticipantRole {
	return ParticipantRole(p.role.Load())
}

func (p *RemoteParticipant) IsMuted() bool {
	return p.isMuted.Load()
}

func (p *RemoteParticipant) IsVideoOn() bool {
	return p.isVideoOn.Load()
}

func (p *RemoteParticipant) IsSharing() bool {
	return p.isSharing.Load()
}

func (p *RemoteParticipant) update(name string, role ParticipantRole) {
	if name != "" {
		p.name.Store(name)
	}
	if role != "" {
		p.role.Store(string(role))
	}
}
