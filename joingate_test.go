package meshsdk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinGateHostSelfApproves(t *testing.T) {
	rec := &signalRecorder{}
	gate := newJoinGate(rec, true, "host-1", "host@example.com")

	approved := false
	gate.onApproved = func() { approved = true }

	require.NoError(t, gate.Request())
	require.Equal(t, JoinStateApproved, gate.State())
	require.True(t, approved)
	require.NotNil(t, rec.lastOfType(SignalTypeHostJoin))
}

func TestJoinGateParticipantWaitsForDecision(t *testing.T) {
	rec := &signalRecorder{}
	gate := newJoinGate(rec, false, "host-1", "guest@example.com")

	require.NoError(t, gate.Request())
	require.Equal(t, JoinStatePendingApproval, gate.State())

	msg := rec.lastOfType(SignalTypeJoinRequest)
	require.NotNil(t, msg)
	require.Equal(t, "host-1", msg.To)

	// asking again while pending must not re-send
	require.ErrorIs(t, gate.Request(), ErrJoinInProgress)
	require.Equal(t, 1, rec.countOfType(SignalTypeJoinRequest))

	approved := false
	gate.onApproved = func() { approved = true }
	require.True(t, gate.HandleMessage(&SignalMessage{Type: SignalTypeJoinApproved}))
	require.Equal(t, JoinStateApproved, gate.State())
	require.True(t, approved)

	// a duplicate approval changes nothing
	approved = false
	gate.HandleMessage(&SignalMessage{Type: SignalTypeJoinApproved})
	require.False(t, approved)
}

func TestJoinGateRejectionIsTerminal(t *testing.T) {
	rec := &signalRecorder{}
	gate := newJoinGate(rec, false, "host-1", "guest@example.com")
	require.NoError(t, gate.Request())

	rejected := false
	gate.onRejected = func() { rejected = true }
	gate.HandleMessage(&SignalMessage{Type: SignalTypeJoinRejected})
	require.Equal(t, JoinStateRejected, gate.State())
	require.True(t, rejected)

	// no approval can follow a rejection
	gate.HandleMessage(&SignalMessage{Type: SignalTypeJoinApproved})
	require.Equal(t, JoinStateRejected, gate.State())

	require.ErrorIs(t, gate.Request(), ErrJoinRejected)
}

func TestJoinGateHostApprovalQueue(t *testing.T) {
	rec := &signalRecorder{}
	gate := newJoinGate(rec, true, "host-1", "host@example.com")
	require.NoError(t, gate.Request())

	var pending []JoinRequest
	gate.onPending = func(req JoinRequest) { pending = append(pending, req) }

	for _, id := range []string{"guest-1", "guest-2"} {
		msg, err := NewSignalMessage(SignalTypePendingJoinRequest, "", &PendingJoinRequestPayload{
			UserID:   id,
			Username: id,
		})
		require.NoError(t, err)
		require.True(t, gate.HandleMessage(msg))
	}
	require.Len(t, pending, 2)
	require.Len(t, gate.PendingRequests(), 2)
	require.Equal(t, "guest-1", gate.PendingRequests()[0].UserID)

	require.NoError(t, gate.Approve("guest-1"))
	approval := rec.lastOfType(SignalTypeApproveJoinRequest)
	require.NotNil(t, approval)
	require.Equal(t, "guest-1", approval.To)

	require.NoError(t, gate.Reject("guest-2"))
	require.NotNil(t, rec.lastOfType(SignalTypeRejectJoinRequest))
	require.Empty(t, gate.PendingRequests())
}

func TestJoinGateIgnoresForeignMessages(t *testing.T) {
	gate := newJoinGate(&signalRecorder{}, false, "host-1", "")
	require.False(t, gate.HandleMessage(&SignalMessage{Type: SignalTypeOffer}))
	require.False(t, gate.HandleMessage(&SignalMessage{Type: SignalTypeMediaStateChanged}))
}
