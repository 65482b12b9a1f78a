package meshsdk

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

type trackManagerFixture struct {
	provider *fakeMediaProvider
	media    *localMediaController
	links    *peerLinkRegistry
	rec      *signalRecorder
	manager  *trackManager
}

func newTrackManagerFixture(t *testing.T, peers ...string) *trackManagerFixture {
	t.Helper()
	f := &trackManagerFixture{
		provider: &fakeMediaProvider{},
		links:    newTestRegistry(),
		rec:      &signalRecorder{},
	}
	f.media = newLocalMediaController(f.provider)
	f.manager = newTrackManager(f.media, f.links, newPresenceRelay(f.rec, "me", "Me"))
	f.manager.reneg = RenegotiateParams{MaxAttempts: 2, BaseDelay: time.Millisecond}

	_, err := f.media.Acquire(TrackSourceAudio, "")
	require.NoError(t, err)
	_, err = f.media.Acquire(TrackSourceCamera, "")
	require.NoError(t, err)

	for _, id := range peers {
		link, _, err := f.links.GetOrCreate(id, id)
		require.NoError(t, err)
		require.NoError(t, f.manager.attachLocalTracks(link))
	}
	t.Cleanup(f.links.DestroyAll)
	return f
}

func (f *trackManagerFixture) link(t *testing.T, identity string) *PeerLink {
	t.Helper()
	link, ok := f.links.Get(identity)
	require.True(t, ok)
	return link
}

func TestAttachLocalTracks(t *testing.T) {
	f := newTrackManagerFixture(t, "peer-1")
	link := f.link(t, "peer-1")

	_, ok := link.Sender(TrackSourceAudio)
	require.True(t, ok)
	_, ok = link.Sender(TrackSourceCamera)
	require.True(t, ok)
	_, ok = link.Sender(TrackSourceScreen)
	require.False(t, ok)
}

func TestMuteKeepsSender(t *testing.T) {
	f := newTrackManagerFixture(t, "peer-1")
	link := f.link(t, "peer-1")

	require.NoError(t, f.manager.SetAudioEnabled(false))
	require.False(t, f.media.State().AudioEnabled)

	// the sender survives the mute so unmuting needs no renegotiation
	sender, ok := link.Sender(TrackSourceAudio)
	require.True(t, ok)
	require.Nil(t, sender.Track())

	msg := f.rec.lastOfType(SignalTypeMediaStateChanged)
	require.NotNil(t, msg)
	var state MediaStatePayload
	require.NoError(t, msg.DecodePayload(&state))
	require.True(t, state.IsMuted)

	require.NoError(t, f.manager.SetAudioEnabled(true))
	sender, _ = link.Sender(TrackSourceAudio)
	require.NotNil(t, sender.Track())
}

func TestCameraToggleStopsCapture(t *testing.T) {
	f := newTrackManagerFixture(t, "peer-1")
	link := f.link(t, "peer-1")

	require.NoError(t, f.manager.SetVideoEnabled(false))
	require.False(t, f.media.State().VideoEnabled)
	_, held := f.media.Track(TrackSourceCamera)
	require.False(t, held)
	sender, ok := link.Sender(TrackSourceCamera)
	require.True(t, ok)
	require.Nil(t, sender.Track())

	require.NoError(t, f.manager.SetVideoEnabled(true))
	require.True(t, f.media.State().VideoEnabled)
	require.Equal(t, 2, f.provider.cameraCount)
	sender, _ = link.Sender(TrackSourceCamera)
	require.NotNil(t, sender.Track())
}

func TestCameraToggleLeavesScreenSenderAlone(t *testing.T) {
	f := newTrackManagerFixture(t, "peer-1")
	link := f.link(t, "peer-1")

	require.NoError(t, f.manager.StartScreenShare())
	screenSender, ok := link.Sender(TrackSourceScreen)
	require.True(t, ok)
	screenTrack := screenSender.Track()
	require.NotNil(t, screenTrack)

	require.NoError(t, f.manager.SetVideoEnabled(false))
	require.NoError(t, f.manager.SetVideoEnabled(true))

	// same sender, same track: camera churn never leaks into the share
	after, ok := link.Sender(TrackSourceScreen)
	require.True(t, ok)
	require.Same(t, screenSender, after)
	require.Same(t, screenTrack, after.Track())
}

func TestSwitchDevice(t *testing.T) {
	f := newTrackManagerFixture(t, "peer-1")
	link := f.link(t, "peer-1")

	before, _ := link.Sender(TrackSourceCamera)
	beforeTrack := before.Track()

	require.NoError(t, f.manager.SwitchDevice(TrackSourceCamera, "cam-2"))
	require.Equal(t, "cam-2", f.provider.lastCameraID)
	require.Equal(t, "cam-2", f.media.State().VideoDeviceID)

	after, _ := link.Sender(TrackSourceCamera)
	require.Same(t, before, after)
	require.NotSame(t, beforeTrack, after.Track())

	require.Error(t, f.manager.SwitchDevice(TrackSourceScreen, "x"))
}

func TestScreenShareLifecycle(t *testing.T) {
	f := newTrackManagerFixture(t, "peer-1", "peer-2")

	require.ErrorIs(t, f.manager.StopScreenShare(), ErrNoScreenShare)

	require.NoError(t, f.manager.StartScreenShare())
	require.True(t, f.media.State().ScreenSharing)
	for _, id := range []string{"peer-1", "peer-2"} {
		_, ok := f.link(t, id).Sender(TrackSourceScreen)
		require.True(t, ok)
	}
	require.NotNil(t, f.rec.lastOfType(SignalTypeScreenShareStarted))

	require.ErrorIs(t, f.manager.StartScreenShare(), ErrScreenShareActive)

	require.NoError(t, f.manager.StopScreenShare())
	require.False(t, f.media.State().ScreenSharing)
	for _, id := range []string{"peer-1", "peer-2"} {
		_, ok := f.link(t, id).Sender(TrackSourceScreen)
		require.False(t, ok)
	}
	require.NotNil(t, f.rec.lastOfType(SignalTypeScreenShareStopped))
}

func TestRenegotiateRetriesThenGivesUp(t *testing.T) {
	f := newTrackManagerFixture(t)

	link, err := newTestLink("peer-1")
	require.NoError(t, err)
	link.Transport().OnOffer = func(webrtc.SessionDescription) {}
	require.NoError(t, link.Close())

	// a closed session cannot produce offers; the bounded retry must
	// surface that instead of spinning
	err = f.manager.renegotiateWithRetry(link)
	require.ErrorIs(t, err, ErrNegotiationFailed)
}

func TestLateJoinerGetsCurrentTracks(t *testing.T) {
	f := newTrackManagerFixture(t, "peer-1")

	require.NoError(t, f.manager.StartScreenShare())

	link, _, err := f.links.GetOrCreate("late-peer", "Late")
	require.NoError(t, err)
	require.NoError(t, f.manager.attachLocalTracks(link))

	for _, source := range []TrackSource{TrackSourceAudio, TrackSourceCamera, TrackSourceScreen} {
		_, ok := link.Sender(source)
		require.True(t, ok, "missing %s sender", source)
	}
}
