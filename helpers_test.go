package meshsdk

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// signalRecorder captures outbound signal traffic for assertions.
type signalRecorder struct {
	lock sync.Mutex
	msgs []*SignalMessage
}

func (r *signalRecorder) Send(msg *SignalMessage) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *signalRecorder) messages() []*SignalMessage {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]*SignalMessage, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func (r *signalRecorder) lastOfType(t SignalType) *SignalMessage {
	r.lock.Lock()
	defer r.lock.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Type == t {
			return r.msgs[i]
		}
	}
	return nil
}

func (r *signalRecorder) countOfType(t SignalType) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.Type == t {
			n++
		}
	}
	return n
}

// closableTrack adapts a static sample track to LocalTrackWithClose.
type closableTrack struct {
	*webrtc.TrackLocalStaticSample
	closeCalled bool
}

func (t *closableTrack) Close() error {
	t.closeCalled = true
	return nil
}

func newTestAudioTrack() *closableTrack {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, uuid.NewString(), "test")
	if err != nil {
		panic(err)
	}
	return &closableTrack{TrackLocalStaticSample: track}
}

func newTestVideoTrack() *closableTrack {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, uuid.NewString(), "test")
	if err != nil {
		panic(err)
	}
	return &closableTrack{TrackLocalStaticSample: track}
}

// fakeMediaProvider hands out fresh test tracks and records what was asked.
type fakeMediaProvider struct {
	lock         sync.Mutex
	audioCount   int
	cameraCount  int
	screenCount  int
	lastAudioID  string
	lastCameraID string
	failScreen   error
	failCamera   error
}

func (p *fakeMediaProvider) AcquireAudioTrack(deviceID string) (LocalTrackWithClose, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.audioCount++
	p.lastAudioID = deviceID
	return newTestAudioTrack(), nil
}

func (p *fakeMediaProvider) AcquireCameraTrack(deviceID string) (LocalTrackWithClose, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.failCamera != nil {
		return nil, p.failCamera
	}
	p.cameraCount++
	p.lastCameraID = deviceID
	return newTestVideoTrack(), nil
}

func (p *fakeMediaProvider) AcquireScreenTrack() (LocalTrackWithClose, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.failScreen != nil {
		return nil, p.failScreen
	}
	p.screenCount++
	return newTestVideoTrack(), nil
}

func newTestLink(identity string) (*PeerLink, error) {
	return newPeerLink(identity, identity, webrtc.Configuration{})
}
