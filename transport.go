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
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/gammazero/deque"
	"github.com/pion/interceptor"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

const (
	negotiationFrequency = 150 * time.Millisecond
)

// PCTransport is a wrapper around PeerConnection, with some helper methods.
// One transport backs exactly one peer link.
type PCTransport struct {
	pc *webrtc.PeerConnection

	lock                  sync.Mutex
	pendingCandidates     deque.Deque[webrtc.ICECandidateInit]
	debouncedNegotiate    func(func())
	renegotiate           bool
	restartAfterGathering bool

	OnOffer func(description webrtc.SessionDescription)
}

func NewPCTransport(config webrtc.Configuration) (*PCTransport, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	audioLevelExtension := webrtc.RTPHeaderExtensionCapability{URI: sdp.AudioLevelURI}
	if err := m.RegisterHeaderExtension(audioLevelExtension, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}
	sdesMidExtension := webrtc.RTPHeaderExtensionCapability{URI: sdp.SDESMidURI}
	if err := m.RegisterHeaderExtension(sdesMidExtension, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}

	i := &interceptor.Registry{}

	// rtcp report interceptor
	if err := webrtc.ConfigureRTCPReports(i); err != nil {
		return nil, err
	}

	// twcc interceptor
	if err := webrtc.ConfigureTWCCSender(m, i); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i))
	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, err
	}

	t := &PCTransport{
		pc:                 pc,
		debouncedNegotiate: debounce.New(negotiationFrequency),
	}

	pc.OnICEGatheringStateChange(t.onICEGatheringStateChange)

	return t, nil
}

func (t *PCTransport) onICEGatheringStateChange(state webrtc.ICEGatheringState) {
	if state != webrtc.ICEGatheringStateComplete {
		return
	}

	go func() {
		t.lock.Lock()
		restart := t.restartAfterGathering
		t.lock.Unlock()
		if restart {
			logger().Info().Msg("restarting ICE after ICE gathering")
			if err := t.createAndSendOffer(&webrtc.OfferOptions{ICERestart: true}); err != nil {
				logger().Error().Err(err).Msg("could not restart ICE")
			}
		}
	}()
}

// AddICECandidate feeds a remote candidate into the session. Candidates that
// arrive before the remote description are queued and applied once
// SetRemoteDescription settles; they are never dropped and never crash.
func (t *PCTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	t.lock.Lock()
	if t.pc.RemoteDescription() == nil {
		t.pendingCandidates.PushBack(candidate)
		t.lock.Unlock()
		return nil
	}
	t.lock.Unlock()

	return t.pc.AddICECandidate(candidate)
}

func (t *PCTransport) PeerConnection() *webrtc.PeerConnection {
	return t.pc
}

func (t *PCTransport) IsConnected() bool {
	return t.pc.ICEConnectionState() == webrtc.ICEConnectionStateConnected
}

func (t *PCTransport) PendingCandidateCount() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.pendingCandidates.Len()
}

func (t *PCTransport) Close() error {
	return t.pc.Close()
}

func (t *PCTransport) SetRemoteDescription(sd webrtc.SessionDescription) error {
	t.lock.Lock()

	if err := t.pc.SetRemoteDescription(sd); err != nil {
		t.lock.Unlock()
		return err
	}

	for t.pendingCandidates.Len() > 0 {
		c := t.pendingCandidates.PopFront()
		if err := t.pc.AddICECandidate(c); err != nil {
			t.lock.Unlock()
			return err
		}
	}

	if t.renegotiate {
		t.renegotiate = false
		go t.createAndSendOffer(nil)
	}
	t.lock.Unlock()

	return nil
}

// Negotiate debounces rapid successive track mutations into one offer.
func (t *PCTransport) Negotiate() {
	t.debouncedNegotiate(func() {
		t.createAndSendOffer(nil)
	})
}

// CreateAndSendOffer generates an offer, sets it as the local description and
// hands it to OnOffer. Pass ICERestart to renegotiate connectivity only.
func (t *PCTransport) CreateAndSendOffer(options *webrtc.OfferOptions) error {
	return t.createAndSendOffer(options)
}

func (t *PCTransport) createAndSendOffer(options *webrtc.OfferOptions) error {
	t.lock.Lock()
	onOffer := t.OnOffer
	t.lock.Unlock()
	if onOffer == nil {
		return nil
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	iceRestart := options != nil && options.ICERestart
	if iceRestart {
		if t.pc.ICEGatheringState() == webrtc.ICEGatheringStateGathering {
			t.restartAfterGathering = true
			return nil
		}
		logger().Debug().Msg("restarting ICE")
	}
	if t.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		if iceRestart {
			currentSD := t.pc.CurrentRemoteDescription()
			if currentSD != nil {
				if err := t.pc.SetRemoteDescription(*currentSD); err != nil {
					return err
				}
			}
		} else {
			// already mid-cycle, send the fresh offer once the answer lands
			t.renegotiate = true
			return nil
		}
	}

	offer, err := t.pc.CreateOffer(options)
	if err != nil {
		logger().Error().Err(err).Msg("could not create offer")
		return err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		logger().Error().Err(err).Msg("could not set local description")
		return err
	}
	t.restartAfterGathering = false
	onOffer(offer)
	return nil
}
