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
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultRenegotiateAttempts  = 3
	defaultRenegotiateBaseDelay = time.Second
)

// RenegotiateParams bounds the retry loop for forced renegotiation after a
// sender is added or removed outside the initial offer.
type RenegotiateParams struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func defaultRenegotiateParams() RenegotiateParams {
	return RenegotiateParams{
		MaxAttempts: defaultRenegotiateAttempts,
		BaseDelay:   defaultRenegotiateBaseDelay,
	}
}

// trackManager propagates local track mutations to every peer link. It only
// ever addresses senders through their recorded source, so camera operations
// cannot disturb the screen sender and vice versa.
type trackManager struct {
	media    *localMediaController
	links    *peerLinkRegistry
	presence *presenceRelay
	reneg    RenegotiateParams
}

func newTrackManager(media *localMediaController, links *peerLinkRegistry, presence *presenceRelay) *trackManager {
	return &trackManager{
		media:    media,
		links:    links,
		presence: presence,
		reneg:    defaultRenegotiateParams(),
	}
}

// attachLocalTracks adds every currently held local track to a freshly
// created link, before the initial offer.
func (m *trackManager) attachLocalTracks(link *PeerLink) error {
	for source, track := range m.media.Tracks() {
		if _, err := link.AttachTrack(source, track); err != nil {
			return fmt.Errorf("attach %s track: %w", source, err)
		}
	}
	return nil
}

// SetAudioEnabled mutes or unmutes the microphone by swapping the audio
// sender's track, leaving the sender in place so no renegotiation is needed.
func (m *trackManager) SetAudioEnabled(enabled bool) error {
	m.media.mutateState(func(s *LocalMediaState) { s.AudioEnabled = enabled })

	if track, ok := m.media.Track(TrackSourceAudio); ok {
		m.links.Range(func(link *PeerLink) {
			var err error
			if enabled {
				_, err = link.ReplaceTrack(TrackSourceAudio, track)
			} else {
				_, err = link.ReplaceTrack(TrackSourceAudio, nil)
			}
			if err != nil {
				logger().Warn().Err(err).Str("peer", link.Identity()).Msg("could not toggle audio sender")
			}
		})
	}

	return m.broadcastMediaState()
}

// SetVideoEnabled turns the camera off (stopping the capture track and
// blanking each camera sender) or back on (reacquiring and replacing, or
// attaching where a link has no camera sender yet). The screen sender is
// never touched.
func (m *trackManager) SetVideoEnabled(enabled bool) error {
	if !enabled {
		m.media.Drop(TrackSourceCamera)
		m.media.mutateState(func(s *LocalMediaState) { s.VideoEnabled = false })
		m.links.Range(func(link *PeerLink) {
			if _, err := link.ReplaceTrack(TrackSourceCamera, nil); err != nil {
				logger().Warn().Err(err).Str("peer", link.Identity()).Msg("could not blank camera sender")
			}
		})
		return m.broadcastMediaState()
	}

	deviceID := m.media.State().VideoDeviceID
	track, err := m.media.Acquire(TrackSourceCamera, deviceID)
	if err != nil {
		return err
	}
	m.media.mutateState(func(s *LocalMediaState) { s.VideoEnabled = true })

	var eg errgroup.Group
	m.links.Range(func(link *PeerLink) {
		eg.Go(func() error {
			attached, err := link.ReplaceOrAttachTrack(TrackSourceCamera, track)
			if err != nil {
				return fmt.Errorf("peer %s: %w", link.Identity(), err)
			}
			if attached {
				// a new sender joined the session, which needs a fresh
				// offer/answer cycle
				if err := m.renegotiateWithRetry(link); err != nil {
					_ = link.DetachTrack(TrackSourceCamera)
					return fmt.Errorf("peer %s: %w", link.Identity(), err)
				}
			}
			return nil
		})
	})
	renegErr := eg.Wait()

	if err := m.broadcastMediaState(); err != nil {
		return err
	}
	return renegErr
}

// SwitchDevice swaps the capture device for the microphone or camera,
// replacing the matching sender's track on every link. Screen capture has no
// device to switch.
func (m *trackManager) SwitchDevice(source TrackSource, deviceID string) error {
	if source != TrackSourceAudio && source != TrackSourceCamera {
		return fmt.Errorf("cannot switch device for source %q", source)
	}

	track, err := m.media.Acquire(source, deviceID)
	if err != nil {
		return err
	}

	m.links.Range(func(link *PeerLink) {
		if _, err := link.ReplaceTrack(source, track); err != nil {
			logger().Warn().Err(err).Str("peer", link.Identity()).Str("source", source.String()).
				Msg("could not replace sender track after device switch")
		}
	})
	return nil
}

// StartScreenShare captures the screen, adds a screen sender to every link,
// forces renegotiation per peer and announces the presenter. A peer whose
// renegotiation exhausts its retries gets the sender rolled back; other peers
// are unaffected.
func (m *trackManager) StartScreenShare() error {
	if m.media.State().ScreenSharing {
		return ErrScreenShareActive
	}

	track, err := m.media.Acquire(TrackSourceScreen, "")
	if err != nil {
		return err
	}
	m.media.mutateState(func(s *LocalMediaState) { s.ScreenSharing = true })

	var eg errgroup.Group
	m.links.Range(func(link *PeerLink) {
		eg.Go(func() error {
			if _, err := link.AttachTrack(TrackSourceScreen, track); err != nil {
				return fmt.Errorf("peer %s: %w", link.Identity(), err)
			}
			if err := m.renegotiateWithRetry(link); err != nil {
				_ = link.DetachTrack(TrackSourceScreen)
				return fmt.Errorf("peer %s: %w", link.Identity(), err)
			}
			return nil
		})
	})
	renegErr := eg.Wait()

	if err := m.presence.BroadcastScreenShare(true); err != nil {
		return err
	}
	return renegErr
}

// StopScreenShare removes the recorded screen sender from every link, forces
// renegotiation and clears the presenter announcement.
func (m *trackManager) StopScreenShare() error {
	if !m.media.State().ScreenSharing {
		return ErrNoScreenShare
	}

	m.media.Drop(TrackSourceScreen)
	m.media.mutateState(func(s *LocalMediaState) { s.ScreenSharing = false })

	var eg errgroup.Group
	m.links.Range(func(link *PeerLink) {
		if _, ok := link.Sender(TrackSourceScreen); !ok {
			return
		}
		eg.Go(func() error {
			if err := link.DetachTrack(TrackSourceScreen); err != nil {
				return fmt.Errorf("peer %s: %w", link.Identity(), err)
			}
			if err := m.renegotiateWithRetry(link); err != nil {
				return fmt.Errorf("peer %s: %w", link.Identity(), err)
			}
			return nil
		})
	})
	renegErr := eg.Wait()

	if err := m.presence.BroadcastScreenShare(false); err != nil {
		return err
	}
	return renegErr
}

func (m *trackManager) broadcastMediaState() error {
	state := m.media.State()
	return m.presence.BroadcastMediaState(!state.AudioEnabled, state.VideoEnabled)
}

// renegotiateWithRetry drives a forced offer with bounded, exponentially
// backed-off retries. It stops at the first success.
func (m *trackManager) renegotiateWithRetry(link *PeerLink) error {
	delay := m.reneg.BaseDelay
	var lastErr error
	for attempt := 0; attempt < m.reneg.MaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		if lastErr = link.Transport().CreateAndSendOffer(nil); lastErr == nil {
			return nil
		}
		logger().Warn().Err(lastErr).Str("peer", link.Identity()).Int("attempt", attempt+1).
			Msg("renegotiation attempt failed")
	}
	return fmt.Errorf("%w: %s", ErrNegotiationFailed, lastErr)
}
