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
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"syscall"
)

// MediaProvider acquires capture tracks from the underlying media stack. The
// SDK never opens devices itself; implementations wrap whatever capture
// pipeline the application uses.
type MediaProvider interface {
	AcquireAudioTrack(deviceID string) (LocalTrackWithClose, error)
	AcquireCameraTrack(deviceID string) (LocalTrackWithClose, error)
	// AcquireScreenTrack captures the screen. Screen audio is not requested.
	AcquireScreenTrack() (LocalTrackWithClose, error)
}

// LocalMediaState is the local participant's media intent: what the user has
// toggled, independent of which tracks currently exist.
type LocalMediaState struct {
	AudioEnabled  bool
	VideoEnabled  bool
	ScreenSharing bool
	AudioDeviceID string
	VideoDeviceID string
}

// localMediaController owns the local capture tracks, one per source. The
// tracks are shared by every peer link as a source, but each link keeps its
// own sender handles; mutating a track here is always followed by explicit
// propagation through the track manager.
type localMediaController struct {
	provider MediaProvider

	lock   sync.Mutex
	tracks map[TrackSource]LocalTrackWithClose
	state  LocalMediaState
}

func newLocalMediaController(provider MediaProvider) *localMediaController {
	return &localMediaController{
		provider: provider,
		tracks:   make(map[TrackSource]LocalTrackWithClose),
		state: LocalMediaState{
			AudioEnabled: true,
			VideoEnabled: true,
		},
	}
}

func (c *localMediaController) State() LocalMediaState {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

func (c *localMediaController) mutateState(f func(s *LocalMediaState)) {
	c.lock.Lock()
	f(&c.state)
	c.lock.Unlock()
}

func (c *localMediaController) Track(source TrackSource) (LocalTrackWithClose, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	t, ok := c.tracks[source]
	return t, ok
}

// Tracks snapshots the current tracks for attaching to a freshly created link.
func (c *localMediaController) Tracks() map[TrackSource]LocalTrackWithClose {
	c.lock.Lock()
	defer c.lock.Unlock()
	out := make(map[TrackSource]LocalTrackWithClose, len(c.tracks))
	for s, t := range c.tracks {
		out[s] = t
	}
	return out
}

// Acquire opens a capture track for source on deviceID and stores it,
// stopping any previous track for that source first.
func (c *localMediaController) Acquire(source TrackSource, deviceID string) (LocalTrackWithClose, error) {
	if c.provider == nil {
		return nil, ErrDeviceUnsupported
	}
	var (
		track LocalTrackWithClose
		err   error
	)
	switch source {
	case TrackSourceAudio:
		track, err = c.provider.AcquireAudioTrack(deviceID)
	case TrackSourceCamera:
		track, err = c.provider.AcquireCameraTrack(deviceID)
	case TrackSourceScreen:
		track, err = c.provider.AcquireScreenTrack()
	default:
		return nil, fmt.Errorf("unknown track source %q", source)
	}
	if err != nil {
		return nil, classifyDeviceError(err)
	}

	c.lock.Lock()
	old := c.tracks[source]
	c.tracks[source] = track
	switch source {
	case TrackSourceAudio:
		c.state.AudioDeviceID = deviceID
	case TrackSourceCamera:
		c.state.VideoDeviceID = deviceID
	}
	c.lock.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return track, nil
}

// classifyDeviceError maps provider failures onto the device sentinels so
// callers can tell permission, missing-device, and busy-device apart.
func classifyDeviceError(err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return errors.Join(ErrDevicePermission, err)
	case errors.Is(err, fs.ErrNotExist):
		return errors.Join(ErrDeviceNotFound, err)
	case errors.Is(err, syscall.EBUSY):
		return errors.Join(ErrDeviceBusy, err)
	}
	return err
}

// Drop stops and forgets the track for source.
func (c *localMediaController) Drop(source TrackSource) {
	c.lock.Lock()
	track := c.tracks[source]
	delete(c.tracks, source)
	c.lock.Unlock()
	if track != nil {
		_ = track.Close()
	}
}

// StopAll releases every capture track. Part of the hard leave path.
func (c *localMediaController) StopAll() {
	c.lock.Lock()
	tracks := c.tracks
	c.tracks = make(map[TrackSource]LocalTrackWithClose)
	c.state.ScreenSharing = false
	c.lock.Unlock()
	for _, t := range tracks {
		_ = t.Close()
	}
}
