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
	"github.com/pion/webrtc/v4"
)

// TrackSource classifies a local track by kind plus role. Camera video and
// screen video are distinct sources: sender lookup always goes through the
// source, never through the codec kind, so that operating on one can never
// touch the other.
type TrackSource string

const (
	TrackSourceAudio  TrackSource = "audio"
	TrackSourceCamera TrackSource = "camera-video"
	TrackSourceScreen TrackSource = "screen-video"
)

func (s TrackSource) String() string {
	return string(s)
}

func (s TrackSource) Kind() webrtc.RTPCodecType {
	if s == TrackSourceAudio {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

// LocalTrackWithClose is a publishable track that releases its capture
// resources on Close.
type LocalTrackWithClose interface {
	webrtc.TrackLocal
	Close() error
}
