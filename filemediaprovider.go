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
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/frostbyte73/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/h264reader"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const (
	defaultH264FrameDuration = 33 * time.Millisecond
	defaultOpusFrameDuration = 20 * time.Millisecond
)

// FileMediaProvider publishes pre-recorded media files as live tracks, for
// headless clients and demos. Files loop until the track is closed. Supported
// formats: .ogg (opus), .ivf (vp8), .h264.
type FileMediaProvider struct {
	AudioFile  string
	CameraFile string
	ScreenFile string
}

func (p *FileMediaProvider) AcquireAudioTrack(deviceID string) (LocalTrackWithClose, error) {
	// device ids have no meaning for file playback
	return newFileTrack(p.AudioFile)
}

func (p *FileMediaProvider) AcquireCameraTrack(deviceID string) (LocalTrackWithClose, error) {
	return newFileTrack(p.CameraFile)
}

func (p *FileMediaProvider) AcquireScreenTrack() (LocalTrackWithClose, error) {
	return newFileTrack(p.ScreenFile)
}

func mimeForFile(path string) (string, error) {
	switch filepath.Ext(path) {
	case ".ogg":
		return webrtc.MimeTypeOpus, nil
	case ".ivf":
		return webrtc.MimeTypeVP8, nil
	case ".h264":
		return webrtc.MimeTypeH264, nil
	}
	return "", ErrCannotDetermineMime
}

// fileTrack is a static sample track fed by a background goroutine reading
// frames off a media file at their native pace.
type fileTrack struct {
	*webrtc.TrackLocalStaticSample
	path string
	mime string
	done core.Fuse
}

func newFileTrack(path string) (*fileTrack, error) {
	if path == "" {
		return nil, ErrDeviceNotFound
	}
	mime, err := mimeForFile(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mime},
		uuid.NewString(),
		"meetmesh-file",
	)
	if err != nil {
		return nil, err
	}
	t := &fileTrack{
		TrackLocalStaticSample: track,
		path:                   path,
		mime:                   mime,
	}
	go t.pump()
	return t, nil
}

func (t *fileTrack) Close() error {
	t.done.Break()
	return nil
}

func (t *fileTrack) pump() {
	for !t.done.IsBroken() {
		if err := t.playOnce(); err != nil {
			logger().Warn().Err(err).Str("file", t.path).Msg("file track playback stopped")
			return
		}
	}
}

// playOnce streams the file from start to EOF.
func (t *fileTrack) playOnce() error {
	src, err := openFileSource(t.path, t.mime)
	if err != nil {
		return err
	}
	defer src.close()

	for !t.done.IsBroken() {
		sample, err := src.nextSample()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := t.WriteSample(sample); err != nil {
			return err
		}
		time.Sleep(sample.Duration)
	}
	return nil
}

type fileSource struct {
	mime string
	file *os.File

	ivf           *ivfreader.IVFReader
	ivfFrameDur   time.Duration
	h264          *h264reader.H264Reader
	ogg           *oggreader.OggReader
	oggLastGranul uint64
}

func openFileSource(path, mime string) (*fileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s := &fileSource{mime: mime, file: f}

	switch mime {
	case webrtc.MimeTypeVP8:
		var header *ivfreader.IVFFileHeader
		s.ivf, header, err = ivfreader.NewWith(f)
		if err == nil {
			s.ivfFrameDur = time.Millisecond * time.Duration(
				float32(header.TimebaseNumerator)/float32(header.TimebaseDenominator)*1000)
		}
	case webrtc.MimeTypeH264:
		s.h264, err = h264reader.NewReader(f)
	case webrtc.MimeTypeOpus:
		s.ogg, _, err = oggreader.NewWith(f)
	default:
		err = ErrUnsupportedFileType
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *fileSource) nextSample() (media.Sample, error) {
	sample := media.Sample{}
	switch s.mime {
	case webrtc.MimeTypeVP8:
		frame, _, err := s.ivf.ParseNextFrame()
		if err != nil {
			return sample, err
		}
		sample.Data = frame
		sample.Duration = s.ivfFrameDur
	case webrtc.MimeTypeH264:
		nal, err := s.h264.NextNAL()
		if err != nil {
			return sample, err
		}
		sample.Data = nal.Data
		sample.Duration = defaultH264FrameDuration
	case webrtc.MimeTypeOpus:
		pageData, pageHeader, err := s.ogg.ParseNextPage()
		if err != nil {
			return sample, err
		}
		sampleCount := float64(pageHeader.GranulePosition - s.oggLastGranul)
		s.oggLastGranul = pageHeader.GranulePosition
		sample.Data = pageData
		sample.Duration = time.Duration(sampleCount/48000*1000) * time.Millisecond
		if sample.Duration <= 0 {
			sample.Duration = defaultOpusFrameDuration
		}
	}
	return sample, nil
}

func (s *fileSource) close() {
	_ = s.file.Close()
}
