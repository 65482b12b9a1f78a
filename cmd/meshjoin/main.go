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

// meshjoin is a headless meeting participant. It joins a meeting by code,
// optionally publishes media from files, and logs everything that happens.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	meshsdk "github.com/meetmesh/client-sdk-go"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "meshjoin",
		Short:   "Join a MeetMesh meeting from the terminal",
		Version: meshsdk.Version,
		RunE:    run,
	}

	flags := cmd.Flags()
	flags.String("url", "http://localhost:8080", "meeting backend URL")
	flags.String("code", "", "meeting code (required)")
	flags.String("token", "", "access token (required)")
	flags.String("audio-file", "", "ogg file to publish as microphone audio")
	flags.String("video-file", "", "ivf or h264 file to publish as camera video")
	flags.String("screen-file", "", "ivf or h264 file to publish as a screen share")
	flags.Bool("auto-approve", false, "as host, approve every pending join request")
	flags.Bool("verbose", false, "debug logging")

	viper.SetEnvPrefix("meshjoin")
	viper.AutomaticEnv()
	_ = viper.BindPFlags(flags)

	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	level := zerolog.InfoLevel
	if viper.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
	meshsdk.SetLogger(log)

	code := viper.GetString("code")
	token := viper.GetString("token")
	if code == "" || token == "" {
		return fmt.Errorf("both --code and --token are required")
	}

	var room *meshsdk.Room
	autoApprove := viper.GetBool("auto-approve")

	cb := meshsdk.NewRoomCallback()
	cb.OnParticipantConnected = func(p *meshsdk.RemoteParticipant) {
		log.Info().Str("identity", p.Identity()).Str("name", p.Name()).Msg("participant connected")
	}
	cb.OnParticipantDisconnected = func(p *meshsdk.RemoteParticipant) {
		log.Info().Str("identity", p.Identity()).Msg("participant disconnected")
	}
	cb.OnPeerConnected = func(identity string) {
		log.Info().Str("identity", identity).Msg("peer link established")
	}
	cb.OnPeerFailed = func(identity string, err error) {
		log.Warn().Err(err).Str("identity", identity).Msg("peer link failed")
	}
	cb.OnTrack = func(identity string, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("identity", identity).
			Str("kind", track.Kind().String()).
			Str("codec", track.Codec().MimeType).
			Msg("receiving remote track")
	}
	cb.OnScreenShareChanged = func(presenterID string, active bool) {
		log.Info().Str("presenter", presenterID).Bool("active", active).Msg("screen share changed")
	}
	cb.OnChatMessage = func(msg meshsdk.ChatMessage) {
		log.Info().Str("from", msg.User.Username).Str("content", msg.Content).Msg("chat")
	}
	cb.OnPendingJoinRequest = func(req meshsdk.JoinRequest) {
		log.Info().Str("user", req.Username).Str("email", req.Email).Msg("pending join request")
		if autoApprove && room != nil {
			if err := room.ApproveJoin(req.UserID); err != nil {
				log.Warn().Err(err).Msg("could not approve join request")
			}
		}
	}
	cb.OnMeetingEnded = func() {
		log.Info().Msg("meeting ended by host")
	}
	cb.OnDisconnected = func() {
		log.Warn().Msg("disconnected from meeting")
	}

	opts := []meshsdk.RoomOption{}
	audioFile := viper.GetString("audio-file")
	videoFile := viper.GetString("video-file")
	screenFile := viper.GetString("screen-file")
	if audioFile != "" || videoFile != "" || screenFile != "" {
		opts = append(opts, meshsdk.WithMediaProvider(&meshsdk.FileMediaProvider{
			AudioFile:  audioFile,
			CameraFile: videoFile,
			ScreenFile: screenFile,
		}))
	}

	room, err := meshsdk.ConnectToRoom(meshsdk.ConnectInfo{
		URL:         viper.GetString("url"),
		MeetingCode: code,
		Token:       token,
	}, cb, opts...)
	if err != nil {
		return err
	}
	defer room.Leave()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !room.IsHost() {
		log.Info().Msg("waiting for the host to approve the join request")
	}
	if err := room.WaitForJoin(ctx); err != nil {
		return err
	}
	log.Info().
		Str("meeting", room.Meeting().Title).
		Str("identity", room.LocalIdentity()).
		Bool("host", room.IsHost()).
		Msg("joined meeting")

	if screenFile != "" {
		if err := room.StartScreenShare(); err != nil {
			log.Warn().Err(err).Msg("could not start screen share")
		}
	}

	<-ctx.Done()
	log.Info().Msg("leaving meeting")
	return nil
}
