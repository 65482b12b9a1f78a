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

import "errors"

var (
	ErrURLNotProvided      = errors.New("URL was not provided")
	ErrIdentityNotProvided = errors.New("participant identity was not provided")
	ErrCannotDialSignal    = errors.New("could not dial signal connection")
	ErrNotConnected        = errors.New("signal connection is not established")
	ErrNoSuchPeer          = errors.New("no peer link exists for that identity")
	ErrNegotiationFailed   = errors.New("renegotiation failed after retries")
	ErrJoinRejected        = errors.New("join request was rejected by the host")
	ErrJoinInProgress      = errors.New("a join attempt is already in progress")
	ErrRoomClosed          = errors.New("room has been closed")
	ErrScreenShareActive   = errors.New("screen share is already active")
	ErrNoScreenShare       = errors.New("no screen share is active")
	ErrInvalidAuthToken    = errors.New("invalid or expired access token")

	// Local media acquisition failures, mapped from the provider so callers
	// can show a specific message. All of them are non-fatal to the session.
	ErrDevicePermission  = errors.New("device access was denied")
	ErrDeviceNotFound    = errors.New("no matching capture device was found")
	ErrDeviceBusy        = errors.New("capture device is in use")
	ErrDeviceUnsupported = errors.New("capture device is not supported")

	// File playback.
	ErrCannotDetermineMime = errors.New("could not determine mime type from file extension")
	ErrUnsupportedFileType = errors.New("unsupported media file type")
)
