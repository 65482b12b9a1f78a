package meshsdk

import (
	"fmt"
	"io/fs"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMediaControllerWithoutProvider(t *testing.T) {
	c := newLocalMediaController(nil)
	_, err := c.Acquire(TrackSourceAudio, "")
	require.ErrorIs(t, err, ErrDeviceUnsupported)
}

func TestMediaControllerClassifiesDeviceErrors(t *testing.T) {
	cases := []struct {
		name     string
		provider error
		want     error
	}{
		{"permission", fmt.Errorf("opening camera: %w", fs.ErrPermission), ErrDevicePermission},
		{"not found", fs.ErrNotExist, ErrDeviceNotFound},
		{"busy", syscall.EBUSY, ErrDeviceBusy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newLocalMediaController(&fakeMediaProvider{failCamera: tc.provider})
			_, err := c.Acquire(TrackSourceCamera, "cam-1")
			require.ErrorIs(t, err, tc.want)
			// the provider's error stays inspectable
			require.ErrorIs(t, err, tc.provider)
		})
	}
}

func TestMediaControllerPassesThroughUnknownErrors(t *testing.T) {
	boom := fmt.Errorf("capture pipeline exploded")
	c := newLocalMediaController(&fakeMediaProvider{failCamera: boom})
	_, err := c.Acquire(TrackSourceCamera, "cam-1")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrDevicePermission)
}
