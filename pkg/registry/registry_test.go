package registry

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethan/evs-multiplexer/pkg/config"
	"github.com/ethan/evs-multiplexer/pkg/hwcamera"
	"github.com/ethan/evs-multiplexer/pkg/hwcamera/fake"
	"github.com/ethan/evs-multiplexer/pkg/logger"
)

func testRegistry(t *testing.T, factory DeviceFactory) *Registry {
	t.Helper()
	cfg := &config.Config{
		SyncThreshold:       16,
		DefaultBufferBudget: 2,
		ParamWriteQPS:       1000,
		PoolRenegotiateQPS:  1000,
		FenceSupported:      false,
	}
	return New(factory, cfg, logger.Default(), logger.Disabled())
}

func TestOpenCameraLazyCreation(t *testing.T) {
	opened := 0
	r := testRegistry(t, func(cameraID string) (hwcamera.Device, error) {
		opened++
		return fake.New(), nil
	})

	h1, err := r.OpenCamera("camera-0")
	require.NoError(t, err)
	require.Equal(t, 1, opened)

	h2, err := r.OpenCamera("camera-0")
	require.NoError(t, err)
	require.Same(t, h1, h2, "second open returns the same instance, not a new device")
	require.Equal(t, 1, opened, "factory must not be called again for an already-open camera")
}

func TestOpenCameraFactoryFailure(t *testing.T) {
	wantErr := errors.New("no such device")
	r := testRegistry(t, func(cameraID string) (hwcamera.Device, error) {
		return nil, wantErr
	})

	h, err := r.OpenCamera("camera-0")
	require.Nil(t, h)
	require.ErrorIs(t, err, wantErr)

	_, ok := r.Lookup("camera-0")
	require.False(t, ok, "a failed open must not leave a half-registered camera behind")
}

func TestReleaseIfIdle(t *testing.T) {
	r := testRegistry(t, func(cameraID string) (hwcamera.Device, error) {
		return fake.New(), nil
	})

	h, err := r.OpenCamera("camera-0")
	require.NoError(t, err)

	r.ReleaseIfIdle("camera-0")
	_, ok := r.Lookup("camera-0")
	require.False(t, ok, "camera with no clients must be released")

	h2, err := r.OpenCamera("camera-0")
	require.NoError(t, err)
	require.NotSame(t, h, h2, "a released camera must be recreated from scratch on next open")
}

func TestReleaseIfIdleKeepsCameraWithClients(t *testing.T) {
	r := testRegistry(t, func(cameraID string) (hwcamera.Device, error) {
		return fake.New(), nil
	})

	h, err := r.OpenCamera("camera-0")
	require.NoError(t, err)
	vc, err := h.MakeVirtualCamera("client-a", 1)
	require.NoError(t, err)

	r.ReleaseIfIdle("camera-0")
	got, ok := r.Lookup("camera-0")
	require.True(t, ok, "camera with a live client must not be released")
	require.Same(t, h, got)
	// The HalCamera holds clients weakly; keep the client live until here.
	runtime.KeepAlive(vc)
}

func TestReleaseIfIdleUnknownCamera(t *testing.T) {
	r := testRegistry(t, func(cameraID string) (hwcamera.Device, error) {
		return fake.New(), nil
	})
	r.ReleaseIfIdle("never-opened")
}

func TestCamerasSnapshot(t *testing.T) {
	r := testRegistry(t, func(cameraID string) (hwcamera.Device, error) {
		return fake.New(), nil
	})

	_, err := r.OpenCamera("camera-0")
	require.NoError(t, err)
	_, err = r.OpenCamera("camera-1")
	require.NoError(t, err)

	cams := r.Cameras()
	require.Len(t, cams, 2)
}

func TestLookupUnknown(t *testing.T) {
	r := testRegistry(t, func(cameraID string) (hwcamera.Device, error) {
		return fake.New(), nil
	})
	_, ok := r.Lookup("camera-0")
	require.False(t, ok)
}
