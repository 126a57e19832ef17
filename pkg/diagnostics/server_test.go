package diagnostics

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethan/evs-multiplexer/pkg/config"
	"github.com/ethan/evs-multiplexer/pkg/hwcamera"
	"github.com/ethan/evs-multiplexer/pkg/hwcamera/fake"
	"github.com/ethan/evs-multiplexer/pkg/logger"
	"github.com/ethan/evs-multiplexer/pkg/registry"
)

func testServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	cfg := &config.Config{
		SyncThreshold:       16,
		DefaultBufferBudget: 2,
		ParamWriteQPS:       1000,
		PoolRenegotiateQPS:  1000,
		FenceSupported:      false,
	}
	reg := registry.New(func(cameraID string) (hwcamera.Device, error) {
		return fake.New(), nil
	}, cfg, logger.Default(), logger.Disabled())
	return NewServer(reg, logger.Default()), reg
}

func TestHandleDumpListsOpenCameras(t *testing.T) {
	srv, reg := testServer(t)

	h, err := reg.OpenCamera("camera-0")
	require.NoError(t, err)
	vc, err := h.MakeVirtualCamera("client-a", 2)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/dump", nil)
	rec := httptest.NewRecorder()
	srv.handleDump(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	require.Contains(t, rec.Body.String(), "camera-0")
	require.Contains(t, rec.Body.String(), "client-a")
	// The HalCamera holds clients weakly; keep the client live until here.
	runtime.KeepAlive(vc)
}

func TestHandleDumpRejectsNonGet(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/dump", nil)
	rec := httptest.NewRecorder()
	srv.handleDump(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	srv, _ := testServer(t)
	require.NoError(t, srv.Stop(nil))
}
