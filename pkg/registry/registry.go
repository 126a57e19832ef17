// Package registry implements the Enumerator from spec.md §4.6: the
// camera-id keyed map of HalCameras, created lazily on first open and
// dropped from the map by ReleaseIfIdle once they have no live clients.
package registry

import (
	"fmt"
	"sync"

	"github.com/ethan/evs-multiplexer/pkg/config"
	"github.com/ethan/evs-multiplexer/pkg/hal"
	"github.com/ethan/evs-multiplexer/pkg/hwcamera"
	"github.com/ethan/evs-multiplexer/pkg/logger"
)

// DeviceFactory produces the hardware device backing a camera id. Kept as
// an injected function, mirroring the teacher's pattern of taking a
// *Client/credentials bundle rather than constructing hardware bindings
// itself, so tests can hand the registry a fake.
type DeviceFactory func(cameraID string) (hwcamera.Device, error)

// Registry is the Enumerator. Safe for concurrent use.
type Registry struct {
	factory DeviceFactory
	cfg     *config.Config
	logger  *logger.Logger
	tracer  *logger.FrameTracer

	mu      sync.Mutex
	cameras map[string]*hal.HalCamera
}

// New constructs a Registry. cfg/log/tracer are shared by every HalCamera
// it opens; pass nil for any of them to take the package defaults.
func New(factory DeviceFactory, cfg *config.Config, log *logger.Logger, tracer *logger.FrameTracer) *Registry {
	return &Registry{
		factory: factory,
		cfg:     cfg,
		logger:  log,
		tracer:  tracer,
		cameras: make(map[string]*hal.HalCamera),
	}
}

// OpenCamera returns the HalCamera for cameraID, creating the backing
// device and multiplexer on first access (spec.md §4.6). Subsequent calls
// for the same id return the existing instance.
func (r *Registry) OpenCamera(cameraID string) (*hal.HalCamera, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.cameras[cameraID]; ok {
		return h, nil
	}

	device, err := r.factory(cameraID)
	if err != nil {
		return nil, fmt.Errorf("open hardware device %q: %w", cameraID, err)
	}

	h := hal.New(cameraID, device, r.cfg, r.logger, r.tracer)
	r.cameras[cameraID] = h
	return h, nil
}

// ReleaseIfIdle drops cameraID from the registry if it currently has no
// live clients. Callers invoke this after a client disconnects; it is a
// no-op if the camera still has clients or is unknown.
func (r *Registry) ReleaseIfIdle(cameraID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.cameras[cameraID]
	if !ok {
		return
	}
	if h.ClientCount() > 0 {
		return
	}
	delete(r.cameras, cameraID)
}

// Cameras returns a snapshot of every currently-open HalCamera, for
// diagnostics.
func (r *Registry) Cameras() []*hal.HalCamera {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*hal.HalCamera, 0, len(r.cameras))
	for _, h := range r.cameras {
		out = append(out, h)
	}
	return out
}

// Lookup returns the HalCamera for cameraID if it is currently open.
func (r *Registry) Lookup(cameraID string) (*hal.HalCamera, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.cameras[cameraID]
	return h, ok
}
