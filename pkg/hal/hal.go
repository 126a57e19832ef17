// Package hal implements the HalCamera / Multiplexer described in spec.md
// §4.4: the central broker owning the hardware stream, the (weak) list of
// VirtualCameras, the FrameRecord table, per-client timelines, the
// aggregate stream state machine, the master pointer, and the fenced
// delivery request queues.
package hal

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"golang.org/x/time/rate"

	"github.com/ethan/evs-multiplexer/pkg/config"
	"github.com/ethan/evs-multiplexer/pkg/frametable"
	"github.com/ethan/evs-multiplexer/pkg/hwcamera"
	"github.com/ethan/evs-multiplexer/pkg/logger"
	"github.com/ethan/evs-multiplexer/pkg/timeline"
	"github.com/ethan/evs-multiplexer/pkg/vcam"
)

// StreamState is the aggregate hardware stream's state machine (spec.md
// §4.4.3).
type StreamState int32

const (
	StreamStopped StreamState = iota
	StreamRunning
	StreamStopping
)

func (s StreamState) String() string {
	switch s {
	case StreamStopped:
		return "STOPPED"
	case StreamRunning:
		return "RUNNING"
	case StreamStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// frameRequest is the fenced-delivery request described in spec.md §3: it
// lives on nextRequests, migrates to currentRequests at dispatch time, and
// is either satisfied, re-queued, or discarded if the client has died.
type frameRequest struct {
	clientRef     weak.Pointer[vcam.VirtualCamera]
	lastTimestamp int64
	fence         timeline.Fence
}

// HalCamera is the multiplexer broker for a single hardware camera
// producer.
type HalCamera struct {
	id     string
	device hwcamera.Device
	cfg    *config.Config
	logger *logger.Logger
	tracer *logger.FrameTracer

	createdAt time.Time

	paramLimiter *rate.Limiter
	poolLimiter  *rate.Limiter

	// frameMu guards everything spec.md §5 calls out as shared under the
	// single frame mutex: the client list, the timeline map, the frame
	// record table, and the two request queues.
	frameMu         sync.Mutex
	clients         []weak.Pointer[vcam.VirtualCamera]
	timelines       map[string]*timeline.Timeline
	frameTable      *frametable.Table
	nextRequests    []*frameRequest
	currentRequests []*frameRequest
	externalDelta   int64
	lastTarget      int64

	// stateMu guards the stream state machine. Kept separate from frameMu
	// so that hardware start/stop calls are never issued while frameMu is
	// held (spec.md §5).
	stateMu sync.Mutex
	state   StreamState

	// masterMu serializes master-role writes; reads go through an atomic
	// load of masterPtr so a concurrent reader never blocks on a writer
	// (spec.md §9: optimistic read, re-check on write).
	masterMu  sync.Mutex
	masterPtr atomic.Pointer[weak.Pointer[vcam.VirtualCamera]]

	framesReceived atomic.Uint64
	framesNotUsed  atomic.Uint64
	syncFrames     atomic.Uint64

	lastStreamConfig atomic.Pointer[hwcamera.StreamConfig]
}

// New constructs a HalCamera around a hardware device. Per spec.md §4.6
// this is normally called by the registry, not directly.
func New(id string, device hwcamera.Device, cfg *config.Config, log *logger.Logger, tracer *logger.FrameTracer) *HalCamera {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.Default()
	}
	if tracer == nil {
		tracer = logger.Disabled()
	}
	return &HalCamera{
		id:           id,
		device:       device,
		cfg:          cfg,
		logger:       log.With("camera_id", id),
		tracer:       tracer,
		createdAt:    time.Now(),
		paramLimiter: rate.NewLimiter(rate.Limit(cfg.ParamWriteQPS), 1),
		poolLimiter:  rate.NewLimiter(rate.Limit(cfg.PoolRenegotiateQPS), 1),
		timelines:    make(map[string]*timeline.Timeline),
		frameTable:   frametable.New(4, log.With("camera_id", id, "component", "frametable")),
	}
}

// ID returns the hardware camera id this HalCamera multiplexes.
func (h *HalCamera) ID() string { return h.id }

// ClientCount returns the number of live (weakly-reachable) clients, for
// the registry's release-on-last-client logic. Dead entries are pruned.
func (h *HalCamera) ClientCount() int {
	h.frameMu.Lock()
	defer h.frameMu.Unlock()
	h.pruneDeadClientsLocked()
	return len(h.clients)
}

func (h *HalCamera) pruneDeadClientsLocked() {
	live := h.clients[:0]
	for _, ref := range h.clients {
		if ref.Value() != nil {
			live = append(live, ref)
		}
	}
	h.clients = live
}

// liveClientsLocked returns strong references to every currently-live
// client, in stable registration order, pruning dead entries as it goes.
// Caller must hold frameMu.
func (h *HalCamera) liveClientsLocked() []*vcam.VirtualCamera {
	out := make([]*vcam.VirtualCamera, 0, len(h.clients))
	live := h.clients[:0]
	for _, ref := range h.clients {
		if vc := ref.Value(); vc != nil {
			out = append(out, vc)
			live = append(live, ref)
		}
	}
	h.clients = live
	return out
}

func (h *HalCamera) loadMaster() *vcam.VirtualCamera {
	p := h.masterPtr.Load()
	if p == nil {
		return nil
	}
	return p.Value()
}

func (h *HalCamera) storeMaster(vc *vcam.VirtualCamera) {
	if vc == nil {
		h.masterPtr.Store(nil)
		return
	}
	ref := weak.Make(vc)
	h.masterPtr.Store(&ref)
}

// Dump renders the diagnostics fragment spec.md §6 requires: camera id,
// creation time, frame counters, active stream configuration, every
// client's own dump, the master pointer, and whether sync is supported.
func (h *HalCamera) Dump(w io.Writer) {
	h.frameMu.Lock()
	clients := h.liveClientsLocked()
	recv := h.framesReceived.Load()
	notUsed := h.framesNotUsed.Load()
	sync := h.syncFrames.Load()
	syncSupported := len(h.timelines) > 0
	h.frameMu.Unlock()

	master := h.loadMaster()
	masterID := "<none>"
	if master != nil {
		masterID = master.ID()
	}

	fmt.Fprintf(w, "camera_id=%s created_at=%s\n", h.id, h.createdAt.Format(time.RFC3339))
	fmt.Fprintf(w, "frames_received=%d frames_not_used=%d frames_sync_skipped=%d sync_supported=%t\n",
		recv, notUsed, sync, syncSupported)
	if cfg := h.lastStreamConfig.Load(); cfg != nil {
		fmt.Fprintf(w, "stream_config id=%s %dx%d format=%d usage=%d rotation=%d\n",
			cfg.ID, cfg.Width, cfg.Height, cfg.Format, cfg.Usage, cfg.Rotation)
	}
	fmt.Fprintf(w, "master=%s\n", masterID)
	for _, vc := range clients {
		fmt.Fprintf(w, "  %s\n", vc.Dump())
	}
}
