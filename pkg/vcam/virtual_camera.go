// Package vcam implements the VirtualCamera described in spec.md §4.3: the
// per-client handle a consumer of the shared hardware camera is given. A
// VirtualCamera holds a strong reference to the HalCamera multiplexer that
// backs it (so a client keeps its producer alive) and exposes the
// client-facing operations, forwarding most of them to the multiplexer.
package vcam

import (
	"fmt"
	"sync"

	"github.com/ethan/evs-multiplexer/pkg/evserr"
	"github.com/ethan/evs-multiplexer/pkg/hwcamera"
	"github.com/ethan/evs-multiplexer/pkg/logger"
	"github.com/ethan/evs-multiplexer/pkg/timeline"
)

// Multiplexer is the narrow surface a VirtualCamera needs from its
// HalCamera. Defining it here, in the consumer package, rather than in
// pkg/hal, is what lets pkg/hal hold a weak reference to *VirtualCamera
// without the two packages importing each other.
type Multiplexer interface {
	StartStream(vc *VirtualCamera) error
	StopStream(vc *VirtualCamera)
	DoneWithFrame(vc *VirtualCamera, bufferID hwcamera.BufferID)
	RequestNextFrame(vc *VirtualCamera, lastTimestamp int64) (timeline.Fence, error)
	SetMaster(vc *VirtualCamera) error
	ForceMaster(vc *VirtualCamera)
	UnsetMaster(vc *VirtualCamera) error
	SetParameter(vc *VirtualCamera, id uint32, value []int32) ([]int32, error)
	GetParameter(id uint32) ([]int32, error)
}

// VirtualCamera is one logical client's handle onto the shared hardware
// camera.
type VirtualCamera struct {
	id             string
	allowedBuffers uint32
	mux            Multiplexer
	logger         *logger.Logger

	// OnEvent is the upward notification callback (spec.md §4.3, notify);
	// the IPC transport that actually ships this to a remote client is out
	// of scope for this core, so this is the narrowest possible interface
	// to it.
	OnEvent func(hwcamera.Event)

	mu           sync.Mutex
	streaming    bool
	isMaster     bool
	fencedDeliv  bool
	heldBuffers  map[hwcamera.BufferID]struct{}
}

// New constructs a VirtualCamera. allowedBuffers must be at least 1
// (spec.md §3 invariant); mux is the HalCamera this client is registered
// against.
func New(id string, allowedBuffers uint32, mux Multiplexer, log *logger.Logger) *VirtualCamera {
	if allowedBuffers < 1 {
		allowedBuffers = 1
	}
	if log == nil {
		log = logger.Default()
	}
	return &VirtualCamera{
		id:             id,
		allowedBuffers: allowedBuffers,
		mux:            mux,
		logger:         log.With("client_id", id),
		heldBuffers:    make(map[hwcamera.BufferID]struct{}),
	}
}

// ID returns the client's identity, used as the timeline map key and in
// diagnostics.
func (vc *VirtualCamera) ID() string { return vc.id }

// AllowedBuffers returns the immutable per-client in-flight buffer budget.
func (vc *VirtualCamera) AllowedBuffers() uint32 { return vc.allowedBuffers }

// StartStream starts the client's stream at the multiplexer. Fails with
// evserr.AlreadyStreaming if already streaming. Hardware always calls back
// into the multiplexer itself (see pkg/hal), never directly into a client,
// so there is no per-client sink to pass through here.
func (vc *VirtualCamera) StartStream() error {
	vc.mu.Lock()
	if vc.streaming {
		vc.mu.Unlock()
		return evserr.AlreadyStreaming
	}
	vc.mu.Unlock()

	if err := vc.mux.StartStream(vc); err != nil {
		return err
	}

	vc.mu.Lock()
	vc.streaming = true
	vc.mu.Unlock()
	return nil
}

// StopStream stops the client's stream. Idempotent.
func (vc *VirtualCamera) StopStream() {
	vc.mu.Lock()
	if !vc.streaming {
		vc.mu.Unlock()
		return
	}
	vc.streaming = false
	vc.mu.Unlock()

	vc.mux.StopStream(vc)
}

// Streaming reports whether this client currently has an active stream.
func (vc *VirtualCamera) Streaming() bool {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.streaming
}

// DoneWithFrame releases a buffer this client was holding. Returns
// evserr.UnknownBuffer if the client does not currently hold bufferID —
// per spec.md §7 this is local-recovery territory, logged rather than
// treated as fatal, but still reported to the immediate caller so tests and
// careful callers can observe it.
func (vc *VirtualCamera) DoneWithFrame(bufferID hwcamera.BufferID) error {
	vc.mu.Lock()
	if _, ok := vc.heldBuffers[bufferID]; !ok {
		vc.mu.Unlock()
		vc.logger.Warn("doneWithFrame for buffer not held by this client", "buffer_id", bufferID)
		return evserr.UnknownBuffer
	}
	delete(vc.heldBuffers, bufferID)
	vc.mu.Unlock()

	vc.mux.DoneWithFrame(vc, bufferID)
	return nil
}

// RequestNextFrame asks for a fence that becomes ready once a sufficiently
// new frame has been delivered to this client. Returns
// evserr.SyncUnsupported if fence-based delivery was never enabled for
// this client (spec.md §4.1, degraded pull mode).
func (vc *VirtualCamera) RequestNextFrame(lastSeenTimestamp int64) (timeline.Fence, error) {
	vc.mu.Lock()
	enabled := vc.fencedDeliv
	vc.mu.Unlock()
	if !enabled {
		return timeline.Fence{}, evserr.SyncUnsupported
	}
	return vc.mux.RequestNextFrame(vc, lastSeenTimestamp)
}

// SetFencedDelivery is called by the multiplexer once during registration,
// after it has successfully created a timeline for this client.
func (vc *VirtualCamera) SetFencedDelivery(enabled bool) {
	vc.mu.Lock()
	vc.fencedDeliv = enabled
	vc.mu.Unlock()
}

// UsesFencedDelivery reports whether this client receives frames via
// fenced (push, on explicit request) delivery rather than pull mode.
func (vc *VirtualCamera) UsesFencedDelivery() bool {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.fencedDeliv
}

// SetMaster attempts to acquire the master role. Fails with
// evserr.OwnershipLost if another client already holds it.
func (vc *VirtualCamera) SetMaster() error {
	if err := vc.mux.SetMaster(vc); err != nil {
		return err
	}
	vc.mu.Lock()
	vc.isMaster = true
	vc.mu.Unlock()
	return nil
}

// ForceMaster unconditionally takes the master role, displacing any
// current master.
func (vc *VirtualCamera) ForceMaster() {
	vc.mux.ForceMaster(vc)
	vc.mu.Lock()
	vc.isMaster = true
	vc.mu.Unlock()
}

// UnsetMaster releases the master role. Fails with evserr.InvalidArg if
// this client does not currently hold it.
func (vc *VirtualCamera) UnsetMaster() error {
	if err := vc.mux.UnsetMaster(vc); err != nil {
		return err
	}
	vc.mu.Lock()
	vc.isMaster = false
	vc.mu.Unlock()
	return nil
}

// ClearMasterCache is invoked by the multiplexer when this client is displaced
// by another master, so the local cache stays honest without a round trip.
func (vc *VirtualCamera) ClearMasterCache() {
	vc.mu.Lock()
	vc.isMaster = false
	vc.mu.Unlock()
}

// IsMaster reports the last-known master status. Because the master
// pointer is a racy weak reference at the multiplexer, this cache can be
// momentarily stale; spec.md §9 calls this an accepted race.
func (vc *VirtualCamera) IsMaster() bool {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.isMaster
}

// SetParameter writes a camera parameter if this client is master.
// Non-masters silently degrade to a read of the current value and get
// evserr.InvalidArg as the status (spec.md §4.5).
func (vc *VirtualCamera) SetParameter(id uint32, value []int32) ([]int32, error) {
	return vc.mux.SetParameter(vc, id, value)
}

// GetParameter reads a camera parameter.
func (vc *VirtualCamera) GetParameter(id uint32) ([]int32, error) {
	return vc.mux.GetParameter(id)
}

// Notify forwards a hardware- or multiplexer-originated event to this
// client. Best-effort: a panic-free nil check stands in for the
// out-of-scope IPC transport's own failure handling.
func (vc *VirtualCamera) Notify(ev hwcamera.Event) {
	if vc.OnEvent != nil {
		vc.OnEvent(ev)
	}
}

// DeliverFrame is called by the multiplexer to hand this client a buffer.
// Per spec.md §4.3: if the client is already holding allowedBuffers
// frames, delivery fails outright rather than blocking or evicting the
// oldest held frame.
func (vc *VirtualCamera) DeliverFrame(buf hwcamera.Buffer) bool {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if uint32(len(vc.heldBuffers)) >= vc.allowedBuffers {
		return false
	}
	vc.heldBuffers[buf.ID] = struct{}{}
	return true
}

// FramesHeld returns the number of buffers currently held by this client.
func (vc *VirtualCamera) FramesHeld() int {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return len(vc.heldBuffers)
}

// Dump renders the diagnostics fragment spec.md §6 requires per client.
func (vc *VirtualCamera) Dump() string {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return fmt.Sprintf(
		"client=%s allowed_buffers=%d streaming=%t held=%d master=%t fenced=%t",
		vc.id, vc.allowedBuffers, vc.streaming, len(vc.heldBuffers), vc.isMaster, vc.fencedDeliv)
}
