// Package fake provides a deterministic in-memory hwcamera.Device, used by
// the hal, registry and diagnostics tests and by cmd/evsd, which backs
// every camera it opens with it, for local smoke-running without real
// camera hardware.
package fake

import (
	"context"
	"sync"

	"github.com/ethan/evs-multiplexer/pkg/hwcamera"
)

// Device is a fully in-process hwcamera.Device. Every call is recorded so
// tests can assert on the exact sequence the multiplexer issued.
type Device struct {
	mu sync.Mutex

	maxFramesInFlight uint32
	streaming         bool
	sink              hwcamera.Sink

	// RejectSetMax, when set, makes SetMaxFramesInFlight fail every call —
	// used to simulate the hardware refusing a pool-size change.
	RejectSetMax bool
	// RejectStart makes StartVideoStream fail.
	RejectStart bool
	// ImportAccept caps how many of a batch ImportExternalBuffers accepts;
	// -1 (default) accepts all.
	ImportAccept int

	Calls []string

	params map[uint32][]int32

	doneBuffers []hwcamera.BufferID
}

// New constructs a fake Device with sane defaults.
func New() *Device {
	return &Device{
		ImportAccept: -1,
		params:       make(map[uint32][]int32),
	}
}

func (d *Device) record(call string) {
	d.Calls = append(d.Calls, call)
}

func (d *Device) SetMaxFramesInFlight(ctx context.Context, count uint32) (hwcamera.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetMaxFramesInFlight")
	if d.RejectSetMax {
		return hwcamera.StatusFailed, nil
	}
	d.maxFramesInFlight = count
	return hwcamera.StatusOK, nil
}

func (d *Device) MaxFramesInFlight() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxFramesInFlight
}

func (d *Device) ImportExternalBuffers(ctx context.Context, bufs []hwcamera.Buffer) (hwcamera.Status, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ImportExternalBuffers")
	n := len(bufs)
	if d.ImportAccept >= 0 && d.ImportAccept < n {
		n = d.ImportAccept
	}
	return hwcamera.StatusOK, n, nil
}

func (d *Device) StartVideoStream(ctx context.Context, sink hwcamera.Sink) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("StartVideoStream")
	if d.RejectStart {
		return hwcamera.ErrStreamStartRejected
	}
	d.sink = sink
	d.streaming = true
	return nil
}

func (d *Device) StopVideoStream(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("StopVideoStream")
	d.streaming = false
	return nil
}

func (d *Device) DoneWithFrame(ctx context.Context, buf hwcamera.BufferID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DoneWithFrame")
	d.doneBuffers = append(d.doneBuffers, buf)
	return nil
}

func (d *Device) DoneWithFrame11(ctx context.Context, bufs []hwcamera.BufferID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DoneWithFrame_1_1")
	d.doneBuffers = append(d.doneBuffers, bufs...)
	return nil
}

func (d *Device) DoneBuffers() []hwcamera.BufferID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]hwcamera.BufferID, len(d.doneBuffers))
	copy(out, d.doneBuffers)
	return out
}

func (d *Device) SetIntParameter(ctx context.Context, id uint32, value []int32) (hwcamera.Status, []int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetIntParameter")
	d.params[id] = value
	return hwcamera.StatusOK, value, nil
}

func (d *Device) GetIntParameter(ctx context.Context, id uint32) (hwcamera.Status, []int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("GetIntParameter")
	v, ok := d.params[id]
	if !ok {
		return hwcamera.StatusOK, []int32{0}, nil
	}
	return hwcamera.StatusOK, v, nil
}

// Deliver pushes a buffer to whatever sink StartVideoStream was last called
// with, simulating a hardware frame arrival. It is the test-side trigger
// for the multiplexer's deliverFrame algorithm.
func (d *Device) Deliver(ctx context.Context, buf hwcamera.Buffer) error {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()
	if sink == nil {
		return nil
	}
	return sink.DeliverFrame11(ctx, []hwcamera.Buffer{buf})
}

// Notify simulates a hardware-originated event.
func (d *Device) Notify(ctx context.Context, ev hwcamera.Event) {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()
	if sink != nil {
		sink.Notify(ctx, ev)
	}
}

// Streaming reports whether StartVideoStream has been called without a
// matching StopVideoStream.
func (d *Device) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming
}
