// Package hwcamera declares the narrow interface the multiplexer requires
// from the hardware camera layer (spec.md §6, "Downward"). No concrete
// binding to a real camera driver is implemented here — per spec.md §1 the
// driver itself is an external collaborator, out of scope for this core.
package hwcamera

import "context"

// BufferID identifies a hardware-owned graphic buffer. The multiplexer
// never copies the pixel data behind it; it only tracks reference counts.
type BufferID uint64

// StreamConfig describes the active hardware stream configuration, as
// surfaced through the diagnostics dump (spec.md §6).
type StreamConfig struct {
	ID       string
	Width    uint32
	Height   uint32
	Format   uint32
	Usage    uint64
	Rotation int
}

// Buffer is one frame as delivered by the hardware: a descriptor plus the
// monotonic hardware timestamp used for fence pacing (spec.md §4.4.4).
type Buffer struct {
	ID        BufferID
	Timestamp int64 // nanoseconds, CLOCK_MONOTONIC domain — see Now().
	Config    StreamConfig

	// checksum guards the descriptor fields above against corruption when a
	// buffer crosses the hardware/multiplexer boundary, independent of the
	// frametable's own refcount-record checksum.
	checksum uint8
}

// Event is a notification originating from the hardware layer and
// forwarded, best-effort, to every live client (spec.md §4.4.5).
type Event struct {
	Kind  EventKind
	Param ParamChange
}

// EventKind enumerates the notifications named in spec.md §6.
type EventKind int

const (
	EventStreamStopped EventKind = iota
	EventMasterReleased
	EventParameterChanged
)

// ParamChange carries the payload of an EventParameterChanged notification:
// the parameter id and the value the hardware actually applied (which may
// differ from the value requested, e.g. when the hardware clamps it).
type ParamChange struct {
	ID    uint32
	Value []int32
}

// Status mirrors the coarse accept/reject result hardware calls return;
// spec.md's error taxonomy (pkg/evserr) is layered on top of this by the
// callers in pkg/hal and pkg/vcam.
type Status int

const (
	StatusOK Status = iota
	StatusFailed
)

// Sink is the delivery surface the multiplexer exposes upward to the
// hardware layer (spec.md §6, "Delivery callback shape").
type Sink interface {
	// DeliverFrame10 is the legacy single-buffer delivery path. This design
	// rejects it immediately and returns the buffer to hardware.
	DeliverFrame10(ctx context.Context, buf Buffer) error

	// DeliverFrame11 is the supported batched delivery path; the first
	// buffer's timestamp is authoritative for fence pacing.
	DeliverFrame11(ctx context.Context, bufs []Buffer) error

	// Notify forwards a hardware-originated event.
	Notify(ctx context.Context, ev Event)
}

// Device is the capability set spec.md §6 requires of the hardware camera
// producer.
type Device interface {
	SetMaxFramesInFlight(ctx context.Context, count uint32) (Status, error)
	ImportExternalBuffers(ctx context.Context, bufs []Buffer) (Status, int, error)

	StartVideoStream(ctx context.Context, sink Sink) error
	StopVideoStream(ctx context.Context) error

	DoneWithFrame(ctx context.Context, buf BufferID) error
	DoneWithFrame11(ctx context.Context, bufs []BufferID) error

	SetIntParameter(ctx context.Context, id uint32, value []int32) (Status, []int32, error)
	GetIntParameter(ctx context.Context, id uint32) (Status, []int32, error)
}
