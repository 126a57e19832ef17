package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// FrameTracer is a dedicated, zero-allocation-on-the-happy-path logger for
// the deliverFrame/doneWithFrame hot path (spec.md §4.4.4). It is kept
// separate from Logger (slog) because slog's attribute boxing allocates on
// every call site regardless of whether the line is ultimately emitted;
// zerolog's level check short-circuits before any field is touched, which
// matters when this path runs once per hardware frame rather than once per
// control-plane event.
type FrameTracer struct {
	log zerolog.Logger
}

// NewFrameTracer builds a FrameTracer writing to w (os.Stdout if nil) at
// the given level. Pass zerolog.Disabled to turn tracing off entirely.
func NewFrameTracer(w io.Writer, level zerolog.Level) *FrameTracer {
	if w == nil {
		w = os.Stdout
	}
	return &FrameTracer{
		log: zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

// Disabled returns a FrameTracer that never emits, for production paths
// where per-frame tracing would be pure overhead.
func Disabled() *FrameTracer {
	return NewFrameTracer(io.Discard, zerolog.Disabled)
}

// Delivered records a successful frame delivery to one client.
func (t *FrameTracer) Delivered(cameraID string, bufferID uint64, clientID string, timestamp int64) {
	t.log.Trace().
		Str("camera_id", cameraID).
		Uint64("buffer_id", bufferID).
		Str("client_id", clientID).
		Int64("ts", timestamp).
		Msg("frame delivered")
}

// Requeued records a fenced request that arrived too soon and was put back
// on nextRequests.
func (t *FrameTracer) Requeued(cameraID string, clientID string, gap int64) {
	t.log.Trace().
		Str("camera_id", cameraID).
		Str("client_id", clientID).
		Int64("gap_ns", gap).
		Msg("fenced request re-queued, gap below sync threshold")
}

// Dropped records a buffer that found zero consumers.
func (t *FrameTracer) Dropped(cameraID string, bufferID uint64) {
	t.log.Trace().
		Str("camera_id", cameraID).
		Uint64("buffer_id", bufferID).
		Msg("frame not used by any client")
}

// Returned records a buffer being handed back to hardware after its
// refcount reached zero.
func (t *FrameTracer) Returned(cameraID string, bufferID uint64) {
	t.log.Trace().
		Str("camera_id", cameraID).
		Uint64("buffer_id", bufferID).
		Msg("buffer returned to hardware")
}
