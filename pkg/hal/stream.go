package hal

import (
	"context"
	"fmt"

	"github.com/ethan/evs-multiplexer/pkg/evserr"
	"github.com/ethan/evs-multiplexer/pkg/vcam"
)

// StartStream implements vcam.Multiplexer, the client-facing half of
// spec.md §4.4.3's state machine. The first client to start pushes
// STOPPED->RUNNING; later starts are free rides on the already-running
// stream. A start that races a pending stop resurrects it back to RUNNING
// rather than letting the in-flight STOPPING land and kill a stream a
// client still wants.
func (h *HalCamera) StartStream(vc *vcam.VirtualCamera) error {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	switch h.state {
	case StreamStopped:
		ctx, cancel := context.WithTimeout(context.Background(), hwCallTimeout)
		defer cancel()
		if err := h.device.StartVideoStream(ctx, h); err != nil {
			return fmt.Errorf("%w: %v", evserr.Underlying, err)
		}
		h.state = StreamRunning
		h.logger.DebugDelivery("stream started", "by", vc.ID())
	case StreamStopping:
		h.logger.Warn("client start raced a pending stop, reverting to RUNNING", "client_id", vc.ID())
		h.state = StreamRunning
	case StreamRunning:
		// already running, nothing to do
	}
	return nil
}

// StopStream implements vcam.Multiplexer. The caller (VirtualCamera) has
// already flipped its own streaming flag to false before this is invoked,
// so anyClientStreaming correctly excludes vc.
func (h *HalCamera) StopStream(vc *vcam.VirtualCamera) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if h.state != StreamRunning {
		return
	}
	if h.anyClientStreaming() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), hwCallTimeout)
	defer cancel()
	if err := h.device.StopVideoStream(ctx); err != nil {
		h.logger.Warn("stream stop rejected by hardware, state stays RUNNING", "err", err)
		return
	}
	h.state = StreamStopping
	h.logger.DebugDelivery("stream stop requested", "by", vc.ID())
}

// anyClientStreaming reports whether any live client still wants the
// aggregate stream up.
func (h *HalCamera) anyClientStreaming() bool {
	h.frameMu.Lock()
	clients := h.liveClientsLocked()
	h.frameMu.Unlock()
	for _, vc := range clients {
		if vc.Streaming() {
			return true
		}
	}
	return false
}

// handleStreamStoppedEvent reacts to the hardware's STREAM_STOPPED
// notification (spec.md §4.4.5): the STOPPING->STOPPED transition. Seeing
// it outside STOPPING is anomalous — logged, and the state is forced to
// STOPPED anyway since that's what the hardware just told us is true.
func (h *HalCamera) handleStreamStoppedEvent() {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	if h.state != StreamStopping {
		h.logger.Warn("STREAM_STOPPED received outside STOPPING state", "state", h.state.String())
	}
	h.state = StreamStopped
}

// State returns the current aggregate stream state, for diagnostics.
func (h *HalCamera) State() StreamState {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	return h.state
}
