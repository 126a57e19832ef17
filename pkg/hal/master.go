package hal

import (
	"context"

	"github.com/ethan/evs-multiplexer/pkg/evserr"
	"github.com/ethan/evs-multiplexer/pkg/hwcamera"
	"github.com/ethan/evs-multiplexer/pkg/vcam"
)

// SetMaster implements vcam.Multiplexer's cooperative master acquisition
// (spec.md §4.5): fails if another client already holds the role. Reads go
// through an atomic load; the write path re-checks under masterMu so two
// concurrent SetMaster calls can't both believe they won.
func (h *HalCamera) SetMaster(vc *vcam.VirtualCamera) error {
	if h.loadMaster() != nil {
		return evserr.OwnershipLost
	}
	h.masterMu.Lock()
	defer h.masterMu.Unlock()
	if h.loadMaster() != nil {
		return evserr.OwnershipLost
	}
	h.storeMaster(vc)
	h.logger.DebugMaster("master acquired", "client_id", vc.ID())
	return nil
}

// ForceMaster implements vcam.Multiplexer's unconditional master takeover.
// The displaced client's local cache is cleared and it receives a
// MASTER_RELEASED notification.
func (h *HalCamera) ForceMaster(vc *vcam.VirtualCamera) {
	h.masterMu.Lock()
	prev := h.loadMaster()
	h.storeMaster(vc)
	h.masterMu.Unlock()

	h.logger.DebugMaster("master forced", "client_id", vc.ID())
	if prev != nil && prev != vc {
		prev.ClearMasterCache()
		prev.Notify(hwcamera.Event{Kind: hwcamera.EventMasterReleased})
	}
}

// UnsetMaster implements vcam.Multiplexer's voluntary master release. Per
// spec.md §9 the resulting MASTER_RELEASED notification is broadcast to
// every live client, including the one that just released the role, so a
// single notification path serves both "I lost master" and "master is now
// free" listeners.
func (h *HalCamera) UnsetMaster(vc *vcam.VirtualCamera) error {
	h.masterMu.Lock()
	if h.loadMaster() != vc {
		h.masterMu.Unlock()
		return evserr.InvalidArg
	}
	h.storeMaster(nil)
	h.masterMu.Unlock()

	h.logger.DebugMaster("master released", "client_id", vc.ID())
	h.broadcastEvent(hwcamera.Event{Kind: hwcamera.EventMasterReleased})
	return nil
}

// SetParameter implements vcam.Multiplexer. A non-master caller silently
// degrades to a read of the current value and gets evserr.InvalidArg as the
// status, per spec.md §4.5 and the closed error taxonomy in §7 — there is no
// separate "not master" error kind.
func (h *HalCamera) SetParameter(vc *vcam.VirtualCamera, id uint32, value []int32) ([]int32, error) {
	if h.loadMaster() != vc {
		v, err := h.GetParameter(id)
		if err != nil {
			return nil, err
		}
		return v, evserr.InvalidArg
	}

	ctx, cancel := context.WithTimeout(context.Background(), hwCallTimeout)
	defer cancel()
	if err := h.paramLimiter.Wait(ctx); err != nil {
		return nil, evserr.Underlying
	}

	status, applied, err := h.device.SetIntParameter(ctx, id, value)
	if err != nil || status != hwcamera.StatusOK {
		return nil, evserr.Underlying
	}

	h.broadcastEvent(hwcamera.Event{Kind: hwcamera.EventParameterChanged, Param: hwcamera.ParamChange{ID: id, Value: applied}})
	return applied, nil
}

// GetParameter implements vcam.Multiplexer.
func (h *HalCamera) GetParameter(id uint32) ([]int32, error) {
	ctx, cancel := context.WithTimeout(context.Background(), hwCallTimeout)
	defer cancel()
	status, v, err := h.device.GetIntParameter(ctx, id)
	if err != nil || status != hwcamera.StatusOK {
		return nil, evserr.Underlying
	}
	return v, nil
}

// broadcastEvent forwards ev to every live client, best-effort.
func (h *HalCamera) broadcastEvent(ev hwcamera.Event) {
	h.frameMu.Lock()
	clients := h.liveClientsLocked()
	h.frameMu.Unlock()
	for _, vc := range clients {
		vc.Notify(ev)
	}
}

// Notify implements hwcamera.Sink: hardware-originated events are forwarded
// to every live client, with STREAM_STOPPED additionally driving the
// aggregate state machine (spec.md §4.4.5).
func (h *HalCamera) Notify(ctx context.Context, ev hwcamera.Event) {
	if ev.Kind == hwcamera.EventStreamStopped {
		h.handleStreamStoppedEvent()
	}
	h.broadcastEvent(ev)
}
