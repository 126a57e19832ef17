package hal

import (
	"context"
	"time"
	"weak"

	"github.com/ethan/evs-multiplexer/pkg/evserr"
	"github.com/ethan/evs-multiplexer/pkg/hwcamera"
	"github.com/ethan/evs-multiplexer/pkg/timeline"
	"github.com/ethan/evs-multiplexer/pkg/vcam"
)

const hwCallTimeout = 2 * time.Second

// MakeVirtualCamera constructs and registers a new VirtualCamera against
// this HalCamera, per spec.md §4.4.1. allowedBuffers of zero falls back to
// the configured default budget.
func (h *HalCamera) MakeVirtualCamera(clientID string, allowedBuffers uint32) (*vcam.VirtualCamera, error) {
	if allowedBuffers == 0 {
		allowedBuffers = h.cfg.DefaultBufferBudget
	}
	vc := vcam.New(clientID, allowedBuffers, h, h.logger)
	if err := h.ownVirtualCamera(vc); err != nil {
		return nil, err
	}
	return vc, nil
}

// ownVirtualCamera implements spec.md §4.4.1: renegotiate the buffer pool
// upward for the new client's budget, try to stand up a timeline for fenced
// delivery, then append the client to the live list. The pool renegotiation
// happens before the client is visible anywhere else, so a hardware
// rejection leaves no trace.
func (h *HalCamera) ownVirtualCamera(vc *vcam.VirtualCamera) error {
	if _, ok := h.changeFramesInFlight(int64(vc.AllowedBuffers())); !ok {
		return evserr.Underlying
	}

	if h.cfg.FenceSupported {
		tl, err := timeline.New(false)
		if err != nil {
			h.logger.Warn("timeline creation failed, client falls back to pull mode",
				"client_id", vc.ID(), "err", err)
		} else {
			h.frameMu.Lock()
			h.timelines[vc.ID()] = tl
			h.frameMu.Unlock()
			vc.SetFencedDelivery(true)
		}
	}

	h.frameMu.Lock()
	h.clients = append(h.clients, weak.Make(vc))
	h.frameMu.Unlock()

	h.logger.DebugPool("client registered", "client_id", vc.ID(), "allowed_buffers", vc.AllowedBuffers())
	return nil
}

// disownVirtualCamera implements spec.md §4.4.1 teardown: remove the client
// from the live list, destroy its timeline, and renegotiate the pool
// downward. Not finding vc in the list is logged, not fatal — it can
// legitimately race with the client already having been pruned as dead.
func (h *HalCamera) disownVirtualCamera(vc *vcam.VirtualCamera) {
	h.frameMu.Lock()
	found := false
	kept := h.clients[:0]
	for _, ref := range h.clients {
		if cur := ref.Value(); cur != nil && cur != vc {
			kept = append(kept, ref)
		} else if cur == vc {
			found = true
		}
	}
	h.clients = kept

	if tl, ok := h.timelines[vc.ID()]; ok {
		tl.Destroy()
		delete(h.timelines, vc.ID())
	}
	h.frameMu.Unlock()

	if !found {
		h.logger.Warn("disownVirtualCamera: client not found in live list", "client_id", vc.ID())
	}

	h.changeFramesInFlight(0)
}

// changeFramesInFlight implements spec.md §4.4.2: recompute the pool target
// as max(1, sum of live clients' allowedBuffers + delta) + cumulative
// external delta, then push it to hardware, rate-limited. On success the
// frame table is compacted to the new target and the target recorded for
// diagnostics. On failure the call leaves all state untouched and reports
// false.
func (h *HalCamera) changeFramesInFlight(delta int64) (int64, bool) {
	h.frameMu.Lock()
	var sum int64
	for _, vc := range h.liveClientsLocked() {
		sum += int64(vc.AllowedBuffers())
	}
	target := sum + delta
	if target < 1 {
		target = 1
	}
	target += h.externalDelta
	h.frameMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), hwCallTimeout)
	defer cancel()
	if err := h.poolLimiter.Wait(ctx); err != nil {
		h.logger.Warn("changeFramesInFlight: rate limiter wait failed", "err", err)
		return 0, false
	}

	status, err := h.device.SetMaxFramesInFlight(ctx, uint32(target))
	if err != nil || status != hwcamera.StatusOK {
		h.logger.Warn("changeFramesInFlight: hardware rejected pool resize", "target", target, "err", err)
		return 0, false
	}

	h.frameMu.Lock()
	h.frameTable.Compact(int(target))
	h.lastTarget = target
	h.frameMu.Unlock()

	h.logger.DebugPool("pool resized", "target", target)
	return target, true
}

// ImportBuffers implements the changeFramesInFlight(externalBuffers[])
// variant from spec.md §4.4.2: import caller-provided buffers into
// hardware and fold however many were accepted into the cumulative
// external delta. Import failure leaves existing state untouched.
func (h *HalCamera) ImportBuffers(bufs []hwcamera.Buffer) (int, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), hwCallTimeout)
	defer cancel()
	status, accepted, err := h.device.ImportExternalBuffers(ctx, bufs)
	if err != nil || status != hwcamera.StatusOK || accepted <= 0 {
		h.logger.Warn("ImportBuffers: hardware rejected import", "err", err)
		return 0, false
	}

	h.frameMu.Lock()
	h.externalDelta += int64(accepted)
	h.frameMu.Unlock()

	if _, ok := h.changeFramesInFlight(0); !ok {
		h.frameMu.Lock()
		h.externalDelta -= int64(accepted)
		h.frameMu.Unlock()
		return 0, false
	}
	return accepted, true
}
