package hal

import (
	"context"
	"fmt"
	"weak"

	"github.com/ethan/evs-multiplexer/pkg/evserr"
	"github.com/ethan/evs-multiplexer/pkg/hwcamera"
	"github.com/ethan/evs-multiplexer/pkg/timeline"
	"github.com/ethan/evs-multiplexer/pkg/vcam"
)

// DeliverFrame10 is the legacy single-buffer hwcamera.Sink entry point.
// This design only supports the batched v1.1 path; a v1.0 delivery is
// rejected and the buffer handed straight back to hardware.
func (h *HalCamera) DeliverFrame10(ctx context.Context, buf hwcamera.Buffer) error {
	h.logger.Warn("legacy single-buffer delivery rejected", "buffer_id", buf.ID)
	if err := h.device.DoneWithFrame(ctx, buf.ID); err != nil {
		h.logger.Warn("failed to return rejected legacy buffer", "buffer_id", buf.ID, "err", err)
	}
	return fmt.Errorf("%w: legacy deliverFrame10 unsupported", evserr.InvalidArg)
}

// DeliverFrame11 is the batched hwcamera.Sink entry point and is where the
// core fan-out algorithm of spec.md §4.4.4 lives: swap nextRequests into
// currentRequests (the linearization point for fenced delivery), satisfy or
// re-queue each fenced request, then sweep every pull-mode client.
func (h *HalCamera) DeliverFrame11(ctx context.Context, bufs []hwcamera.Buffer) error {
	if len(bufs) == 0 {
		return nil
	}
	buf := bufs[0]
	h.framesReceived.Add(1)

	h.frameMu.Lock()

	h.currentRequests = h.nextRequests
	h.nextRequests = nil
	pending := h.currentRequests

	deliveries := 0
	var requeue []*frameRequest

	for _, req := range pending {
		vc := req.clientRef.Value()
		if vc == nil {
			continue // client died between request and delivery
		}
		gap := buf.Timestamp - req.lastTimestamp
		if gap < int64(h.cfg.SyncThreshold) {
			h.syncFrames.Add(1)
			h.tracer.Requeued(h.id, vc.ID(), gap)
			requeue = append(requeue, req)
			continue
		}
		if !vc.DeliverFrame(buf) {
			// Client is already at its held-buffer cap; this request gets
			// another shot once it drains via doneWithFrame.
			requeue = append(requeue, req)
			continue
		}
		if tl, ok := h.timelines[vc.ID()]; ok {
			tl.BumpSignal()
		}
		deliveries++
		h.tracer.Delivered(h.id, uint64(buf.ID), vc.ID(), buf.Timestamp)
	}
	h.nextRequests = append(h.nextRequests, requeue...)

	for _, vc := range h.liveClientsLocked() {
		if vc.UsesFencedDelivery() {
			continue // served, or eligible to be served, by the fenced pass above
		}
		if !vc.Streaming() {
			continue
		}
		if vc.DeliverFrame(buf) {
			deliveries++
			h.tracer.Delivered(h.id, uint64(buf.ID), vc.ID(), buf.Timestamp)
		}
	}

	if deliveries == 0 {
		h.framesNotUsed.Add(1)
		h.tracer.Dropped(h.id, uint64(buf.ID))
	} else {
		h.frameTable.Track(uint64(buf.ID), deliveries)
	}
	h.lastStreamConfig.Store(&buf.Config)
	h.frameMu.Unlock()

	if deliveries == 0 {
		if err := h.device.DoneWithFrame(ctx, buf.ID); err != nil {
			h.logger.Warn("failed to return unused buffer", "buffer_id", buf.ID, "err", err)
		}
	}
	return nil
}

// DoneWithFrame implements vcam.Multiplexer: release the client's hold on
// bufferID and, once the refcount hits zero, return it to hardware.
func (h *HalCamera) DoneWithFrame(vc *vcam.VirtualCamera, bufferID hwcamera.BufferID) {
	h.frameMu.Lock()
	remaining, found := h.frameTable.Release(uint64(bufferID))
	h.frameMu.Unlock()

	if !found {
		return // already logged by frametable.Release
	}
	if remaining > 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), hwCallTimeout)
	defer cancel()
	if err := h.device.DoneWithFrame11(ctx, []hwcamera.BufferID{bufferID}); err != nil {
		h.logger.Warn("failed to return drained buffer to hardware", "buffer_id", bufferID, "err", err)
		return
	}
	h.tracer.Returned(h.id, uint64(bufferID))
}

// RequestNextFrame implements vcam.Multiplexer: mint a fence against the
// client's timeline and enqueue a fenced delivery request.
func (h *HalCamera) RequestNextFrame(vc *vcam.VirtualCamera, lastTimestamp int64) (timeline.Fence, error) {
	h.frameMu.Lock()
	defer h.frameMu.Unlock()

	tl, ok := h.timelines[vc.ID()]
	if !ok {
		return timeline.Fence{}, evserr.SyncUnsupported
	}
	fence := tl.CreateFence()
	h.nextRequests = append(h.nextRequests, &frameRequest{
		clientRef:     weak.Make(vc),
		lastTimestamp: lastTimestamp,
		fence:         fence,
	})
	h.logger.DebugFence("frame requested", "client_id", vc.ID(), "last_ts", lastTimestamp)
	return fence, nil
}
