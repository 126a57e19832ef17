// Package timeline implements the per-client fence primitive described in
// spec.md §4.1: a monotonic issuance/signal counter pair, with duplicable
// fence handles that become ready once the signaled count catches up to the
// count the handle was minted against.
package timeline

import (
	"sync"

	"github.com/ethan/evs-multiplexer/pkg/evserr"
)

// Timeline is a per-client synchronization counter. It is safe for
// concurrent use; CreateFence and BumpSignal are expected to be called
// from different goroutines (the client requesting frames, and the
// multiplexer's delivery path, respectively).
type Timeline struct {
	mu            sync.Mutex
	issuedCount   uint64
	signaledCount uint64
	destroyed     bool
}

// New constructs a Timeline. It returns evserr.CreateFailed if the
// underlying synchronization primitive cannot be created; shouldCreateFail
// lets callers (and tests) simulate the kernel/primitive-unavailable path
// spec.md §4.1 requires the multiplexer to degrade on.
func New(shouldCreateFail bool) (*Timeline, error) {
	if shouldCreateFail {
		return nil, evserr.CreateFailed
	}
	return &Timeline{}, nil
}

// Fence is a cheaply duplicable handle bound to the issuedCount at the
// moment it was minted. It becomes Ready once the owning Timeline's
// signaledCount reaches or exceeds that count.
type Fence struct {
	issuedAt uint64
	t        *Timeline
}

// Dup returns a new handle bound to the same issuance point. Fence values
// are themselves immutable and safe to copy directly, but Dup is kept as
// the explicit vocabulary spec.md calls for ("duplicable fence handles").
func (f Fence) Dup() Fence {
	return f
}

// Ready reports whether the fence's issuance point has been signaled.
func (f Fence) Ready() bool {
	if f.t == nil {
		return true
	}
	f.t.mu.Lock()
	defer f.t.mu.Unlock()
	return f.t.signaledCount >= f.issuedAt
}

// CreateFence advances issuedCount (bumpIssuance), then mints a new fence
// bound to the advanced count, so the fence is not ready until the next
// BumpSignal reaches it. The two are combined here because
// every fence-minting call site in this design wants exactly this pair of
// steps atomically.
func (t *Timeline) CreateFence() Fence {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.issuedCount++
	return Fence{issuedAt: t.issuedCount, t: t}
}

// BumpSignal advances signaledCount by one, releasing any fence minted at
// or below the new count.
func (t *Timeline) BumpSignal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.signaledCount++
}

// SignalCount returns the current signaled count, for diagnostics.
func (t *Timeline) SignalCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.signaledCount
}

// IssuedCount returns the current issued count, for diagnostics.
func (t *Timeline) IssuedCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.issuedCount
}

// Destroy forces any outstanding fence ready by raising signaledCount to
// issuedCount, then marks the timeline destroyed. Per spec.md §4.1 this
// must happen on timeline teardown so that waiters on an outstanding fence
// are released rather than left hanging when a client goes away.
func (t *Timeline) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return
	}
	if t.signaledCount < t.issuedCount {
		t.signaledCount = t.issuedCount
	}
	t.destroyed = true
}
