// Package frametable implements the FrameRecord table from spec.md §4.2: a
// compact array mapping hardware buffer id to outstanding reference count,
// used by the multiplexer to know when a buffer can be returned to
// hardware.
package frametable

import (
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/sigurn/crc16"
)

var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// Record is one row of the table: a buffer id and its outstanding
// reference count. A record with RefCount == 0 is a reusable slot.
type Record struct {
	BufferID uint64
	RefCount int

	// checksum guards against a torn/corrupted record slipping past a
	// concurrent compaction; it covers BufferID+RefCount at the moment the
	// record was last written. This is a defensive integrity check, not a
	// substitute for the mutex that already serializes table access.
	checksum uint16
}

func (r Record) recompute() uint16 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], r.BufferID)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(r.RefCount))
	return crc16.Checksum(buf[:], crcTable)
}

func (r Record) valid() bool {
	return r.checksum == r.recompute()
}

// Table is the FrameRecord table. It is not safe for concurrent use on its
// own: spec.md §5 places it under the multiplexer's single frame mutex, so
// Table exposes no internal locking and expects the caller to hold that
// lock.
type Table struct {
	records  []Record
	logger   *slog.Logger
	capacity int
}

// New constructs an empty Table reserved for the given capacity.
func New(capacity int, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		records:  make([]Record, 0, capacity),
		logger:   logger,
		capacity: capacity,
	}
}

// Track inserts bufferID with refCount into the first reusable (RefCount ==
// 0) slot, or appends a new one if none is free.
func (t *Table) Track(bufferID uint64, refCount int) {
	rec := Record{BufferID: bufferID, RefCount: refCount}
	rec.checksum = rec.recompute()

	for i := range t.records {
		if t.records[i].RefCount == 0 {
			t.records[i] = rec
			return
		}
	}
	t.records = append(t.records, rec)
}

// Release decrements the reference count for bufferID. It returns the
// resulting count and true if the record was found. A count of zero means
// the caller must return the buffer to hardware. An unknown bufferID is
// logged and reported via the second return value, never propagated as an
// error — per spec.md §7 this is local-recovery territory.
func (t *Table) Release(bufferID uint64) (remaining int, found bool) {
	for i := range t.records {
		rec := t.records[i]
		if rec.RefCount == 0 || rec.BufferID != bufferID {
			continue
		}
		if !rec.valid() {
			t.logger.Warn("frametable: checksum mismatch on release, treating as corrupted slot",
				"buffer_id", bufferID)
			continue
		}
		rec.RefCount--
		rec.checksum = rec.recompute()
		t.records[i] = rec
		return rec.RefCount, true
	}
	t.logger.Warn("frametable: release of unknown buffer id", "buffer_id", bufferID)
	return 0, false
}

// Compact keeps only live (RefCount > 0) records and reserves space for a
// new capacity. Per spec.md §4.2, a transient overshoot where more live
// records exist than the new capacity is tolerated and only warned about —
// it can legitimately occur mid-flight while buffers drain.
func (t *Table) Compact(capacity int) {
	live := make([]Record, 0, capacity)
	for _, rec := range t.records {
		if rec.RefCount > 0 {
			live = append(live, rec)
		}
	}
	if len(live) > capacity {
		t.logger.Warn("frametable: live record count exceeds requested capacity after compaction",
			"live", len(live), "capacity", capacity)
	}
	t.records = live
	t.capacity = capacity
}

// Live returns a snapshot of records with RefCount > 0, for diagnostics.
func (t *Table) Live() []Record {
	out := make([]Record, 0, len(t.records))
	for _, rec := range t.records {
		if rec.RefCount > 0 {
			out = append(out, rec)
		}
	}
	return out
}

// Len returns the total slot count, live or free.
func (t *Table) Len() int {
	return len(t.records)
}
