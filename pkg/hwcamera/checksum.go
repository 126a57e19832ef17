package hwcamera

import (
	"encoding/binary"

	"github.com/sigurn/crc8"
)

var crc8Table = crc8.MakeTable(crc8.CRC8)

// NewBuffer constructs a Buffer with its integrity checksum populated. Every
// Buffer that crosses the hardware/multiplexer boundary should be built
// through this constructor rather than a bare struct literal.
func NewBuffer(id BufferID, timestamp int64, cfg StreamConfig) Buffer {
	b := Buffer{ID: id, Timestamp: timestamp, Config: cfg}
	b.checksum = b.computeChecksum()
	return b
}

func (b Buffer) computeChecksum() uint8 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(b.ID))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(b.Timestamp))
	binary.LittleEndian.PutUint32(buf[16:20], b.Config.Width)
	binary.LittleEndian.PutUint32(buf[20:24], b.Config.Height)
	return crc8.Checksum(buf[:], crc8Table)
}

// Valid reports whether the buffer's descriptor fields still match the
// checksum computed at construction time.
func (b Buffer) Valid() bool {
	return b.checksum == b.computeChecksum()
}
