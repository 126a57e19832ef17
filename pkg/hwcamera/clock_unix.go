//go:build linux || darwin

package hwcamera

import (
	"time"

	"golang.org/x/sys/unix"
)

// Now returns the current time in the CLOCK_MONOTONIC domain, matching the
// timestamp domain hardware camera buffers are stamped in, rather than
// wall-clock time.Now(), which can jump on NTP correction. Nothing in this
// module calls it: fence pacing (spec.md §4.4.4) compares a buffer's
// timestamp with the client's last seen timestamp, not with this clock.
func Now() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return time.Now().UnixNano()
	}
	return ts.Nano()
}
