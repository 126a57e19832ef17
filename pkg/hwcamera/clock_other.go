//go:build !linux && !darwin

package hwcamera

import "time"

// Now falls back to wall-clock time on platforms without a direct
// CLOCK_MONOTONIC binding. Nothing in this module calls it.
func Now() int64 {
	return time.Now().UnixNano()
}
