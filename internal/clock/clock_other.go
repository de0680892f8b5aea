//go:build !linux

package clock

import "time"

// Now returns the wall clock in nanoseconds. Non-Linux hosts are not a
// deployment target for this engine; this exists only so the package
// builds elsewhere.
func Now() uint64 {
	return uint64(time.Now().UnixNano())
}
