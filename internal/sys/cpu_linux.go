//go:build linux

package sys

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// PinToCore locks the calling goroutine's thread to one CPU core. Used to
// keep the detector worker off cores busy with HTTP traffic.
func PinToCore(coreID int) error {
	runtime.LockOSThread()

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(coreID)
	return unix.SchedSetaffinity(0, &mask)
}
