//go:build !linux

package sys

// PinToCore is a no-op on platforms without sched_setaffinity.
func PinToCore(int) error { return nil }
