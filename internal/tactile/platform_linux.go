//go:build linux

package tactile

import "syscall"

// getMaxRSSBytes converts ru_maxrss, reported in kilobytes on Linux.
func getMaxRSSBytes(rusage *syscall.Rusage) int64 {
	return rusage.Maxrss * 1024
}
