//go:build windows

package instance

import (
	"os"
	"syscall"
)

// processAlive uses os.FindProcess plus a zero signal. FindProcess always
// succeeds on Windows, so the signal result decides.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
