//go:build !windows

package instance

import "syscall"

// processAlive sends signal 0, which checks existence without signalling.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
