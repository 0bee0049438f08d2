// Package instance guards the desktop against two deskpilot engines driving
// it at once. A PID file records the owning process; a file left behind by a
// dead process is taken over.
package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrAlreadyRunning is returned when a live process owns the lock.
var ErrAlreadyRunning = errors.New("another deskpilot engine is running")

// Lock is a PID-file based single-instance lock.
type Lock struct {
	Path string
	held bool
}

// New creates a Lock for the given PID file path.
func New(path string) *Lock {
	return &Lock{Path: path}
}

// Acquire writes the current PID unless a live process already owns the file.
func (l *Lock) Acquire() error {
	if pid, running := l.Owner(); running && pid != os.Getpid() {
		return fmt.Errorf("%w (pid %d, lock %s)", ErrAlreadyRunning, pid, l.Path)
	}
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	if err := l.writePID(os.Getpid()); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}
	l.held = true
	return nil
}

// Release removes the PID file if this process still owns it.
func (l *Lock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	pid, err := l.readPID()
	if err != nil || pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// Owner returns the PID recorded in the file and whether that process is alive.
func (l *Lock) Owner() (int, bool) {
	pid, err := l.readPID()
	if err != nil {
		return 0, false
	}
	return pid, processAlive(pid)
}

func (l *Lock) writePID(pid int) error {
	return os.WriteFile(l.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

func (l *Lock) readPID() (int, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}
