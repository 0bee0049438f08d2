package state

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout is returned when a TimedLock cannot be acquired in time.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// TimedLock is a mutex whose acquisition is always bounded by a timeout.
type TimedLock struct {
	name string
	sem  *semaphore.Weighted
}

// NewTimedLock creates an unlocked TimedLock.
func NewTimedLock(name string) *TimedLock {
	return &TimedLock{name: name, sem: semaphore.NewWeighted(1)}
}

// Name returns the lock's diagnostic name.
func (l *TimedLock) Name() string { return l.name }

// Acquire blocks until the lock is held, timeout elapses, or ctx is done.
// A non-positive timeout means a single non-blocking attempt.
func (l *TimedLock) Acquire(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		if l.sem.TryAcquire(1) {
			return nil
		}
		return ErrLockTimeout
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := l.sem.Acquire(tctx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrLockTimeout
	}
	return nil
}

// TryAcquire takes the lock only if it is free.
func (l *TimedLock) TryAcquire() bool {
	return l.sem.TryAcquire(1)
}

// Release unlocks. It panics if the lock is not held.
func (l *TimedLock) Release() {
	l.sem.Release(1)
}

// Locked reports whether the lock is currently held.
func (l *TimedLock) Locked() bool {
	if l.sem.TryAcquire(1) {
		l.sem.Release(1)
		return false
	}
	return true
}
