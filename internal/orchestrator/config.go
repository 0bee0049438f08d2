package orchestrator

import (
	"time"

	"github.com/joescharf/deskpilot/internal/intent"
)

// MaxFastPathAttempts caps the accessibility attempts made per command.
const MaxFastPathAttempts = 2

// Config holds the orchestrator's policy knobs.
type Config struct {
	Intent intent.Config

	// ExecutionLockTimeout bounds the wait for the execution lock before a
	// command is answered with "system busy".
	ExecutionLockTimeout time.Duration
	// StateLockTimeout bounds the wait for the deferred-action lock.
	StateLockTimeout time.Duration
	// DeferredTimeout is how long a generated payload waits for a click.
	DeferredTimeout time.Duration
	// TriggerLockTimeout bounds the execution lock wait when a click arrives.
	TriggerLockTimeout time.Duration
	// AnnounceInterruptions speaks a short notice when a new command
	// cancels a pending deferred action.
	AnnounceInterruptions bool

	FastPathEnabled     bool
	MaxFastPathAttempts int

	MaxHistoryEntries   int
	MaxRecoveryAttempts int
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		Intent:                intent.DefaultConfig(),
		ExecutionLockTimeout:  30 * time.Second,
		StateLockTimeout:      5 * time.Second,
		DeferredTimeout:       5 * time.Minute,
		TriggerLockTimeout:    10 * time.Second,
		AnnounceInterruptions: true,
		FastPathEnabled:       true,
		MaxFastPathAttempts:   MaxFastPathAttempts,
		MaxHistoryEntries:     100,
		MaxRecoveryAttempts:   3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Intent.ConfidenceThreshold <= 0 {
		c.Intent.ConfidenceThreshold = d.Intent.ConfidenceThreshold
	}
	if c.Intent.LockTimeout <= 0 {
		c.Intent.LockTimeout = d.Intent.LockTimeout
	}
	if c.ExecutionLockTimeout <= 0 {
		c.ExecutionLockTimeout = d.ExecutionLockTimeout
	}
	if c.StateLockTimeout <= 0 {
		c.StateLockTimeout = d.StateLockTimeout
	}
	if c.DeferredTimeout <= 0 {
		c.DeferredTimeout = d.DeferredTimeout
	}
	if c.TriggerLockTimeout <= 0 {
		c.TriggerLockTimeout = d.TriggerLockTimeout
	}
	if c.MaxFastPathAttempts <= 0 || c.MaxFastPathAttempts > MaxFastPathAttempts {
		c.MaxFastPathAttempts = MaxFastPathAttempts
	}
	if c.MaxHistoryEntries <= 0 {
		c.MaxHistoryEntries = d.MaxHistoryEntries
	}
	if c.MaxRecoveryAttempts <= 0 {
		c.MaxRecoveryAttempts = d.MaxRecoveryAttempts
	}
	return c
}
