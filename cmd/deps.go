package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/deskpilot/internal/desktop"
	"github.com/joescharf/deskpilot/internal/instance"
	"github.com/joescharf/deskpilot/internal/intent"
	"github.com/joescharf/deskpilot/internal/orchestrator"
)

// engineConfig maps viper keys onto the orchestrator configuration.
func engineConfig() orchestrator.Config {
	return orchestrator.Config{
		Intent: intent.Config{
			ConfidenceThreshold: viper.GetFloat64("intent.confidence_threshold"),
			LockTimeout:         viper.GetDuration("intent.lock_timeout"),
		},
		ExecutionLockTimeout:  viper.GetDuration("execution.lock_timeout"),
		StateLockTimeout:      viper.GetDuration("state.lock_timeout"),
		DeferredTimeout:       viper.GetDuration("deferred.timeout"),
		TriggerLockTimeout:    viper.GetDuration("deferred.trigger_lock_timeout"),
		AnnounceInterruptions: viper.GetBool("deferred.announce_interrupt"),
		FastPathEnabled:       viper.GetBool("fast_path.enabled"),
		MaxFastPathAttempts:   viper.GetInt("fast_path.max_attempts"),
		MaxHistoryEntries:     viper.GetInt("state.max_history_entries"),
		MaxRecoveryAttempts:   viper.GetInt("recovery.max_attempts"),
	}
}

// engineFactories builds each collaborator from config. They double as
// recovery factories, so a module that was missing at startup (xdotool not
// yet installed, API key exported later) can come back without a restart.
func engineFactories() orchestrator.Factories {
	return orchestrator.Factories{
		Reasoner: func(context.Context) (orchestrator.Reasoner, error) {
			c := newLLMClient()
			if c == nil {
				return nil, fmt.Errorf("%w: no Anthropic API key configured", desktop.ErrUnavailable)
			}
			return c, nil
		},
		Vision: func(context.Context) (desktop.Vision, error) {
			d, err := newScreenDescriber(newLLMClient())
			if err != nil {
				return nil, err
			}
			return d, nil
		},
		Automation: func(context.Context) (desktop.Automation, error) {
			a, err := desktop.NewExecAutomation(viper.GetString("automation.tool"))
			if err != nil {
				return nil, err
			}
			return a, nil
		},
		Accessibility: func(context.Context) (desktop.Accessibility, error) {
			a, err := desktop.NewExecAccessibility(viper.GetString("accessibility.query_cmd"), viper.GetString("automation.tool"))
			if err != nil {
				return nil, err
			}
			return a, nil
		},
		Feedback: func(context.Context) (desktop.Feedback, error) {
			fb, err := desktop.NewSpeechFeedback(viper.GetString("feedback.tts"))
			if err != nil {
				return nil, err
			}
			return fb, nil
		},
		Listener: func(context.Context) (desktop.MouseListener, error) {
			return desktop.NewChannelListener(), nil
		},
	}
}

// initialCollaborators runs every factory once. Failures leave the module
// nil so that health reports it unavailable.
func initialCollaborators(ctx context.Context, f orchestrator.Factories) orchestrator.Collaborators {
	var c orchestrator.Collaborators
	if r, err := f.Reasoner(ctx); err == nil {
		c.Reasoner = r
	} else {
		logger.Info("reasoning unavailable", zap.Error(err))
	}
	if v, err := f.Vision(ctx); err == nil {
		c.Vision = v
	} else {
		logger.Info("vision unavailable", zap.Error(err))
	}
	if a, err := f.Automation(ctx); err == nil {
		c.Automation = a
	} else {
		logger.Info("automation unavailable", zap.Error(err))
	}
	if ax, err := f.Accessibility(ctx); err == nil {
		c.Accessibility = ax
	} else {
		logger.Info("accessibility unavailable", zap.Error(err))
	}
	if fb, err := f.Feedback(ctx); err == nil {
		c.Feedback = fb
	} else {
		logger.Info("audio unavailable", zap.Error(err))
	}
	if l, err := f.Listener(ctx); err == nil {
		c.Listener = l
	}
	return c
}

// newEngine wires the orchestrator with config-built collaborators and, when
// enabled, the SQLite execution journal. Callers must Close the result.
func newEngine(ctx context.Context) *orchestrator.Orchestrator {
	f := engineFactories()
	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger.Named("orchestrator")),
		orchestrator.WithFactories(f),
	}
	if viper.GetBool("journal.enabled") {
		s, err := getStore()
		if err != nil {
			ui.Warning("Execution journal disabled: %v", err)
		} else {
			opts = append(opts, orchestrator.WithJournal(s))
		}
	}
	return orchestrator.New(engineConfig(), initialCollaborators(ctx, f), opts...)
}

// acquireInstance takes the single-instance lock for commands that drive the
// desktop. The returned func releases it.
func acquireInstance() (func(), error) {
	l := instance.New(viper.GetString("instance.pid_file"))
	if err := l.Acquire(); err != nil {
		return nil, err
	}
	return func() {
		if err := l.Release(); err != nil {
			logger.Warn("release instance lock", zap.Error(err))
		}
	}, nil
}
