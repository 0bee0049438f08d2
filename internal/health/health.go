// Package health tracks collaborator availability, computes an overall health
// score, and runs bounded recovery attempts.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/deskpilot/internal/models"
	"github.com/joescharf/deskpilot/internal/state"
)

// Overall is the coarse health bucket.
type Overall string

const (
	Healthy   Overall = "healthy"
	Degraded  Overall = "degraded"
	Unhealthy Overall = "unhealthy"
	Critical  Overall = "critical"
)

// Error statistic categories.
const (
	StatClassificationFallback = "classification_fallbacks"
	StatFastPathFailure        = "fast_path_failures"
	StatVisionFailure          = "vision_failures"
	StatDeferredFailure        = "deferred_failures"
	StatLockTimeout            = "lock_timeouts"
	StatRejected               = "rejected_commands"
	StatModuleError            = "module_errors"
)

// RecoverFunc re-instantiates a module. A nil error marks it available.
type RecoverFunc func(ctx context.Context) error

// ModuleHealth is the per-module part of a Report.
type ModuleHealth struct {
	Available        bool `json:"available"`
	RecoveryAttempts int  `json:"recovery_attempts"`
	GivenUp          bool `json:"given_up"`
}

// Report is the result of SystemHealth.
type Report struct {
	OverallHealth   Overall                 `json:"overall_health"`
	HealthScore     int                     `json:"health_score"`
	ModuleHealth    map[string]ModuleHealth `json:"module_health"`
	ErrorStatistics map[string]int          `json:"error_statistics"`
}

// RecoveryReport summarizes one recovery pass.
type RecoveryReport struct {
	Attempted []string          `json:"attempted,omitempty"`
	Recovered []string          `json:"recovered,omitempty"`
	Failed    map[string]string `json:"failed,omitempty"`
	GivenUp   []string          `json:"given_up,omitempty"`
}

// Monitor owns recovery bookkeeping. Availability itself lives in the state
// manager so that diagnostics see one source of truth.
type Monitor struct {
	state       *state.Manager
	modules     []string
	maxAttempts int
	logger      *zap.Logger

	mu        sync.Mutex
	factories map[string]RecoverFunc
	attempts  map[string]int
	stats     map[string]int
}

// NewMonitor creates a Monitor tracking modules.
func NewMonitor(st *state.Manager, modules []string, maxAttempts int, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Monitor{
		state:       st,
		modules:     append([]string(nil), modules...),
		maxAttempts: maxAttempts,
		logger:      logger,
		factories:   make(map[string]RecoverFunc),
		attempts:    make(map[string]int),
		stats:       make(map[string]int),
	}
}

// Register sets the recovery function for a module.
func (m *Monitor) Register(module string, fn RecoverFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[module] = fn
}

// SetAvailable records a module's availability.
func (m *Monitor) SetAvailable(module string, ok bool) {
	m.state.SetAvailable(module, ok)
}

// RecordError increments an error statistic.
func (m *Monitor) RecordError(category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[category]++
}

// Score computes the health score (0-100) from module availability.
func (m *Monitor) Score() int {
	if len(m.modules) == 0 {
		return 100
	}
	avail := m.state.Availability()
	up := 0
	for _, name := range m.modules {
		if avail[name] {
			up++
		}
	}
	return up * 100 / len(m.modules)
}

// Bucket maps a score to its overall health.
func Bucket(score int) Overall {
	switch {
	case score >= 80:
		return Healthy
	case score >= 50:
		return Degraded
	case score >= 30:
		return Unhealthy
	default:
		return Critical
	}
}

// Overall returns the current health bucket.
func (m *Monitor) Overall() Overall {
	return Bucket(m.Score())
}

// Report builds a full health report.
func (m *Monitor) Report() Report {
	score := m.Score()
	avail := m.state.Availability()

	m.mu.Lock()
	defer m.mu.Unlock()

	modules := make(map[string]ModuleHealth, len(m.modules))
	for _, name := range m.modules {
		modules[name] = ModuleHealth{
			Available:        avail[name],
			RecoveryAttempts: m.attempts[name],
			GivenUp:          !avail[name] && m.attempts[name] >= m.maxAttempts,
		}
	}
	stats := make(map[string]int, len(m.stats))
	for k, v := range m.stats {
		stats[k] = v
	}

	return Report{
		OverallHealth:   Bucket(score),
		HealthScore:     score,
		ModuleHealth:    modules,
		ErrorStatistics: stats,
	}
}

// Recover re-instantiates the named module, or every unavailable module when
// module is empty. Each module gets at most maxAttempts tries over the
// process lifetime; a success resets its counter.
func (m *Monitor) Recover(ctx context.Context, module string) RecoveryReport {
	targets := m.modules
	if module != "" {
		targets = []string{module}
	}

	var (
		g      errgroup.Group
		mu     sync.Mutex
		report = RecoveryReport{Failed: make(map[string]string)}
	)

	for _, name := range targets {
		if m.state.Available(name) {
			continue
		}

		m.mu.Lock()
		fn := m.factories[name]
		exhausted := m.attempts[name] >= m.maxAttempts
		if fn != nil && !exhausted {
			m.attempts[name]++
		}
		m.mu.Unlock()

		switch {
		case exhausted:
			report.GivenUp = append(report.GivenUp, name)
			continue
		case fn == nil:
			mu.Lock()
			report.Failed[name] = "no recovery factory registered"
			mu.Unlock()
			continue
		}

		report.Attempted = append(report.Attempted, name)
		g.Go(func() error {
			err := fn(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[name] = err.Error()
				m.logger.Warn("module recovery failed", zap.String("module", name), zap.Error(err))
				return nil
			}
			report.Recovered = append(report.Recovered, name)
			m.state.SetAvailable(name, true)
			m.mu.Lock()
			m.attempts[name] = 0
			m.mu.Unlock()
			m.logger.Info("module recovered", zap.String("module", name))
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Recovered)
	sort.Strings(report.GivenUp)
	sort.Strings(report.Attempted)
	if len(report.Failed) == 0 {
		report.Failed = nil
	}

	if len(report.Attempted) > 0 {
		m.state.RecordTransition(models.TransitionRecovery, "", map[string]any{
			"attempted": report.Attempted,
			"recovered": report.Recovered,
		})
	}
	return report
}

// String renders a one-line summary.
func (r Report) String() string {
	return fmt.Sprintf("%s (%d/100)", r.OverallHealth, r.HealthScore)
}
