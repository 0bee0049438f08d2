// Package orchestrator turns natural-language commands into desktop actions,
// spoken replies, or deferred actions that wait for the user's next click.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/joescharf/deskpilot/internal/command"
	"github.com/joescharf/deskpilot/internal/desktop"
	"github.com/joescharf/deskpilot/internal/health"
	"github.com/joescharf/deskpilot/internal/intent"
	"github.com/joescharf/deskpilot/internal/models"
	"github.com/joescharf/deskpilot/internal/state"
)

// Reasoner is the reasoning collaborator.
type Reasoner interface {
	intent.Reasoner
	GenerateContent(ctx context.Context, prompt string) (json.RawMessage, error)
	Chat(ctx context.Context, prompt string) (json.RawMessage, error)
	GetActionPlan(ctx context.Context, command string, screen *desktop.ScreenDescription) (*desktop.Plan, error)
}

// Collaborators are the external modules the orchestrator drives. Any of
// them may be nil; the matching module is then reported unavailable.
type Collaborators struct {
	Reasoner      Reasoner
	Vision        desktop.Vision
	Automation    desktop.Automation
	Accessibility desktop.Accessibility
	Feedback      desktop.Feedback
	Listener      desktop.MouseListener
}

// Factories re-create collaborators during recovery.
type Factories struct {
	Reasoner      func(ctx context.Context) (Reasoner, error)
	Vision        func(ctx context.Context) (desktop.Vision, error)
	Automation    func(ctx context.Context) (desktop.Automation, error)
	Accessibility func(ctx context.Context) (desktop.Accessibility, error)
	Feedback      func(ctx context.Context) (desktop.Feedback, error)
	Listener      func(ctx context.Context) (desktop.MouseListener, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithFactories registers recovery factories.
func WithFactories(f Factories) Option {
	return func(o *Orchestrator) { o.factories = f }
}

// WithJournal persists executions and transitions through j.
func WithJournal(j Journal) Option {
	return func(o *Orchestrator) { o.journalSink = j }
}

// WithRecoveryStrategy sets the hook consulted after a failed fast-path attempt.
func WithRecoveryStrategy(fn RecoveryStrategy) Option {
	return func(o *Orchestrator) { o.recovery = fn }
}

// ErrSystemUnavailable is reported when health stays critical after recovery.
var ErrSystemUnavailable = errors.New("system unavailable")

// ErrSystemBusy is reported when the execution lock cannot be acquired in time.
var ErrSystemBusy = errors.New("system busy")

// Orchestrator is the command execution engine. It is safe for concurrent use.
type Orchestrator struct {
	cfg        Config
	logger     *zap.Logger
	state      *state.Manager
	monitor    *health.Monitor
	classifier *intent.Classifier
	factories  Factories
	recovery   RecoveryStrategy

	journalSink Journal
	journal     *journalWriter

	collabMu sync.RWMutex
	collab   Collaborators

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy

	wg sync.WaitGroup
}

// New creates an Orchestrator.
func New(cfg Config, collab Collaborators, opts ...Option) *Orchestrator {
	cfg = cfg.withDefaults()
	o := &Orchestrator{
		cfg:     cfg,
		logger:  zap.NewNop(),
		state:   state.NewManager(cfg.MaxHistoryEntries),
		collab:  collab,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.monitor = health.NewMonitor(o.state, desktop.Modules, cfg.MaxRecoveryAttempts, o.logger.Named("health"))
	o.classifier = intent.New(collab.Reasoner, cfg.Intent, o.logger.Named("intent"))

	if o.journalSink != nil {
		o.journal = newJournalWriter(o.journalSink, o.logger.Named("journal"))
		o.state.OnTransition(o.journal.transition)
	}

	o.refreshAvailability()
	o.registerFactories()
	return o
}

// refreshAvailability derives module availability from the current collaborators.
func (o *Orchestrator) refreshAvailability() {
	c := o.collaborators()
	o.monitor.SetAvailable(desktop.ModuleReasoning, c.Reasoner != nil)
	o.monitor.SetAvailable(desktop.ModuleVision, c.Vision != nil)
	o.monitor.SetAvailable(desktop.ModuleAutomation, c.Automation != nil)
	o.monitor.SetAvailable(desktop.ModuleAccessibility, c.Accessibility != nil && c.Accessibility.Ready())
	o.monitor.SetAvailable(desktop.ModuleAudio, c.Feedback != nil)
	o.monitor.SetAvailable(desktop.ModuleMouseListener, c.Listener != nil)
}

func (o *Orchestrator) registerFactories() {
	f := o.factories
	if f.Reasoner != nil {
		o.monitor.Register(desktop.ModuleReasoning, func(ctx context.Context) error {
			r, err := f.Reasoner(ctx)
			if err != nil {
				return err
			}
			o.setCollaborator(func(c *Collaborators) { c.Reasoner = r })
			o.classifier.SetReasoner(r)
			return nil
		})
	}
	if f.Vision != nil {
		o.monitor.Register(desktop.ModuleVision, func(ctx context.Context) error {
			v, err := f.Vision(ctx)
			if err != nil {
				return err
			}
			o.setCollaborator(func(c *Collaborators) { c.Vision = v })
			return nil
		})
	}
	if f.Automation != nil {
		o.monitor.Register(desktop.ModuleAutomation, func(ctx context.Context) error {
			a, err := f.Automation(ctx)
			if err != nil {
				return err
			}
			o.setCollaborator(func(c *Collaborators) { c.Automation = a })
			return nil
		})
	}
	if f.Accessibility != nil {
		o.monitor.Register(desktop.ModuleAccessibility, func(ctx context.Context) error {
			a, err := f.Accessibility(ctx)
			if err != nil {
				return err
			}
			if a == nil || !a.Ready() {
				return fmt.Errorf("accessibility backend not ready")
			}
			o.setCollaborator(func(c *Collaborators) { c.Accessibility = a })
			return nil
		})
	}
	if f.Feedback != nil {
		o.monitor.Register(desktop.ModuleAudio, func(ctx context.Context) error {
			fb, err := f.Feedback(ctx)
			if err != nil {
				return err
			}
			o.setCollaborator(func(c *Collaborators) { c.Feedback = fb })
			return nil
		})
	}
	if f.Listener != nil {
		o.monitor.Register(desktop.ModuleMouseListener, func(ctx context.Context) error {
			l, err := f.Listener(ctx)
			if err != nil {
				return err
			}
			o.setCollaborator(func(c *Collaborators) { c.Listener = l })
			return nil
		})
	}
}

func (o *Orchestrator) collaborators() Collaborators {
	o.collabMu.RLock()
	defer o.collabMu.RUnlock()
	return o.collab
}

func (o *Orchestrator) setCollaborator(fn func(c *Collaborators)) {
	o.collabMu.Lock()
	defer o.collabMu.Unlock()
	fn(&o.collab)
}

func (o *Orchestrator) newExecutionID() string {
	o.idMu.Lock()
	defer o.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), o.entropy).String()
}

// ExecuteCommand runs one command end to end. It never returns nil and never
// panics; every failure is reported through the result.
func (o *Orchestrator) ExecuteCommand(ctx context.Context, text string) *models.Result {
	ec := models.NewExecutionContext(o.newExecutionID(), text)
	log := o.logger.With(zap.String("execution_id", ec.ExecutionID))

	ec.Status = models.ExecutionStatusValidating
	vr, err := command.Validate(text)
	ec.ValidationResult = vr
	if err != nil {
		ec.AddError("invalid command", err)
		log.Info("command rejected", zap.Error(err))
		return o.finish(ec, o.failure(ec, err.Error()))
	}
	ec.Command = vr.Normalized
	ec.CompleteStep(models.StepValidation)

	if err := o.healthGate(ctx); err != nil {
		o.monitor.RecordError(health.StatRejected)
		ec.AddError("health check", err)
		o.speak(ctx, "The system is unavailable right now.")
		res := o.result(ec, models.ResultStatusRejected, false)
		res.Error = err.Error()
		log.Warn("command rejected", zap.Error(err))
		return o.finish(ec, res)
	}

	o.checkTimeoutConditions()

	ec.Status = models.ExecutionStatusProcessing
	ec.IntentResult = o.classifier.Classify(ctx, ec.Command)
	ec.CompleteStep(models.StepClassification)
	if ec.IntentResult.IsFallback {
		o.monitor.RecordError(health.StatClassificationFallback)
		ec.AddWarning("intent classification fell back: " + ec.IntentResult.StringParam("reason", "unknown"))
	}

	lock := o.state.ExecutionLock()
	if err := lock.Acquire(ctx, o.cfg.ExecutionLockTimeout); err != nil {
		o.monitor.RecordError(health.StatLockTimeout)
		ec.AddError("execution lock", err)
		o.speak(ctx, "System busy, please try again.")
		log.Warn("execution lock timeout", zap.Duration("timeout", o.cfg.ExecutionLockTimeout))
		ec.Status = models.ExecutionStatusTimeout
		return o.finish(ec, o.failure(ec, ErrSystemBusy.Error()))
	}
	res := func() *models.Result {
		defer lock.Release()
		return o.route(ctx, ec)
	}()
	return o.finish(ec, res)
}

// healthGate rejects commands when health is critical and one recovery pass
// does not improve it.
func (o *Orchestrator) healthGate(ctx context.Context) error {
	if o.monitor.Overall() != health.Critical {
		return nil
	}
	o.logger.Warn("system health critical, attempting recovery")
	o.monitor.Recover(ctx, "")
	if o.monitor.Overall() == health.Critical {
		return ErrSystemUnavailable
	}
	return nil
}

func (o *Orchestrator) result(ec *models.ExecutionContext, status models.ResultStatus, success bool) *models.Result {
	mode := models.IntentGUIInteraction
	if ec.IntentResult != nil {
		mode = ec.IntentResult.Intent
	}
	return &models.Result{
		ExecutionID: ec.ExecutionID,
		Status:      status,
		Success:     success,
		Mode:        mode,
		Metadata:    ec.Metadata,
	}
}

func (o *Orchestrator) failure(ec *models.ExecutionContext, msg string) *models.Result {
	res := o.result(ec, models.ResultStatusFailed, false)
	res.Error = msg
	return res
}

// finish fills the bookkeeping fields and records the execution.
func (o *Orchestrator) finish(ec *models.ExecutionContext, res *models.Result) *models.Result {
	res.ExecutionID = ec.ExecutionID
	res.Duration = ec.Elapsed().Seconds()
	res.Errors = ec.Errors
	res.Warnings = ec.Warnings
	res.StepsCompleted = ec.StepsCompleted
	if len(ec.Metadata) > 0 {
		res.Metadata = ec.Metadata
	} else {
		res.Metadata = nil
	}

	switch res.Status {
	case models.ResultStatusCompleted:
		ec.Status = models.ExecutionStatusCompleted
	case models.ResultStatusWaitingForUser:
		ec.Status = models.ExecutionStatusWaitingForUser
	default:
		if ec.Status != models.ExecutionStatusTimeout {
			ec.Status = models.ExecutionStatusFailed
		}
	}

	sum := models.ExecutionSummary{
		ExecutionID: ec.ExecutionID,
		Command:     ec.Command,
		Mode:        res.Mode,
		Status:      res.Status,
		Success:     res.Success,
		PathUsed:    res.PathUsed,
		Duration:    ec.Elapsed(),
		Errors:      ec.Errors,
		StartedAt:   ec.StartTime,
	}
	o.state.RecordExecution(sum)
	if o.journal != nil {
		o.journal.execution(sum)
	}

	o.logger.Info("command finished",
		zap.String("execution_id", ec.ExecutionID),
		zap.String("intent", string(res.Mode)),
		zap.String("status", string(res.Status)),
		zap.String("execution_status", string(ec.Status)),
		zap.String("path", res.PathUsed),
		zap.Float64("duration", res.Duration))
	return res
}

// speak delivers spoken feedback. Failures are logged, never surfaced.
func (o *Orchestrator) speak(ctx context.Context, text string) bool {
	fb := o.collaborators().Feedback
	if fb == nil {
		return false
	}
	if err := fb.Speak(ctx, text); err != nil {
		o.logger.Warn("speak failed", zap.Error(err))
		return false
	}
	return true
}

func (o *Orchestrator) play(ctx context.Context, cue string) {
	fb := o.collaborators().Feedback
	if fb == nil {
		return
	}
	if err := fb.Play(ctx, cue); err != nil {
		o.logger.Debug("cue failed", zap.String("cue", cue), zap.Error(err))
	}
}

// SystemHealth reports module availability, the health score and error counters.
func (o *Orchestrator) SystemHealth() health.Report {
	o.refreshAccessibility()
	return o.monitor.Report()
}

// refreshAccessibility picks up a backend that finished initializing late.
func (o *Orchestrator) refreshAccessibility() {
	acc := o.collaborators().Accessibility
	o.monitor.SetAvailable(desktop.ModuleAccessibility, acc != nil && acc.Ready())
}

// AttemptRecovery re-creates the named module, or every unavailable module
// when module is empty.
func (o *Orchestrator) AttemptRecovery(ctx context.Context, module string) health.RecoveryReport {
	return o.monitor.Recover(ctx, module)
}

// State returns a diagnostic snapshot.
func (o *Orchestrator) State() state.Snapshot {
	return o.state.Snapshot()
}

// ValidateState checks the state invariants.
func (o *Orchestrator) ValidateState() state.Validation {
	return o.state.Validate()
}

// RepairState restores the invariants if any are broken.
func (o *Orchestrator) RepairState() state.Validation {
	return o.state.Repair()
}

// RecentExecutions returns up to n of the newest execution summaries.
func (o *Orchestrator) RecentExecutions(n int) []models.ExecutionSummary {
	return o.state.RecentExecutions(n)
}

// Transitions returns the in-memory transition history.
func (o *Orchestrator) Transitions() []models.TransitionRecord {
	return o.state.Transitions()
}

// Classify validates and classifies text without executing it.
func (o *Orchestrator) Classify(ctx context.Context, text string) (*models.IntentResult, error) {
	vr, err := command.Validate(text)
	if err != nil {
		return nil, fmt.Errorf("classify command: %w", err)
	}
	return o.classifier.Classify(ctx, vr.Normalized), nil
}

// ErrNoClickReceiver is returned by ReportClick when the listener cannot
// accept externally reported clicks.
var ErrNoClickReceiver = errors.New("mouse listener does not accept click reports")

type clickReceiver interface {
	Post(p desktop.Point) error
}

// ReportClick forwards an externally observed click to the listener.
func (o *Orchestrator) ReportClick(p desktop.Point) error {
	l := o.collaborators().Listener
	if l == nil {
		return fmt.Errorf("report click: %w", desktop.ErrUnavailable)
	}
	recv, ok := l.(clickReceiver)
	if !ok {
		return ErrNoClickReceiver
	}
	return recv.Post(p)
}

// Close cancels any pending deferred action, waits for background
// goroutines, and flushes the journal.
func (o *Orchestrator) Close() error {
	ctx := context.Background()
	var id string
	err := o.state.WithDeferred(ctx, o.cfg.StateLockTimeout, func(s *state.SystemState) {
		if !s.Idle() || s.MouseListener != nil {
			id = s.CurrentExecutionID
			s.ResetDeferred()
		}
	})
	if id != "" {
		o.state.RecordTransition(models.TransitionReset, id, map[string]any{"reason": "shutdown"})
	}
	o.wg.Wait()
	if o.journal != nil {
		o.journal.close()
	}
	if err != nil {
		return fmt.Errorf("close orchestrator: %w", err)
	}
	return nil
}
