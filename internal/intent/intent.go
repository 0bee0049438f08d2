// Package intent classifies command text into one of the orchestrator's
// interaction modes.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/deskpilot/internal/models"
	"github.com/joescharf/deskpilot/internal/reply"
	"github.com/joescharf/deskpilot/internal/state"
)

// FallbackConfidence is reported whenever classification falls back.
const FallbackConfidence = 0.5

// Reasoner is the subset of the reasoning collaborator needed for classification.
type Reasoner interface {
	ClassifyIntent(ctx context.Context, text string) (json.RawMessage, error)
}

// Config holds classification policy knobs.
type Config struct {
	ConfidenceThreshold float64
	LockTimeout         time.Duration
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.7,
		LockTimeout:         5 * time.Second,
	}
}

// Classifier maps command text to an IntentResult. It never fails: every
// problem resolves to a gui_interaction fallback.
type Classifier struct {
	cfg    Config
	lock   *state.TimedLock
	logger *zap.Logger

	mu       sync.RWMutex
	reasoner Reasoner
}

// New creates a Classifier. r may be nil, in which case every command falls back.
func New(r Reasoner, cfg Config, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		cfg:      cfg,
		lock:     state.NewTimedLock("intent"),
		logger:   logger,
		reasoner: r,
	}
}

// SetReasoner swaps the reasoning backend, e.g. after module recovery.
func (c *Classifier) SetReasoner(r Reasoner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reasoner = r
}

// Lock exposes the intent lock for diagnostics.
func (c *Classifier) Lock() *state.TimedLock { return c.lock }

// Classify returns the intent for command.
func (c *Classifier) Classify(ctx context.Context, command string) *models.IntentResult {
	c.mu.RLock()
	r := c.reasoner
	c.mu.RUnlock()

	if r == nil {
		return c.fallback(command, "reasoning module unavailable")
	}

	if err := c.lock.Acquire(ctx, c.cfg.LockTimeout); err != nil {
		return c.fallback(command, fmt.Sprintf("intent lock: %v", err))
	}
	raw, err := r.ClassifyIntent(ctx, command)
	c.lock.Release()
	if err != nil {
		return c.fallback(command, fmt.Sprintf("classification call failed: %v", err))
	}

	parsed, err := parseReply(raw)
	if err != nil {
		return c.fallback(command, fmt.Sprintf("invalid classification reply: %v", err))
	}
	if parsed.confidence < c.cfg.ConfidenceThreshold {
		return c.fallback(command, fmt.Sprintf("confidence %.2f below threshold %.2f", parsed.confidence, c.cfg.ConfidenceThreshold))
	}

	params := parsed.parameters
	if params == nil {
		params = make(map[string]any)
	}
	res := &models.IntentResult{
		Intent:     parsed.intent,
		Confidence: parsed.confidence,
		Parameters: params,
	}
	c.logger.Debug("intent classified",
		zap.String("intent", string(res.Intent)),
		zap.Float64("confidence", res.Confidence))
	return res
}

func (c *Classifier) fallback(command, reason string) *models.IntentResult {
	c.logger.Info("intent classification fell back",
		zap.String("command", command),
		zap.String("reason", reason))
	return &models.IntentResult{
		Intent:     models.IntentGUIInteraction,
		Confidence: FallbackConfidence,
		Parameters: map[string]any{"reason": reason},
		IsFallback: true,
	}
}

type parsedReply struct {
	intent     models.Intent
	confidence float64
	parameters map[string]any
}

type wireReply struct {
	Intent     string         `json:"intent"`
	Confidence *float64       `json:"confidence"`
	Parameters map[string]any `json:"parameters"`
}

var errMissingIntent = errors.New("reply has no intent field")

// parseReply accepts either a bare classification object or any reply
// envelope whose text is a classification object.
func parseReply(raw json.RawMessage) (*parsedReply, error) {
	var w wireReply
	if err := json.Unmarshal(raw, &w); err != nil || w.Intent == "" {
		text, terr := reply.Text(raw)
		if terr != nil {
			if err != nil {
				return nil, err
			}
			return nil, errMissingIntent
		}
		w = wireReply{}
		if err := json.Unmarshal([]byte(reply.StripFences(text)), &w); err != nil {
			return nil, err
		}
		if w.Intent == "" {
			return nil, errMissingIntent
		}
	}

	in := models.Intent(strings.ToLower(strings.TrimSpace(w.Intent)))
	if !in.Valid() {
		return nil, fmt.Errorf("unknown intent %q", w.Intent)
	}
	if w.Confidence == nil {
		return nil, errors.New("reply has no confidence field")
	}
	conf := *w.Confidence
	if conf < 0 || conf > 1 {
		return nil, fmt.Errorf("confidence %v out of range", conf)
	}
	return &parsedReply{intent: in, confidence: conf, parameters: w.Parameters}, nil
}
