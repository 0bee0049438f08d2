package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/deskpilot/internal/models"
)

// Journal persists finished executions and state transitions. Writes are
// best-effort; in-memory state stays authoritative.
type Journal interface {
	RecordExecution(ctx context.Context, sum models.ExecutionSummary) error
	RecordTransition(ctx context.Context, rec models.TransitionRecord) error
}

const (
	journalBuffer       = 256
	journalWriteTimeout = 5 * time.Second
)

type journalEntry struct {
	execution  *models.ExecutionSummary
	transition *models.TransitionRecord
}

// journalWriter drains entries on one goroutine so callers never block on
// the database.
type journalWriter struct {
	sink   Journal
	logger *zap.Logger

	mu      sync.Mutex
	closed  bool
	entries chan journalEntry
	done    chan struct{}
}

func newJournalWriter(sink Journal, logger *zap.Logger) *journalWriter {
	w := &journalWriter{
		sink:    sink,
		logger:  logger,
		entries: make(chan journalEntry, journalBuffer),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *journalWriter) run() {
	defer close(w.done)
	for e := range w.entries {
		ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
		var err error
		switch {
		case e.execution != nil:
			err = w.sink.RecordExecution(ctx, *e.execution)
		case e.transition != nil:
			err = w.sink.RecordTransition(ctx, *e.transition)
		}
		cancel()
		if err != nil {
			w.logger.Warn("journal write failed", zap.Error(err))
		}
	}
}

func (w *journalWriter) enqueue(e journalEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.entries <- e:
	default:
		w.logger.Warn("journal buffer full, dropping entry")
	}
}

func (w *journalWriter) execution(sum models.ExecutionSummary) {
	w.enqueue(journalEntry{execution: &sum})
}

func (w *journalWriter) transition(rec models.TransitionRecord) {
	w.enqueue(journalEntry{transition: &rec})
}

// close stops accepting entries and waits for the queue to drain.
func (w *journalWriter) close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.entries)
	}
	w.mu.Unlock()
	<-w.done
}
