package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/deskpilot/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultListLimit = 50

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The journal writer and the CLI may share the file; one connection
	// serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a row ID. The monotonic source is not safe for
// concurrent use on its own.
func (s *SQLiteStore) newULID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Executions ---

// RecordExecution stores a finished execution. Recording the same execution
// again replaces the earlier row.
func (s *SQLiteStore) RecordExecution(ctx context.Context, sum models.ExecutionSummary) error {
	if sum.ExecutionID == "" {
		return fmt.Errorf("record execution: missing execution id")
	}
	errs := sum.Errors
	if errs == nil {
		errs = []string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("encode execution errors: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, execution_id, command, mode, status, success, path_used, duration_ms, errors, started_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id) DO UPDATE SET
			command = excluded.command, mode = excluded.mode, status = excluded.status,
			success = excluded.success, path_used = excluded.path_used, duration_ms = excluded.duration_ms,
			errors = excluded.errors, recorded_at = excluded.recorded_at`,
		s.newULID(), sum.ExecutionID, sum.Command, string(sum.Mode), string(sum.Status),
		boolToInt(sum.Success), sum.PathUsed, sum.Duration.Milliseconds(), string(errJSON),
		sum.StartedAt.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

const executionColumns = `execution_id, command, mode, status, success, path_used, duration_ms, errors, started_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*models.ExecutionSummary, error) {
	var (
		e          models.ExecutionSummary
		success    int
		durationMS int64
		errJSON    string
	)
	if err := row.Scan(&e.ExecutionID, &e.Command, &e.Mode, &e.Status, &success,
		&e.PathUsed, &durationMS, &errJSON, &e.StartedAt); err != nil {
		return nil, err
	}
	e.Success = success != 0
	e.Duration = time.Duration(durationMS) * time.Millisecond
	_ = json.Unmarshal([]byte(errJSON), &e.Errors)
	if len(e.Errors) == 0 {
		e.Errors = nil
	}
	return &e, nil
}

func (s *SQLiteStore) GetExecution(ctx context.Context, executionID string) (*models.ExecutionSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE execution_id = ?`, executionID)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("execution not found: %s", executionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return e, nil
}

// ListExecutions returns executions newest first.
func (s *SQLiteStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*models.ExecutionSummary, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Mode != "" {
		where = append(where, "mode = ?")
		args = append(args, string(filter.Mode))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT ` + executionColumns + ` FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.ExecutionSummary
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Transitions ---

func (s *SQLiteStore) RecordTransition(ctx context.Context, rec models.TransitionRecord) error {
	ctxJSON := []byte("{}")
	if len(rec.Context) > 0 {
		data, err := json.Marshal(rec.Context)
		if err != nil {
			return fmt.Errorf("encode transition context: %w", err)
		}
		ctxJSON = data
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (id, execution_id, transition_type, context, occurred_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.newULID(), rec.ExecutionID, rec.TransitionType, string(ctxJSON), ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// ListTransitions returns transitions oldest first. An empty executionID
// lists the most recent transitions of all executions.
func (s *SQLiteStore) ListTransitions(ctx context.Context, executionID string, limit int) ([]*models.TransitionRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var (
		rows *sql.Rows
		err  error
	)
	if executionID != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT execution_id, transition_type, context, occurred_at FROM (
				SELECT * FROM transitions WHERE execution_id = ? ORDER BY id DESC LIMIT ?
			) ORDER BY id`, executionID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT execution_id, transition_type, context, occurred_at FROM (
				SELECT * FROM transitions ORDER BY id DESC LIMIT ?
			) ORDER BY id`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.TransitionRecord
	for rows.Next() {
		var (
			r       models.TransitionRecord
			ctxJSON string
		)
		if err := rows.Scan(&r.ExecutionID, &r.TransitionType, &ctxJSON, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		_ = json.Unmarshal([]byte(ctxJSON), &r.Context)
		if len(r.Context) == 0 {
			r.Context = nil
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// --- Maintenance ---

// Prune deletes executions and transitions older than before.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM executions WHERE started_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune executions: %w", err)
	}
	n, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM transitions WHERE occurred_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune transitions: %w", err)
	}
	m, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return n + m, nil
}
