// Package audit records every query and search decision in a local sqlite
// database so the caller can always establish which query actually ran,
// including validator rewrites. The log is optional: a nil *Log is a no-op.
package audit

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx" // helper library
	_ "modernc.org/sqlite"    // pure go sqlite driver
)

//go:embed schema.sql
var schemaSQL string

// Entry is one audit record.
type Entry struct {
	ID            int64         `db:"id"`
	CreatedAt     time.Time     `db:"created_at"`
	Tool          string        `db:"tool"`
	Input         string        `db:"input"`
	Decision      string        `db:"decision"`
	Reason        string        `db:"reason"`
	ExecutedQuery string        `db:"executed_query"`
	RowCount      int           `db:"row_count"`
	DurationMS    int64         `db:"duration_ms"`
	Duration      time.Duration `db:"-"`
}

// Log is an append-only audit log backed by sqlite.
type Log struct {
	db  *sqlx.DB
	log *slog.Logger
	now func() time.Time
}

// Open opens (creating if necessary) the audit database at path. An empty
// path disables auditing by returning a nil *Log, on which all methods are
// no-ops.
func Open(path string, logger *slog.Logger) (*Log, error) {
	if path == "" {
		return nil, nil
	}

	dataSource := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sqlx.Connect("sqlite", dataSource)
	if err != nil {
		return nil, fmt.Errorf("could not open audit database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not initialise audit schema: %w", err)
	}
	return &Log{db: db, log: logger, now: time.Now}, nil
}

// Record appends an entry. Failures are reported but callers typically log
// and continue: an audit failure must not block a query result.
func (l *Log) Record(ctx context.Context, e Entry) error {
	if l == nil {
		return nil
	}
	e.CreatedAt = l.now().UTC()
	e.DurationMS = e.Duration.Milliseconds()

	const stmt = `
		INSERT INTO query_audit
			(created_at, tool, input, decision, reason, executed_query, row_count, duration_ms)
		VALUES
			(:created_at, :tool, :input, :decision, :reason, :executed_query, :row_count, :duration_ms)`
	if _, err := l.db.NamedExecContext(ctx, stmt, e); err != nil {
		return fmt.Errorf("could not record audit entry: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (l *Log) Recent(ctx context.Context, n int) ([]Entry, error) {
	if l == nil {
		return nil, nil
	}
	var entries []Entry
	const stmt = `
		SELECT id, created_at, tool, input, decision, reason, executed_query, row_count, duration_ms
		FROM query_audit ORDER BY id DESC LIMIT ?`
	if err := l.db.SelectContext(ctx, &entries, stmt, n); err != nil {
		return nil, fmt.Errorf("could not read audit entries: %w", err)
	}
	for i := range entries {
		entries[i].Duration = time.Duration(entries[i].DurationMS) * time.Millisecond
	}
	return entries, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}
