package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteJournal implements Journal using SQLite with WAL mode.
type SQLiteJournal struct {
	db   *sql.DB
	path string
}

// JournalConfig holds SQLite journal configuration.
type JournalConfig struct {
	// Path is the database file path, or ":memory:" for tests.
	Path string

	// MaxOpenConns bounds the connection pool (default 10).
	MaxOpenConns int

	// ConnMaxLifetime recycles pooled connections (default 5m).
	ConnMaxLifetime time.Duration
}

// NewSQLiteJournal creates an unopened journal; call Init before use.
func NewSQLiteJournal(cfg JournalConfig) (*SQLiteJournal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal database path is required")
	}
	return &SQLiteJournal{path: cfg.Path}, nil
}

// Init opens the database, enables WAL mode, and applies migrations.
func (j *SQLiteJournal) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", j.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open journal database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping journal database: %w", err)
	}
	j.db = db

	if err := j.migrate(); err != nil {
		_ = db.Close()
		j.db = nil
		return err
	}
	return nil
}

// migrate applies the embedded schema migrations.
func (j *SQLiteJournal) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(j.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run journal migrations: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (j *SQLiteJournal) Close() error {
	if j != nil && j.db != nil {
		return j.db.Close()
	}
	return nil
}

// AppendTransition records one phase change.
func (j *SQLiteJournal) AppendTransition(ctx context.Context, ev *TransitionEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	var details *string
	if len(ev.Details) > 0 {
		raw, err := json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("failed to encode transition details: %w", err)
		}
		s := string(raw)
		details = &s
	}

	query := `
		INSERT INTO transitions (id, environment, operation, from_phase, to_phase, cause, details, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := j.db.ExecContext(ctx, query,
		ev.ID, ev.Environment, ev.Operation, ev.FromPhase, ev.ToPhase,
		nullable(ev.Cause), details, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to append transition: %w", err)
	}
	return nil
}

// ListTransitions returns the recorded phase changes for env, newest first.
func (j *SQLiteJournal) ListTransitions(ctx context.Context, env string, limit int) ([]*TransitionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, environment, operation, from_phase, to_phase, cause, details, occurred_at
		FROM transitions
		WHERE environment = ?
		ORDER BY occurred_at DESC
		LIMIT ?
	`
	rows, err := j.db.QueryContext(ctx, query, env, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	var out []*TransitionEvent
	for rows.Next() {
		var (
			ev      TransitionEvent
			cause   sql.NullString
			details sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.Environment, &ev.Operation,
			&ev.FromPhase, &ev.ToPhase, &cause, &details, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		ev.Cause = cause.String
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &ev.Details); err != nil {
				return nil, fmt.Errorf("failed to decode transition details: %w", err)
			}
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// AppendAudit records one command invocation.
func (j *SQLiteJournal) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	query := `
		INSERT INTO audit (environment, action, actor, outcome, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`
	res, err := j.db.ExecContext(ctx, query,
		entry.Environment, entry.Action, entry.Actor, entry.Outcome, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// ListAudit returns recorded invocations for env, newest first.
func (j *SQLiteJournal) ListAudit(ctx context.Context, env string, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, environment, action, actor, outcome, timestamp
		FROM audit
		WHERE environment = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`
	rows, err := j.db.QueryContext(ctx, query, env, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		var entry AuditEntry
		if err := rows.Scan(&entry.ID, &entry.Environment, &entry.Action,
			&entry.Actor, &entry.Outcome, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}

// HealthCheck verifies the database is reachable.
func (j *SQLiteJournal) HealthCheck(ctx context.Context) error {
	if j.db == nil {
		return fmt.Errorf("journal database not initialized")
	}
	return j.db.PingContext(ctx)
}

// nullable maps "" to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
