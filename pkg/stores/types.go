package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openlift/openlift/pkg/environment"
)

// SchemaVersion is the current on-disk record version. Loading a record
// with a different version fails rather than silently defaulting fields.
const SchemaVersion = 1

// ErrNotFound is returned by Load and Delete when no record exists for
// the requested environment name. It is distinct from I/O errors so
// callers can treat absence as a normal outcome.
var ErrNotFound = errors.New("environment not found")

// CorruptRecordError reports a stored record that cannot be trusted:
// unreadable JSON, a missing or unknown phase discriminator, or an
// unsupported schema version.
type CorruptRecordError struct {
	// Name is the environment whose record is corrupt.
	Name string

	// Path is the file that holds the record.
	Path string

	// Err is the underlying decode or validation failure.
	Err error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt record for environment %q at %s: %v", e.Name, e.Path, e.Err)
}

func (e *CorruptRecordError) Unwrap() error {
	return e.Err
}

// Store is the repository for environment records: one durable record per
// environment name, addressed by name.
type Store interface {
	// Save durably persists env, replacing any existing record for the
	// same name. Save is atomic: a concurrent reader observes either the
	// previous record or the new one, never a partial write.
	Save(ctx context.Context, env environment.Environment) error

	// Load reads the record for name. It returns ErrNotFound when no
	// record exists and *CorruptRecordError when the stored
	// representation cannot be reconstructed exactly.
	Load(ctx context.Context, name environment.Name) (environment.Environment, error)

	// Delete removes the record for name. Deleting a non-existent record
	// returns ErrNotFound.
	Delete(ctx context.Context, name environment.Name) error

	// Exists reports whether a record exists for name.
	Exists(ctx context.Context, name environment.Name) (bool, error)

	// List returns the names of all stored environments.
	List(ctx context.Context) ([]environment.Name, error)
}

// TransitionEvent is one recorded phase change, kept for diagnosis and
// the status history view.
type TransitionEvent struct {
	ID          string            `json:"id"`
	Environment string            `json:"environment"`
	Operation   string            `json:"operation"`
	FromPhase   string            `json:"from_phase"`
	ToPhase     string            `json:"to_phase"`
	Cause       string            `json:"cause,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Details     map[string]string `json:"details,omitempty"`
}

// AuditEntry records who invoked which lifecycle command.
type AuditEntry struct {
	ID          int64     `json:"id"`
	Environment string    `json:"environment"`
	Action      string    `json:"action"`
	Actor       string    `json:"actor"`
	Outcome     string    `json:"outcome"`
	Timestamp   time.Time `json:"timestamp"`
}

// Journal is the append-only history store. Journal writes are
// best-effort from the command handlers' point of view: a journal failure
// is logged, never fatal to the command.
type Journal interface {
	// Init opens the underlying database and applies pending migrations.
	Init(ctx context.Context) error

	// Close releases the database handle.
	Close() error

	// AppendTransition records one phase change.
	AppendTransition(ctx context.Context, ev *TransitionEvent) error

	// ListTransitions returns the recorded phase changes for an
	// environment, newest first.
	ListTransitions(ctx context.Context, env string, limit int) ([]*TransitionEvent, error)

	// AppendAudit records one command invocation.
	AppendAudit(ctx context.Context, entry *AuditEntry) error

	// ListAudit returns recorded invocations for an environment, newest
	// first.
	ListAudit(ctx context.Context, env string, limit int) ([]*AuditEntry, error)

	// HealthCheck verifies the database is reachable.
	HealthCheck(ctx context.Context) error
}
