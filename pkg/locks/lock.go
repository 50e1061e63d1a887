package locks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openlift/openlift/pkg/environment"
)

const lockSuffix = ".lock"

// Defaults for lock acquisition.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
)

// Holder identifies the process currently holding a lock.
type Holder struct {
	// PID is the holder's process ID.
	PID int `json:"pid"`

	// Hostname is where the holder process runs.
	Hostname string `json:"hostname"`

	// Token uniquely identifies this acquisition, guarding release
	// against removing a lock re-acquired by someone else.
	Token string `json:"token"`

	// Operation is the lifecycle command the holder is executing.
	Operation string `json:"operation"`

	// AcquiredAt is when the lock was taken.
	AcquiredAt time.Time `json:"acquired_at"`
}

// HeldError reports an acquisition that timed out against a live holder.
type HeldError struct {
	// Name is the environment whose lock is held.
	Name environment.Name

	// Holder identifies the current holder.
	Holder Holder

	// Timeout is how long acquisition waited before giving up.
	Timeout time.Duration
}

func (e *HeldError) Error() string {
	return fmt.Sprintf(
		"environment %q is locked by pid %d on %s (operation %q, since %s); gave up after %s",
		e.Name, e.Holder.PID, e.Holder.Hostname, e.Holder.Operation,
		e.Holder.AcquiredAt.Format(time.RFC3339), e.Timeout)
}

// Locker acquires per-environment file locks under a directory. The
// directory is the same one holding the environment records, so lock and
// record share a filesystem and rename semantics.
type Locker struct {
	dir          string
	timeout      time.Duration
	pollInterval time.Duration
	liveness     ProcessLiveness
}

// Option configures a Locker.
type Option func(*Locker)

// WithTimeout sets how long Acquire waits for a live holder.
func WithTimeout(d time.Duration) Option {
	return func(l *Locker) { l.timeout = d }
}

// WithPollInterval sets the retry interval while waiting.
func WithPollInterval(d time.Duration) Option {
	return func(l *Locker) { l.pollInterval = d }
}

// WithLiveness replaces the process liveness check, for tests.
func WithLiveness(p ProcessLiveness) Option {
	return func(l *Locker) { l.liveness = p }
}

// NewLocker creates a locker placing lock files in dir.
func NewLocker(dir string, opts ...Option) *Locker {
	l := &Locker{
		dir:          dir,
		timeout:      DefaultTimeout,
		pollInterval: DefaultPollInterval,
		liveness:     SystemLiveness{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// lockPath returns the lock file for an environment name.
func (l *Locker) lockPath(name environment.Name) string {
	return filepath.Join(l.dir, name.String()+lockSuffix)
}

// Acquire takes the lock for name, waiting up to the configured timeout.
// A lock whose holder process is dead is reclaimed immediately. On
// success the returned Guard must be released by the caller, typically
// via defer, so the lock is dropped on error and panic paths too.
func (l *Locker) Acquire(ctx context.Context, name environment.Name, operation string) (*Guard, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	hostname, _ := os.Hostname()
	holder := Holder{
		PID:        os.Getpid(),
		Hostname:   hostname,
		Token:      uuid.New().String(),
		Operation:  operation,
		AcquiredAt: time.Now().UTC(),
	}

	deadline := time.Now().Add(l.timeout)
	path := l.lockPath(name)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		acquired, current, err := l.tryAcquire(path, holder)
		if err != nil {
			return nil, err
		}
		if acquired {
			log.Debug().
				Str("environment", name.String()).
				Str("operation", operation).
				Msg("coordination lock acquired")
			return &Guard{path: path, token: holder.Token, name: name}, nil
		}

		// current is nil when the lock file vanished or was unreadable
		// mid-write; retry without a liveness verdict.
		if current != nil && !l.liveness.IsAlive(current.PID) {
			log.Warn().
				Str("environment", name.String()).
				Int("stale_pid", current.PID).
				Str("stale_operation", current.Operation).
				Msg("reclaiming stale coordination lock")
			if err := reclaimStale(path, current.Token); err != nil {
				return nil, err
			}
			continue
		}

		if time.Now().After(deadline) {
			if current != nil {
				return nil, &HeldError{Name: name, Holder: *current, Timeout: l.timeout}
			}
			return nil, fmt.Errorf("timed out acquiring lock for environment %q", name)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

// tryAcquire attempts one exclusive creation of the lock file. When the
// file already exists it returns the current holder, if readable.
func (l *Locker) tryAcquire(path string, holder Holder) (bool, *Holder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if !os.IsExist(err) {
			return false, nil, fmt.Errorf("failed to create lock file: %w", err)
		}
		current, readErr := readHolder(path)
		if readErr != nil {
			// Possibly observed mid-write or already removed; the caller
			// retries on the poll interval.
			return false, nil, nil
		}
		return false, current, nil
	}

	data, err := json.Marshal(holder)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return false, nil, fmt.Errorf("failed to encode lock holder: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return false, nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return false, nil, fmt.Errorf("failed to close lock file: %w", err)
	}
	return true, nil, nil
}

// reclaimStale removes the lock file of a dead holder without disturbing
// a lock that a concurrent reclaimer replaced in the meantime. The file
// is renamed aside first; rename is atomic, so at most one reclaimer
// gets it, and the token check catches a fresh lock written at the path
// after the liveness verdict.
func reclaimStale(path, staleToken string) error {
	aside := fmt.Sprintf("%s.reclaim.%d", path, os.Getpid())
	if err := os.Rename(path, aside); err != nil {
		if os.IsNotExist(err) {
			// Another reclaimer got there first.
			return nil
		}
		return fmt.Errorf("failed to reclaim stale lock: %w", err)
	}

	moved, err := readHolder(aside)
	if err != nil || moved.Token == staleToken {
		if err := os.Remove(aside); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to reclaim stale lock: %w", err)
		}
		return nil
	}

	// The path carried a newer lock; restore it untouched.
	if err := os.Rename(aside, path); err != nil {
		_ = os.Remove(aside)
		return fmt.Errorf("failed to restore reclaimed lock: %w", err)
	}
	return nil
}

// readHolder decodes the holder record from a lock file.
func readHolder(path string) (*Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Guard represents a held lock. Release is idempotent and safe to defer.
type Guard struct {
	path     string
	token    string
	name     environment.Name
	released bool
}

// Name returns the environment this guard locks.
func (g *Guard) Name() environment.Name {
	return g.name
}

// Release drops the lock. Only the file written by this acquisition is
// removed: if the lock was reclaimed and re-acquired by another process,
// Release leaves it alone.
func (g *Guard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true

	current, err := readHolder(g.path)
	if err != nil {
		// Already gone or unreadable; nothing to release.
		return
	}
	if current.Token != g.token {
		log.Warn().
			Str("environment", g.name.String()).
			Int("holder_pid", current.PID).
			Msg("lock no longer held by this process, skipping release")
		return
	}
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		log.Error().
			Err(err).
			Str("environment", g.name.String()).
			Msg("failed to release coordination lock")
	}
}
