package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openlift/openlift/pkg/environment"
)

const recordSuffix = ".json"

// envelope is the on-disk representation: the schema version and phase
// discriminator wrap the state-independent context so a loader can
// reconstruct the exact typed state without guessing.
type envelope struct {
	SchemaVersion int           `json:"schema_version"`
	Phase         string        `json:"phase"`
	Context       contextRecord `json:"context"`
}

// contextRecord mirrors environment.Environment minus the phase, which
// lives in the envelope.
type contextRecord struct {
	Name             environment.Name           `json:"name"`
	SSH              environment.SSHCredentials `json:"ssh"`
	Outputs          environment.RuntimeOutputs `json:"outputs"`
	DataDir          string                     `json:"data_dir"`
	BuildDir         string                     `json:"build_dir"`
	Metadata         map[string]string          `json:"metadata,omitempty"`
	CreatedAt        time.Time                  `json:"created_at"`
	LastTransitionAt time.Time                  `json:"last_transition_at"`
}

// FileStore implements Store with one JSON file per environment under a
// root directory. Saves go through a temporary file in the same directory
// followed by an atomic rename, so readers never observe a partial
// record even if the process dies mid-write.
type FileStore struct {
	root string
}

// NewFileStore creates a store rooted at dir, creating the directory if
// needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}
	return &FileStore{root: dir}, nil
}

// Root returns the directory holding the records. Lock files are
// colocated here so record and lock share a filesystem.
func (s *FileStore) Root() string {
	return s.root
}

// recordPath returns the file that holds the record for name.
func (s *FileStore) recordPath(name environment.Name) string {
	return filepath.Join(s.root, name.String()+recordSuffix)
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, env environment.Environment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if env.Name.IsZero() {
		return fmt.Errorf("cannot save environment without a name")
	}
	if !env.Phase.IsValid() {
		return fmt.Errorf("cannot save environment %q with phase %q", env.Name, env.Phase)
	}

	data, err := json.MarshalIndent(envelope{
		SchemaVersion: SchemaVersion,
		Phase:         string(env.Phase),
		Context: contextRecord{
			Name:             env.Name,
			SSH:              env.SSH,
			Outputs:          env.Outputs,
			DataDir:          env.DataDir,
			BuildDir:         env.BuildDir,
			Metadata:         env.Metadata,
			CreatedAt:        env.CreatedAt,
			LastTransitionAt: env.LastTransitionAt,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode environment %q: %w", env.Name, err)
	}

	final := s.recordPath(env.Name)
	tmp, err := os.CreateTemp(s.root, env.Name.String()+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary record: %w", err)
	}
	tmpName := tmp.Name()

	// Remove the temp file on any failure path below.
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(fmt.Errorf("failed to write record for %q: %w", env.Name, err))
	}
	// Fsync before rename: rename is atomic but does not imply the data
	// reached disk.
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("failed to sync record for %q: %w", env.Name, err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close record for %q: %w", env.Name, err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace record for %q: %w", env.Name, err)
	}

	log.Debug().
		Str("environment", env.Name.String()).
		Str("phase", string(env.Phase)).
		Str("path", final).
		Msg("environment record saved")
	return nil
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, name environment.Name) (environment.Environment, error) {
	if err := ctx.Err(); err != nil {
		return environment.Environment{}, err
	}

	path := s.recordPath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return environment.Environment{}, fmt.Errorf("environment %q: %w", name, ErrNotFound)
		}
		return environment.Environment{}, fmt.Errorf("failed to read record for %q: %w", name, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return environment.Environment{}, &CorruptRecordError{Name: name.String(), Path: path, Err: err}
	}
	if env.SchemaVersion != SchemaVersion {
		return environment.Environment{}, &CorruptRecordError{
			Name: name.String(),
			Path: path,
			Err:  fmt.Errorf("unsupported schema version %d", env.SchemaVersion),
		}
	}
	phase, err := environment.ParsePhase(env.Phase)
	if err != nil {
		return environment.Environment{}, &CorruptRecordError{Name: name.String(), Path: path, Err: err}
	}

	meta := env.Context.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	return environment.Environment{
		Name:             env.Context.Name,
		Phase:            phase,
		SSH:              env.Context.SSH,
		Outputs:          env.Context.Outputs,
		DataDir:          env.Context.DataDir,
		BuildDir:         env.Context.BuildDir,
		Metadata:         meta,
		CreatedAt:        env.Context.CreatedAt,
		LastTransitionAt: env.Context.LastTransitionAt,
	}, nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, name environment.Name) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.recordPath(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("environment %q: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to delete record for %q: %w", name, err)
	}
	return nil
}

// Exists implements Store.
func (s *FileStore) Exists(ctx context.Context, name environment.Name) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.recordPath(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat record for %q: %w", name, err)
}

// List implements Store.
func (s *FileStore) List(ctx context.Context) ([]environment.Name, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list store directory: %w", err)
	}

	var names []environment.Name
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordSuffix) {
			continue
		}
		raw := strings.TrimSuffix(entry.Name(), recordSuffix)
		name, err := environment.NewName(raw)
		if err != nil {
			// Stray files in the store directory are not records.
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].String() < names[j].String() })
	return names, nil
}
