package stores

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openlift/openlift/pkg/environment"
)

// setupFileStore creates a store in a temp directory.
func setupFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "environments"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func storeTestEnv(t *testing.T, name string) environment.Environment {
	t.Helper()
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyPath, []byte("key"), 0o600); err != nil {
		t.Fatalf("failed to write test key: %v", err)
	}
	creds, err := environment.NewSSHCredentials("deploy", keyPath, 2222)
	if err != nil {
		t.Fatalf("failed to build credentials: %v", err)
	}
	env := environment.New(environment.MustName(name), creds, "/tmp/data", "/tmp/build",
		time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	env.Metadata["owner"] = "ops"
	return env
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := setupFileStore(t)
	ctx := context.Background()

	saved := storeTestEnv(t, "demo").Register("198.51.100.7", time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC))
	if err := store.Save(ctx, saved); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.Load(ctx, saved.Name)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if !loaded.Name.Equal(saved.Name) {
		t.Errorf("name mismatch: %q != %q", loaded.Name, saved.Name)
	}
	if loaded.Phase != saved.Phase {
		t.Errorf("phase mismatch: %q != %q", loaded.Phase, saved.Phase)
	}
	if loaded.SSH != saved.SSH {
		t.Errorf("ssh credentials mismatch: %+v != %+v", loaded.SSH, saved.SSH)
	}
	if loaded.Outputs != saved.Outputs {
		t.Errorf("outputs mismatch: %+v != %+v", loaded.Outputs, saved.Outputs)
	}
	if loaded.DataDir != saved.DataDir || loaded.BuildDir != saved.BuildDir {
		t.Error("artifact directories did not round-trip")
	}
	if loaded.Metadata["owner"] != "ops" {
		t.Error("metadata did not round-trip")
	}
	if !loaded.IsExternallyRegistered() {
		t.Error("external registration marker did not round-trip")
	}
	if !loaded.CreatedAt.Equal(saved.CreatedAt) || !loaded.LastTransitionAt.Equal(saved.LastTransitionAt) {
		t.Error("timestamps did not round-trip")
	}
}

func TestFileStoreLoadNotFound(t *testing.T) {
	store := setupFileStore(t)

	_, err := store.Load(context.Background(), environment.MustName("ghost"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStoreDelete(t *testing.T) {
	store := setupFileStore(t)
	ctx := context.Background()
	env := storeTestEnv(t, "demo")

	if err := store.Save(ctx, env); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Delete(ctx, env.Name); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := store.Delete(ctx, env.Name); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestFileStoreExistsAndList(t *testing.T) {
	store := setupFileStore(t)
	ctx := context.Background()

	ok, err := store.Exists(ctx, environment.MustName("demo"))
	if err != nil || ok {
		t.Fatalf("expected exists=false before save, got ok=%v err=%v", ok, err)
	}

	for _, name := range []string{"staging", "demo", "prod"} {
		if err := store.Save(ctx, storeTestEnv(t, name)); err != nil {
			t.Fatalf("save %s failed: %v", name, err)
		}
	}

	ok, err = store.Exists(ctx, environment.MustName("demo"))
	if err != nil || !ok {
		t.Fatalf("expected exists=true after save, got ok=%v err=%v", ok, err)
	}

	names, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("expected 3 environments, got %d", len(names))
	}
	// List is sorted by name.
	want := []string{"demo", "prod", "staging"}
	for i, n := range names {
		if n.String() != want[i] {
			t.Errorf("list[%d] = %q, want %q", i, n, want[i])
		}
	}
}

func TestFileStoreRejectsCorruptRecord(t *testing.T) {
	store := setupFileStore(t)
	ctx := context.Background()
	name := environment.MustName("demo")

	cases := map[string]string{
		"not json":       "{{{{",
		"missing phase":  `{"schema_version": 1, "context": {"name": "demo"}}`,
		"unknown phase":  `{"schema_version": 1, "phase": "exploded", "context": {"name": "demo"}}`,
		"wrong version":  `{"schema_version": 99, "phase": "created", "context": {"name": "demo"}}`,
		"missing schema": `{"phase": "created", "context": {"name": "demo"}}`,
	}

	for label, content := range cases {
		path := filepath.Join(store.Root(), "demo.json")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to plant record: %v", err)
		}

		_, err := store.Load(ctx, name)
		var corrupt *CorruptRecordError
		if !errors.As(err, &corrupt) {
			t.Errorf("%s: expected CorruptRecordError, got %v", label, err)
		}
	}
}

func TestFileStoreSaveLeavesNoTempFiles(t *testing.T) {
	store := setupFileStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, storeTestEnv(t, "demo")); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	entries, err := os.ReadDir(store.Root())
	if err != nil {
		t.Fatalf("failed to read store dir: %v", err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Errorf("temporary file left behind: %s", entry.Name())
		}
	}
}

func TestFileStoreSaveReplacesAtomically(t *testing.T) {
	store := setupFileStore(t)
	ctx := context.Background()

	env := storeTestEnv(t, "demo")
	if err := store.Save(ctx, env); err != nil {
		t.Fatalf("initial save failed: %v", err)
	}
	next := env.StartProvisioning(time.Now())
	if err := store.Save(ctx, next); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	loaded, err := store.Load(ctx, env.Name)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Phase != environment.PhaseProvisioning {
		t.Errorf("expected provisioning after replace, got %q", loaded.Phase)
	}
}
