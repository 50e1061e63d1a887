package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openlift/openlift/pkg/environment"
)

// Init creates a new environment record in the created phase. The name
// must be unused; the per-environment data and build directories are
// created on disk.
func (h *Handler) Init(ctx context.Context, rawName string, creds environment.SSHCredentials) (Result, error) {
	const op = "init"

	name, err := environment.NewName(rawName)
	if err != nil {
		return Result{}, NewError(ClassValidation, err).
			WithOperation(op).
			WithHint("names start with a letter and use only letters, digits, '-' and '_'")
	}

	guard, err := h.d.Locker.Acquire(ctx, name, op)
	if err != nil {
		return Result{}, NewError(ClassConflict, err).
			WithOperation(op).
			WithEnvironment(name.String())
	}
	defer guard.Release()

	exists, err := h.d.Store.Exists(ctx, name)
	if err != nil {
		return Result{}, NewError(ClassPersistence, err).
			WithOperation(op).
			WithEnvironment(name.String())
	}
	if exists {
		return Result{}, Errorf(ClassConflict, "environment %q already exists", name).
			WithOperation(op).
			WithEnvironment(name.String()).
			WithHint("pick another name, or destroy the existing environment first")
	}

	dataDir := filepath.Join(h.d.EnvDataRoot, name.String())
	buildDir := filepath.Join(h.d.BuildRoot, name.String())
	for _, dir := range []string{dataDir, buildDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, NewError(ClassPersistence, fmt.Errorf("failed to create %s: %w", dir, err)).
				WithOperation(op).
				WithEnvironment(name.String())
		}
	}

	env := environment.New(name, creds, dataDir, buildDir, h.now())
	if err := h.d.Store.Save(ctx, env); err != nil {
		return Result{}, NewError(ClassPersistence, err).
			WithOperation(op).
			WithEnvironment(name.String())
	}

	h.d.Logger.WithEnvironment(name.String()).Info("environment created")
	h.audit(ctx, name, op, "success")
	h.updatePhaseGauge(ctx)
	return Result{Environment: env}, nil
}
