package lifecycle

import (
	"context"
	"errors"
	"os"

	"github.com/openlift/openlift/pkg/environment"
	"github.com/openlift/openlift/pkg/steps"
	"github.com/openlift/openlift/pkg/stores"
)

// DestroyOptions tune a destroy.
type DestroyOptions struct {
	// Force allows destroying an externally registered environment.
	// The provisioner is still skipped for those, since their
	// infrastructure is not ours to tear down.
	Force bool

	// Purge removes the environment record itself after the destroy,
	// freeing the name for reuse.
	Purge bool
}

// Destroy tears an environment down from any non-terminal phase: run
// the provisioner destroy (tolerating already-absent infrastructure),
// then best-effort removal of the local build and data directories.
// Destroying a destroyed environment is an idempotent success. Cleanup
// failures become warnings on the success result, never errors.
func (h *Handler) Destroy(ctx context.Context, name environment.Name, opts DestroyOptions) (Result, error) {
	return h.execute(ctx, name, environment.OpDestroy, func(ctx context.Context, env environment.Environment) (Result, error) {
		if env.Phase == environment.PhaseDestroyed {
			res := Result{Environment: env, NoOp: true}
			if opts.Purge {
				if err := h.purge(ctx, env); err != nil {
					return Result{}, err
				}
			}
			return res, nil
		}
		if err := h.checkPhase(env, environment.OpDestroy); err != nil {
			return Result{}, err
		}

		external := env.IsExternallyRegistered()
		if external && !opts.Force {
			return Result{}, Errorf(ClassConflict, "environment %q was registered, not provisioned; its instance is not managed here", name).
				WithOperation(string(environment.OpDestroy)).
				WithEnvironment(name.String()).
				WithHint("pass --force to drop the record anyway; the instance itself is left untouched")
		}

		before := env
		inProgress := env.StartDestroying(h.now())
		if err := h.persist(ctx, inProgress, environment.OpDestroy); err != nil {
			return Result{}, err
		}
		h.journal(ctx, environment.OpDestroy, before, inProgress, "")

		// An environment that never started provisioning has no
		// infrastructure to tear down.
		neverProvisioned := before.Phase == environment.PhaseCreated

		var sequence []steps.Step
		if !external && !neverProvisioned {
			sequence = append(sequence, steps.Func("provisioner-destroy", func(ctx context.Context, sc *steps.Context) error {
				return h.d.Provisioner.Destroy(ctx, h.provisionerDir(inProgress))
			}))
		}
		sequence = append(sequence,
			steps.BestEffort(steps.Func("remove-build-dir", func(ctx context.Context, sc *steps.Context) error {
				return os.RemoveAll(inProgress.BuildDir)
			})),
			steps.BestEffort(steps.Func("remove-data-dir", func(ctx context.Context, sc *steps.Context) error {
				return os.RemoveAll(inProgress.DataDir)
			})),
		)

		sc := h.stepContext(inProgress, environment.OpDestroy)
		if err := h.runSteps(ctx, sc, environment.OpDestroy, sequence...); err != nil {
			// The record stays in destroying; destroy remains startable
			// from there, so the operator simply retries.
			return Result{}, err
		}

		done := inProgress.Destroyed(h.now())
		if err := h.persist(ctx, done, environment.OpDestroy); err != nil {
			return Result{}, err
		}
		h.journal(ctx, environment.OpDestroy, inProgress, done, "")
		h.updatePhaseGauge(ctx)

		if opts.Purge {
			if err := h.purge(ctx, done); err != nil {
				return Result{}, err
			}
		}

		h.d.Logger.WithEnvironment(done.Name.String()).Info("environment destroyed")
		return Result{Environment: done, Warnings: sc.Warnings()}, nil
	})
}

// purge removes the environment's record entirely.
func (h *Handler) purge(ctx context.Context, env environment.Environment) error {
	if err := h.d.Store.Delete(ctx, env.Name); err != nil && !errors.Is(err, stores.ErrNotFound) {
		return NewError(ClassCleanup, err).
			WithOperation(string(environment.OpDestroy)).
			WithEnvironment(env.Name.String()).
			WithHint("the record could not be removed; delete it manually from the data directory")
	}
	h.d.Logger.WithEnvironment(env.Name.String()).Info("environment record purged")
	return nil
}
