package lifecycle

import (
	"context"

	"github.com/openlift/openlift/pkg/environment"
	"github.com/openlift/openlift/pkg/steps"
)

// Register adopts an already-provisioned instance at the given address,
// moving created directly to provisioned and stamping the record as
// externally registered. Registering the same address again is an
// idempotent success. Connectivity is checked once; a failed check
// becomes a warning, not a failure, since the operator may be
// registering ahead of network availability.
func (h *Handler) Register(ctx context.Context, name environment.Name, address string) (Result, error) {
	return h.execute(ctx, name, environment.OpRegister, func(ctx context.Context, env environment.Environment) (Result, error) {
		if address == "" {
			return Result{}, Errorf(ClassValidation, "register requires an instance address").
				WithOperation(string(environment.OpRegister)).
				WithEnvironment(name.String()).
				WithHint("pass --address with the host to adopt")
		}
		if env.Phase == environment.PhaseProvisioned && env.IsExternallyRegistered() &&
			env.Outputs.InstanceAddress == address {
			return Result{Environment: env, NoOp: true}, nil
		}
		if err := h.checkPhase(env, environment.OpRegister); err != nil {
			return Result{}, err
		}

		registered := env.Register(address, h.now())

		var warnings []steps.Warning
		if h.d.Transport != nil {
			if err := h.d.Transport.TestConnectivity(ctx, address, env.SSH); err != nil {
				h.d.Logger.WithEnvironment(name.String()).WithError(err).
					Warn("registered instance is not reachable yet")
				warnings = append(warnings, steps.Warning{Step: "test-connectivity", Err: err})
			}
		}

		if err := h.persist(ctx, registered, environment.OpRegister); err != nil {
			return Result{}, err
		}
		h.journal(ctx, environment.OpRegister, env, registered, "")
		h.updatePhaseGauge(ctx)

		h.d.Logger.WithEnvironment(name.String()).
			WithField("address", address).
			Info("external instance registered")
		return Result{Environment: registered, Warnings: warnings}, nil
	})
}
