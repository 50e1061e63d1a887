package lifecycle

import (
	"context"
	"fmt"

	"github.com/openlift/openlift/pkg/environment"
	"github.com/openlift/openlift/pkg/steps"
)

// Run verifies the released application is actually serving: poll the
// remote health probe until it passes, then persist running. There is
// no failed phase for run; on failure the record stays released and the
// operator retries once the service is fixed.
func (h *Handler) Run(ctx context.Context, name environment.Name) (Result, error) {
	return h.execute(ctx, name, environment.OpRun, func(ctx context.Context, env environment.Environment) (Result, error) {
		if env.Phase == environment.PhaseRunning {
			return Result{Environment: env, NoOp: true}, nil
		}
		if err := h.checkPhase(env, environment.OpRun); err != nil {
			return Result{}, err
		}

		probe := h.healthCommand()
		if probe == "" {
			return Result{}, Errorf(ClassValidation, "no health probe configured").
				WithOperation(string(environment.OpRun)).
				WithEnvironment(name.String()).
				WithHint("set app.service or app.health_command in the configuration")
		}

		address := env.Outputs.InstanceAddress

		sc := h.stepContext(env, environment.OpRun)
		err := h.runSteps(ctx, sc, environment.OpRun,
			steps.Poll("wait-for-health", h.d.HealthPollInterval, h.d.HealthPollTimeout, func(ctx context.Context, sc *steps.Context) error {
				out, err := h.d.Transport.ExecuteCommand(ctx, address, env.SSH, probe)
				if err != nil {
					return fmt.Errorf("health probe failed: %w (output: %s)", err, out)
				}
				return nil
			}),
		)
		if err != nil {
			// The record stays released; nothing was changed.
			return Result{}, err
		}

		done := env.Running(h.now())
		if err := h.persist(ctx, done, environment.OpRun); err != nil {
			return Result{}, err
		}
		h.journal(ctx, environment.OpRun, env, done, "")
		h.updatePhaseGauge(ctx)

		h.d.Logger.WithEnvironment(done.Name.String()).Info("environment is running")
		return Result{Environment: done, Warnings: sc.Warnings()}, nil
	})
}
