package lifecycle

import (
	"context"
	"fmt"

	"github.com/openlift/openlift/pkg/configtool"
	"github.com/openlift/openlift/pkg/environment"
	"github.com/openlift/openlift/pkg/steps"
)

// Configure installs the runtime software on a provisioned instance:
// re-render the sources with the discovered address, wait for first
// boot to finish, run the configure playbook, and verify the required
// software landed. A failed attempt persists configure_failed with its
// cause and is retryable.
func (h *Handler) Configure(ctx context.Context, name environment.Name) (Result, error) {
	return h.execute(ctx, name, environment.OpConfigure, func(ctx context.Context, env environment.Environment) (Result, error) {
		if env.Phase == environment.PhaseConfigured {
			return Result{Environment: env, NoOp: true}, nil
		}
		if err := h.checkPhase(env, environment.OpConfigure); err != nil {
			return Result{}, err
		}

		before := env
		inProgress := env.StartConfiguring(h.now())
		if err := h.persist(ctx, inProgress, environment.OpConfigure); err != nil {
			return Result{}, err
		}
		h.journal(ctx, environment.OpConfigure, before, inProgress, "")

		address := inProgress.Outputs.InstanceAddress
		target := configtool.Target{Address: address, SSH: inProgress.SSH}

		sequence := []steps.Step{
			steps.Func("render-sources", func(ctx context.Context, sc *steps.Context) error {
				return h.d.Renderer.Render(h.d.SourceDir, inProgress.BuildDir, inProgress)
			}),
			steps.Poll("wait-for-boot", h.d.BootPollInterval, h.d.BootPollTimeout, func(ctx context.Context, sc *steps.Context) error {
				done, err := h.d.Transport.FileExists(ctx, address, inProgress.SSH, h.d.BootMarker)
				if err != nil {
					return err
				}
				if !done {
					return fmt.Errorf("boot marker %s not present yet", h.d.BootMarker)
				}
				return nil
			}),
			steps.Func("run-playbook", func(ctx context.Context, sc *steps.Context) error {
				return h.d.ConfigTool.RunPlaybook(ctx, h.playbookPath(inProgress, h.d.Playbook), target)
			}),
		}
		if h.d.ValidateCommand != "" {
			sequence = append(sequence, steps.Func("validate-software", func(ctx context.Context, sc *steps.Context) error {
				out, err := h.d.Transport.ExecuteCommand(ctx, address, inProgress.SSH, h.d.ValidateCommand)
				if err != nil {
					return fmt.Errorf("validation command failed: %w (output: %s)", err, out)
				}
				return nil
			}))
		}

		sc := h.stepContext(inProgress, environment.OpConfigure)
		if err := h.runSteps(ctx, sc, environment.OpConfigure, sequence...); err != nil {
			failed := inProgress.ConfigureFailed(err.Error(), h.now())
			if perr := h.persist(ctx, failed, environment.OpConfigure); perr != nil {
				return Result{}, perr
			}
			h.journal(ctx, environment.OpConfigure, inProgress, failed, err.Error())
			h.updatePhaseGauge(ctx)
			return Result{}, err
		}

		done := inProgress.Configured(h.now())
		if err := h.persist(ctx, done, environment.OpConfigure); err != nil {
			return Result{}, err
		}
		h.journal(ctx, environment.OpConfigure, inProgress, done, "")
		h.updatePhaseGauge(ctx)

		h.d.Logger.WithEnvironment(done.Name.String()).Info("environment configured")
		return Result{Environment: done, Warnings: sc.Warnings()}, nil
	})
}
