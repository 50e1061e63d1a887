package lifecycle

import (
	"context"
	"fmt"

	"github.com/openlift/openlift/pkg/environment"
	"github.com/openlift/openlift/pkg/steps"
)

// OutputInstanceAddress is the provisioner output the provision
// operation reads the instance address from.
const OutputInstanceAddress = "instance_address"

// Provision creates the environment's infrastructure: render the
// provisioner sources, run init/plan/apply, read the instance address
// from the outputs, and wait for the instance to finish booting. A
// failed attempt persists provision_failed with its cause and is
// retryable by running provision again.
func (h *Handler) Provision(ctx context.Context, name environment.Name) (Result, error) {
	return h.execute(ctx, name, environment.OpProvision, func(ctx context.Context, env environment.Environment) (Result, error) {
		if env.Phase == environment.PhaseProvisioned {
			return Result{Environment: env, NoOp: true}, nil
		}
		if err := h.checkPhase(env, environment.OpProvision); err != nil {
			return Result{}, err
		}

		before := env
		inProgress := env.StartProvisioning(h.now())
		if err := h.persist(ctx, inProgress, environment.OpProvision); err != nil {
			return Result{}, err
		}
		h.journal(ctx, environment.OpProvision, before, inProgress, "")

		var address string
		workdir := h.provisionerDir(inProgress)

		sc := h.stepContext(inProgress, environment.OpProvision)
		err := h.runSteps(ctx, sc, environment.OpProvision,
			steps.Func("render-sources", func(ctx context.Context, sc *steps.Context) error {
				return h.d.Renderer.Render(h.d.SourceDir, inProgress.BuildDir, inProgress)
			}),
			steps.Func("provisioner-init", func(ctx context.Context, sc *steps.Context) error {
				return h.d.Provisioner.Init(ctx, workdir)
			}),
			steps.Func("provisioner-plan", func(ctx context.Context, sc *steps.Context) error {
				return h.d.Provisioner.Plan(ctx, workdir)
			}),
			steps.Func("provisioner-apply", func(ctx context.Context, sc *steps.Context) error {
				return h.d.Provisioner.Apply(ctx, workdir)
			}),
			steps.Func("read-outputs", func(ctx context.Context, sc *steps.Context) error {
				addr, err := h.d.Provisioner.Output(ctx, workdir, OutputInstanceAddress)
				if err != nil {
					return err
				}
				address = addr
				return nil
			}),
			steps.Poll("wait-for-ssh", h.d.SSHPollInterval, h.d.SSHPollTimeout, func(ctx context.Context, sc *steps.Context) error {
				return h.d.Transport.TestConnectivity(ctx, address, inProgress.SSH)
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
		)
		if err != nil {
			failed := inProgress.ProvisionFailed(err.Error(), h.now())
			if perr := h.persist(ctx, failed, environment.OpProvision); perr != nil {
				return Result{}, perr
			}
			h.journal(ctx, environment.OpProvision, inProgress, failed, err.Error())
			h.updatePhaseGauge(ctx)
			return Result{}, err
		}

		done := inProgress.Provisioned(address, h.now())
		if err := h.persist(ctx, done, environment.OpProvision); err != nil {
			return Result{}, err
		}
		h.journal(ctx, environment.OpProvision, inProgress, done, "")
		h.updatePhaseGauge(ctx)

		h.d.Logger.WithEnvironment(done.Name.String()).
			WithField("address", address).
			Info("environment provisioned")
		return Result{Environment: done, Warnings: sc.Warnings()}, nil
	})
}
