package lifecycle

import (
	"context"

	"github.com/openlift/openlift/pkg/configtool"
	"github.com/openlift/openlift/pkg/environment"
	"github.com/openlift/openlift/pkg/steps"
)

// ReleaseOptions tune a single release.
type ReleaseOptions struct {
	// Artifact overrides the configured local artifact path.
	Artifact string
}

// Release deploys the application onto a configured instance: render
// the release files, upload the artifact, run the release playbook, and
// restart the service. Releasing again from released is legal, so a new
// build can be rolled out without reconfiguring. A failed attempt
// persists release_failed with its cause and is retryable.
func (h *Handler) Release(ctx context.Context, name environment.Name, opts ReleaseOptions) (Result, error) {
	return h.execute(ctx, name, environment.OpRelease, func(ctx context.Context, env environment.Environment) (Result, error) {
		if err := h.checkPhase(env, environment.OpRelease); err != nil {
			return Result{}, err
		}

		artifact := opts.Artifact
		if artifact == "" {
			artifact = h.d.Artifact
		}

		before := env
		inProgress := env.StartReleasing(h.now())
		if err := h.persist(ctx, inProgress, environment.OpRelease); err != nil {
			return Result{}, err
		}
		h.journal(ctx, environment.OpRelease, before, inProgress, "")

		address := inProgress.Outputs.InstanceAddress
		target := configtool.Target{Address: address, SSH: inProgress.SSH}

		sequence := []steps.Step{
			steps.Func("render-sources", func(ctx context.Context, sc *steps.Context) error {
				return h.d.Renderer.Render(h.d.SourceDir, inProgress.BuildDir, inProgress)
			}),
		}
		if artifact != "" {
			sequence = append(sequence, steps.Func("upload-artifact", func(ctx context.Context, sc *steps.Context) error {
				return h.d.Transport.UploadFile(ctx, address, inProgress.SSH, artifact, h.d.RemoteArtifactPath)
			}))
		}
		sequence = append(sequence, steps.Func("run-release-playbook", func(ctx context.Context, sc *steps.Context) error {
			return h.d.ConfigTool.RunPlaybook(ctx, h.playbookPath(inProgress, h.d.ReleasePlaybook), target)
		}))
		if h.d.Service != "" {
			sequence = append(sequence, steps.Func("restart-service", func(ctx context.Context, sc *steps.Context) error {
				_, err := h.d.Transport.ExecuteCommand(ctx, address, inProgress.SSH,
					"sudo systemctl restart "+h.d.Service)
				return err
			}))
		}

		sc := h.stepContext(inProgress, environment.OpRelease)
		if err := h.runSteps(ctx, sc, environment.OpRelease, sequence...); err != nil {
			failed := inProgress.ReleaseFailed(err.Error(), h.now())
			if perr := h.persist(ctx, failed, environment.OpRelease); perr != nil {
				return Result{}, perr
			}
			h.journal(ctx, environment.OpRelease, inProgress, failed, err.Error())
			h.updatePhaseGauge(ctx)
			return Result{}, err
		}

		done := inProgress.Released(h.now())
		if err := h.persist(ctx, done, environment.OpRelease); err != nil {
			return Result{}, err
		}
		h.journal(ctx, environment.OpRelease, inProgress, done, "")
		h.updatePhaseGauge(ctx)

		h.d.Logger.WithEnvironment(done.Name.String()).Info("release deployed")
		return Result{Environment: done, Warnings: sc.Warnings()}, nil
	})
}
