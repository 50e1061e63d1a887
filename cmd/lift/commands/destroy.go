package commands

import (
	"github.com/spf13/cobra"

	"github.com/openlift/openlift/pkg/lifecycle"
)

func newDestroyCommand() *cobra.Command {
	var (
		force bool
		purge bool
	)

	cmd := &cobra.Command{
		Use:   "destroy <name>",
		Short: "Tear the environment down",
		Long: `Destroy an environment from any non-terminal phase.

Runs the provisioner destroy (infrastructure that is already absent is
treated as success) and removes the local build and data directories.
Destroying an already-destroyed environment is an idempotent success.
Externally registered environments are refused without --force; --force
drops the record but never touches the external instance.`,
		Example: `  lift destroy staging

  # Drop a registered environment's record
  lift destroy legacy-db --force

  # Free the name for reuse
  lift destroy staging --purge`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name, err := parseName(args[0])
			if err != nil {
				return reportError(err)
			}
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			res, err := a.handler.Destroy(ctx, name, lifecycle.DestroyOptions{Force: force, Purge: purge})
			if err != nil {
				return reportError(err)
			}
			return reportResult(res)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "destroy even if the environment was registered externally")
	cmd.Flags().BoolVar(&purge, "purge", false, "remove the record after destroying, freeing the name")

	return cmd
}
