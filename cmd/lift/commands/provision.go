package commands

import (
	"github.com/spf13/cobra"
)

func newProvisionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision <name>",
		Short: "Create the environment's infrastructure",
		Long: `Provision the environment's infrastructure.

Renders the provisioner sources into the environment's build directory,
runs init, plan, and apply, reads the instance address from the
provisioner outputs, and waits for the instance to accept SSH and
finish first boot. A failed attempt is recorded as provision_failed
with its cause and can be retried by running provision again.`,
		Example: `  lift provision staging`,
		Args:    cobra.ExactArgs(1),
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

			res, err := a.handler.Provision(ctx, name)
			if err != nil {
				return reportError(err)
			}
			return reportResult(res)
		},
	}
	return cmd
}
