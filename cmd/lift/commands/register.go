package commands

import (
	"github.com/spf13/cobra"
)

func newRegisterCommand() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "register <name>",
		Short: "Adopt an already-provisioned instance",
		Long: `Register an instance that was provisioned outside of lift.

The environment moves from created directly to provisioned with the
given address. Connectivity is checked once; a failed check is reported
as a warning but the registration is still persisted. Registered
environments are marked external and refuse destroy without --force.`,
		Example: `  lift register legacy-db --address 10.0.3.7`,
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

			res, err := a.handler.Register(ctx, name, address)
			if err != nil {
				return reportError(err)
			}
			return reportResult(res)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "address of the instance to adopt")
	cmd.MarkFlagRequired("address")

	return cmd
}
