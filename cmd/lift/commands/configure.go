package commands

import (
	"github.com/spf13/cobra"
)

func newConfigureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure <name>",
		Short: "Install the runtime software on the instance",
		Long: `Configure a provisioned instance.

Re-renders the sources with the discovered instance address, waits for
first boot to complete, and runs the configure playbook against the
instance. A failed attempt is recorded as configure_failed with its
cause and can be retried.`,
		Example: `  lift configure staging`,
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

			res, err := a.handler.Configure(ctx, name)
			if err != nil {
				return reportError(err)
			}
			return reportResult(res)
		},
	}
	return cmd
}
