package commands

import (
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Verify the released application is serving",
		Long: `Verify a released environment is actually running.

Polls the remote health probe over SSH until it passes, then records
the running phase. A failed run leaves the environment released so it
can be retried once the service is fixed.`,
		Example: `  lift run staging`,
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

			res, err := a.handler.Run(ctx, name)
			if err != nil {
				return reportError(err)
			}
			return reportResult(res)
		},
	}
	return cmd
}
