package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all environments",
		Example: `  lift list
  lift list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			envs, err := a.handler.List(ctx)
			if err != nil {
				return reportError(err)
			}
			if jsonOutput {
				return printJSON(envs)
			}
			if len(envs) == 0 {
				fmt.Println("no environments")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPHASE\tADDRESS\tLAST TRANSITION")
			for _, env := range envs {
				addr := env.Outputs.InstanceAddress
				if addr == "" {
					addr = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					env.Name, env.Phase, addr,
					env.LastTransitionAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
	return cmd
}
