package commands

import (
	"github.com/spf13/cobra"

	"github.com/openlift/openlift/pkg/lifecycle"
)

func newReleaseCommand() *cobra.Command {
	var artifact string

	cmd := &cobra.Command{
		Use:   "release <name>",
		Short: "Deploy the application onto the instance",
		Long: `Release the application onto a configured instance.

Renders the release files, uploads the artifact over SFTP, runs the
release playbook, and restarts the service. Releasing again from the
released phase rolls out a new build without reconfiguring.`,
		Example: `  lift release staging --artifact build/app.tar.gz`,
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

			res, err := a.handler.Release(ctx, name, lifecycle.ReleaseOptions{Artifact: artifact})
			if err != nil {
				return reportError(err)
			}
			return reportResult(res)
		},
	}

	cmd.Flags().StringVar(&artifact, "artifact", "", "local artifact to upload (overrides config)")

	return cmd
}
