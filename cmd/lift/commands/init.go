package commands

import (
	"github.com/spf13/cobra"

	"github.com/openlift/openlift/pkg/environment"
)

func newInitCommand() *cobra.Command {
	var (
		sshUser string
		sshKey  string
		sshPort int
	)

	cmd := &cobra.Command{
		Use:   "init <name>",
		Short: "Create a new environment record",
		Long: `Create a new environment in the created phase.

The name must be unused. SSH credentials default to the configuration
file and can be overridden per environment with the flags below.`,
		Example: `  # Create an environment with configured SSH defaults
  lift init staging

  # Override the SSH identity
  lift init prod --ssh-user deploy --ssh-key ~/.ssh/deploy_ed25519`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			creds := a.cfg.SSHCredentials()
			if sshUser != "" {
				creds.User = sshUser
			}
			if sshKey != "" {
				creds.PrivateKeyPath = sshKey
			}
			if sshPort != 0 {
				creds.Port = sshPort
			}
			validated, err := environment.NewSSHCredentials(creds.User, creds.PrivateKeyPath, creds.Port)
			if err != nil {
				return reportError(err)
			}

			res, err := a.handler.Init(ctx, args[0], validated)
			if err != nil {
				return reportError(err)
			}
			return reportResult(res)
		},
	}

	cmd.Flags().StringVar(&sshUser, "ssh-user", "", "SSH user for this environment")
	cmd.Flags().StringVar(&sshKey, "ssh-key", "", "SSH private key path for this environment")
	cmd.Flags().IntVar(&sshPort, "ssh-port", 0, "SSH port for this environment")

	return cmd
}
