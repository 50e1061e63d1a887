package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	dataDir    string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lift",
		Short: "openlift - environment lifecycle orchestrator",
		Long: `openlift drives a networked application's lifecycle against named
environments. Each environment moves through a fixed set of phases:

  created -> provisioned -> configured -> released -> running -> destroyed

The commands provision infrastructure via the configured provisioner,
install software via the configured playbook tool, deploy releases over
SSH, and tear everything back down. Every phase change is persisted
before and after execution, so a crashed or interrupted command leaves
an honest record behind.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override the data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newProvisionCommand())
	rootCmd.AddCommand(newRegisterCommand())
	rootCmd.AddCommand(newConfigureCommand())
	rootCmd.AddCommand(newReleaseCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newDestroyCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newListCommand())

	return rootCmd
}
