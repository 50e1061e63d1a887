package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/openlift/openlift/pkg/environment"
)

func newStatusCommand() *cobra.Command {
	var (
		history      bool
		historyLimit int
		watch        bool
	)

	cmd := &cobra.Command{
		Use:   "status <name>",
		Short: "Show an environment's current phase",
		Long: `Show the current record for an environment.

--history lists the recorded phase transitions, newest first. --watch
keeps the command running and reprints the phase whenever the record
changes on disk, which follows a command running in another process.`,
		Example: `  lift status staging
  lift status staging --history
  lift status staging --watch`,
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

			env, err := a.handler.Status(ctx, name)
			if err != nil {
				return reportError(err)
			}
			if err := printStatus(env); err != nil {
				return err
			}

			if history {
				events, err := a.handler.History(ctx, name, historyLimit)
				if err != nil {
					return reportError(err)
				}
				if jsonOutput {
					return printJSON(events)
				}
				for _, ev := range events {
					line := fmt.Sprintf("%s  %-10s %s -> %s",
						ev.OccurredAt.Format("2006-01-02 15:04:05"),
						ev.Operation, ev.FromPhase, ev.ToPhase)
					if ev.Cause != "" {
						line += "  (" + ev.Cause + ")"
					}
					fmt.Println(line)
				}
			}

			if watch {
				return watchStatus(cmd, a, name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "show recorded phase transitions")
	cmd.Flags().IntVar(&historyLimit, "history-limit", 20, "max transitions to show")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and reprint on record changes")

	return cmd
}

// printStatus writes one environment's summary line, or the record as
// JSON under --json.
func printStatus(env environment.Environment) error {
	if jsonOutput {
		return printJSON(env)
	}
	line := fmt.Sprintf("%-20s %-18s", env.Name, env.Phase)
	if env.Outputs.HasInstanceAddress() {
		line += "  " + env.Outputs.InstanceAddress
	}
	if cause := env.FailureCause(); cause != "" {
		line += "  cause: " + cause
	}
	fmt.Println(strings.TrimRight(line, " "))
	return nil
}

// watchStatus follows the record file and reprints on every change
// until the command's context is cancelled.
func watchStatus(cmd *cobra.Command, a *app, name environment.Name) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: atomic saves replace the file
	// by rename, which drops a watch on the file itself.
	envDir := filepath.Join(a.cfg.DataDir, "environments")
	if err := watcher.Add(envDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", envDir, err)
	}
	recordName := name.String() + ".json"

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != recordName {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			env, err := a.handler.Status(ctx, name)
			if err != nil {
				// The record may be mid-replace; the next event catches up.
				continue
			}
			if err := printStatus(env); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch failed: %w", err)
		}
	}
}
