package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openlift/openlift/pkg/config"
	"github.com/openlift/openlift/pkg/configtool"
	"github.com/openlift/openlift/pkg/environment"
	"github.com/openlift/openlift/pkg/lifecycle"
	"github.com/openlift/openlift/pkg/locks"
	"github.com/openlift/openlift/pkg/provisioner"
	"github.com/openlift/openlift/pkg/render"
	"github.com/openlift/openlift/pkg/stores"
	"github.com/openlift/openlift/pkg/telemetry"
	sshtransport "github.com/openlift/openlift/pkg/transports/ssh"
)

// app bundles everything a command needs and knows how to shut it down.
type app struct {
	cfg     *config.Config
	handler *lifecycle.Handler
	tel     *telemetry.Telemetry
	journal stores.Journal
}

// resolveConfigPath returns the explicit --config path or the default
// location under the user's home directory.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return config.DefaultFileName
	}
	return filepath.Join(home, ".openlift", config.DefaultFileName)
}

// buildApp wires the full handler stack from configuration and flags.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	tel, err := telemetry.New(cfg.Telemetry(rootVersion))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	envDir := filepath.Join(cfg.DataDir, "environments")
	if err := os.MkdirAll(envDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := stores.NewFileStore(envDir)
	if err != nil {
		return nil, err
	}

	journal, err := stores.NewSQLiteJournal(stores.JournalConfig{
		Path: filepath.Join(cfg.DataDir, "journal.db"),
	})
	if err != nil {
		return nil, err
	}
	if err := journal.Init(ctx); err != nil {
		// The journal is best-effort everywhere; run without it.
		log.Warn().Err(err).Msg("journal unavailable, continuing without history")
		journal = nil
	}

	locker := locks.NewLocker(envDir, locks.WithTimeout(time.Duration(cfg.Lock.Timeout)))

	deps := lifecycle.Deps{
		Store:       store,
		Locker:      locker,
		Renderer:    render.NewTemplateRenderer(),
		Provisioner: provisioner.NewTerraformCLI(cfg.Tools.Terraform),
		ConfigTool:  configtool.NewAnsibleCLI(cfg.Tools.AnsiblePlaybook),
		Transport:   sshtransport.NewClient(),
		Logger:      tel.Logger,
		Tracer:      tel.Tracer,
		Metrics:     tel.Metrics,
		SourceDir:   cfg.SourceDir,
		EnvDataRoot: filepath.Join(cfg.DataDir, "env"),
		BuildRoot:   filepath.Join(cfg.DataDir, "build"),

		Playbook:           cfg.Tools.Playbook,
		ReleasePlaybook:    cfg.Tools.ReleasePlaybook,
		ValidateCommand:    cfg.App.ValidateCommand,
		Service:            cfg.App.Service,
		HealthCommand:      cfg.App.HealthCommand,
		Artifact:           cfg.App.Artifact,
		RemoteArtifactPath: cfg.App.RemotePath,
	}
	if journal != nil {
		deps.Journal = journal
	}

	handler, err := lifecycle.New(deps)
	if err != nil {
		return nil, err
	}

	// deps.Journal stays a nil interface when the journal is
	// unavailable; storing the concrete pointer here would make the
	// nil check in close meaningless.
	return &app{cfg: cfg, handler: handler, tel: tel, journal: deps.Journal}, nil
}

// close flushes telemetry and closes the journal.
func (a *app) close(ctx context.Context) {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			log.Debug().Err(err).Msg("failed to close journal")
		}
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.tel.Shutdown(shutdownCtx); err != nil {
		log.Debug().Err(err).Msg("failed to shut down telemetry")
	}
}

// rootVersion is stamped by Execute so wiring can report it.
var rootVersion = "dev"

// parseName converts a positional argument into an environment name.
func parseName(arg string) (environment.Name, error) {
	return environment.NewName(arg)
}

// reportResult prints a command outcome: the final phase, any warnings,
// or the whole record as JSON under --json.
func reportResult(res lifecycle.Result) error {
	for _, w := range res.Warnings {
		log.Warn().Str("step", w.Step).Err(w.Err).Msg("completed with warning")
	}
	if jsonOutput {
		return printJSON(res.Environment)
	}
	if res.NoOp {
		fmt.Printf("environment %s already %s\n", res.Environment.Name, res.Environment.Phase)
		return nil
	}
	fmt.Printf("environment %s is now %s\n", res.Environment.Name, res.Environment.Phase)
	return nil
}

// reportError logs a failed command, surfacing the hint when one exists.
func reportError(err error) error {
	ev := log.Error().Err(err)
	if hint := lifecycle.HintOf(err); hint != "" {
		ev = ev.Str("hint", hint)
	}
	if class := lifecycle.ClassOf(err); class != "" {
		ev = ev.Str("class", string(class))
	}
	ev.Msg("command failed")
	return err
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
