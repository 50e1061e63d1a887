package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openlift/openlift/pkg/environment"
	"github.com/openlift/openlift/pkg/telemetry"
)

// DefaultFileName is the config file looked up under the config dir.
const DefaultFileName = "openlift.yaml"

// Config is the full CLI configuration.
type Config struct {
	// DataDir is where environment records, journals, and locks live.
	DataDir string `yaml:"data_dir" validate:"required"`

	// SourceDir is the template source tree rendered per environment.
	SourceDir string `yaml:"source_dir" validate:"required"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// Tracing configures trace export.
	Tracing TracingConfig `yaml:"tracing"`

	// Metrics configures the optional metrics endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// SSH supplies default credentials for new environments.
	SSH SSHConfig `yaml:"ssh"`

	// Tools names the external tool binaries.
	Tools ToolsConfig `yaml:"tools"`

	// App describes the deployed application.
	App AppConfig `yaml:"app"`

	// Lock configures cross-process coordination.
	Lock LockConfig `yaml:"lock"`
}

// LogConfig mirrors the logging part of the telemetry configuration.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
	Output string `yaml:"output"`
	Caller bool   `yaml:"caller"`
}

// TracingConfig mirrors the tracing part of the telemetry configuration.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`
	Insecure     bool    `yaml:"insecure"`
}

// MetricsConfig mirrors the metrics part of the telemetry configuration.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
}

// SSHConfig holds default credentials applied when an environment is
// initialized without explicit overrides.
type SSHConfig struct {
	User           string `yaml:"user" validate:"required"`
	PrivateKeyPath string `yaml:"private_key_path" validate:"required"`
	Port           int    `yaml:"port" validate:"gte=1,lte=65535"`
}

// ToolsConfig names the external binaries. Empty values resolve from PATH.
type ToolsConfig struct {
	Terraform       string `yaml:"terraform"`
	AnsiblePlaybook string `yaml:"ansible_playbook"`

	// Playbook is the configure playbook, relative to the rendered
	// config directory.
	Playbook string `yaml:"playbook"`

	// ReleasePlaybook is the release playbook, same resolution.
	ReleasePlaybook string `yaml:"release_playbook"`
}

// AppConfig describes the application the environments exist to run.
type AppConfig struct {
	// Service is the remote service unit restarted on release and
	// probed by run.
	Service string `yaml:"service"`

	// HealthCommand overrides the health probe derived from Service.
	HealthCommand string `yaml:"health_command"`

	// Artifact is the default local artifact uploaded on release.
	Artifact string `yaml:"artifact"`

	// RemotePath is where the artifact lands on the instance.
	RemotePath string `yaml:"remote_path"`

	// ValidateCommand runs remotely after configure to prove the
	// required software landed. Empty skips the check.
	ValidateCommand string `yaml:"validate_command"`
}

// Duration wraps time.Duration so YAML can spell values as "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// LockConfig bounds how long a command waits for another process.
type LockConfig struct {
	Timeout Duration `yaml:"timeout" validate:"gt=0"`
}

// Default returns the configuration used when no file exists. DataDir
// and SourceDir are rooted under the user's home directory.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		DataDir:   filepath.Join(home, ".openlift", "data"),
		SourceDir: filepath.Join(home, ".openlift", "source"),
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "none",
			SamplingRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		SSH: SSHConfig{
			User:           "root",
			PrivateKeyPath: filepath.Join(home, ".ssh", "id_rsa"),
			Port:           environment.DefaultSSHPort,
		},
		Tools: ToolsConfig{
			Playbook:        "site.yml",
			ReleasePlaybook: "release.yml",
		},
		App: AppConfig{
			RemotePath: "/opt/openlift/artifact",
		},
		Lock: LockConfig{
			Timeout: Duration(30 * time.Second),
		},
	}
}

// Load reads the configuration at path, layering it over the defaults.
// A missing file returns the defaults unchanged. An unreadable or
// invalid file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration with struct tags.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// Telemetry converts the configuration into the telemetry stack's form.
func (c *Config) Telemetry(version string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	tc.Logging.Level = c.Log.Level
	tc.Logging.Format = c.Log.Format
	tc.Logging.Output = c.Log.Output
	tc.Logging.EnableCaller = c.Log.Caller
	tc.Tracing.Enabled = c.Tracing.Enabled
	tc.Tracing.Exporter = c.Tracing.Exporter
	tc.Tracing.Endpoint = c.Tracing.Endpoint
	tc.Tracing.SamplingRate = c.Tracing.SamplingRate
	tc.Tracing.Insecure = c.Tracing.Insecure
	tc.Metrics.Enabled = c.Metrics.Enabled
	tc.Metrics.ListenAddress = c.Metrics.ListenAddress
	return tc
}

// SSHCredentials converts the configured defaults into environment
// credentials.
func (c *Config) SSHCredentials() environment.SSHCredentials {
	return environment.SSHCredentials{
		User:           c.SSH.User,
		PrivateKeyPath: c.SSH.PrivateKeyPath,
		Port:           c.SSH.Port,
	}
}
