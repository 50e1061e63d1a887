package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("level = %q, want info", cfg.Log.Level)
	}
	if cfg.SSH.Port != 22 {
		t.Errorf("ssh port = %d, want 22", cfg.SSH.Port)
	}
	if time.Duration(cfg.Lock.Timeout) != 30*time.Second {
		t.Errorf("lock timeout = %v, want 30s", cfg.Lock.Timeout)
	}
	if cfg.Tools.Playbook != "site.yml" {
		t.Errorf("playbook = %q, want site.yml", cfg.Tools.Playbook)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: /var/lib/openlift
source_dir: /etc/openlift/source
log:
  level: debug
ssh:
  user: deploy
  private_key_path: /keys/deploy
  port: 2222
tools:
  terraform: /usr/local/bin/terraform
lock:
  timeout: 2m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != "/var/lib/openlift" {
		t.Errorf("data dir = %q", cfg.DataDir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Log.Level)
	}
	// Unset nested fields keep their defaults.
	if cfg.Log.Format != "console" {
		t.Errorf("format = %q, want console", cfg.Log.Format)
	}
	if cfg.SSH.User != "deploy" || cfg.SSH.Port != 2222 {
		t.Errorf("ssh = %+v", cfg.SSH)
	}
	if cfg.Tools.Terraform != "/usr/local/bin/terraform" {
		t.Errorf("terraform = %q", cfg.Tools.Terraform)
	}
	if time.Duration(cfg.Lock.Timeout) != 2*time.Minute {
		t.Errorf("lock timeout = %v, want 2m", cfg.Lock.Timeout)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad level", "log:\n  level: loud\n"},
		{"bad port", "ssh:\n  port: 99999\n"},
		{"bad exporter", "tracing:\n  exporter: jaeger\n"},
		{"bad duration", "lock:\n  timeout: soon\n"},
		{"not yaml", "{{{"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestTelemetryConversion(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "debug"
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"

	tc := cfg.Telemetry("1.2.3")
	if tc.ServiceVersion != "1.2.3" {
		t.Errorf("version = %q", tc.ServiceVersion)
	}
	if tc.Logging.Level != "debug" {
		t.Errorf("level = %q", tc.Logging.Level)
	}
	if !tc.Tracing.Enabled || tc.Tracing.Exporter != "stdout" {
		t.Errorf("tracing = %+v", tc.Tracing)
	}
	if err := tc.Validate(); err != nil {
		t.Errorf("converted config should validate: %v", err)
	}
}

func TestSSHCredentialsConversion(t *testing.T) {
	cfg := Default()
	cfg.SSH = SSHConfig{User: "deploy", PrivateKeyPath: "/keys/deploy", Port: 22}

	creds := cfg.SSHCredentials()
	if creds.User != "deploy" || creds.PrivateKeyPath != "/keys/deploy" || creds.Port != 22 {
		t.Errorf("credentials = %+v", creds)
	}
}
