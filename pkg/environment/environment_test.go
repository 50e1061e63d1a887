package environment

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// testKey writes a throwaway private key file so credential validation
// has something to stat.
func testKey(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, []byte("test-key"), 0o600); err != nil {
		t.Fatalf("failed to write test key: %v", err)
	}
	return path
}

func testEnv(t *testing.T) Environment {
	t.Helper()
	creds, err := NewSSHCredentials("deploy", testKey(t), 22)
	if err != nil {
		t.Fatalf("failed to build credentials: %v", err)
	}
	base := t.TempDir()
	return New(MustName("demo"), creds,
		filepath.Join(base, "data"), filepath.Join(base, "build"), time.Now())
}

func TestNewNameValidation(t *testing.T) {
	cases := []struct {
		raw     string
		wantErr bool
	}{
		{"demo", false},
		{"Demo-01", false},
		{"staging_eu", false},
		{"  padded  ", false},
		{"", true},
		{"   ", true},
		{"1demo", true},
		{"demo!", true},
		{"demo env", true},
		{string(make([]byte, MaxNameLength+1)), true},
	}

	for _, tc := range cases {
		_, err := NewName(tc.raw)
		if tc.wantErr && err == nil {
			t.Errorf("NewName(%q): expected error, got none", tc.raw)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("NewName(%q): unexpected error: %v", tc.raw, err)
		}
	}
}

func TestNameNormalization(t *testing.T) {
	a := MustName("Demo")
	b := MustName("demo")
	if !a.Equal(b) {
		t.Error("names differing only in case should be equal")
	}
	if a.String() != "demo" {
		t.Errorf("expected normalized name %q, got %q", "demo", a.String())
	}
}

func TestCredentialsValidation(t *testing.T) {
	key := testKey(t)

	if _, err := NewSSHCredentials("", key, 22); err == nil {
		t.Error("expected error for empty user")
	}
	if _, err := NewSSHCredentials("deploy", "", 22); err == nil {
		t.Error("expected error for empty key path")
	}
	if _, err := NewSSHCredentials("deploy", "/nonexistent/key", 22); err == nil {
		t.Error("expected error for missing key file")
	}
	if _, err := NewSSHCredentials("deploy", key, 70000); err == nil {
		t.Error("expected error for out-of-range port")
	}

	creds, err := NewSSHCredentials("deploy", key, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.Port != DefaultSSHPort {
		t.Errorf("expected default port %d, got %d", DefaultSSHPort, creds.Port)
	}
}

func TestParsePhase(t *testing.T) {
	if _, err := ParsePhase("provisioned"); err != nil {
		t.Errorf("unexpected error for valid phase: %v", err)
	}
	if _, err := ParsePhase("half-baked"); err == nil {
		t.Error("expected error for unknown phase")
	}
	if _, err := ParsePhase(""); err == nil {
		t.Error("expected error for missing phase")
	}
}

func TestTransitionsDoNotMutateReceiver(t *testing.T) {
	env := testEnv(t)
	next := env.StartProvisioning(time.Now())

	if env.Phase != PhaseCreated {
		t.Errorf("receiver phase changed to %q", env.Phase)
	}
	if next.Phase != PhaseProvisioning {
		t.Errorf("expected provisioning, got %q", next.Phase)
	}

	next.Metadata["extra"] = "value"
	if _, ok := env.Metadata["extra"]; ok {
		t.Error("metadata map is shared between source and result")
	}
}

func TestProvisionLifecycle(t *testing.T) {
	now := time.Now()
	env := testEnv(t)

	env = env.StartProvisioning(now)
	env = env.Provisioned("203.0.113.10", now)

	if env.Phase != PhaseProvisioned {
		t.Fatalf("expected provisioned, got %q", env.Phase)
	}
	if env.Outputs.InstanceAddress != "203.0.113.10" {
		t.Errorf("instance address not recorded: %q", env.Outputs.InstanceAddress)
	}
	if env.IsExternallyRegistered() {
		t.Error("provisioned environment must not be marked externally registered")
	}
}

func TestFailureTransitionRecordsCause(t *testing.T) {
	now := time.Now()
	env := testEnv(t).StartProvisioning(now)
	failed := env.ProvisionFailed("terraform apply exited with code 1", now)

	if failed.Phase != PhaseProvisionFailed {
		t.Fatalf("expected provision_failed, got %q", failed.Phase)
	}
	if failed.FailureCause() != "terraform apply exited with code 1" {
		t.Errorf("cause not recorded: %q", failed.FailureCause())
	}

	// A successful retry clears the recorded cause.
	retried := failed.StartProvisioning(now).Provisioned("203.0.113.10", now)
	if retried.FailureCause() != "" {
		t.Errorf("cause should be cleared after success, got %q", retried.FailureCause())
	}
}

func TestRegister(t *testing.T) {
	now := time.Now()
	env := testEnv(t).Register("198.51.100.7", now)

	if env.Phase != PhaseProvisioned {
		t.Fatalf("expected provisioned, got %q", env.Phase)
	}
	if env.Outputs.InstanceAddress != "198.51.100.7" {
		t.Errorf("instance address not recorded: %q", env.Outputs.InstanceAddress)
	}
	if !env.IsExternallyRegistered() {
		t.Error("registered environment must carry the external marker")
	}
}

func TestOperationLegality(t *testing.T) {
	cases := []struct {
		op    Operation
		phase Phase
		want  bool
	}{
		{OpProvision, PhaseCreated, true},
		{OpProvision, PhaseProvisionFailed, true},
		{OpProvision, PhaseProvisioned, false},
		{OpProvision, PhaseDestroyed, false},
		{OpRegister, PhaseCreated, true},
		{OpRegister, PhaseProvisioned, false},
		{OpConfigure, PhaseProvisioned, true},
		{OpConfigure, PhaseConfigureFailed, true},
		{OpConfigure, PhaseCreated, false},
		{OpRelease, PhaseConfigured, true},
		{OpRelease, PhaseReleased, true},
		{OpRelease, PhaseReleaseFailed, true},
		{OpRelease, PhaseProvisioned, false},
		{OpRun, PhaseReleased, true},
		{OpRun, PhaseRunning, false},
		{OpDestroy, PhaseCreated, true},
		{OpDestroy, PhaseRunning, true},
		{OpDestroy, PhaseProvisionFailed, true},
		{OpDestroy, PhaseDestroyed, false},
	}

	for _, tc := range cases {
		if got := CanStart(tc.op, tc.phase); got != tc.want {
			t.Errorf("CanStart(%s, %s) = %v, want %v", tc.op, tc.phase, got, tc.want)
		}
	}
}

func TestDestroyedIsTerminal(t *testing.T) {
	env := testEnv(t).StartDestroying(time.Now()).Destroyed(time.Now())

	if !env.Phase.IsTerminal() {
		t.Error("destroyed must be terminal")
	}
	for _, op := range []Operation{OpProvision, OpRegister, OpConfigure, OpRelease, OpRun, OpDestroy} {
		if CanStart(op, env.Phase) {
			t.Errorf("operation %s must not start from destroyed", op)
		}
	}
}
