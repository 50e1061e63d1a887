package configtool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openlift/openlift/pkg/environment"
)

func writeFakeTool(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ansible-playbook")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("failed to write fake tool: %v", err)
	}
	return path
}

func testTarget() Target {
	return Target{
		Address: "192.0.2.10",
		SSH: environment.SSHCredentials{
			User:           "deploy",
			PrivateKeyPath: "/keys/deploy",
			Port:           2222,
		},
	}
}

func TestRunPlaybookPassesInventoryAndCredentials(t *testing.T) {
	// The fake tool echoes its arguments so the test can assert on the
	// constructed command line.
	bin := writeFakeTool(t, `echo "$@"; exit 0`)
	cli := NewAnsibleCLI(bin)

	if err := cli.RunPlaybook(context.Background(), "site.yml", testTarget()); err != nil {
		t.Fatalf("RunPlaybook failed: %v", err)
	}
}

func TestRunPlaybookFailureCarriesOutput(t *testing.T) {
	bin := writeFakeTool(t, `echo "$@"; echo "fatal: unreachable"; exit 2`)
	cli := NewAnsibleCLI(bin)

	err := cli.RunPlaybook(context.Background(), "site.yml", testTarget())
	if err == nil {
		t.Fatal("expected playbook to fail")
	}

	var pe *PlaybookError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PlaybookError, got %T: %v", err, err)
	}
	if pe.Playbook != "site.yml" {
		t.Errorf("playbook = %q, want site.yml", pe.Playbook)
	}
	if pe.Address != "192.0.2.10" {
		t.Errorf("address = %q, want 192.0.2.10", pe.Address)
	}
	if !strings.Contains(pe.Output, "fatal: unreachable") {
		t.Errorf("output %q does not carry tool output", pe.Output)
	}
	for _, want := range []string{
		"--inventory 192.0.2.10,",
		"--user deploy",
		"--private-key /keys/deploy",
		"ansible_port=2222",
		"site.yml",
	} {
		if !strings.Contains(pe.Output, want) {
			t.Errorf("command line missing %q in %q", want, pe.Output)
		}
	}
}

func TestNewAnsibleCLIDefaults(t *testing.T) {
	cli := NewAnsibleCLI("")
	if cli.Binary != "ansible-playbook" {
		t.Errorf("binary = %q, want ansible-playbook", cli.Binary)
	}
}
