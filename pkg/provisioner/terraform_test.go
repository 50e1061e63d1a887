package provisioner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeFakeTool writes a shell script that stands in for the terraform
// binary and returns its path.
func writeFakeTool(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "terraform")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("failed to write fake tool: %v", err)
	}
	return path
}

func TestTerraformInitSuccess(t *testing.T) {
	bin := writeFakeTool(t, `exit 0`)
	tf := NewTerraformCLI(bin)

	if err := tf.Init(context.Background(), t.TempDir()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
}

func TestTerraformApplyFailureCarriesOutput(t *testing.T) {
	bin := writeFakeTool(t, `echo "Error: instance quota exceeded"; exit 1`)
	tf := NewTerraformCLI(bin)

	err := tf.Apply(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("expected apply to fail")
	}

	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("expected ToolError, got %T: %v", err, err)
	}
	if te.Verb != "apply" {
		t.Errorf("verb = %q, want apply", te.Verb)
	}
	if !strings.Contains(te.Output, "quota exceeded") {
		t.Errorf("output %q does not carry tool output", te.Output)
	}
}

func TestTerraformDestroyAlreadyAbsentIsSuccess(t *testing.T) {
	bin := writeFakeTool(t, `echo "No state file was found!"; exit 1`)
	tf := NewTerraformCLI(bin)

	if err := tf.Destroy(context.Background(), t.TempDir()); err != nil {
		t.Fatalf("destroy of absent infrastructure should succeed, got %v", err)
	}
}

func TestTerraformDestroyRealFailurePropagates(t *testing.T) {
	bin := writeFakeTool(t, `echo "Error: permission denied"; exit 1`)
	tf := NewTerraformCLI(bin)

	err := tf.Destroy(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("expected destroy to fail")
	}
	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("expected ToolError, got %T", err)
	}
}

func TestTerraformOutput(t *testing.T) {
	bin := writeFakeTool(t, `cat <<'EOF'
{"instance_address": {"value": "192.0.2.10", "type": "string"}}
EOF`)
	tf := NewTerraformCLI(bin)

	addr, err := tf.Output(context.Background(), t.TempDir(), "instance_address")
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	if addr != "192.0.2.10" {
		t.Errorf("address = %q, want 192.0.2.10", addr)
	}
}

func TestTerraformOutputMissing(t *testing.T) {
	bin := writeFakeTool(t, `echo '{}'`)
	tf := NewTerraformCLI(bin)

	if _, err := tf.Output(context.Background(), t.TempDir(), "instance_address"); err == nil {
		t.Fatal("expected error for undeclared output")
	}
}

func TestTerraformOutputEmptyValue(t *testing.T) {
	bin := writeFakeTool(t, `echo '{"instance_address": {"value": ""}}'`)
	tf := NewTerraformCLI(bin)

	if _, err := tf.Output(context.Background(), t.TempDir(), "instance_address"); err == nil {
		t.Fatal("expected error for empty output value")
	}
}
