package provisioner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// TerraformCLI implements Provisioner by invoking the terraform binary.
type TerraformCLI struct {
	// Binary is the terraform executable (default "terraform").
	Binary string

	// ExtraArgs are appended to every invocation (e.g. -no-color).
	ExtraArgs []string
}

// NewTerraformCLI creates an adapter for the given binary path. An empty
// path falls back to "terraform" on PATH.
func NewTerraformCLI(binary string) *TerraformCLI {
	if binary == "" {
		binary = "terraform"
	}
	return &TerraformCLI{
		Binary:    binary,
		ExtraArgs: []string{"-no-color"},
	}
}

// run invokes one terraform verb in workdir, capturing combined output.
func (t *TerraformCLI) run(ctx context.Context, workdir, verb string, args ...string) (string, error) {
	full := append([]string{verb}, args...)
	full = append(full, t.ExtraArgs...)

	cmd := exec.CommandContext(ctx, t.Binary, full...)
	cmd.Dir = workdir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	log.Debug().
		Str("binary", t.Binary).
		Str("verb", verb).
		Str("workdir", workdir).
		Msg("invoking provisioner")

	err := cmd.Run()
	output := buf.String()
	if err != nil {
		return output, &ToolError{Tool: t.Binary, Verb: verb, Output: output, Err: err}
	}
	return output, nil
}

// Init implements Provisioner.
func (t *TerraformCLI) Init(ctx context.Context, workdir string) error {
	_, err := t.run(ctx, workdir, "init", "-input=false")
	return err
}

// Plan implements Provisioner.
func (t *TerraformCLI) Plan(ctx context.Context, workdir string) error {
	_, err := t.run(ctx, workdir, "plan", "-input=false", "-out=tfplan")
	return err
}

// Apply implements Provisioner. Applies the plan file written by Plan
// when present, otherwise applies directly.
func (t *TerraformCLI) Apply(ctx context.Context, workdir string) error {
	_, err := t.run(ctx, workdir, "apply", "-input=false", "-auto-approve", "tfplan")
	if err == nil {
		return nil
	}
	// Older workflows may not have a saved plan.
	if strings.Contains(toolOutput(err), "tfplan") {
		_, err = t.run(ctx, workdir, "apply", "-input=false", "-auto-approve")
	}
	return err
}

// Destroy implements Provisioner. Terraform treats an empty or missing
// state as a successful destroy of nothing, and so does this adapter:
// repeated destroys are idempotent.
func (t *TerraformCLI) Destroy(ctx context.Context, workdir string) error {
	_, err := t.run(ctx, workdir, "destroy", "-input=false", "-auto-approve")
	if err == nil {
		return nil
	}
	if isAlreadyAbsent(err) {
		log.Debug().Str("workdir", workdir).Msg("infrastructure already absent, treating destroy as success")
		return nil
	}
	return err
}

// Output implements Provisioner by parsing `terraform output -json`.
func (t *TerraformCLI) Output(ctx context.Context, workdir, name string) (string, error) {
	raw, err := t.run(ctx, workdir, "output", "-json")
	if err != nil {
		return "", err
	}

	var outputs map[string]struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal([]byte(raw), &outputs); err != nil {
		return "", fmt.Errorf("failed to parse provisioner outputs: %w", err)
	}

	entry, ok := outputs[name]
	if !ok {
		return "", fmt.Errorf("provisioner output %q not declared", name)
	}

	var value string
	if err := json.Unmarshal(entry.Value, &value); err != nil {
		return "", fmt.Errorf("provisioner output %q is not a string: %w", name, err)
	}
	if value == "" {
		return "", fmt.Errorf("provisioner output %q is empty", name)
	}
	return value, nil
}

// toolOutput extracts the captured output from a ToolError chain.
func toolOutput(err error) string {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Output
	}
	return ""
}

// isAlreadyAbsent recognizes destroy failures that mean the
// infrastructure is already gone.
func isAlreadyAbsent(err error) bool {
	out := strings.ToLower(toolOutput(err))
	return strings.Contains(out, "no state file") ||
		strings.Contains(out, "state file is empty") ||
		strings.Contains(out, "nothing to destroy")
}
