package provisioner

import (
	"context"
	"fmt"
)

// Provisioner is the capability the lifecycle handlers consume: run the
// provisioner's verbs against a working directory containing rendered
// configuration, and read back declared outputs.
type Provisioner interface {
	// Init prepares the working directory (providers, backend).
	Init(ctx context.Context, workdir string) error

	// Plan computes the change set. A non-empty plan is not an error.
	Plan(ctx context.Context, workdir string) error

	// Apply executes the plan, creating or updating infrastructure.
	Apply(ctx context.Context, workdir string) error

	// Destroy tears down all managed infrastructure. Destroying
	// infrastructure that is already absent is success, not failure.
	Destroy(ctx context.Context, workdir string) error

	// Output reads one declared string output by name.
	Output(ctx context.Context, workdir, name string) (string, error)
}

// ToolError reports a failed provisioner invocation with the captured
// output, so the root cause is inspectable without re-running.
type ToolError struct {
	// Tool is the binary that was invoked.
	Tool string

	// Verb is the subcommand that failed (init, plan, apply, destroy).
	Verb string

	// Output is the combined stdout/stderr captured from the tool.
	Output string

	// Err is the underlying execution error.
	Err error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Tool, e.Verb, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}
