package configtool

import (
	"context"
	"fmt"

	"github.com/openlift/openlift/pkg/environment"
)

// Target identifies the host a playbook runs against.
type Target struct {
	// Address is the host to configure.
	Address string

	// SSH carries the credentials used to reach the host.
	SSH environment.SSHCredentials
}

// Runner executes configuration playbooks against a single target host.
type Runner interface {
	// RunPlaybook runs the playbook at the given path against the target.
	RunPlaybook(ctx context.Context, playbook string, target Target) error
}

// PlaybookError reports a failed playbook run with the tool's output.
type PlaybookError struct {
	Playbook string
	Address  string
	Output   string
	Err      error
}

func (e *PlaybookError) Error() string {
	return fmt.Sprintf("playbook %s failed against %s: %v", e.Playbook, e.Address, e.Err)
}

func (e *PlaybookError) Unwrap() error {
	return e.Err
}
