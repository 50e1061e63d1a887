package configtool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog/log"
)

// AnsibleCLI implements Runner by invoking ansible-playbook.
type AnsibleCLI struct {
	// Binary is the ansible-playbook executable (default "ansible-playbook").
	Binary string

	// Env is extra process environment for every invocation, in
	// "KEY=value" form. Host key checking is disabled by default since
	// provisioned hosts have fresh, unknown keys.
	Env []string
}

// NewAnsibleCLI creates an adapter for the given binary path. An empty
// path falls back to "ansible-playbook" on PATH.
func NewAnsibleCLI(binary string) *AnsibleCLI {
	if binary == "" {
		binary = "ansible-playbook"
	}
	return &AnsibleCLI{
		Binary: binary,
		Env:    []string{"ANSIBLE_HOST_KEY_CHECKING=False"},
	}
}

// RunPlaybook implements Runner. The target host is passed as an inline
// inventory so no inventory file needs to exist on disk.
func (a *AnsibleCLI) RunPlaybook(ctx context.Context, playbook string, target Target) error {
	args := []string{
		"--inventory", target.Address + ",",
		"--user", target.SSH.User,
		"--private-key", target.SSH.PrivateKeyPath,
		"--extra-vars", fmt.Sprintf("ansible_port=%d", target.SSH.Port),
		playbook,
	}

	cmd := exec.CommandContext(ctx, a.Binary, args...)
	cmd.Env = append(cmd.Environ(), a.Env...)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	log.Debug().
		Str("binary", a.Binary).
		Str("playbook", playbook).
		Str("address", target.Address).
		Msg("running playbook")

	if err := cmd.Run(); err != nil {
		return &PlaybookError{
			Playbook: playbook,
			Address:  target.Address,
			Output:   buf.String(),
			Err:      err,
		}
	}
	return nil
}
