package locks

import (
	"os"
	"syscall"
)

// ProcessLiveness answers whether a lock holder's process is still
// running. It exists as an interface so stale-lock handling can be
// exercised in tests without spawning processes.
type ProcessLiveness interface {
	// IsAlive reports whether a process with the given PID exists.
	IsAlive(pid int) bool
}

// SystemLiveness checks liveness against the operating system.
type SystemLiveness struct{}

// IsAlive probes the PID with signal 0. EPERM means the process exists
// but belongs to another user, which still counts as alive.
func (SystemLiveness) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
