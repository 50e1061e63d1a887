package environment

import "fmt"

// Phase is the lifecycle stage of an environment. The set is closed: a
// record whose phase is not one of the constants below is corrupt.
type Phase string

const (
	// PhaseCreated is the initial phase: the environment exists only as
	// a record, no instance has been provisioned.
	PhaseCreated Phase = "created"

	// PhaseProvisioning means the infrastructure provisioner is running.
	PhaseProvisioning Phase = "provisioning"

	// PhaseProvisioned means an instance exists and is reachable.
	PhaseProvisioned Phase = "provisioned"

	// PhaseProvisionFailed records a failed provision attempt.
	PhaseProvisionFailed Phase = "provision_failed"

	// PhaseConfiguring means the configuration tool is running.
	PhaseConfiguring Phase = "configuring"

	// PhaseConfigured means all required software is installed.
	PhaseConfigured Phase = "configured"

	// PhaseConfigureFailed records a failed configure attempt.
	PhaseConfigureFailed Phase = "configure_failed"

	// PhaseReleasing means the application release is being rolled out.
	PhaseReleasing Phase = "releasing"

	// PhaseReleased means the application is deployed on the instance.
	PhaseReleased Phase = "released"

	// PhaseReleaseFailed records a failed release attempt.
	PhaseReleaseFailed Phase = "release_failed"

	// PhaseRunning means the released application passed its run check.
	PhaseRunning Phase = "running"

	// PhaseDestroying means the provisioner's destroy is in flight.
	PhaseDestroying Phase = "destroying"

	// PhaseDestroyed is absorbing: no further transition is permitted.
	PhaseDestroyed Phase = "destroyed"
)

// allPhases is the closed set used to validate stored discriminators.
var allPhases = map[Phase]struct{}{
	PhaseCreated:         {},
	PhaseProvisioning:    {},
	PhaseProvisioned:     {},
	PhaseProvisionFailed: {},
	PhaseConfiguring:     {},
	PhaseConfigured:      {},
	PhaseConfigureFailed: {},
	PhaseReleasing:       {},
	PhaseReleased:        {},
	PhaseReleaseFailed:   {},
	PhaseRunning:         {},
	PhaseDestroying:      {},
	PhaseDestroyed:       {},
}

// ParsePhase validates a stored phase discriminator. An unknown value is
// returned as *UnknownPhaseError so loaders can distinguish corruption
// from I/O failures.
func ParsePhase(raw string) (Phase, error) {
	p := Phase(raw)
	if _, ok := allPhases[p]; !ok {
		return "", &UnknownPhaseError{Raw: raw}
	}
	return p, nil
}

// IsValid reports whether p is a member of the closed phase set.
func (p Phase) IsValid() bool {
	_, ok := allPhases[p]
	return ok
}

// IsTerminal reports whether the phase admits no further transitions.
func (p Phase) IsTerminal() bool {
	return p == PhaseDestroyed
}

// IsFailed reports whether the phase records a failed command attempt.
func (p Phase) IsFailed() bool {
	switch p {
	case PhaseProvisionFailed, PhaseConfigureFailed, PhaseReleaseFailed:
		return true
	default:
		return false
	}
}

// Operation names a lifecycle command that drives phase transitions.
type Operation string

const (
	OpProvision Operation = "provision"
	OpRegister  Operation = "register"
	OpConfigure Operation = "configure"
	OpRelease   Operation = "release"
	OpRun       Operation = "run"
	OpDestroy   Operation = "destroy"
)

// sourcePhases is the legality table: the phases each operation may start
// from. Failed phases are retryable by the same operation, so a failed
// attempt can be re-run without an explicit reset. Destroy accepts every
// non-terminal phase and is therefore handled in SourcePhases.
var sourcePhases = map[Operation][]Phase{
	OpProvision: {PhaseCreated, PhaseProvisionFailed},
	OpRegister:  {PhaseCreated},
	OpConfigure: {PhaseProvisioned, PhaseConfigureFailed},
	OpRelease:   {PhaseConfigured, PhaseReleased, PhaseReleaseFailed},
	OpRun:       {PhaseReleased},
}

// SourcePhases returns the phases from which op may legally start.
func SourcePhases(op Operation) []Phase {
	if op == OpDestroy {
		out := make([]Phase, 0, len(allPhases)-1)
		for p := range allPhases {
			if !p.IsTerminal() {
				out = append(out, p)
			}
		}
		return out
	}
	src := sourcePhases[op]
	out := make([]Phase, len(src))
	copy(out, src)
	return out
}

// CanStart reports whether op may legally start from phase p.
func CanStart(op Operation, p Phase) bool {
	if op == OpDestroy {
		return !p.IsTerminal()
	}
	for _, s := range sourcePhases[op] {
		if s == p {
			return true
		}
	}
	return false
}

// UnknownPhaseError reports a stored phase discriminator outside the
// closed phase set.
type UnknownPhaseError struct {
	// Raw is the unrecognized discriminator as stored.
	Raw string
}

func (e *UnknownPhaseError) Error() string {
	if e.Raw == "" {
		return "environment record has no phase discriminator"
	}
	return fmt.Sprintf("unknown environment phase %q", e.Raw)
}

// PhaseError reports an operation attempted from an illegal source phase.
// It is a usage error raised before any side effect occurs.
type PhaseError struct {
	// Name is the environment the operation targeted.
	Name Name

	// Operation is the rejected operation.
	Operation Operation

	// Current is the phase the environment was actually in.
	Current Phase

	// Allowed are the legal source phases for the operation.
	Allowed []Phase
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("cannot %s environment %q: phase is %q, requires one of %v",
		e.Operation, e.Name, e.Current, e.Allowed)
}
