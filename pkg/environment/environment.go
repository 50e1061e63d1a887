package environment

import (
	"time"
)

// Metadata keys understood by the lifecycle handlers.
const (
	// MetaRegistered marks an environment whose instance was adopted via
	// the register operation rather than provisioned by this tool. The
	// destroy handler refuses such environments without an explicit
	// override.
	MetaRegistered = "registered"

	// MetaRegisteredExternal is the value stamped by Register.
	MetaRegisteredExternal = "external"

	// MetaFailureCause records the root cause of the most recent failed
	// transition, for later display.
	MetaFailureCause = "failure_cause"
)

// Environment is one deployment target: its identity, its connection
// credentials, the values discovered at provision time, the local
// directories holding generated artifacts, and its current phase.
//
// Environment has value semantics. Transition methods return a new value
// in the next phase and never modify the receiver, so a caller can never
// alias a stale phase.
type Environment struct {
	// Name identifies the environment. Immutable.
	Name Name `json:"name"`

	// Phase is the current lifecycle stage.
	Phase Phase `json:"phase"`

	// SSH holds the credentials used to reach the instance.
	SSH SSHCredentials `json:"ssh"`

	// Outputs are the runtime values discovered once an instance exists.
	Outputs RuntimeOutputs `json:"outputs"`

	// DataDir is the per-environment directory for persistent local
	// artifacts (state records, journals, provisioner state).
	DataDir string `json:"data_dir"`

	// BuildDir is the per-environment directory that rendered tool
	// configuration is written into before invoking external tools.
	BuildDir string `json:"build_dir"`

	// Metadata is a free-form string map. See the Meta* constants for
	// keys with defined meaning.
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt is when the environment record was first created.
	CreatedAt time.Time `json:"created_at"`

	// LastTransitionAt is when the phase last changed.
	LastTransitionAt time.Time `json:"last_transition_at"`
}

// New creates an environment in PhaseCreated.
func New(name Name, ssh SSHCredentials, dataDir, buildDir string, now time.Time) Environment {
	return Environment{
		Name:             name,
		Phase:            PhaseCreated,
		SSH:              ssh,
		DataDir:          dataDir,
		BuildDir:         buildDir,
		Metadata:         map[string]string{},
		CreatedAt:        now.UTC(),
		LastTransitionAt: now.UTC(),
	}
}

// clone returns a deep copy so transition results never share the
// metadata map with their source value.
func (e Environment) clone() Environment {
	out := e
	out.Metadata = make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// transition returns a copy of e in phase p with the transition timestamp
// updated and any previous failure cause cleared.
func (e Environment) transition(p Phase, now time.Time) Environment {
	out := e.clone()
	out.Phase = p
	out.LastTransitionAt = now.UTC()
	delete(out.Metadata, MetaFailureCause)
	return out
}

// failure returns a copy of e in failed phase p carrying cause. A failed
// environment is data, not an exception: it persists like any other.
func (e Environment) failure(p Phase, cause string, now time.Time) Environment {
	out := e.clone()
	out.Phase = p
	out.LastTransitionAt = now.UTC()
	out.Metadata[MetaFailureCause] = cause
	return out
}

// StartProvisioning moves created (or a failed prior attempt) into
// provisioning.
func (e Environment) StartProvisioning(now time.Time) Environment {
	return e.transition(PhaseProvisioning, now)
}

// Provisioned records a successful provision, stamping the instance
// address discovered from the provisioner outputs.
func (e Environment) Provisioned(instanceAddress string, now time.Time) Environment {
	out := e.transition(PhaseProvisioned, now)
	out.Outputs.InstanceAddress = instanceAddress
	return out
}

// ProvisionFailed records a failed provision attempt with its cause.
func (e Environment) ProvisionFailed(cause string, now time.Time) Environment {
	return e.failure(PhaseProvisionFailed, cause, now)
}

// Register adopts an externally managed instance, moving created straight
// to provisioned and marking the environment as externally registered.
func (e Environment) Register(instanceAddress string, now time.Time) Environment {
	out := e.transition(PhaseProvisioned, now)
	out.Outputs.InstanceAddress = instanceAddress
	out.Metadata[MetaRegistered] = MetaRegisteredExternal
	return out
}

// IsExternallyRegistered reports whether the instance was adopted via
// Register rather than provisioned by this tool.
func (e Environment) IsExternallyRegistered() bool {
	return e.Metadata[MetaRegistered] == MetaRegisteredExternal
}

// StartConfiguring moves provisioned (or a failed prior attempt) into
// configuring.
func (e Environment) StartConfiguring(now time.Time) Environment {
	return e.transition(PhaseConfiguring, now)
}

// Configured records a successful configure.
func (e Environment) Configured(now time.Time) Environment {
	return e.transition(PhaseConfigured, now)
}

// ConfigureFailed records a failed configure attempt with its cause.
func (e Environment) ConfigureFailed(cause string, now time.Time) Environment {
	return e.failure(PhaseConfigureFailed, cause, now)
}

// StartReleasing moves configured (or a previous release) into releasing.
func (e Environment) StartReleasing(now time.Time) Environment {
	return e.transition(PhaseReleasing, now)
}

// Released records a successful release.
func (e Environment) Released(now time.Time) Environment {
	return e.transition(PhaseReleased, now)
}

// ReleaseFailed records a failed release attempt with its cause.
func (e Environment) ReleaseFailed(cause string, now time.Time) Environment {
	return e.failure(PhaseReleaseFailed, cause, now)
}

// Running records a passed run check on a released environment.
func (e Environment) Running(now time.Time) Environment {
	return e.transition(PhaseRunning, now)
}

// StartDestroying moves any non-terminal phase into destroying.
func (e Environment) StartDestroying(now time.Time) Environment {
	return e.transition(PhaseDestroying, now)
}

// Destroyed records the terminal phase. Once persisted, no further
// transition is legal.
func (e Environment) Destroyed(now time.Time) Environment {
	return e.transition(PhaseDestroyed, now)
}

// FailureCause returns the recorded cause of the most recent failed
// transition, or "" when the environment is not in a failed phase.
func (e Environment) FailureCause() string {
	return e.Metadata[MetaFailureCause]
}
