package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/openlift/openlift/pkg/configtool"
	"github.com/openlift/openlift/pkg/environment"
	"github.com/openlift/openlift/pkg/locks"
	"github.com/openlift/openlift/pkg/provisioner"
	"github.com/openlift/openlift/pkg/render"
	"github.com/openlift/openlift/pkg/steps"
	"github.com/openlift/openlift/pkg/stores"
	"github.com/openlift/openlift/pkg/telemetry"
	sshtransport "github.com/openlift/openlift/pkg/transports/ssh"
)

// Subdirectories of an environment's build dir, mirroring the layout of
// the rendered source tree.
const (
	ProvisionerSubdir = "terraform"
	ConfigSubdir      = "ansible"
)

// DefaultBootMarker is the remote file whose existence means first-boot
// initialization finished (cloud-init convention).
const DefaultBootMarker = "/var/lib/cloud/instance/boot-finished"

// Default polling parameters for the remote probes.
const (
	DefaultSSHPollInterval    = 5 * time.Second
	DefaultSSHPollTimeout     = 5 * time.Minute
	DefaultBootPollInterval   = 10 * time.Second
	DefaultBootPollTimeout    = 10 * time.Minute
	DefaultHealthPollInterval = 5 * time.Second
	DefaultHealthPollTimeout  = 2 * time.Minute
)

// Deps wires a Handler. Store and Locker are required; Journal, Tracer,
// and Metrics are optional, and the tool adapters are required only by
// the operations that use them.
type Deps struct {
	Store       stores.Store
	Journal     stores.Journal
	Locker      *locks.Locker
	Renderer    render.Renderer
	Provisioner provisioner.Provisioner
	ConfigTool  configtool.Runner
	Transport   sshtransport.Transport

	Clock   steps.Clock
	Logger  *telemetry.Logger
	Tracer  *telemetry.Tracer
	Metrics *telemetry.Metrics
	Runner  *steps.Runner

	// SourceDir is the template source tree rendered into each
	// environment's build dir.
	SourceDir string

	// EnvDataRoot is the directory new environments get their per-name
	// data dir under.
	EnvDataRoot string

	// BuildRoot is the directory new environments get their per-name
	// build dir under.
	BuildRoot string

	// Playbook is the configure playbook, relative to the rendered
	// config subdir.
	Playbook string

	// ReleasePlaybook is the release playbook, relative to the rendered
	// config subdir.
	ReleasePlaybook string

	// ValidateCommand, when set, runs remotely after configure to prove
	// the required software landed.
	ValidateCommand string

	// Service is the remote service unit restarted on release and
	// probed by run.
	Service string

	// HealthCommand overrides the remote health probe derived from
	// Service.
	HealthCommand string

	// Artifact is the local artifact uploaded on release. Empty skips
	// the upload.
	Artifact string

	// RemoteArtifactPath is where the artifact lands on the instance.
	RemoteArtifactPath string

	// BootMarker is the remote boot-completion file polled after
	// provisioning.
	BootMarker string

	SSHPollInterval    time.Duration
	SSHPollTimeout     time.Duration
	BootPollInterval   time.Duration
	BootPollTimeout    time.Duration
	HealthPollInterval time.Duration
	HealthPollTimeout  time.Duration
}

// Handler executes lifecycle operations against environments.
type Handler struct {
	d Deps
}

// New creates a handler, validating required dependencies and filling
// in defaults for optional ones.
func New(d Deps) (*Handler, error) {
	if d.Store == nil {
		return nil, fmt.Errorf("lifecycle handler requires a store")
	}
	if d.Locker == nil {
		return nil, fmt.Errorf("lifecycle handler requires a locker")
	}
	if d.Clock == nil {
		d.Clock = steps.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = telemetry.FromContext(context.Background())
	}
	if d.Runner == nil {
		d.Runner = steps.NewRunner(d.Tracer, d.Metrics)
	}
	if d.Playbook == "" {
		d.Playbook = "site.yml"
	}
	if d.ReleasePlaybook == "" {
		d.ReleasePlaybook = "release.yml"
	}
	if d.BootMarker == "" {
		d.BootMarker = DefaultBootMarker
	}
	if d.RemoteArtifactPath == "" {
		d.RemoteArtifactPath = "/opt/openlift/artifact"
	}
	if d.SSHPollInterval == 0 {
		d.SSHPollInterval = DefaultSSHPollInterval
	}
	if d.SSHPollTimeout == 0 {
		d.SSHPollTimeout = DefaultSSHPollTimeout
	}
	if d.BootPollInterval == 0 {
		d.BootPollInterval = DefaultBootPollInterval
	}
	if d.BootPollTimeout == 0 {
		d.BootPollTimeout = DefaultBootPollTimeout
	}
	if d.HealthPollInterval == 0 {
		d.HealthPollInterval = DefaultHealthPollInterval
	}
	if d.HealthPollTimeout == 0 {
		d.HealthPollTimeout = DefaultHealthPollTimeout
	}
	return &Handler{d: d}, nil
}

// now returns the injected clock's current time.
func (h *Handler) now() time.Time {
	return h.d.Clock.Now()
}

// provisionerDir is the terraform working directory inside the build dir.
func (h *Handler) provisionerDir(env environment.Environment) string {
	return filepath.Join(env.BuildDir, ProvisionerSubdir)
}

// playbookPath resolves a playbook name inside the rendered config subdir.
func (h *Handler) playbookPath(env environment.Environment, name string) string {
	return filepath.Join(env.BuildDir, ConfigSubdir, name)
}

// healthCommand is the remote probe used by the run operation.
func (h *Handler) healthCommand() string {
	if h.d.HealthCommand != "" {
		return h.d.HealthCommand
	}
	if h.d.Service != "" {
		return "systemctl is-active " + h.d.Service
	}
	return ""
}

// execute is the common command skeleton. It acquires the coordination
// lock, loads the record, runs fn, and records the audit outcome.
func (h *Handler) execute(ctx context.Context, name environment.Name, op environment.Operation, fn func(ctx context.Context, env environment.Environment) (Result, error)) (Result, error) {
	started := h.now()
	opName := string(op)

	if h.d.Metrics != nil {
		h.d.Metrics.RecordCommandStarted(opName)
	}

	var span trace.Span
	if h.d.Tracer != nil {
		ctx, span = h.d.Tracer.StartCommandSpan(ctx, opName, name.String())
	}

	res, err := h.locked(ctx, name, op, fn)

	if span != nil {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	}

	status := "success"
	if err != nil {
		status = "failure"
		if h.d.Metrics != nil {
			h.d.Metrics.RecordError(string(ClassOf(err)))
		}
	}
	if h.d.Metrics != nil {
		h.d.Metrics.RecordCommandCompleted(opName, status, time.Since(started))
	}
	h.audit(ctx, name, opName, status)
	return res, err
}

// locked runs fn under the environment's coordination lock.
func (h *Handler) locked(ctx context.Context, name environment.Name, op environment.Operation, fn func(ctx context.Context, env environment.Environment) (Result, error)) (Result, error) {
	guard, err := h.d.Locker.Acquire(ctx, name, string(op))
	if err != nil {
		var held *locks.HeldError
		if errors.As(err, &held) {
			return Result{}, NewError(ClassConflict, err).
				WithOperation(string(op)).
				WithEnvironment(name.String()).
				WithHint("another lift command holds this environment; wait for it or check the named process")
		}
		return Result{}, NewError(ClassConflict, err).
			WithOperation(string(op)).
			WithEnvironment(name.String())
	}
	defer guard.Release()

	env, err := h.d.Store.Load(ctx, name)
	if err != nil {
		return Result{}, h.loadError(name, op, err)
	}
	return fn(ctx, env)
}

// loadError classifies a repository load failure.
func (h *Handler) loadError(name environment.Name, op environment.Operation, err error) *Error {
	e := NewError(ClassPersistence, err).
		WithOperation(string(op)).
		WithEnvironment(name.String())
	if errors.Is(err, stores.ErrNotFound) {
		e.Class = ClassValidation
		e.Hint = fmt.Sprintf("no such environment; create it first with `lift init %s`", name)
	}
	var corrupt *stores.CorruptRecordError
	if errors.As(err, &corrupt) {
		e.Hint = "the stored record cannot be trusted; inspect it manually before retrying"
	}
	return e
}

// checkPhase validates that op may start from env's current phase.
func (h *Handler) checkPhase(env environment.Environment, op environment.Operation) *Error {
	if environment.CanStart(op, env.Phase) {
		return nil
	}
	err := &environment.PhaseError{
		Name:      env.Name,
		Operation: op,
		Current:   env.Phase,
		Allowed:   environment.SourcePhases(op),
	}
	return NewError(ClassValidation, err).
		WithOperation(string(op)).
		WithEnvironment(env.Name.String()).
		WithHint(fmt.Sprintf("%s requires phase %v, current phase is %q",
			op, environment.SourcePhases(op), env.Phase))
}

// persist saves env, classifying failures.
func (h *Handler) persist(ctx context.Context, env environment.Environment, op environment.Operation) error {
	if err := h.d.Store.Save(ctx, env); err != nil {
		return NewError(ClassPersistence, err).
			WithOperation(string(op)).
			WithEnvironment(env.Name.String()).
			WithHint("the record could not be written; check the data directory")
	}
	return nil
}

// journal records a transition, best-effort. A journal failure is
// logged and never fails the command.
func (h *Handler) journal(ctx context.Context, op environment.Operation, from, to environment.Environment, cause string) {
	if h.d.Journal == nil {
		return
	}
	ev := &stores.TransitionEvent{
		ID:          uuid.New().String(),
		Environment: to.Name.String(),
		Operation:   string(op),
		FromPhase:   string(from.Phase),
		ToPhase:     string(to.Phase),
		Cause:       cause,
		OccurredAt:  h.now().UTC(),
	}
	if err := h.d.Journal.AppendTransition(ctx, ev); err != nil {
		h.d.Logger.WithEnvironment(to.Name.String()).WithError(err).
			Warn("failed to journal transition")
	}
}

// audit records a command invocation, best-effort.
func (h *Handler) audit(ctx context.Context, name environment.Name, action, outcome string) {
	if h.d.Journal == nil {
		return
	}
	actor := "unknown"
	if u, err := user.Current(); err == nil {
		actor = u.Username
	} else if v := os.Getenv("USER"); v != "" {
		actor = v
	}
	entry := &stores.AuditEntry{
		Environment: name.String(),
		Action:      action,
		Actor:       actor,
		Outcome:     outcome,
		Timestamp:   h.now().UTC(),
	}
	if err := h.d.Journal.AppendAudit(ctx, entry); err != nil {
		h.d.Logger.WithEnvironment(name.String()).WithError(err).
			Warn("failed to journal audit entry")
	}
}

// stepContext builds the per-operation step context.
func (h *Handler) stepContext(env environment.Environment, op environment.Operation) *steps.Context {
	return steps.NewContext(env.Name.String(), string(op), h.d.Logger, h.d.Clock)
}

// runSteps executes a sequence and classifies the failure, if any.
func (h *Handler) runSteps(ctx context.Context, sc *steps.Context, op environment.Operation, sequence ...steps.Step) error {
	if err := h.d.Runner.Run(ctx, sc, sequence...); err != nil {
		return NewError(ClassStep, err).
			WithOperation(string(op)).
			WithEnvironment(sc.Environment)
	}
	return nil
}

// updatePhaseGauge refreshes the environments-by-phase metric.
func (h *Handler) updatePhaseGauge(ctx context.Context) {
	if h.d.Metrics == nil {
		return
	}
	names, err := h.d.Store.List(ctx)
	if err != nil {
		return
	}
	counts := map[string]float64{}
	for _, n := range names {
		env, err := h.d.Store.Load(ctx, n)
		if err != nil {
			continue
		}
		counts[string(env.Phase)]++
	}
	for phase, count := range counts {
		h.d.Metrics.SetEnvironmentPhaseCount(phase, count)
	}
}
