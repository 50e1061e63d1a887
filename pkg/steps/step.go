package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/openlift/openlift/pkg/telemetry"
)

// Step is one named, traceable unit of work within a lifecycle command.
type Step interface {
	// Name identifies the step in logs, traces, and error messages.
	Name() string

	// Run executes the step. A returned error is terminal for the step;
	// the Runner decides whether it is terminal for the sequence.
	Run(ctx context.Context, sc *Context) error
}

// Context carries the shared state a step sequence operates on: which
// environment and operation the steps belong to, the injected clock, and
// the warnings accumulated by best-effort steps.
type Context struct {
	// Environment is the target environment name.
	Environment string

	// Operation is the lifecycle command being executed.
	Operation string

	// Logger carries the environment and operation fields; the Runner
	// adds a step field per step.
	Logger *telemetry.Logger

	// Clock is the time source for polling steps.
	Clock Clock

	warnings []Warning
}

// NewContext creates a step context. A nil logger falls back to the
// default; a nil clock falls back to the system clock.
func NewContext(environment, operation string, logger *telemetry.Logger, clock Clock) *Context {
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Context{
		Environment: environment,
		Operation:   operation,
		Logger:      logger.WithEnvironment(environment).WithOperation(operation),
		Clock:       clock,
	}
}

// Warning records a non-fatal step failure.
type Warning struct {
	// Step is the step that failed.
	Step string

	// Err is the recorded failure.
	Err error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Step, w.Err)
}

// AddWarning records a non-fatal failure against the context.
func (c *Context) AddWarning(step string, err error) {
	c.warnings = append(c.warnings, Warning{Step: step, Err: err})
}

// Warnings returns the warnings accumulated so far.
func (c *Context) Warnings() []Warning {
	return c.warnings
}

// StepError wraps a step failure with the environment and operation it
// occurred in; the original cause remains walkable via Unwrap.
type StepError struct {
	// Step is the step that failed.
	Step string

	// Environment is the environment the step ran against.
	Environment string

	// Operation is the lifecycle command the step belonged to.
	Operation string

	// Err is the underlying failure.
	Err error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed during %s of environment %q: %v",
		e.Step, e.Operation, e.Environment, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a polling step that never succeeded within its
// cap. LastErr is the most recent probe failure, preserved for diagnosis.
type TimeoutError struct {
	// Step is the polling step that timed out.
	Step string

	// Timeout is the total duration cap that elapsed.
	Timeout time.Duration

	// Attempts is how many probes ran.
	Attempts int

	// LastErr is the final probe failure, if any probe ran.
	LastErr error
}

func (e *TimeoutError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("step %q did not succeed within %s (%d attempts): %v",
			e.Step, e.Timeout, e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("step %q did not succeed within %s (%d attempts)", e.Step, e.Timeout, e.Attempts)
}

func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}

// funcStep adapts a plain function into a Step.
type funcStep struct {
	name string
	fn   func(ctx context.Context, sc *Context) error
}

// Func creates a one-shot step from a function. No retry: a failure is
// terminal for the step.
func Func(name string, fn func(ctx context.Context, sc *Context) error) Step {
	return &funcStep{name: name, fn: fn}
}

func (s *funcStep) Name() string {
	return s.name
}

func (s *funcStep) Run(ctx context.Context, sc *Context) error {
	return s.fn(ctx, sc)
}

// pollStep retries a probe on a fixed interval until success or until
// the total duration cap elapses.
type pollStep struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	probe    func(ctx context.Context, sc *Context) error
}

// Poll creates a polling step. Probe failures below the cap are logged
// at debug level, not reported; only the final timeout surfaces, carrying
// the last probe failure as its cause.
func Poll(name string, interval, timeout time.Duration, probe func(ctx context.Context, sc *Context) error) Step {
	return &pollStep{name: name, interval: interval, timeout: timeout, probe: probe}
}

func (s *pollStep) Name() string {
	return s.name
}

func (s *pollStep) Run(ctx context.Context, sc *Context) error {
	deadline := sc.Clock.Now().Add(s.timeout)
	attempts := 0

	var lastErr error
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempts++
		lastErr = s.probe(ctx, sc)
		if lastErr == nil {
			return nil
		}
		sc.Logger.WithStep(s.name).WithError(lastErr).Debugf("probe attempt %d failed, retrying", attempts)

		if !sc.Clock.Now().Add(s.interval).Before(deadline) {
			return &TimeoutError{
				Step:     s.name,
				Timeout:  s.timeout,
				Attempts: attempts,
				LastErr:  lastErr,
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sc.Clock.After(s.interval):
		}
	}
}

// bestEffortStep marks a step whose failure must not abort the sequence.
type bestEffortStep struct {
	inner Step
}

// BestEffort wraps a step so its failure is recorded as a warning on the
// context and the sequence continues. Used for cleanup after the primary
// resource is already gone.
func BestEffort(inner Step) Step {
	return &bestEffortStep{inner: inner}
}

func (s *bestEffortStep) Name() string {
	return s.inner.Name()
}

func (s *bestEffortStep) Run(ctx context.Context, sc *Context) error {
	return s.inner.Run(ctx, sc)
}

// isBestEffort reports whether a step tolerates failure.
func isBestEffort(s Step) bool {
	_, ok := s.(*bestEffortStep)
	return ok
}
