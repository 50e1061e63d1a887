// Package steps provides the unit-of-work framework the lifecycle
// command handlers are built from. A Step is a named, traceable piece of
// a command: a one-shot external invocation, a bounded poll until some
// condition holds, or a best-effort cleanup whose failure is downgraded
// to a warning. The Runner executes steps in order with a trace span,
// duration metrics, and structured log fields per step.
package steps
