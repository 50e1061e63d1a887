// Package telemetry provides observability instrumentation for openlift:
// structured logging (zerolog), distributed tracing (OpenTelemetry), and
// Prometheus metrics. Command handlers and the step runner emit one span
// per command with a child span per step, and the logger propagates
// environment and operation fields through context.
package telemetry
