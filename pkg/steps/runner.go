package steps

import (
	"context"
	"time"

	"github.com/openlift/openlift/pkg/telemetry"
)

// Runner executes an ordered step sequence with uniform tracing, metrics,
// and logging. Steps run strictly sequentially: each depends on its
// predecessor's side effects.
type Runner struct {
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics
}

// NewRunner creates a runner. Both tracer and metrics may be nil, in
// which case the corresponding instrumentation is skipped.
func NewRunner(tracer *telemetry.Tracer, metrics *telemetry.Metrics) *Runner {
	return &Runner{tracer: tracer, metrics: metrics}
}

// Run executes the steps in order. The first failure of a non-best-effort
// step aborts the sequence and is returned wrapped as *StepError. Failures
// of best-effort steps are recorded as warnings on sc and the sequence
// continues.
func (r *Runner) Run(ctx context.Context, sc *Context, sequence ...Step) error {
	for _, step := range sequence {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runOne(ctx, sc, step); err != nil {
			return err
		}
	}
	return nil
}

// runOne executes a single step with its span, log fields, and metrics.
func (r *Runner) runOne(ctx context.Context, sc *Context, step Step) error {
	logger := sc.Logger.WithStep(step.Name())
	logger.Debug("step started")

	start := time.Now()
	var err error
	if r.tracer != nil {
		spanCtx, span := r.tracer.StartStepSpan(ctx, step.Name(), sc.Environment)
		err = step.Run(spanCtx, sc)
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	} else {
		err = step.Run(ctx, sc)
	}
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "failure"
	}
	if r.metrics != nil {
		r.metrics.RecordStepExecution(sc.Operation, step.Name(), status, duration)
	}

	if err == nil {
		logger.WithField("duration", duration.String()).Debug("step completed")
		return nil
	}

	if isBestEffort(step) {
		logger.WithError(err).Warn("best-effort step failed, continuing")
		sc.AddWarning(step.Name(), err)
		return nil
	}

	logger.WithError(err).Error("step failed")
	return &StepError{
		Step:        step.Name(),
		Environment: sc.Environment,
		Operation:   sc.Operation,
		Err:         err,
	}
}
