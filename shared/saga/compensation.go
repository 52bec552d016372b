package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Compensator unwinds the completed steps of a failed instance
type Compensator struct {
	logger *zap.Logger
}

// NewCompensator creates a compensation engine
func NewCompensator(logger *zap.Logger) *Compensator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compensator{logger: logger}
}

// Compensate invokes the compensating action of every step with an index below
// instance.CurrentStepIndex, in strictly descending order, waiting for each before
// moving on. The first compensation error stops the run: earlier steps are left as
// they are and the error is returned. Steps without a compensating action are skipped.
//
// It returns how many compensating actions completed successfully. The instance
// state is never mutated; each action receives its own copy.
func (c *Compensator) Compensate(ctx context.Context, def *Definition, instance *Instance) (int, error) {
	last := instance.CurrentStepIndex - 1
	if last >= len(def.Steps) {
		last = len(def.Steps) - 1
	}

	compensated := 0
	for j := last; j >= 0; j-- {
		step := def.Steps[j]
		if !step.HasCompensation() {
			continue
		}

		if err := c.compensateStep(ctx, instance, step); err != nil {
			c.logger.Error("compensation failed, remaining compensations skipped",
				zap.String("saga_id", instance.ID),
				zap.String("saga_type", instance.Type.String()),
				zap.String("step", step.Name),
				zap.Int("skipped", j),
				zap.Error(err),
			)
			return compensated, compensationError(step.Name, err)
		}

		compensated++
		c.logger.Info("step compensated",
			zap.String("saga_id", instance.ID),
			zap.String("step", step.Name),
		)
	}

	return compensated, nil
}

func (c *Compensator) compensateStep(ctx context.Context, instance *Instance, step Step) (err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "saga.compensate",
		trace.WithAttributes(
			attribute.String("saga.id", instance.ID),
			attribute.String("saga.type", instance.Type.String()),
			attribute.String("saga.step", step.Name),
		),
	)
	defer span.End()

	status := "error"
	defer func() {
		telemetry.RecordCounter(ctx, "saga_compensations_total", "Total compensating actions", 1,
			attribute.String("saga_type", instance.Type.String()),
			attribute.String("step", step.Name),
			attribute.String("status", status),
		)
		telemetry.RecordHistogram(ctx, "saga_compensation_duration_seconds", "Compensating action duration", time.Since(start).Seconds(),
			attribute.String("step", step.Name),
			attribute.String("status", status),
		)
	}()

	defer func() {
		if r := recover(); r != nil {
			err = errors.New(fmt.Sprintf("panic: %v", r))
		}
		if err != nil {
			span.RecordError(err)
		}
	}()

	if err := step.Compensate(ctx, instance.State.Clone()); err != nil {
		return err
	}

	status = "success"
	return nil
}
