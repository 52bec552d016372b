package saga

import (
	"context"
	"time"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/pkg/errors"
	"github.com/qmuntal/stateless"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// execution is the run of one instance. The instance is only touched by the goroutine
// driving the run; the timer, Resume and Cancel reach it through the context cause and
// the resumption waiter.
type execution struct {
	o         *Orchestrator
	def       *Definition
	instance  *Instance
	lifecycle *stateless.StateMachine
	logger    *zap.Logger

	// held is the status this run holds in the store; every write expects it
	held Status

	// base carries the caller's values without its cancellation; store writes and
	// compensations use it so they survive a timeout.
	base   context.Context
	ctx    context.Context
	cancel context.CancelCauseFunc
	timer  *time.Timer
	detach func() bool
}

func (o *Orchestrator) newExecution(parent context.Context, def *Definition, instance *Instance) *execution {
	base := withSagaID(context.WithoutCancel(parent), instance.ID)
	ctx, cancel := context.WithCancelCause(base)
	detach := context.AfterFunc(o.ctx, func() {
		cancel(ErrOrchestratorClosed)
	})

	exec := &execution{
		o:         o,
		def:       def,
		instance:  instance,
		lifecycle: newLifecycle(instance),
		logger:    o.logger.With(zap.String("saga_id", instance.ID), zap.String("saga_type", def.Type.String())),
		held:      instance.Status,
		base:      base,
		ctx:       ctx,
		cancel:    cancel,
		detach:    detach,
	}
	o.track(exec)
	return exec
}

func (e *execution) armTimeout(d time.Duration) {
	e.timer = time.AfterFunc(d, e.expire)
}

func (e *execution) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
	}
}

// expire signals the timeout to whatever the run is doing: a running step sees the
// cancelled context, a suspended step gets its waiter fulfilled.
func (e *execution) expire() {
	e.cancel(ErrSagaTimeout)
	e.o.resumptions.fulfill(e.instance.ID, outcome{err: ErrSagaTimeout})
}

func (e *execution) abort(cause error) {
	e.cancel(cause)
	e.o.resumptions.fulfill(e.instance.ID, outcome{err: cause})
}

func (e *execution) release() {
	e.stopTimer()
	e.detach()
	e.cancel(nil)
	e.o.untrack(e)
}

// run drives the instance from step index from. When w is set, step from was already
// dispatched and is suspended on w.
func (e *execution) run(from int, w *waiter, output State) {
	defer e.release()

	i := from
	if w != nil {
		if err := e.complete(i, w, output); err != nil {
			e.settle(i, err)
			return
		}
		i++
	}

	for ; i < len(e.def.Steps); i++ {
		w, output, err := e.dispatch(i)
		if err == nil {
			err = e.complete(i, w, output)
		}
		if err != nil {
			e.settle(i, err)
			return
		}
	}

	e.succeed()
}

// settle ends a run whose step i failed or could not be recorded
func (e *execution) settle(i int, err error) {
	if claimLost(err) {
		e.undoStep(i)
		return
	}
	e.fail(err)
}

// undoStep compensates step i after another actor claimed the instance while the step
// was in flight. The claimer only unwinds the steps it found persisted.
func (e *execution) undoStep(i int) {
	e.stopTimer()

	step := e.def.Steps[i]
	e.logger.Warn("saga claimed by another actor while a step was in flight", zap.String("step", step.Name))
	if !step.HasCompensation() {
		return
	}

	if err := e.o.compensator.compensateStep(e.base, e.instance, step); err != nil {
		e.logger.Error("failed to compensate orphaned step", zap.String("step", step.Name), zap.Error(err))
		return
	}
	e.logger.Info("orphaned step compensated", zap.String("step", step.Name))
}

// persist writes the instance, provided the store still holds it in e.held
func (e *execution) persist() error {
	return e.o.store.Update(e.base, e.instance, e.held)
}

// catchUp adopts the progress another driver of the same instance persisted beyond
// what this run saw
func (e *execution) catchUp() {
	stored, err := e.o.store.Get(e.base, e.instance.ID)
	if err != nil {
		e.logger.Warn("failed to reload claimed saga", zap.Error(err))
		return
	}
	if stored.CurrentStepIndex > e.instance.CurrentStepIndex {
		e.instance.CurrentStepIndex = stored.CurrentStepIndex
		e.instance.State = stored.State
	}
	if stored.RetryCount > e.instance.RetryCount {
		e.instance.RetryCount = stored.RetryCount
	}
}

// interrupted reports why the run context was cancelled, if it was
func (e *execution) interrupted(step string) error {
	if e.ctx.Err() == nil {
		return nil
	}

	cause := context.Cause(e.ctx)
	if errors.Is(cause, ErrSagaTimeout) {
		return timeoutError(step)
	}
	return stepError(step, cause)
}

// dispatch runs the forward action of step i. Asynchronous steps get their waiter
// installed before the action runs and return it suspended.
func (e *execution) dispatch(i int) (*waiter, State, error) {
	step := e.def.Steps[i]
	if err := e.interrupted(step.Name); err != nil {
		return nil, nil, err
	}

	var w *waiter
	if step.Async {
		w = e.o.resumptions.register(e.instance.ID, step.Name)
	}

	output, err := e.execute(step)
	if err != nil {
		if w != nil {
			e.o.resumptions.remove(e.instance.ID, w)
		}
		if cause := e.interrupted(step.Name); cause != nil {
			return nil, nil, cause
		}
		return nil, nil, stepError(step.Name, err)
	}

	return w, output, nil
}

// complete waits for a suspended step, merges the step output into the saga state and
// persists the advanced instance
func (e *execution) complete(i int, w *waiter, output State) error {
	step := e.def.Steps[i]

	update := State{}
	update.Merge(output)

	if w != nil {
		payload, err := e.await(step, w)
		e.o.resumptions.remove(e.instance.ID, w)
		if err != nil {
			return err
		}
		update.Merge(payload)
	}

	e.instance.State.Merge(update)
	e.instance.CurrentStepIndex = i + 1
	e.instance.UpdatedAt = e.o.now()

	if err := e.persist(); err != nil {
		return stepError(step.Name, errors.Wrap(err, "failed to persist saga progress"))
	}

	e.logger.Debug("step completed", zap.String("step", step.Name), zap.Int("step_index", i))
	return nil
}

func (e *execution) await(step Step, w *waiter) (State, error) {
	e.logger.Debug("step suspended", zap.String("step", step.Name))

	var res outcome
	select {
	case res = <-w.done:
	case <-e.ctx.Done():
		// Claim the waiter with the cancellation cause; if a resume got there first
		// its outcome is already buffered.
		w.fulfill(outcome{err: context.Cause(e.ctx)})
		res = <-w.done
	}

	if res.err != nil {
		if errors.Is(res.err, ErrSagaTimeout) {
			return nil, timeoutError(step.Name)
		}
		return nil, stepError(step.Name, res.err)
	}
	return res.payload, nil
}

// execute invokes the forward action, retrying infrastructure errors up to the
// definition's MaxRetries with exponential backoff
func (e *execution) execute(step Step) (State, error) {
	backoff := e.def.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	policy := retry.WithMaxRetries(uint64(e.def.MaxRetries), retry.NewExponential(backoff))

	attempts := 0
	var output State
	err := retry.Do(e.ctx, policy, func(ctx context.Context) error {
		attempts++
		out, err := e.invoke(ctx, step, attempts)
		if err != nil {
			if IsRetryable(err) && ctx.Err() == nil {
				return retry.RetryableError(err)
			}
			return err
		}
		output = out
		return nil
	})

	if attempts > 1 {
		e.instance.RetryCount += attempts - 1
	}
	return output, err
}

func (e *execution) invoke(ctx context.Context, step Step, attempt int) (output State, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "saga.step",
		trace.WithAttributes(
			attribute.String("saga.id", e.instance.ID),
			attribute.String("saga.type", e.def.Type.String()),
			attribute.String("saga.step", step.Name),
			attribute.Int("saga.attempt", attempt),
		),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = panicError(step.Name, r)
		}

		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			e.logger.Warn("step attempt failed",
				zap.String("step", step.Name),
				zap.Int("attempt", attempt),
				zap.String("kind", string(KindOf(err))),
				zap.Error(err),
			)
		}
		telemetry.RecordHistogram(ctx, "saga_step_duration_seconds", "Saga step duration", time.Since(start).Seconds(),
			attribute.String("saga_type", e.def.Type.String()),
			attribute.String("step", step.Name),
			attribute.String("status", status),
		)
	}()

	return step.Execute(ctx, e.instance.State.Clone())
}

func (e *execution) succeed() {
	e.stopTimer()

	if err := e.lifecycle.Fire(triggerComplete); err != nil {
		e.logger.Error("invalid saga transition", zap.String("status", e.instance.Status.String()), zap.Error(err))
		return
	}
	e.finish(events.SagaCompletedEvent)
}

// fail claims the instance for compensation and unwinds it. Exactly one actor wins the
// RUNNING to COMPENSATING swap in the store; the others back off.
func (e *execution) fail(cause error) {
	e.stopTimer()

	if errors.Is(cause, ErrOrchestratorClosed) {
		e.logger.Info("saga left running for recovery", zap.Int("step_index", e.instance.CurrentStepIndex))
		return
	}

	swapped, err := e.o.store.Transition(e.base, e.instance.ID, StatusRunning, StatusCompensating)
	if err != nil {
		e.logger.Error("failed to claim saga for compensation", zap.Error(err))
		return
	}
	if !swapped {
		e.logger.Warn("saga already left RUNNING, compensation skipped")
		return
	}
	e.held = StatusCompensating
	e.catchUp()

	if err := e.lifecycle.Fire(triggerFail); err != nil {
		e.logger.Error("invalid saga transition", zap.String("status", e.instance.Status.String()), zap.Error(err))
		return
	}

	e.instance.ErrorMessage = cause.Error()
	e.instance.UpdatedAt = e.o.now()
	if err := e.persist(); err != nil {
		e.logger.Error("failed to persist compensating saga", zap.Error(err))
	}

	e.logger.Warn("saga failed, compensating",
		zap.String("kind", string(KindOf(cause))),
		zap.Int("step_index", e.instance.CurrentStepIndex),
		zap.Error(cause),
	)

	compensated, compErr := e.o.compensator.Compensate(e.base, e.def, e.instance)

	next, eventType := triggerAbandon, events.SagaFailedEvent
	switch {
	case compErr != nil:
		e.instance.ErrorMessage += "; " + compErr.Error()
	case compensated > 0:
		next, eventType = triggerCompensated, events.SagaCompensatedEvent
	}

	if err := e.lifecycle.Fire(next); err != nil {
		e.logger.Error("invalid saga transition", zap.String("status", e.instance.Status.String()), zap.Error(err))
		return
	}
	e.finish(eventType)
}

func (e *execution) finish(eventType string) {
	now := e.o.now()
	e.instance.CompletedAt = &now
	e.instance.UpdatedAt = now

	if err := e.persist(); err != nil {
		if claimLost(err) {
			e.logger.Warn("saga was claimed by another actor, outcome discarded",
				zap.String("status", e.instance.Status.String()),
				zap.Error(err),
			)
			return
		}
		e.logger.Error("failed to persist finished saga", zap.Error(err))
	}

	status := e.instance.Status.String()
	e.logger.Info("saga finished",
		zap.String("status", status),
		zap.Int("step_index", e.instance.CurrentStepIndex),
		zap.Int("retries", e.instance.RetryCount),
		zap.Duration("elapsed", now.Sub(e.instance.StartedAt)),
		zap.String("error", e.instance.ErrorMessage),
	)

	telemetry.RecordCounter(e.base, "saga_finished_total", "Total sagas that reached a terminal status", 1,
		attribute.String("saga_type", e.def.Type.String()),
		attribute.String("status", status),
	)
	telemetry.RecordHistogram(e.base, "saga_duration_seconds", "Saga duration from start to terminal status", now.Sub(e.instance.StartedAt).Seconds(),
		attribute.String("saga_type", e.def.Type.String()),
		attribute.String("status", status),
	)

	e.o.publishLifecycle(e.base, e.instance, eventType)
	e.o.scheduleRetention(e.instance.ID)
}
