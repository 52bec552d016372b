package saga

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const recoveryConcurrency = 8

// RecoveryReport summarizes one Recover sweep
type RecoveryReport struct {
	Compensated int
	Adopted     int
	Deferred    int
	Skipped     int
}

// Recover sweeps RUNNING instances left behind by a previous process.
//
// Expired instances are compensated right away with "Saga timeout". Unexpired ones
// suspended on an asynchronous step are adopted: a waiter is installed again and the
// remaining timeout is armed, without dispatching the step a second time. Unexpired
// instances on a synchronous step may still be driven by a live process sharing the
// store, so they are only watched: once the deadline passes, an instance still
// RUNNING is compensated. Instances of unregistered types and instances already
// running or watched in this process are skipped.
func (o *Orchestrator) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	if o.closed.Load() {
		return report, ErrOrchestratorClosed
	}

	instances, err := o.store.ListByStatus(ctx, StatusRunning)
	if err != nil {
		return report, errors.Wrap(err, "failed to list running sagas")
	}

	stuck, err := o.store.ListByStatus(ctx, StatusCompensating)
	if err != nil {
		return report, errors.Wrap(err, "failed to list compensating sagas")
	}
	for _, instance := range stuck {
		if o.tracked(instance.ID) {
			continue
		}
		o.logger.Error("saga interrupted during compensation needs manual reconciliation",
			zap.String("saga_id", instance.ID),
			zap.String("saga_type", instance.Type.String()),
			zap.Int("step_index", instance.CurrentStepIndex),
		)
	}

	now := o.now()
	var toCompensate []*execution

	for _, instance := range instances {
		if o.tracked(instance.ID) || o.isWatched(instance.ID) {
			report.Skipped++
			continue
		}

		def, ok := o.definition(instance.Type)
		if !ok {
			o.logger.Warn("no definition registered for saga, skipping recovery",
				zap.String("saga_id", instance.ID),
				zap.String("saga_type", instance.Type.String()),
			)
			report.Skipped++
			continue
		}

		if instance.Expired(now) {
			toCompensate = append(toCompensate, o.newExecution(ctx, def, instance))
			continue
		}

		index := instance.CurrentStepIndex
		if index < len(def.Steps) && def.Steps[index].Async {
			exec := o.newExecution(ctx, def, instance)
			w := o.resumptions.register(instance.ID, def.Steps[index].Name)
			exec.armTimeout(instance.TimeoutAt.Sub(now))
			o.spawn(func() { exec.run(index, w, nil) })

			exec.logger.Info("saga adopted", zap.String("step", def.Steps[index].Name))
			report.Adopted++
			continue
		}

		o.watch(def, instance.ID, instance.TimeoutAt.Sub(now))
		report.Deferred++
	}

	var g errgroup.Group
	g.SetLimit(recoveryConcurrency)
	for _, exec := range toCompensate {
		exec := exec
		g.Go(func() error {
			defer exec.release()
			exec.fail(timeoutError(exec.currentStepName()))
			return nil
		})
	}
	_ = g.Wait()

	report.Compensated = len(toCompensate)
	o.logger.Info("saga recovery finished",
		zap.Int("compensated", report.Compensated),
		zap.Int("adopted", report.Adopted),
		zap.Int("deferred", report.Deferred),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

func (e *execution) currentStepName() string {
	index := e.instance.CurrentStepIndex
	if index >= len(e.def.Steps) {
		index = len(e.def.Steps) - 1
	}
	return e.def.Steps[index].Name
}

// watch compensates sagaID once its deadline passed, unless it left RUNNING by then
func (o *Orchestrator) watch(def *Definition, sagaID string, remaining time.Duration) {
	o.mu.Lock()
	o.watched[sagaID] = struct{}{}
	o.mu.Unlock()

	o.logger.Info("saga watched until its deadline",
		zap.String("saga_id", sagaID),
		zap.Duration("remaining", remaining),
	)
	o.schedule(remaining+o.orphanGrace, func() { o.expireOrphan(def, sagaID) })
}

func (o *Orchestrator) isWatched(sagaID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	_, ok := o.watched[sagaID]
	return ok
}

func (o *Orchestrator) expireOrphan(def *Definition, sagaID string) {
	o.mu.Lock()
	delete(o.watched, sagaID)
	o.mu.Unlock()

	if o.tracked(sagaID) {
		return
	}

	instance, err := o.store.Get(context.Background(), sagaID)
	if err != nil {
		if !errors.Is(err, ErrSagaNotFound) {
			o.logger.Error("failed to load watched saga", zap.String("saga_id", sagaID), zap.Error(err))
		}
		return
	}
	if instance.Status != StatusRunning {
		o.logger.Debug("watched saga settled by its owner",
			zap.String("saga_id", sagaID),
			zap.String("status", instance.Status.String()),
		)
		return
	}

	exec := o.newExecution(context.Background(), def, instance)
	defer exec.release()
	exec.fail(timeoutError(exec.currentStepName()))
}
