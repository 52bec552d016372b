package saga

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultRetryBackoff = 100 * time.Millisecond
	defaultOrphanGrace  = time.Second
)

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithClock overrides the clock used for timestamps and expiry checks
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithRetention deletes terminal instances from the store once the window elapses.
// Zero keeps them forever.
func WithRetention(retention time.Duration) Option {
	return func(o *Orchestrator) {
		o.retention = retention
	}
}

// WithPurgeOnFinish deletes instances from the store as soon as they reach a terminal
// status, once the terminal lifecycle event went out
func WithPurgeOnFinish() Option {
	return func(o *Orchestrator) {
		o.purgeOnFinish = true
	}
}

// WithIDGenerator overrides how saga IDs are minted
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) {
		o.newID = newID
	}
}

// Orchestrator drives saga instances through their definitions: it runs steps in
// order, suspends on asynchronous steps until Resume, enforces the per-instance
// timeout and compensates completed steps in reverse order on failure.
type Orchestrator struct {
	store       Store
	publisher   events.Publisher
	logger      *zap.Logger
	compensator *Compensator
	resumptions *resumptions

	now           func() time.Time
	newID         func() string
	retention     time.Duration
	purgeOnFinish bool

	// orphanGrace delays the deadline check of instances another process may still
	// be driving, so a live owner times out its own run first
	orphanGrace time.Duration

	mu          deadlock.RWMutex
	definitions map[Type]*Definition
	executions  map[string]*execution
	watched     map[string]struct{}
	timers      map[*time.Timer]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewOrchestrator creates an orchestrator backed by store. Lifecycle events are sent to
// publisher when it is not nil.
func NewOrchestrator(store Store, publisher events.Publisher, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:       store,
		publisher:   publisher,
		logger:      logger,
		compensator: NewCompensator(logger),
		resumptions: newResumptions(),
		now:         time.Now,
		newID:       uuid.NewString,
		orphanGrace: defaultOrphanGrace,
		definitions: make(map[Type]*Definition),
		executions:  make(map[string]*execution),
		watched:     make(map[string]struct{}),
		timers:      make(map[*time.Timer]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Register makes a definition known so that Recover can rebuild its instances
func (o *Orchestrator) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	o.definitions[def.Type] = def
	o.mu.Unlock()

	return nil
}

func (o *Orchestrator) definition(sagaType Type) (*Definition, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	def, ok := o.definitions[sagaType]
	return def, ok
}

// Start creates an instance of def seeded with initial and dispatches its first step on
// the calling goroutine. An error raised by the first step is returned together with the
// saga ID, after the instance has been finalized. Everything after the first step runs
// in the background.
func (o *Orchestrator) Start(ctx context.Context, def *Definition, initial State) (string, error) {
	if o.closed.Load() {
		return "", ErrOrchestratorClosed
	}
	if err := o.Register(def); err != nil {
		return "", err
	}

	now := o.now()
	state := State{}
	state.Merge(initial)

	instance := &Instance{
		ID:         o.newID(),
		Type:       def.Type,
		Status:     StatusRunning,
		State:      state,
		MaxRetries: def.MaxRetries,
		StartedAt:  now,
		TimeoutAt:  now.Add(def.Timeout),
		UpdatedAt:  now,
	}

	if err := o.store.Create(ctx, instance); err != nil {
		return "", errors.Wrap(err, "failed to persist saga")
	}

	logger := o.logger.With(zap.String("saga_id", instance.ID), zap.String("saga_type", def.Type.String()))
	logger.Info("saga started", zap.Int("steps", len(def.Steps)))

	telemetry.RecordCounter(ctx, "saga_started_total", "Total sagas started", 1,
		attribute.String("saga_type", def.Type.String()),
	)
	o.publishLifecycle(ctx, instance, events.SagaStartedEvent)

	exec := o.newExecution(ctx, def, instance)
	exec.armTimeout(def.Timeout)

	w, output, err := exec.dispatch(0)
	if err == nil && w == nil {
		err = exec.complete(0, nil, output)
		if err == nil {
			o.spawn(func() { exec.run(1, nil, nil) })
			return instance.ID, nil
		}
	}
	if err != nil {
		exec.settle(0, err)
		exec.release()
		return instance.ID, err
	}

	o.spawn(func() { exec.run(0, w, output) })
	return instance.ID, nil
}

// GetState returns a snapshot of the instance
func (o *Orchestrator) GetState(ctx context.Context, sagaID string) (*Instance, error) {
	instance, err := o.store.Get(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// Resume completes the asynchronous step the instance is suspended on. On success the
// payload is merged into the saga state; on failure the saga compensates. Deliveries for
// unknown, terminal or not-suspended instances are logged and ignored, so duplicate and
// late messages are safe.
func (o *Orchestrator) Resume(ctx context.Context, sagaID string, payload State, success bool) error {
	res := outcome{payload: payload.Clone()}
	if !success {
		res = outcome{err: rejection(payload)}
	}

	if o.resumptions.fulfill(sagaID, res) {
		o.recordResume(ctx, "delivered")
		o.logger.Debug("saga resumed", zap.String("saga_id", sagaID), zap.Bool("success", success))
		return nil
	}

	instance, err := o.store.Get(ctx, sagaID)
	switch {
	case errors.Is(err, ErrSagaNotFound):
		o.recordResume(ctx, "unknown")
		o.logger.Warn("resume for unknown saga ignored", zap.String("saga_id", sagaID))
		return nil
	case err != nil:
		return errors.Wrap(err, "failed to load saga for resume")
	case instance.Status.IsTerminal():
		o.recordResume(ctx, "late")
		o.logger.Warn("late resume ignored",
			zap.String("saga_id", sagaID),
			zap.String("status", instance.Status.String()),
		)
	default:
		o.recordResume(ctx, "not_suspended")
		o.logger.Warn("resume ignored, saga is not suspended",
			zap.String("saga_id", sagaID),
			zap.String("status", instance.Status.String()),
			zap.Int("step_index", instance.CurrentStepIndex),
		)
	}
	return nil
}

// Cancel fails a running instance as if its current step had failed with reason.
// It is a no-op for instances that are not running in this process.
func (o *Orchestrator) Cancel(ctx context.Context, sagaID, reason string) error {
	o.mu.RLock()
	exec, ok := o.executions[sagaID]
	o.mu.RUnlock()

	if ok {
		exec.abort(Validation("cancelled: %s", reason))
		return nil
	}
	return o.Resume(ctx, sagaID, State{"error": "cancelled: " + reason}, false)
}

// Close stops accepting sagas and waits for in-flight executions to park. Instances
// that were still running stay RUNNING in the store for Recover to pick up.
func (o *Orchestrator) Close() error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}
	o.cancel()

	o.mu.Lock()
	for timer := range o.timers {
		timer.Stop()
	}
	o.timers = make(map[*time.Timer]struct{})
	o.mu.Unlock()

	o.wg.Wait()
	return nil
}

func (o *Orchestrator) spawn(fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn()
	}()
}

// schedule runs fn after d unless the orchestrator closes first
func (o *Orchestrator) schedule(d time.Duration, fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed.Load() {
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		o.mu.Lock()
		_, pending := o.timers[timer]
		delete(o.timers, timer)
		o.mu.Unlock()

		if pending && !o.closed.Load() {
			fn()
		}
	})
	o.timers[timer] = struct{}{}
}

func (o *Orchestrator) track(exec *execution) {
	o.mu.Lock()
	o.executions[exec.instance.ID] = exec
	inFlight := len(o.executions)
	o.mu.Unlock()

	o.recordInFlight(exec.base, inFlight)
}

func (o *Orchestrator) untrack(exec *execution) {
	o.mu.Lock()
	if o.executions[exec.instance.ID] == exec {
		delete(o.executions, exec.instance.ID)
	}
	inFlight := len(o.executions)
	o.mu.Unlock()

	o.recordInFlight(exec.base, inFlight)
}

func (o *Orchestrator) recordInFlight(ctx context.Context, n int) {
	telemetry.RecordGauge(ctx, "saga_in_flight", "Sagas driven by this process", float64(n))
}

func (o *Orchestrator) tracked(sagaID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	_, ok := o.executions[sagaID]
	return ok
}

func (o *Orchestrator) scheduleRetention(sagaID string) {
	switch {
	case o.purgeOnFinish:
		o.purge(sagaID)
	case o.retention > 0:
		o.schedule(o.retention, func() { o.purge(sagaID) })
	}
}

func (o *Orchestrator) purge(sagaID string) {
	if err := o.store.Delete(context.Background(), sagaID); err != nil {
		o.logger.Error("failed to purge saga", zap.String("saga_id", sagaID), zap.Error(err))
		return
	}
	o.logger.Debug("saga purged", zap.String("saga_id", sagaID))
}

// SagaLifecycle is the payload of saga.* lifecycle events
type SagaLifecycle struct {
	SagaID       string `json:"saga_id"`
	SagaType     string `json:"saga_type"`
	Status       string `json:"status"`
	StepIndex    int    `json:"step_index"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (o *Orchestrator) publishLifecycle(ctx context.Context, instance *Instance, eventType string) {
	if o.publisher == nil {
		return
	}

	event := events.NewEvent(models.ID(instance.ID), eventType, SagaLifecycle{
		SagaID:       instance.ID,
		SagaType:     instance.Type.String(),
		Status:       instance.Status.String(),
		StepIndex:    instance.CurrentStepIndex,
		ErrorMessage: instance.ErrorMessage,
	}).WithCorrelationID(models.ID(instance.ID))

	if err := o.publisher.Publish(ctx, event); err != nil {
		o.logger.Warn("failed to publish saga lifecycle event",
			zap.String("saga_id", instance.ID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) recordResume(ctx context.Context, result string) {
	telemetry.RecordCounter(ctx, "saga_resumes_total", "Total resume deliveries", 1,
		attribute.String("outcome", result),
	)
}

// rejection turns a failure resume payload into a step error
func rejection(payload State) error {
	for _, key := range []string{"error", "reason"} {
		if msg, ok := payload.String(key); ok && msg != "" {
			return Validation("%s", msg)
		}
	}
	return Validation("external step reported failure")
}
