package infrastructure

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisSagaStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisSagaStore(client, ""), mr
}

func TestRedisSagaStore_CreateGetDelete(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	instance := testSagaInstance()

	require.NoError(t, store.Create(ctx, instance))
	assert.Error(t, store.Create(ctx, instance), "duplicate IDs are rejected")
	assert.True(t, mr.Exists("saga:saga-1"))

	members, err := mr.Members("saga:status:RUNNING")
	require.NoError(t, err)
	assert.Equal(t, []string{"saga-1"}, members)

	got, err := store.Get(ctx, "saga-1")
	require.NoError(t, err)
	assert.Equal(t, instance.ID, got.ID)
	assert.Equal(t, instance.Status, got.Status)
	assert.Equal(t, "order-456", got.State["order_id"])
	assert.True(t, instance.StartedAt.Equal(got.StartedAt))

	require.NoError(t, store.Delete(ctx, "saga-1"))
	require.NoError(t, store.Delete(ctx, "saga-1"))
	assert.False(t, mr.Exists("saga:saga-1"))

	_, err = store.Get(ctx, "saga-1")
	assert.ErrorIs(t, err, saga.ErrSagaNotFound)
}

func TestRedisSagaStore_UpdateRefusesTerminalInstances(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	instance := testSagaInstance()
	require.NoError(t, store.Create(ctx, instance))

	instance.Status = saga.StatusCompleted
	instance.CurrentStepIndex = 5
	require.NoError(t, store.Update(ctx, instance, saga.StatusRunning))

	completed, err := store.ListByStatus(ctx, saga.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, 5, completed[0].CurrentStepIndex)

	running, err := store.ListByStatus(ctx, saga.StatusRunning)
	require.NoError(t, err)
	assert.Empty(t, running)

	instance.CurrentStepIndex = 1
	assert.ErrorIs(t, store.Update(ctx, instance, saga.StatusCompleted), saga.ErrSagaTerminal)

	assert.ErrorIs(t, store.Update(ctx, &saga.Instance{ID: "missing", Status: saga.StatusRunning}, saga.StatusRunning), saga.ErrSagaNotFound)
}

func TestRedisSagaStore_UpdateRefusesClaimedInstances(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	stale := testSagaInstance()
	require.NoError(t, store.Create(ctx, stale))

	swapped, err := store.Transition(ctx, stale.ID, saga.StatusRunning, saga.StatusCompensating)
	require.NoError(t, err)
	require.True(t, swapped)

	stale.CurrentStepIndex = 3
	assert.ErrorIs(t, store.Update(ctx, stale, saga.StatusRunning), saga.ErrSagaClaimLost)

	got, err := store.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompensating, got.Status)
	assert.Equal(t, 2, got.CurrentStepIndex)

	swapped, err = store.Transition(ctx, stale.ID, saga.StatusRunning, saga.StatusCompensating)
	require.NoError(t, err)
	assert.False(t, swapped)
}

func TestRedisSagaStore_TransitionIsCompareAndSet(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSagaInstance()))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			swapped, err := store.Transition(ctx, "saga-1", saga.StatusRunning, saga.StatusCompensating)
			if err == nil && swapped {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)

	got, err := store.Get(ctx, "saga-1")
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompensating, got.Status)

	compensating, err := store.ListByStatus(ctx, saga.StatusCompensating)
	require.NoError(t, err)
	assert.Len(t, compensating, 1)

	swapped, err := store.Transition(ctx, "saga-1", saga.StatusRunning, saga.StatusCompensating)
	require.NoError(t, err)
	assert.False(t, swapped)
}

func TestRedisSagaStore_BacksTheOrchestrator(t *testing.T) {
	store, _ := newTestRedisStore(t)
	orchestrator := saga.NewOrchestrator(store, nil, nil)
	t.Cleanup(func() { _ = orchestrator.Close() })

	def := &saga.Definition{
		Type:    "redis-backed",
		Timeout: 5 * time.Second,
		Steps: []saga.Step{
			{
				Name: "count",
				Execute: func(_ context.Context, state saga.State) (saga.State, error) {
					return saga.State{"count": 41}, nil
				},
			},
			{
				Name: "increment",
				Execute: func(_ context.Context, state saga.State) (saga.State, error) {
					n, _ := state.Int64("count")
					return saga.State{"count": n + 1}, nil
				},
			},
		},
	}

	sagaID, err := orchestrator.Start(context.Background(), def, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		instance, err := orchestrator.GetState(context.Background(), sagaID)
		if err != nil || instance.Status != saga.StatusCompleted {
			return false
		}
		n, _ := instance.State.Int64("count")
		return n == 42
	}, 2*time.Second, 5*time.Millisecond)
}
