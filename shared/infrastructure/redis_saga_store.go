package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ saga.Store = (*RedisSagaStore)(nil)

const maxWatchAttempts = 5

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisConfig holds connection settings for the key-value saga tier
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedisClient connects and pings the server
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to ping redis")
	}
	return client, nil
}

// RedisSagaStore keeps each instance as a JSON document under saga:{id} and indexes
// IDs by status in saga:status:{STATUS} sets. Writes run under WATCH so Transition is
// a compare-and-set and terminal documents are never overwritten.
type RedisSagaStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSagaStore(client redis.UniversalClient, prefix string) *RedisSagaStore {
	if prefix == "" {
		prefix = "saga:"
	}
	return &RedisSagaStore{client: client, prefix: prefix}
}

func (s *RedisSagaStore) key(sagaID string) string {
	return s.prefix + sagaID
}

func (s *RedisSagaStore) statusKey(status saga.Status) string {
	return s.prefix + "status:" + status.String()
}

// Create stores a new instance; existing IDs are rejected
func (s *RedisSagaStore) Create(ctx context.Context, instance *saga.Instance) error {
	raw, err := json.Marshal(instance)
	if err != nil {
		return errors.Wrap(err, "failed to marshal saga instance")
	}

	created, err := s.client.SetNX(ctx, s.key(instance.ID), raw, 0).Result()
	if err != nil {
		return errors.Wrap(err, "failed to create saga instance")
	}
	if !created {
		return errors.Errorf("saga %s already exists", instance.ID)
	}

	if err := s.client.SAdd(ctx, s.statusKey(instance.Status), instance.ID).Err(); err != nil {
		return errors.Wrap(err, "failed to index saga instance")
	}
	return nil
}

// Update rewrites the instance while the stored document is still in the expected status
func (s *RedisSagaStore) Update(ctx context.Context, instance *saga.Instance, expected saga.Status) error {
	raw, err := json.Marshal(instance)
	if err != nil {
		return errors.Wrap(err, "failed to marshal saga instance")
	}

	return s.watch(ctx, instance.ID, func(tx *redis.Tx, current *saga.Instance) error {
		if current.Status.IsTerminal() {
			return errors.Wrapf(saga.ErrSagaTerminal, "saga %s is %s", instance.ID, current.Status)
		}
		if current.Status != expected {
			return errors.Wrapf(saga.ErrSagaClaimLost, "saga %s is %s, expected %s", instance.ID, current.Status, expected)
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key(instance.ID), raw, 0)
			if current.Status != instance.Status {
				pipe.SRem(ctx, s.statusKey(current.Status), instance.ID)
				pipe.SAdd(ctx, s.statusKey(instance.Status), instance.ID)
			}
			return nil
		})
		return err
	})
}

// Get loads an instance
func (s *RedisSagaStore) Get(ctx context.Context, sagaID string) (*saga.Instance, error) {
	return s.load(ctx, s.client, sagaID)
}

// Delete removes the document and its index entry
func (s *RedisSagaStore) Delete(ctx context.Context, sagaID string) error {
	err := s.watch(ctx, sagaID, func(tx *redis.Tx, current *saga.Instance) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.key(sagaID))
			pipe.SRem(ctx, s.statusKey(current.Status), sagaID)
			return nil
		})
		return err
	})
	if errors.Is(err, saga.ErrSagaNotFound) {
		return nil
	}
	return err
}

// Transition swaps the status when it still equals from
func (s *RedisSagaStore) Transition(ctx context.Context, sagaID string, from, to saga.Status) (bool, error) {
	swapped := false
	err := s.watch(ctx, sagaID, func(tx *redis.Tx, current *saga.Instance) error {
		swapped = false
		if current.Status != from {
			return nil
		}

		next := current.Clone()
		next.Status = to
		next.UpdatedAt = time.Now().UTC()
		raw, err := json.Marshal(next)
		if err != nil {
			return errors.Wrap(err, "failed to marshal saga instance")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key(sagaID), raw, 0)
			pipe.SRem(ctx, s.statusKey(from), sagaID)
			pipe.SAdd(ctx, s.statusKey(to), sagaID)
			return nil
		})
		if err == nil {
			swapped = true
		}
		return err
	})
	return swapped, err
}

// ListByStatus returns every instance indexed under status
func (s *RedisSagaStore) ListByStatus(ctx context.Context, status saga.Status) ([]*saga.Instance, error) {
	ids, err := s.client.SMembers(ctx, s.statusKey(status)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list saga instances")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load saga instances")
	}

	instances := make([]*saga.Instance, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		instance, err := decodeInstance([]byte(raw))
		if err != nil {
			return nil, err
		}
		// the index can briefly lag a concurrent transition
		if instance.Status == status {
			instances = append(instances, instance)
		}
	}
	return instances, nil
}

func (s *RedisSagaStore) watch(ctx context.Context, sagaID string, fn func(tx *redis.Tx, current *saga.Instance) error) error {
	key := s.key(sagaID)
	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := s.load(ctx, tx, sagaID)
			if err != nil {
				return err
			}
			return fn(tx, current)
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errors.Errorf("saga %s kept changing, gave up after %d attempts", sagaID, maxWatchAttempts)
}

func (s *RedisSagaStore) load(ctx context.Context, client stringGetter, sagaID string) (*saga.Instance, error) {
	raw, err := client.Get(ctx, s.key(sagaID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.Wrapf(saga.ErrSagaNotFound, "saga %s", sagaID)
		}
		return nil, errors.Wrap(err, "failed to get saga instance")
	}
	return decodeInstance(raw)
}

func decodeInstance(raw []byte) (*saga.Instance, error) {
	var instance saga.Instance
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal saga instance")
	}
	if instance.State == nil {
		instance.State = saga.State{}
	}
	return &instance, nil
}
