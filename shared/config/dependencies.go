package config

import (
	"context"

	"github.com/draftea/saga-orchestrator/shared/infrastructure"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// OpenDatabase connects to Postgres and pings it
func OpenDatabase(ctx context.Context, cfg Database) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	return db, nil
}

// SagaStore is the store selected by Saga.Store plus whatever must be closed with it
type SagaStore struct {
	saga.Store
	redis *redis.Client
}

// Close releases the redis connection of a redis-backed store
func (s *SagaStore) Close() error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Close()
}

// Ping reports whether the backing server answers
func (s *SagaStore) Ping(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Ping(ctx).Err()
}

// BuildSagaStore creates the store named by cfg.Saga.Store. The postgres store shares
// db with the service repositories.
func BuildSagaStore(ctx context.Context, cfg Common, db *sqlx.DB) (*SagaStore, error) {
	switch cfg.Saga.Store {
	case StoreMemory:
		store, err := saga.NewMemoryStore()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create memory saga store")
		}
		return &SagaStore{Store: store}, nil

	case StorePostgres, "":
		if db == nil {
			return nil, errors.New("postgres saga store needs a database")
		}
		return &SagaStore{Store: infrastructure.NewPostgresSagaStore(db)}, nil

	case StoreRedis:
		client, err := infrastructure.NewRedisClient(ctx, infrastructure.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, err
		}
		return &SagaStore{
			Store: infrastructure.NewRedisSagaStore(client, cfg.Redis.KeyPrefix),
			redis: client,
		}, nil

	default:
		return nil, errors.Errorf("unknown saga store %q", cfg.Saga.Store)
	}
}

// OrchestratorOptions translates the saga settings into orchestrator options. The
// memory tier drops finished instances right away unless a retention is set.
func (s Saga) OrchestratorOptions() []saga.Option {
	var opts []saga.Option
	switch {
	case s.Retention > 0:
		opts = append(opts, saga.WithRetention(s.Retention))
	case s.Store == StoreMemory:
		opts = append(opts, saga.WithPurgeOnFinish())
	}
	return opts
}
