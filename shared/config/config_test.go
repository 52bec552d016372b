package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceConfig struct {
	Common     `mapstructure:",squash"`
	PaymentURL string `mapstructure:"payment_url"`
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")

	var cfg serviceConfig
	require.NoError(t, Load(Options{
		ServiceName: "purchase-service",
		EnvPrefix:   "PURCHASE",
		ConfigPaths: []string{t.TempDir()},
		Defaults:    map[string]interface{}{"payment_url": "http://localhost:8081"},
	}, &cfg))

	assert.Equal(t, "purchase-service", cfg.ServiceName)
	assert.Equal(t, StorePostgres, cfg.Saga.Store)
	assert.Equal(t, 30*time.Second, cfg.Saga.Timeout)
	assert.Equal(t, 3, cfg.Saga.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.Saga.RetryBackoff)
	assert.Zero(t, cfg.Saga.Retention)
	assert.Equal(t, "purchase-service:saga:", cfg.Redis.KeyPrefix)
	assert.Equal(t, "http://localhost:8081", cfg.PaymentURL)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "staging.json"), []byte(`{
		"port": "9090",
		"saga": {"store": "redis", "timeout": "45s", "retention": "24h"},
		"log": {"level": "debug"}
	}`), 0o600))

	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("REGISTRATION_SAGA_MAX_RETRIES", "5")
	t.Setenv("REGISTRATION_LOG_LEVEL", "warn")

	var cfg Common
	require.NoError(t, Load(Options{
		ServiceName: "registration-service",
		EnvPrefix:   "REGISTRATION",
		ConfigPaths: []string{dir},
	}, &cfg))

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, StoreRedis, cfg.Saga.Store)
	assert.Equal(t, 45*time.Second, cfg.Saga.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Saga.Retention)
	assert.Equal(t, 5, cfg.Saga.MaxRetries)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local.json"), []byte(`{"port":`), 0o600))
	t.Setenv("ENVIRONMENT", "")

	var cfg Common
	assert.Error(t, Load(Options{ServiceName: "svc", EnvPrefix: "SVC", ConfigPaths: []string{dir}}, &cfg))
}

func TestDatabase_DSN(t *testing.T) {
	db := Database{Host: "db", Port: 5432, User: "u", Password: "p", Database: "sagas", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/sagas?sslmode=disable", db.DSN())

	db.URL = "postgres://override"
	assert.Equal(t, "postgres://override", db.DSN())
}

func TestBuildSagaStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		store, err := BuildSagaStore(ctx, Common{Saga: Saga{Store: StoreMemory}}, nil)
		require.NoError(t, err)
		assert.IsType(t, &saga.MemoryStore{}, store.Store)
		assert.NoError(t, store.Ping(ctx))
		assert.NoError(t, store.Close())
	})

	t.Run("postgres without database", func(t *testing.T) {
		_, err := BuildSagaStore(ctx, Common{Saga: Saga{Store: StorePostgres}}, nil)
		assert.Error(t, err)
	})

	t.Run("redis", func(t *testing.T) {
		server := miniredis.RunT(t)

		store, err := BuildSagaStore(ctx, Common{
			Saga:  Saga{Store: StoreRedis},
			Redis: Redis{Addr: server.Addr(), KeyPrefix: "test"},
		}, nil)
		require.NoError(t, err)
		assert.NoError(t, store.Ping(ctx))

		_, err = store.Get(ctx, "missing")
		assert.ErrorIs(t, err, saga.ErrSagaNotFound)
		assert.NoError(t, store.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := BuildSagaStore(ctx, Common{Saga: Saga{Store: "etcd"}}, nil)
		assert.Error(t, err)
	})
}

func TestSaga_OrchestratorOptions(t *testing.T) {
	assert.Empty(t, Saga{}.OrchestratorOptions())
	assert.Empty(t, Saga{Store: StorePostgres}.OrchestratorOptions())
	assert.Len(t, Saga{Retention: time.Hour}.OrchestratorOptions(), 1)
	assert.Len(t, Saga{Store: StoreMemory}.OrchestratorOptions(), 1)
	assert.Len(t, Saga{Store: StoreMemory, Retention: time.Hour}.OrchestratorOptions(), 1)
}
