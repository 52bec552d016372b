package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Common holds the settings every saga service reads. Services embed it with
// `mapstructure:",squash"` and add their own keys.
type Common struct {
	ServiceName string    `mapstructure:"service_name"`
	Env         string    `mapstructure:"env"`
	Port        string    `mapstructure:"port"`
	Database    Database  `mapstructure:"database"`
	AWS         AWS       `mapstructure:"aws"`
	Redis       Redis     `mapstructure:"redis"`
	Log         Log       `mapstructure:"log"`
	Telemetry   Telemetry `mapstructure:"telemetry"`
	Saga        Saga      `mapstructure:"saga"`
}

type Database struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// DSN returns URL when set, otherwise builds one from the individual fields
func (d Database) DSN() string {
	if d.URL != "" {
		return d.URL
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
		d.SSLMode,
	)
}

type AWS struct {
	Region      string `mapstructure:"region"`
	Endpoint    string `mapstructure:"endpoint"`
	SNSTopicArn string `mapstructure:"sns_topic_arn"`
	SQSQueueURL string `mapstructure:"sqs_queue_url"`
}

type Redis struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	PoolSize  int    `mapstructure:"pool_size"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type Telemetry struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Saga configures the orchestrator. Store is one of memory, postgres or redis.
// A zero Retention keeps finished instances forever on the durable tiers; the memory
// tier deletes them as soon as they finish.
type Saga struct {
	Store        string        `mapstructure:"store"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	Retention    time.Duration `mapstructure:"retention"`
}

// Saga store kinds
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Options tell Load where to look and how to name things
type Options struct {
	ServiceName string
	EnvPrefix   string
	ConfigPaths []string
	Defaults    map[string]interface{}
}

// Load reads <ENVIRONMENT>.json (local.json by default) from the first config path
// that has one, applies PREFIX_SECTION_KEY environment overrides and decodes into out.
// A missing config file is not an error; defaults and the environment still apply.
func Load(opts Options, out interface{}) error {
	v := viper.New()
	v.SetConfigName(configName())
	v.SetConfigType("json")
	for _, path := range opts.ConfigPaths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, opts.ServiceName)
	for key, value := range opts.Defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "error reading config file")
		}
	}

	if err := v.Unmarshal(out); err != nil {
		return errors.Wrap(err, "error unmarshaling config")
	}
	return nil
}

func configName() string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		return "local"
	}
	return env
}

func setDefaults(v *viper.Viper, serviceName string) {
	// Service defaults
	v.SetDefault("service_name", serviceName)
	v.SetDefault("env", getEnv("ENV", "local"))
	v.SetDefault("port", getEnv("PORT", "8080"))

	// Database defaults
	v.SetDefault("database.url", os.Getenv("DATABASE_URL"))
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5433)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "saga_system")
	v.SetDefault("database.ssl_mode", "disable")

	// AWS defaults
	v.SetDefault("aws.region", getEnv("AWS_DEFAULT_REGION", "us-east-1"))
	v.SetDefault("aws.endpoint", getEnv("AWS_ENDPOINT_URL", "http://localhost:4566"))
	v.SetDefault("aws.sns_topic_arn", "arn:aws:sns:us-east-1:000000000000:saga-events")
	v.SetDefault("aws.sqs_queue_url", "http://localhost:4566/000000000000/"+serviceName+"-events")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.key_prefix", serviceName+":saga:")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.otlp_endpoint", "")

	// Saga defaults
	v.SetDefault("saga.store", StorePostgres)
	v.SetDefault("saga.timeout", "30s")
	v.SetDefault("saga.max_retries", 3)
	v.SetDefault("saga.retry_backoff", "200ms")
	v.SetDefault("saga.retention", "0s")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
