package config

import (
	"path/filepath"
	"runtime"

	sharedconfig "github.com/draftea/saga-orchestrator/shared/config"
	"github.com/pkg/errors"
)

const serviceName = "registration-service"

type Config struct {
	sharedconfig.Common `mapstructure:",squash"`
	Registration        Registration `mapstructure:"registration"`
}

// Registration tunes the accounts created by the saga
type Registration struct {
	HashCost   int   `mapstructure:"hash_cost"`
	QuotaLimit int64 `mapstructure:"quota_limit"`
}

// ReadConfig loads config/<ENVIRONMENT>.json with REGISTRATION_* overrides
func ReadConfig() (*Config, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return nil, errors.New("unable to get current file")
	}

	var config Config
	err := sharedconfig.Load(sharedconfig.Options{
		ServiceName: serviceName,
		EnvPrefix:   "REGISTRATION",
		ConfigPaths: []string{filepath.Dir(filename), "./config"},
		Defaults: map[string]interface{}{
			"registration.hash_cost":   10,
			"registration.quota_limit": 1000,
		},
	}, &config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}
