package config

import (
	"path/filepath"
	"runtime"
	"time"

	sharedconfig "github.com/draftea/saga-orchestrator/shared/config"
	"github.com/pkg/errors"
)

const serviceName = "purchase-service"

type Config struct {
	sharedconfig.Common `mapstructure:",squash"`
	Payments            Payments `mapstructure:"payments"`
}

// Payments locates the payments service charged in PROCESS_PAYMENT
type Payments struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ReadConfig loads config/<ENVIRONMENT>.json with PURCHASE_* overrides
func ReadConfig() (*Config, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return nil, errors.New("unable to get current file")
	}

	var config Config
	err := sharedconfig.Load(sharedconfig.Options{
		ServiceName: serviceName,
		EnvPrefix:   "PURCHASE",
		ConfigPaths: []string{filepath.Dir(filename), "./config"},
		Defaults: map[string]interface{}{
			"payments.url":     "http://localhost:8081",
			"payments.timeout": "5s",
		},
	}, &config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}
