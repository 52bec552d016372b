package config

import (
	"context"

	"github.com/draftea/saga-orchestrator/registration-service/application"
	"github.com/draftea/saga-orchestrator/registration-service/handlers"
	"github.com/draftea/saga-orchestrator/registration-service/infrastructure"
	sharedconfig "github.com/draftea/saga-orchestrator/shared/config"
	sharedinfra "github.com/draftea/saga-orchestrator/shared/infrastructure"
	"github.com/draftea/saga-orchestrator/shared/logging"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Dependencies struct {
	Logger    *zap.Logger
	Telemetry *telemetry.Telemetry

	DB *sqlx.DB

	SagaStore    *sharedconfig.SagaStore
	Orchestrator *saga.Orchestrator
	Definition   *saga.Definition
	Credentials  *application.Credentials

	// Use Cases
	RegisterUser          *application.RegisterUser
	GetRegistrationStatus *application.GetRegistrationStatus

	// HTTP Handlers
	RegistrationHandlers *handlers.RegistrationHandlers

	EventPublisher *sharedinfra.SNSEventPublisher

	shutdownTelemetry func()
}

func BuildDependencies(ctx context.Context, config *Config) (_ *Dependencies, err error) {
	deps := &Dependencies{shutdownTelemetry: func() {}}
	defer func() {
		if err != nil {
			_ = deps.Close()
		}
	}()

	logger, err := logging.New(config.Log.Level, config.Log.Development)
	if err != nil {
		return nil, err
	}
	deps.Logger = logging.ForService(logger, config.ServiceName, config.Env)

	telemetryConfig := telemetry.ForService(config.ServiceName).WithOTLPEndpoint(config.Telemetry.OTLPEndpoint)
	deps.Telemetry = telemetry.NewTelemetry(telemetryConfig)
	if config.Telemetry.Enabled {
		tel, shutdown, err := telemetry.InitTelemetry(ctx, telemetryConfig)
		if err != nil {
			return nil, err
		}
		deps.Telemetry = tel
		deps.shutdownTelemetry = shutdown
	}

	db, err := sharedconfig.OpenDatabase(ctx, config.Database)
	if err != nil {
		return nil, err
	}
	deps.DB = db

	deps.SagaStore, err = sharedconfig.BuildSagaStore(ctx, config.Common, db)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build saga store")
	}

	awsConfig, err := sharedinfra.LoadAWSConfig(ctx, sharedinfra.AWSConfig{
		Region:   config.AWS.Region,
		Endpoint: config.AWS.Endpoint,
	})
	if err != nil {
		return nil, err
	}
	deps.EventPublisher = sharedinfra.NewSNSEventPublisher(sharedinfra.NewSNSClient(awsConfig), config.AWS.SNSTopicArn, deps.Logger)

	// Initialize the saga
	deps.Orchestrator = saga.NewOrchestrator(deps.SagaStore, deps.EventPublisher, deps.Logger, config.Saga.OrchestratorOptions()...)
	deps.Credentials = application.NewCredentials()

	var opts []application.RegistrationSagaOption
	if config.Registration.HashCost > 0 {
		opts = append(opts, application.WithHashCost(config.Registration.HashCost))
	}
	if config.Registration.QuotaLimit > 0 {
		opts = append(opts, application.WithQuotaLimit(config.Registration.QuotaLimit))
	}

	registrationSaga := application.NewRegistrationSaga(
		infrastructure.NewPostgresUserRepository(db),
		infrastructure.NewPostgresRoleRepository(db),
		infrastructure.NewPostgresQuotaRepository(db),
		deps.EventPublisher,
		deps.Credentials,
		deps.Logger,
		opts...,
	)
	deps.Definition = registrationSaga.Definition(application.SagaSettings{
		Timeout:      config.Saga.Timeout,
		MaxRetries:   config.Saga.MaxRetries,
		RetryBackoff: config.Saga.RetryBackoff,
	})
	if err := deps.Orchestrator.Register(deps.Definition); err != nil {
		return nil, err
	}

	deps.RegisterUser = application.NewRegisterUser(deps.Orchestrator, deps.Definition, deps.Credentials)
	deps.GetRegistrationStatus = application.NewGetRegistrationStatus(deps.Orchestrator, deps.Definition)

	deps.RegistrationHandlers = handlers.NewRegistrationHandlers(deps.RegisterUser, deps.GetRegistrationStatus, deps.Logger)

	return deps, nil
}

// HealthChecks returns the dependencies /health probes
func (d *Dependencies) HealthChecks() map[string]telemetry.HealthCheck {
	return map[string]telemetry.HealthCheck{
		"database":   d.DB.PingContext,
		"saga_store": d.SagaStore.Ping,
	}
}

func (d *Dependencies) Close() error {
	var errs []error

	if d.Orchestrator != nil {
		if err := d.Orchestrator.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to close orchestrator"))
		}
	}

	if d.SagaStore != nil {
		if err := d.SagaStore.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to close saga store"))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to close database"))
		}
	}

	d.shutdownTelemetry()
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return errors.Errorf("errors closing dependencies: %v", errs)
	}

	return nil
}
