package config

import (
	"context"

	"github.com/draftea/saga-orchestrator/purchase-service/application"
	"github.com/draftea/saga-orchestrator/purchase-service/handlers"
	"github.com/draftea/saga-orchestrator/purchase-service/infrastructure"
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

	// Database
	DB *sqlx.DB

	// Saga engine
	SagaStore    *sharedconfig.SagaStore
	Orchestrator *saga.Orchestrator
	Definition   *saga.Definition

	// Use Cases
	PurchasePlan                  *application.PurchasePlan
	GetPurchaseStatus             *application.GetPurchaseStatus
	ProcessDeviceAllocationResult *application.ProcessDeviceAllocationResult

	// HTTP Handlers
	PurchaseHandlers *handlers.PurchaseHandlers

	// Event Handlers
	PurchaseEventHandlers *handlers.PurchaseEventHandlers

	// Infrastructure
	EventPublisher  *sharedinfra.SNSEventPublisher
	EventSubscriber *sharedinfra.SQSEventSubscriber

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

	// Initialize database
	db, err := sharedconfig.OpenDatabase(ctx, config.Database)
	if err != nil {
		return nil, err
	}
	deps.DB = db

	deps.SagaStore, err = sharedconfig.BuildSagaStore(ctx, config.Common, db)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build saga store")
	}

	// Initialize AWS infrastructure
	awsConfig, err := sharedinfra.LoadAWSConfig(ctx, sharedinfra.AWSConfig{
		Region:   config.AWS.Region,
		Endpoint: config.AWS.Endpoint,
	})
	if err != nil {
		return nil, err
	}
	deps.EventPublisher = sharedinfra.NewSNSEventPublisher(sharedinfra.NewSNSClient(awsConfig), config.AWS.SNSTopicArn, deps.Logger)
	deps.EventSubscriber = sharedinfra.NewSQSEventSubscriber(sharedinfra.NewSQSClient(awsConfig), config.AWS.SQSQueueURL, deps.Logger)

	// Initialize the saga
	deps.Orchestrator = saga.NewOrchestrator(deps.SagaStore, deps.EventPublisher, deps.Logger, config.Saga.OrchestratorOptions()...)

	purchaseSaga := application.NewPurchaseSaga(
		infrastructure.NewPostgresPlanRepository(db),
		infrastructure.NewPostgresOrderRepository(db),
		infrastructure.NewHTTPPaymentGateway(config.Payments.URL, config.Payments.Timeout),
		deps.EventPublisher,
		deps.Logger,
	)
	deps.Definition = purchaseSaga.Definition(application.SagaSettings{
		Timeout:      config.Saga.Timeout,
		MaxRetries:   config.Saga.MaxRetries,
		RetryBackoff: config.Saga.RetryBackoff,
	})
	if err := deps.Orchestrator.Register(deps.Definition); err != nil {
		return nil, err
	}

	// Initialize use cases
	deps.PurchasePlan = application.NewPurchasePlan(deps.Orchestrator, deps.Definition)
	deps.GetPurchaseStatus = application.NewGetPurchaseStatus(deps.Orchestrator, deps.Definition)
	deps.ProcessDeviceAllocationResult = application.NewProcessDeviceAllocationResult(deps.Orchestrator)

	// Initialize handlers
	deps.PurchaseHandlers = handlers.NewPurchaseHandlers(deps.PurchasePlan, deps.GetPurchaseStatus, deps.Logger)
	deps.PurchaseEventHandlers = handlers.NewPurchaseEventHandlers(deps.ProcessDeviceAllocationResult, deps.Logger)

	return deps, nil
}

// HealthChecks returns the dependencies /health probes
func (d *Dependencies) HealthChecks() map[string]telemetry.HealthCheck {
	return map[string]telemetry.HealthCheck{
		"database":   d.DB.PingContext,
		"saga_store": d.SagaStore.Ping,
	}
}

// Close stops consuming, parks running sagas and closes all dependencies
func (d *Dependencies) Close() error {
	var errs []error

	if d.EventSubscriber != nil {
		if err := d.EventSubscriber.Stop(); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to stop event subscriber"))
		}
	}

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
