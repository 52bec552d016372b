package handlers

import (
	"context"

	"github.com/draftea/saga-orchestrator/purchase-service/application"
	"github.com/draftea/saga-orchestrator/purchase-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"go.uber.org/zap"
)

// PurchaseEventHandlers feeds inventory answers back into waiting purchase sagas
type PurchaseEventHandlers struct {
	processAllocationResult *application.ProcessDeviceAllocationResult
	logger                  *zap.Logger
}

// NewPurchaseEventHandlers creates new purchase event handlers
func NewPurchaseEventHandlers(
	processAllocationResult *application.ProcessDeviceAllocationResult,
	logger *zap.Logger,
) *PurchaseEventHandlers {
	return &PurchaseEventHandlers{
		processAllocationResult: processAllocationResult,
		logger:                  logger,
	}
}

// Router returns the routes this service consumes
func (h *PurchaseEventHandlers) Router() *events.Router {
	return events.NewRouter(h.logger).
		On(events.DeviceAllocationCompletedEvent, events.HandlerFunc(h.HandleDeviceAllocationCompleted)).
		On(events.DeviceAllocationFailedEvent, events.HandlerFunc(h.HandleDeviceAllocationFailed))
}

// HandleDeviceAllocationCompleted resumes the saga with the allocated device
func (h *PurchaseEventHandlers) HandleDeviceAllocationCompleted(ctx context.Context, event *events.Event) error {
	return h.handleAllocation(ctx, event, true)
}

// HandleDeviceAllocationFailed resumes the saga into compensation
func (h *PurchaseEventHandlers) HandleDeviceAllocationFailed(ctx context.Context, event *events.Event) error {
	return h.handleAllocation(ctx, event, false)
}

func (h *PurchaseEventHandlers) handleAllocation(ctx context.Context, event *events.Event, success bool) error {
	if event.CorrelationID.IsEmpty() {
		h.logger.Warn("dropping allocation result without correlation ID",
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", event.EventType),
		)
		return nil
	}

	var result domain.DeviceAllocationResult
	if err := event.UnmarshalPayload(&result); err != nil {
		h.logger.Warn("dropping malformed allocation result",
			zap.String("saga_id", event.CorrelationID.String()),
			zap.Error(err),
		)
		return nil
	}

	// store failures surface so the message is redelivered
	return h.processAllocationResult.Execute(ctx, &application.ProcessDeviceAllocationResultCommand{
		SagaID:  event.CorrelationID.String(),
		Success: success,
		Result:  result,
	})
}
