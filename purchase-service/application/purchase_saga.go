package application

import (
	"context"
	"time"

	"github.com/draftea/saga-orchestrator/purchase-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PurchaseSagaType identifies plan purchase sagas
const PurchaseSagaType saga.Type = "PAYMENT_PURCHASE"

const (
	StepValidatePlan   = "VALIDATE_PLAN"
	StepCreateOrder    = "CREATE_ORDER"
	StepAllocateDevice = "ALLOCATE_DEVICE"
	StepProcessPayment = "PROCESS_PAYMENT"
	StepActivateOrder  = "ACTIVATE_ORDER"
)

// Keys of the purchase saga state
const (
	KeyUserID    = "user_id"
	KeyPlanID    = "plan_id"
	KeyAmount    = "amount"
	KeyCurrency  = "currency"
	KeyPlanName  = "plan_name"
	KeyOrderID   = "order_id"
	KeyDeviceID  = "device_id"
	KeyPaymentID = "payment_id"
)

const compensationReason = "Saga compensation"

// SagaSettings tunes the saga definition built from config
type SagaSettings struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// PurchaseSaga holds the collaborators of the plan purchase steps
type PurchaseSaga struct {
	plans      domain.PlanRepository
	orders     domain.OrderRepository
	payments   domain.PaymentGateway
	publisher  events.Publisher
	logger     *zap.Logger
	newOrderID func() models.ID
}

type PurchaseSagaOption func(*PurchaseSaga)

// WithOrderIDs overrides how order IDs are minted
func WithOrderIDs(newID func() models.ID) PurchaseSagaOption {
	return func(s *PurchaseSaga) {
		s.newOrderID = newID
	}
}

// NewPurchaseSaga creates the plan purchase saga
func NewPurchaseSaga(
	plans domain.PlanRepository,
	orders domain.OrderRepository,
	payments domain.PaymentGateway,
	publisher events.Publisher,
	logger *zap.Logger,
	opts ...PurchaseSagaOption,
) *PurchaseSaga {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &PurchaseSaga{
		plans:      plans,
		orders:     orders,
		payments:   payments,
		publisher:  publisher,
		logger:     logger,
		newOrderID: models.GenerateUUID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Definition builds the PAYMENT_PURCHASE definition. ACTIVATE_ORDER has no
// compensation: an activated order is only ever moved forward.
func (s *PurchaseSaga) Definition(settings SagaSettings) *saga.Definition {
	return &saga.Definition{
		Type:         PurchaseSagaType,
		Timeout:      settings.Timeout,
		MaxRetries:   settings.MaxRetries,
		RetryBackoff: settings.RetryBackoff,
		Steps: []saga.Step{
			{Name: StepValidatePlan, Execute: s.validatePlan},
			{Name: StepCreateOrder, Execute: s.createOrder, Compensate: s.cancelOrder},
			{Name: StepAllocateDevice, Execute: s.requestDevice, Compensate: s.releaseDevice, Async: true},
			{Name: StepProcessPayment, Execute: s.processPayment, Compensate: s.refundPayment},
			{Name: StepActivateOrder, Execute: s.activateOrder},
		},
	}
}

func (s *PurchaseSaga) validatePlan(ctx context.Context, state saga.State) (saga.State, error) {
	planID, _ := state.String(KeyPlanID)
	amount, err := amountOf(state)
	if err != nil {
		return nil, err
	}

	plan, err := s.plans.FindByID(ctx, models.ID(planID))
	if errors.Is(err, domain.ErrPlanNotFound) {
		return nil, saga.Validation("plan %s not found", planID)
	}
	if err != nil {
		return nil, saga.Infrastructure(err, "failed to load plan")
	}

	if err := plan.Accepts(amount); err != nil {
		if errors.Is(err, domain.ErrPriceMismatch) {
			return nil, saga.Conflict("%s", err)
		}
		return nil, saga.Validation("%s", err)
	}

	return saga.State{KeyPlanName: plan.Name}, nil
}

func (s *PurchaseSaga) createOrder(ctx context.Context, state saga.State) (saga.State, error) {
	userID, _ := state.String(KeyUserID)
	planID, _ := state.String(KeyPlanID)
	amount, err := amountOf(state)
	if err != nil {
		return nil, err
	}

	order, err := domain.CreateOrder(s.newOrderID(), models.ID(userID), models.ID(planID), amount)
	if err != nil {
		return nil, saga.Validation("%s", err)
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}

	return saga.State{KeyOrderID: order.ID.String()}, nil
}

func (s *PurchaseSaga) cancelOrder(ctx context.Context, state saga.State) error {
	order, err := s.order(ctx, state)
	if errors.Is(err, domain.ErrOrderNotFound) {
		s.logger.Warn("order to cancel does not exist", zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}

	if err := order.Cancel(compensationReason); err != nil {
		return errors.Wrap(err, "failed to cancel order")
	}
	return s.save(ctx, order)
}

// requestDevice publishes the allocation request; the saga then waits for the
// inventory service's answer correlated by saga ID
func (s *PurchaseSaga) requestDevice(ctx context.Context, state saga.State) (saga.State, error) {
	sagaID, ok := saga.IDFromContext(ctx)
	if !ok {
		return nil, errors.New("device allocation requires a saga ID")
	}

	orderID, _ := state.String(KeyOrderID)
	userID, _ := state.String(KeyUserID)
	planID, _ := state.String(KeyPlanID)

	event := events.NewEvent(models.ID(orderID), events.DeviceAllocationRequestedEvent, domain.DeviceAllocationRequest{
		OrderID: models.ID(orderID),
		UserID:  models.ID(userID),
		PlanID:  models.ID(planID),
	}).WithCorrelationID(models.ID(sagaID))

	if err := s.publisher.Publish(ctx, event); err != nil {
		return nil, saga.Infrastructure(err, "failed to request device allocation")
	}
	return nil, nil
}

func (s *PurchaseSaga) releaseDevice(ctx context.Context, state saga.State) error {
	deviceID, ok := state.String(KeyDeviceID)
	if !ok || deviceID == "" {
		return nil
	}
	orderID, _ := state.String(KeyOrderID)
	sagaID, _ := saga.IDFromContext(ctx)

	event := events.NewEvent(models.ID(orderID), events.DeviceReleaseRequestedEvent, domain.DeviceReleaseRequest{
		OrderID:  models.ID(orderID),
		DeviceID: deviceID,
	}).WithCorrelationID(models.ID(sagaID))

	return errors.Wrap(s.publisher.Publish(ctx, event), "failed to request device release")
}

func (s *PurchaseSaga) processPayment(ctx context.Context, state saga.State) (saga.State, error) {
	order, err := s.order(ctx, state)
	if err != nil {
		return nil, saga.Infrastructure(err, "failed to load order")
	}

	sagaID, _ := saga.IDFromContext(ctx)
	charge, err := s.payments.Charge(ctx, domain.ChargeRequest{
		OrderID:        order.ID,
		UserID:         order.UserID,
		Amount:         order.Amount,
		IdempotencyKey: sagaID + ":" + StepProcessPayment,
	})
	if errors.Is(err, domain.ErrPaymentDeclined) {
		return nil, saga.Validation("%s", err)
	}
	if err != nil {
		return nil, saga.Infrastructure(err, "failed to charge order")
	}

	if err := order.AttachPayment(charge.PaymentID); err != nil {
		return nil, saga.Validation("%s", err)
	}
	if err := s.save(ctx, order); err != nil {
		return nil, err
	}

	return saga.State{KeyPaymentID: charge.PaymentID}, nil
}

func (s *PurchaseSaga) refundPayment(ctx context.Context, state saga.State) error {
	order, err := s.order(ctx, state)
	if err != nil {
		return err
	}

	if order.PaymentID == "" {
		paymentID, _ := state.String(KeyPaymentID)
		order.PaymentID = paymentID
	}
	if err := order.Refund(); err != nil {
		return errors.Wrap(err, "failed to refund order")
	}

	sagaID, _ := saga.IDFromContext(ctx)
	refund := events.NewEvent(order.ID, events.PaymentRefundRequestedEvent, domain.RefundRequest{
		OrderID:   order.ID,
		PaymentID: order.PaymentID,
		Amount:    order.Amount,
	}).WithCorrelationID(models.ID(sagaID))

	return s.save(ctx, order, refund)
}

func (s *PurchaseSaga) activateOrder(ctx context.Context, state saga.State) (saga.State, error) {
	order, err := s.order(ctx, state)
	if err != nil {
		return nil, saga.Infrastructure(err, "failed to load order")
	}

	deviceID, _ := state.String(KeyDeviceID)
	if err := order.Activate(deviceID); err != nil {
		return nil, saga.Validation("%s", err)
	}
	if err := s.save(ctx, order); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *PurchaseSaga) order(ctx context.Context, state saga.State) (*domain.Order, error) {
	orderID, ok := state.String(KeyOrderID)
	if !ok {
		return nil, errors.Wrap(domain.ErrOrderNotFound, "no order in saga state")
	}
	return s.orders.FindByID(ctx, models.ID(orderID))
}

// save persists the order and publishes its pending domain events along with extra
func (s *PurchaseSaga) save(ctx context.Context, order *domain.Order, extra ...*events.Event) error {
	if err := s.orders.Save(ctx, order); err != nil {
		return saga.Infrastructure(err, "failed to save order")
	}

	sagaID, _ := saga.IDFromContext(ctx)
	pending := append(order.Events(), extra...)
	for _, event := range pending {
		if event.CorrelationID.IsEmpty() {
			event.WithCorrelationID(models.ID(sagaID))
		}
	}
	order.ClearEvents()

	if len(pending) == 0 {
		return nil
	}
	if err := s.publisher.Publish(ctx, pending...); err != nil {
		return saga.Infrastructure(err, "failed to publish order events")
	}
	return nil
}

func amountOf(state saga.State) (models.Money, error) {
	amount, ok := state.Int64(KeyAmount)
	if !ok {
		return models.Money{}, saga.Validation("amount is missing")
	}
	currency, _ := state.String(KeyCurrency)
	return models.NewMoney(amount, currency), nil
}
