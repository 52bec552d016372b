package application

import (
	"context"
	"sync"

	"github.com/draftea/saga-orchestrator/purchase-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
)

// orderStore keeps copies of saved orders, the way a database would
type orderStore struct {
	mu       sync.Mutex
	orders   map[models.ID]domain.Order
	failSave func(*domain.Order) error
}

func newOrderStore() *orderStore {
	return &orderStore{orders: make(map[models.ID]domain.Order)}
}

func (s *orderStore) Save(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failSave != nil {
		if err := s.failSave(order); err != nil {
			return err
		}
	}

	stored := *order
	stored.ClearEvents()
	s.orders[order.ID] = stored
	return nil
}

func (s *orderStore) FindByID(_ context.Context, id models.ID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &order, nil
}

func (s *orderStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evts ...*events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evts...)
	return nil
}

// domainEvents lists published event types, leaving out saga lifecycle events
func (p *recordingPublisher) domainEvents() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var types []string
	for _, e := range p.events {
		if e.Topic.Matches("saga.*") {
			continue
		}
		types = append(types, e.EventType)
	}
	return types
}

func (p *recordingPublisher) find(eventType string) *events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.events {
		if e.EventType == eventType {
			return e
		}
	}
	return nil
}
