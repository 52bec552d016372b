package application

import (
	"context"
	"sync"

	"github.com/draftea/saga-orchestrator/registration-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
)

// accountStore is an in-memory stand-in for the users, user_roles and quotas tables
type accountStore struct {
	mu     sync.Mutex
	users  map[models.ID]domain.User
	roles  map[models.ID][]string
	quotas map[models.ID]domain.Quota

	createFailures int
	quotaErr       error
}

func newAccountStore() *accountStore {
	return &accountStore{
		users:  make(map[models.ID]domain.User),
		roles:  make(map[models.ID][]string),
		quotas: make(map[models.ID]domain.Quota),
	}
}

func (s *accountStore) ExistsByUsername(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *accountStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *accountStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createFailures > 0 {
		s.createFailures--
		return errors.New("connection reset by peer")
	}
	if _, ok := s.users[user.ID]; ok {
		return nil
	}
	s.users[user.ID] = *user
	return nil
}

func (s *accountStore) Delete(_ context.Context, id models.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}

func (s *accountStore) Assign(_ context.Context, userID models.ID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[userID] = append(s.roles[userID], role)
	return nil
}

func (s *accountStore) Remove(_ context.Context, userID models.ID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, userID)
	return nil
}

// quotaStore adapts accountStore to QuotaRepository, whose Delete takes a user ID too
type quotaStore struct {
	*accountStore
}

func (s quotaStore) Initialize(_ context.Context, quota domain.Quota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quotaErr != nil {
		return s.quotaErr
	}
	s.quotas[quota.UserID] = quota
	return nil
}

func (s quotaStore) Delete(_ context.Context, userID models.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quotas, userID)
	return nil
}

func (s *accountStore) seed(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *accountStore) rows() (users, roles, quotas int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), len(s.roles), len(s.quotas)
}

func (s *accountStore) user(id models.ID) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
	failOn string
}

func (p *recordingPublisher) Publish(_ context.Context, evts ...*events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range evts {
		if p.failOn != "" && e.EventType == p.failOn {
			return errors.New("sns unavailable")
		}
	}
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
