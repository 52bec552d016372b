package domain

import (
	"context"

	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
)

// DefaultQuotaLimit is the allowance of a fresh account
const DefaultQuotaLimit int64 = 1000

var ErrQuotaExceeded = errors.New("quota exceeded")

// Quota tracks how much of its allowance a user consumed
type Quota struct {
	UserID     models.ID
	Limit      int64
	Used       int64
	Timestamps models.Timestamps
}

// NewQuota creates an unused quota
func NewQuota(userID models.ID, limit int64) (Quota, error) {
	if limit <= 0 {
		return Quota{}, errors.New("quota limit must be positive")
	}
	return Quota{
		UserID:     userID,
		Limit:      limit,
		Timestamps: models.NewTimestamps(),
	}, nil
}

// Remaining returns what is left of the allowance
func (q Quota) Remaining() int64 {
	if q.Used >= q.Limit {
		return 0
	}
	return q.Limit - q.Used
}

// Consume uses amount of the allowance
func (q Quota) Consume(amount int64) (Quota, error) {
	if amount > q.Remaining() {
		return q, ErrQuotaExceeded
	}
	q.Used += amount
	q.Timestamps = q.Timestamps.Touch()
	return q, nil
}

// QuotaRepository interface
type QuotaRepository interface {
	Initialize(ctx context.Context, quota Quota) error
	Delete(ctx context.Context, userID models.ID) error
}
