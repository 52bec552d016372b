package domain

import (
	"context"

	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
)

var (
	ErrPlanNotFound  = errors.New("plan not found")
	ErrPlanInactive  = errors.New("plan is not active")
	ErrPriceMismatch = errors.New("price mismatch")
)

// Plan is a purchasable subscription plan
type Plan struct {
	ID         models.ID
	Name       string
	Price      models.Money
	Active     bool
	Timestamps models.Timestamps
}

// Accepts checks that the plan can be bought for amount; a price that differs from the
// current one is stale
func (p *Plan) Accepts(amount models.Money) error {
	if !p.Active {
		return errors.Wrapf(ErrPlanInactive, "plan %s", p.ID)
	}
	if !p.Price.Equal(amount) {
		return errors.Wrapf(ErrPriceMismatch, "plan %s costs %s, got %s", p.ID, p.Price, amount)
	}
	return nil
}

// PlanRepository interface
type PlanRepository interface {
	FindByID(ctx context.Context, id models.ID) (*Plan, error)
}
