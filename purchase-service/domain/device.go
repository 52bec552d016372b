package domain

import "github.com/draftea/saga-orchestrator/shared/models"

// DeviceAllocationRequest asks the inventory service for a device for an order
type DeviceAllocationRequest struct {
	OrderID models.ID `json:"order_id"`
	UserID  models.ID `json:"user_id"`
	PlanID  models.ID `json:"plan_id"`
}

// DeviceAllocationResult is the inventory service's answer, correlated by saga ID
type DeviceAllocationResult struct {
	OrderID  models.ID `json:"order_id"`
	DeviceID string    `json:"device_id,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

type DeviceReleaseRequest struct {
	OrderID  models.ID `json:"order_id"`
	DeviceID string    `json:"device_id"`
}
