package model

import (
	"fmt"
	"time"
)

// OrderStatus tracks an order through the dispatch lifecycle.
type OrderStatus string

const (
	OrderPending     OrderStatus = "pending"
	OrderDispatching OrderStatus = "dispatching"
	OrderAssigned    OrderStatus = "assigned"
	OrderFailed      OrderStatus = "failed"
)

// Order is the subset of a print order relevant to dispatch. The scheduler is
// the only writer of Status and AssignedFarmer while a run is active.
type Order struct {
	ID             string      `json:"id"`
	Description    string      `json:"description"`
	MaterialType   string      `json:"materialType"`
	TypeOfPrinting string      `json:"typeOfPrinting"`
	EstimatedTime  int         `json:"estimatedTime"` // minutes
	Cost           float64     `json:"cost"`
	NumberOfPrints int         `json:"numberOfPrints"`
	City           string      `json:"city"`
	Instructions   string      `json:"instructions"`
	CreatorName    string      `json:"creatorName"`
	Status         OrderStatus `json:"status"`
	AssignedFarmer string      `json:"assignedFarmerId,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// Validate checks the fields required to dispatch the order.
func (o Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("order id is required")
	}
	if o.City == "" {
		return fmt.Errorf("order city is required")
	}
	if o.NumberOfPrints < 0 {
		return fmt.Errorf("number of prints must not be negative")
	}
	return nil
}

// Dispatchable reports whether the order may enter a dispatch run.
func (o Order) Dispatchable() bool {
	return o.Status == OrderPending
}
