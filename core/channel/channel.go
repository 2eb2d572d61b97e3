package channel

import (
	"context"
	"time"
)

// OfferPayload is the message presented to a farmer when an order is offered.
// Field names follow the JSON contract of the farmer-facing client.
type OfferPayload struct {
	OfferID        string    `json:"offerId"`
	OrderID        string    `json:"orderId"`
	Description    string    `json:"description"`
	MaterialType   string    `json:"materialType"`
	TypeOfPrinting string    `json:"typeOfPrinting"`
	EstimatedTime  int       `json:"estimatedTime"`
	Cost           float64   `json:"cost"`
	City           string    `json:"city"`
	NumberOfPrints int       `json:"numberOfPrints"`
	Instructions   string    `json:"instructions"`
	CreatorName    string    `json:"creatorName"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// OfferChannel delivers offers to farmers. Delivery is best effort and
// correlated by offer id; the farmer's accept/decline travels back over the
// HTTP offer-response endpoint, never over the channel itself.
type OfferChannel interface {
	// Push delivers the offer to the farmer identified in the payload.
	// A DeliveryError means the farmer is unreachable.
	Push(ctx context.Context, farmerID string, payload OfferPayload) error
}
