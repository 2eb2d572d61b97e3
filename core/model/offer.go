package model

import "time"

// OfferState is the lifecycle state of a single offer attempt.
type OfferState int

const (
	OfferPending OfferState = iota
	OfferAccepted
	OfferDeclined
	OfferExpired
	OfferCancelled
)

// String returns a human-readable representation of the offer state.
func (s OfferState) String() string {
	switch s {
	case OfferPending:
		return "pending"
	case OfferAccepted:
		return "accepted"
	case OfferDeclined:
		return "declined"
	case OfferExpired:
		return "expired"
	case OfferCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the offer.
func (s OfferState) Terminal() bool { return s != OfferPending }

// Offer is a time-boxed proposal of one order to one farmer. At most one offer
// per order may be Pending at any instant.
type Offer struct {
	ID        string     `json:"offerId"`
	OrderID   string     `json:"orderId"`
	FarmerID  string     `json:"farmerId"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	State     OfferState `json:"state"`
}
