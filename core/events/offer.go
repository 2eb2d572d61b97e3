package events

import (
	"time"

	"github.com/shareprinto/dispatcher/core/model"
)

// OfferEvent is published when an offer is pushed to a farmer.
type OfferEvent struct {
	Offer    model.Offer
	Position int // index of the candidate within the run, starting at 0
}

func (OfferEvent) Kind() string { return "offer" }

// ResponseEvent is published for each offer outcome.
type ResponseEvent struct {
	OfferID  string
	OrderID  string
	FarmerID string
	State    model.OfferState
	Latency  time.Duration
	Err      error
}

func (ResponseEvent) Kind() string { return "response" }
