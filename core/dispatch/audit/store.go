package audit

import (
	"context"
	"time"

	"github.com/shareprinto/dispatcher/core/ranking"
)

// OfferEntry records one offer attempt within a run.
type OfferEntry struct {
	OfferID        string  `json:"offer_id"`
	FarmerID       string  `json:"farmer_id"`
	State          string  `json:"state"`
	LatencySeconds float64 `json:"latency_seconds"`
	Error          string  `json:"error,omitempty"`
}

// Record captures one finished dispatch run.
type Record struct {
	Timestamp        time.Time            `json:"timestamp"`
	OrderID          string               `json:"order_id"`
	City             string               `json:"city"`
	Requirements     ranking.Requirements `json:"requirements"`
	Candidates       []string             `json:"candidates"`
	Offers           []OfferEntry         `json:"offers"`
	FinalState       string               `json:"final_state"`
	AssignedFarmerID string               `json:"assigned_farmer_id,omitempty"`
	ElapsedSeconds   float64              `json:"elapsed_seconds"`
}

// Query defines filters for retrieving records.
type Query struct {
	Start    time.Time
	End      time.Time
	OrderID  string
	FarmerID string
}

// Store persists run records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// matches reports whether rec satisfies every filter in q.
func (q Query) matches(rec Record) bool {
	if !q.Start.IsZero() && rec.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && rec.Timestamp.After(q.End) {
		return false
	}
	if q.OrderID != "" && rec.OrderID != q.OrderID {
		return false
	}
	if q.FarmerID != "" {
		found := false
		for _, o := range rec.Offers {
			if o.FarmerID == q.FarmerID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
