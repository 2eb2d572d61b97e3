package dispatch

import (
	"context"
	"errors"

	"github.com/shareprinto/dispatcher/core/model"
	"github.com/shareprinto/dispatcher/core/ranking"
)

// RunState is the state of a dispatch run.
type RunState int

const (
	RunIdle RunState = iota
	RunRanking
	RunOffering
	RunWaiting
	RunAssigned
	RunExhausted
	RunCancelled
)

// String returns a human-readable representation of the run state.
func (s RunState) String() string {
	switch s {
	case RunIdle:
		return "idle"
	case RunRanking:
		return "ranking"
	case RunOffering:
		return "offering"
	case RunWaiting:
		return "waiting"
	case RunAssigned:
		return "assigned"
	case RunExhausted:
		return "exhausted"
	case RunCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the run has finished.
func (s RunState) Terminal() bool {
	return s == RunAssigned || s == RunExhausted || s == RunCancelled
}

// RunStatus is the observable snapshot of a run, served to the creator-facing
// progress view.
type RunStatus struct {
	OrderID             string  `json:"orderId"`
	State               string  `json:"state"`
	CandidatesRanked    int     `json:"candidatesRanked"`
	CandidatesContacted int     `json:"candidatesContacted"`
	AssignedFarmerID    string  `json:"assignedFarmerId,omitempty"`
	ElapsedSeconds      float64 `json:"elapsedSeconds"`
}

// ResponseOutcome reports how a submitted offer response was handled.
type ResponseOutcome int

const (
	// OutcomeApplied means the response decided the pending offer.
	OutcomeApplied ResponseOutcome = iota
	// OutcomeStale means the offer had already reached a terminal state; the
	// response is an idempotent no-op.
	OutcomeStale
)

// String returns a human-readable representation of the outcome.
func (o ResponseOutcome) String() string {
	if o == OutcomeStale {
		return "stale"
	}
	return "applied"
}

var (
	// ErrInvalidOrderState rejects dispatch for orders not in a dispatchable state.
	ErrInvalidOrderState = errors.New("order is not in a dispatchable state")
	// ErrUnknownOffer rejects responses whose offer id was never issued.
	ErrUnknownOffer = errors.New("unknown offer")
	// ErrRunNotFound is returned when no run exists for the order.
	ErrRunNotFound = errors.New("no dispatch run for order")
	// ErrRunFinished is returned when cancelling a run that already terminated.
	ErrRunFinished = errors.New("dispatch run already finished")
)

// CandidateRanker produces the ranked candidate snapshot for a run.
type CandidateRanker interface {
	Rank(ctx context.Context, city string, req ranking.Requirements) ([]model.Candidate, error)
}
