package metrics

import (
	"time"

	"github.com/shareprinto/dispatcher/core/model"
)

// OfferOutcome represents one terminal offer to be recorded.
type OfferOutcome struct {
	OrderID  string
	OfferID  string
	FarmerID string
	State    model.OfferState
	Position int // candidate index within the run
	Latency  time.Duration
	Error    string
	Time     time.Time
}

// Sink records offer outcomes for observability purposes.
type Sink interface {
	RecordOfferOutcome(o OfferOutcome) error
}

// RunOutcome summarises a finished dispatch run.
type RunOutcome struct {
	OrderID             string
	State               string
	CandidatesRanked    int
	CandidatesContacted int
	AssignedFarmerID    string
	Elapsed             time.Duration
	Time                time.Time
}

// RunRecorder is implemented by sinks able to record run outcomes.
type RunRecorder interface {
	RecordRunOutcome(o RunOutcome) error
}

// ActiveRunsRecorder is implemented by sinks tracking the number of in-flight runs.
type ActiveRunsRecorder interface {
	RecordActiveRuns(n int) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordOfferOutcome(OfferOutcome) error { return nil }
func (NopSink) RecordRunOutcome(RunOutcome) error     { return nil }
func (NopSink) RecordActiveRuns(int) error            { return nil }
