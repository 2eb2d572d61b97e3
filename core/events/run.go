package events

import "time"

// RunEvent is published when a dispatch run starts or reaches a terminal state.
type RunEvent struct {
	OrderID             string
	State               string
	CandidatesRanked    int
	CandidatesContacted int
	AssignedFarmerID    string
	Elapsed             time.Duration
}

func (RunEvent) Kind() string { return "run" }
