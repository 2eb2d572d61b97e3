package dispatch

import (
	"sync"
	"time"

	"github.com/shareprinto/dispatcher/core/dispatch/audit"
	"github.com/shareprinto/dispatcher/core/model"
	"github.com/shareprinto/dispatcher/core/ranking"
)

// decision carries the terminal state claimed for the current offer.
type decision struct {
	state model.OfferState
}

// run is the per-order dispatch state machine. The mutex is the single
// mutual-exclusion point for offer transitions: exactly one of response,
// timeout or cancellation claims each offer.
type run struct {
	orderID      string
	city         string
	requirements ranking.Requirements
	candidates   []model.Candidate
	startedAt    time.Time

	cancelOnce sync.Once
	cancelCh   chan struct{}
	done       chan struct{}

	mu         sync.Mutex
	state      RunState
	contacted  int
	current    *model.Offer
	decided    chan decision
	assigned   string
	finishedAt time.Time
	attempts   []audit.OfferEntry
}

func newRun(orderID, city string, req ranking.Requirements, now time.Time) *run {
	return &run{
		orderID:      orderID,
		city:         city,
		requirements: req,
		startedAt:    now,
		state:        RunRanking,
		cancelCh:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (r *run) setState(s RunState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// requestCancel is safe to call multiple times.
func (r *run) requestCancel() {
	r.cancelOnce.Do(func() { close(r.cancelCh) })
}

// beginOffer installs the offer as the run's single pending offer and returns
// the decision channel the claimer must use.
func (r *run) beginOffer(o model.Offer) chan decision {
	r.mu.Lock()
	r.current = &o
	r.decided = make(chan decision, 1)
	r.contacted++
	r.state = RunOffering
	dec := r.decided
	r.mu.Unlock()
	return dec
}

// claim transitions the current offer to the given terminal state. It returns
// false when the offer is not the pending one anymore, which means another
// claimer already won.
func (r *run) claim(offerID string, to model.OfferState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil || r.current.ID != offerID || r.current.State != model.OfferPending {
		return false
	}
	r.current.State = to
	return true
}

func (r *run) status(now time.Time) RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	elapsed := now.Sub(r.startedAt)
	if r.state.Terminal() {
		elapsed = r.finishedAt.Sub(r.startedAt)
	}
	return RunStatus{
		OrderID:             r.orderID,
		State:               r.state.String(),
		CandidatesRanked:    len(r.candidates),
		CandidatesContacted: r.contacted,
		AssignedFarmerID:    r.assigned,
		ElapsedSeconds:      elapsed.Seconds(),
	}
}

// RunHandle is returned by StartDispatch so the caller can observe the run
// without blocking on it.
type RunHandle struct {
	OrderID string
	rn      *run
}

// Done is closed when the run reaches a terminal state.
func (h *RunHandle) Done() <-chan struct{} { return h.rn.done }

// Status returns the current run snapshot.
func (h *RunHandle) Status() RunStatus { return h.rn.status(time.Now()) }
