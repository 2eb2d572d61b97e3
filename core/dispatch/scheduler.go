package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shareprinto/dispatcher/core/channel"
	"github.com/shareprinto/dispatcher/core/dispatch/audit"
	"github.com/shareprinto/dispatcher/core/events"
	"github.com/shareprinto/dispatcher/core/logger"
	"github.com/shareprinto/dispatcher/core/metrics"
	"github.com/shareprinto/dispatcher/core/model"
	"github.com/shareprinto/dispatcher/core/ranking"
	"github.com/shareprinto/dispatcher/internal/eventbus"
)

// Scheduler drives dispatch runs. One goroutine per run; runs for different
// orders never block each other.
type Scheduler struct {
	ranker       CandidateRanker
	channel      channel.OfferChannel
	orders       OrderStore
	offerTimeout time.Duration
	waitOnFail   bool
	retries      int
	backoff      time.Duration
	log          logger.Logger
	metrics      metrics.Sink
	bus          eventbus.Bus

	mu       sync.Mutex
	runs     map[string]*run
	offers   map[string]string // offer id -> order id, kept for stale detection
	retain   int               // finished runs kept queryable before eviction
	finished []*run            // terminal runs, oldest first
	active   int
	audit    audit.Store
}

// NewScheduler creates a scheduler. offerTimeout defines the response window
// per offer; if zero, the default of twenty seconds is used.
func NewScheduler(ranker CandidateRanker, ch channel.OfferChannel, orders OrderStore, offerTimeout time.Duration, sink metrics.Sink, bus eventbus.Bus, log logger.Logger) (*Scheduler, error) {
	if ranker == nil || ch == nil || orders == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewScheduler")
	}
	if offerTimeout <= 0 {
		offerTimeout = 20 * time.Second
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Scheduler{
		ranker:       ranker,
		channel:      ch,
		orders:       orders,
		offerTimeout: offerTimeout,
		retries:      3,
		backoff:      100 * time.Millisecond,
		retain:       1024,
		log:          log,
		metrics:      sink,
		bus:          bus,
		runs:         make(map[string]*run),
		offers:       make(map[string]string),
	}, nil
}

// SetAuditStore configures the store used to persist run records.
func (s *Scheduler) SetAuditStore(store audit.Store) {
	s.mu.Lock()
	s.audit = store
	s.mu.Unlock()
}

// SetDeliveryFailurePolicy controls whether a failed push still holds the
// full response window open. The default skips the wait.
func (s *Scheduler) SetDeliveryFailurePolicy(waitFullWindow bool) {
	s.mu.Lock()
	s.waitOnFail = waitFullWindow
	s.mu.Unlock()
}

// SetRetryPolicy bounds retries for transient store and ranking reads.
func (s *Scheduler) SetRetryPolicy(attempts int, backoff time.Duration) {
	if attempts <= 0 || backoff <= 0 {
		return
	}
	s.mu.Lock()
	s.retries = attempts
	s.backoff = backoff
	s.mu.Unlock()
}

// SetRetention bounds how many finished runs stay queryable. Once the
// limit is exceeded the oldest terminal runs and their offer ids are
// evicted; a response to an evicted offer reports ErrUnknownOffer.
func (s *Scheduler) SetRetention(n int) {
	if n < 0 {
		return
	}
	s.mu.Lock()
	s.retain = n
	s.evictFinished()
	s.mu.Unlock()
}

// evictFinished trims the finished list to the retention limit.
// Caller must hold s.mu.
func (s *Scheduler) evictFinished() {
	for len(s.finished) > s.retain {
		old := s.finished[0]
		s.finished = s.finished[1:]
		old.mu.Lock()
		for _, a := range old.attempts {
			delete(s.offers, a.OfferID)
		}
		old.mu.Unlock()
		// A re-dispatched order owns the map slot with a newer run.
		if s.runs[old.orderID] == old {
			delete(s.runs, old.orderID)
		}
	}
}

// Close releases resources held by the scheduler.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	store := s.audit
	s.mu.Unlock()
	if store != nil {
		if err := store.Close(); err != nil {
			return err
		}
	}
	if s.bus != nil {
		s.bus.Close()
	}
	return nil
}

// StartDispatch validates the order, ranks candidates and begins the run
// asynchronously. The returned handle is available immediately; the run may
// take candidateCount times the offer window in the worst case.
func (s *Scheduler) StartDispatch(ctx context.Context, order model.Order, req ranking.Requirements) (*RunHandle, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}

	stored, err := s.loadOrCreateOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	if !stored.Dispatchable() {
		return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidOrderState, stored.ID, stored.Status)
	}

	rn := newRun(stored.ID, stored.City, req, time.Now())
	s.mu.Lock()
	if existing, ok := s.runs[stored.ID]; ok {
		existing.mu.Lock()
		terminal := existing.state.Terminal()
		existing.mu.Unlock()
		if !terminal {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: order %s already dispatching", ErrInvalidOrderState, stored.ID)
		}
	}
	s.runs[stored.ID] = rn
	s.active++
	s.mu.Unlock()
	s.recordActiveRuns()

	if err := s.withRetry(ctx, func() error {
		return s.orders.SetStatus(ctx, stored.ID, model.OrderDispatching, "")
	}); err != nil {
		s.log.Errorf("order %s: set dispatching: %v", stored.ID, err)
		s.finishRun(rn, RunExhausted)
		return &RunHandle{OrderID: stored.ID, rn: rn}, nil
	}

	var cands []model.Candidate
	if err := s.withRetry(ctx, func() error {
		var rerr error
		cands, rerr = s.ranker.Rank(ctx, stored.City, req)
		return rerr
	}); err != nil {
		s.log.Errorf("order %s: ranking failed: %v", stored.ID, err)
		s.finishRun(rn, RunExhausted)
		return &RunHandle{OrderID: stored.ID, rn: rn}, nil
	}

	rn.mu.Lock()
	rn.candidates = cands
	rn.mu.Unlock()
	s.publish(events.RunEvent{OrderID: stored.ID, State: RunRanking.String(), CandidatesRanked: len(cands)})
	s.log.Infof("order %s: dispatching to %d ranked candidates", stored.ID, len(cands))

	if len(cands) == 0 {
		// Empty snapshot is a valid terminal outcome, reported synchronously.
		s.finishRun(rn, RunExhausted)
		return &RunHandle{OrderID: stored.ID, rn: rn}, nil
	}

	go s.runLoop(rn, stored)
	return &RunHandle{OrderID: stored.ID, rn: rn}, nil
}

// SubmitResponse applies a farmer's accept or decline to the pending offer.
// It is the only external mutation point; the first claimer wins and any
// later response is an idempotent no-op reported as stale.
func (s *Scheduler) SubmitResponse(offerID string, accepted bool) (ResponseOutcome, error) {
	s.mu.Lock()
	orderID, known := s.offers[offerID]
	rn := s.runs[orderID]
	s.mu.Unlock()
	if !known || rn == nil {
		return OutcomeStale, ErrUnknownOffer
	}

	to := model.OfferDeclined
	if accepted {
		to = model.OfferAccepted
	}

	rn.mu.Lock()
	if rn.current == nil || rn.current.ID != offerID || rn.current.State != model.OfferPending {
		rn.mu.Unlock()
		return OutcomeStale, nil
	}
	rn.current.State = to
	dec := rn.decided
	rn.mu.Unlock()

	dec <- decision{state: to}
	return OutcomeApplied, nil
}

// RunStatus returns the observable snapshot for the order's run.
func (s *Scheduler) RunStatus(orderID string) (RunStatus, error) {
	s.mu.Lock()
	rn := s.runs[orderID]
	s.mu.Unlock()
	if rn == nil {
		return RunStatus{}, ErrRunNotFound
	}
	return rn.status(time.Now()), nil
}

// Cancel stops the run for the order. The pending offer transitions to
// cancelled and no further candidate is contacted.
func (s *Scheduler) Cancel(orderID string) error {
	s.mu.Lock()
	rn := s.runs[orderID]
	s.mu.Unlock()
	if rn == nil {
		return ErrRunNotFound
	}
	rn.mu.Lock()
	terminal := rn.state.Terminal()
	rn.mu.Unlock()
	if terminal {
		return ErrRunFinished
	}
	rn.requestCancel()
	return nil
}

// runLoop drives the candidate sequence to a terminal state.
func (s *Scheduler) runLoop(rn *run, ord model.Order) {
	final := s.offerSequence(rn, ord)
	s.finishRun(rn, final)
}

// offerSequence contacts candidates front to back. A farmer who declines is
// never re-offered within the run.
func (s *Scheduler) offerSequence(rn *run, ord model.Order) RunState {
	for i, cand := range rn.candidates {
		select {
		case <-rn.cancelCh:
			return RunCancelled
		default:
		}

		now := time.Now()
		offer := model.Offer{
			ID:        uuid.NewString(),
			OrderID:   rn.orderID,
			FarmerID:  cand.FarmerID,
			CreatedAt: now,
			ExpiresAt: now.Add(s.offerTimeout),
			State:     model.OfferPending,
		}
		dec := rn.beginOffer(offer)
		s.mu.Lock()
		s.offers[offer.ID] = rn.orderID
		s.mu.Unlock()
		s.publish(events.OfferEvent{Offer: offer, Position: i})
		s.log.Debugw("offer pushed", map[string]any{
			"order_id": rn.orderID,
			"offer_id": offer.ID,
			"farmer":   cand.FarmerID,
			"position": i,
		})

		pctx, cancel := context.WithTimeout(context.Background(), s.offerTimeout)
		pushErr := s.channel.Push(pctx, cand.FarmerID, s.payload(ord, offer))
		cancel()

		var st model.OfferState
		if pushErr != nil {
			s.log.Warnf("order %s: delivery to %s failed: %v", rn.orderID, cand.FarmerID, pushErr)
		}
		if pushErr != nil && !s.waitFullWindow() {
			// Unreachable farmer counts as an implicit decline without
			// holding the window open.
			if rn.claim(offer.ID, model.OfferExpired) {
				st = model.OfferExpired
			} else {
				st = (<-dec).state
			}
		} else {
			rn.setState(RunWaiting)
			timer := time.NewTimer(s.offerTimeout)
			select {
			case d := <-dec:
				timer.Stop()
				st = d.state
			case <-timer.C:
				if rn.claim(offer.ID, model.OfferExpired) {
					st = model.OfferExpired
				} else {
					// The response won the race against the timer.
					st = (<-dec).state
				}
			case <-rn.cancelCh:
				timer.Stop()
				if rn.claim(offer.ID, model.OfferCancelled) {
					st = model.OfferCancelled
				} else {
					st = (<-dec).state
				}
			}
		}

		latency := time.Since(now)
		s.recordOffer(rn, offer, i, st, latency, pushErr)

		switch st {
		case model.OfferAccepted:
			rn.mu.Lock()
			rn.assigned = cand.FarmerID
			rn.mu.Unlock()
			return RunAssigned
		case model.OfferCancelled:
			return RunCancelled
		}
		// Declined or expired: advance to the next candidate.
	}
	return RunExhausted
}

// finishRun applies the terminal state, mutates the order record at most once
// and emits the run outcome.
func (s *Scheduler) finishRun(rn *run, final RunState) {
	now := time.Now()
	rn.mu.Lock()
	rn.state = final
	rn.finishedAt = now
	assigned := rn.assigned
	contacted := rn.contacted
	ranked := len(rn.candidates)
	attempts := append([]audit.OfferEntry(nil), rn.attempts...)
	candidateIDs := make([]string, 0, ranked)
	for _, c := range rn.candidates {
		candidateIDs = append(candidateIDs, c.FarmerID)
	}
	elapsed := now.Sub(rn.startedAt)
	rn.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	switch final {
	case RunAssigned:
		if err := s.withRetry(ctx, func() error {
			return s.orders.SetStatus(ctx, rn.orderID, model.OrderAssigned, assigned)
		}); err != nil {
			s.log.Errorf("order %s: set assigned: %v", rn.orderID, err)
		}
	case RunExhausted:
		if err := s.withRetry(ctx, func() error {
			return s.orders.SetStatus(ctx, rn.orderID, model.OrderFailed, "")
		}); err != nil {
			s.log.Errorf("order %s: set failed: %v", rn.orderID, err)
		}
	case RunCancelled:
		// The order record is left to the order service: cancellation
		// originates there, not from dispatch.
	}

	s.mu.Lock()
	s.active--
	store := s.audit
	s.finished = append(s.finished, rn)
	s.evictFinished()
	s.mu.Unlock()

	if rr, ok := s.metrics.(metrics.RunRecorder); ok {
		if err := rr.RecordRunOutcome(metrics.RunOutcome{
			OrderID:             rn.orderID,
			State:               final.String(),
			CandidatesRanked:    ranked,
			CandidatesContacted: contacted,
			AssignedFarmerID:    assigned,
			Elapsed:             elapsed,
			Time:                now,
		}); err != nil {
			s.log.Errorf("metrics error: %v", err)
		}
	}
	s.recordActiveRuns()
	s.publish(events.RunEvent{
		OrderID:             rn.orderID,
		State:               final.String(),
		CandidatesRanked:    ranked,
		CandidatesContacted: contacted,
		AssignedFarmerID:    assigned,
		Elapsed:             elapsed,
	})
	s.log.Infof("order %s: run finished %s (contacted %d/%d, elapsed %s)",
		rn.orderID, final, contacted, ranked, elapsed.Round(time.Millisecond))

	if store != nil {
		rec := audit.Record{
			Timestamp:        now,
			OrderID:          rn.orderID,
			City:             rn.city,
			Requirements:     rn.requirements,
			Candidates:       candidateIDs,
			Offers:           attempts,
			FinalState:       final.String(),
			AssignedFarmerID: assigned,
			ElapsedSeconds:   elapsed.Seconds(),
		}
		if err := store.Append(ctx, rec); err != nil {
			s.log.Errorf("audit append: %v", err)
		}
	}

	close(rn.done)
}

// recordOffer archives the attempt and emits per-offer observability.
func (s *Scheduler) recordOffer(rn *run, offer model.Offer, pos int, st model.OfferState, latency time.Duration, pushErr error) {
	errText := ""
	if pushErr != nil {
		errText = pushErr.Error()
	}
	rn.mu.Lock()
	rn.attempts = append(rn.attempts, audit.OfferEntry{
		OfferID:        offer.ID,
		FarmerID:       offer.FarmerID,
		State:          st.String(),
		LatencySeconds: latency.Seconds(),
		Error:          errText,
	})
	rn.mu.Unlock()

	if err := s.metrics.RecordOfferOutcome(metrics.OfferOutcome{
		OrderID:  offer.OrderID,
		OfferID:  offer.ID,
		FarmerID: offer.FarmerID,
		State:    st,
		Position: pos,
		Latency:  latency,
		Error:    errText,
		Time:     time.Now(),
	}); err != nil {
		s.log.Errorf("metrics error: %v", err)
	}
	s.publish(events.ResponseEvent{
		OfferID:  offer.ID,
		OrderID:  offer.OrderID,
		FarmerID: offer.FarmerID,
		State:    st,
		Latency:  latency,
		Err:      pushErr,
	})
}

func (s *Scheduler) payload(ord model.Order, offer model.Offer) channel.OfferPayload {
	return channel.OfferPayload{
		OfferID:        offer.ID,
		OrderID:        ord.ID,
		Description:    ord.Description,
		MaterialType:   ord.MaterialType,
		TypeOfPrinting: ord.TypeOfPrinting,
		EstimatedTime:  ord.EstimatedTime,
		Cost:           ord.Cost,
		City:           ord.City,
		NumberOfPrints: ord.NumberOfPrints,
		Instructions:   ord.Instructions,
		CreatorName:    ord.CreatorName,
		ExpiresAt:      offer.ExpiresAt,
	}
}

func (s *Scheduler) loadOrCreateOrder(ctx context.Context, order model.Order) (model.Order, error) {
	var stored model.Order
	err := s.withRetry(ctx, func() error {
		var gerr error
		stored, gerr = s.orders.Get(ctx, order.ID)
		return gerr
	})
	if errors.Is(err, ErrOrderNotFound) {
		if perr := s.orders.Put(ctx, order); perr != nil {
			return model.Order{}, perr
		}
		return order, nil
	}
	if err != nil {
		return model.Order{}, err
	}
	return stored, nil
}

// withRetry retries transient failures with doubling backoff. Not-found is
// never retried.
func (s *Scheduler) withRetry(ctx context.Context, op func() error) error {
	backoff := s.backoff
	var err error
	for i := 0; i < s.retries; i++ {
		if err = op(); err == nil {
			return nil
		}
		if errors.Is(err, ErrOrderNotFound) {
			return err
		}
		if i == s.retries-1 {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return err
}

func (s *Scheduler) waitFullWindow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitOnFail
}

func (s *Scheduler) publish(e events.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

func (s *Scheduler) recordActiveRuns() {
	ar, ok := s.metrics.(metrics.ActiveRunsRecorder)
	if !ok {
		return
	}
	s.mu.Lock()
	n := s.active
	s.mu.Unlock()
	if err := ar.RecordActiveRuns(n); err != nil {
		s.log.Errorf("metrics error: %v", err)
	}
}

// nopLogger avoids an infra dependency from core.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}
