package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shareprinto/dispatcher/core/model"
	"github.com/shareprinto/dispatcher/core/ranking"
	infrachannel "github.com/shareprinto/dispatcher/infra/channel"
	"github.com/shareprinto/dispatcher/infra/logger"
)

const testTimeout = 40 * time.Millisecond

type fakeRanker struct {
	cands []model.Candidate
	err   error
	calls int
}

func (f *fakeRanker) Rank(_ context.Context, _ string, _ ranking.Requirements) ([]model.Candidate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.Candidate(nil), f.cands...), nil
}

func candidates(ids ...string) []model.Candidate {
	out := make([]model.Candidate, 0, len(ids))
	for i, id := range ids {
		out = append(out, model.Candidate{FarmerID: id, MatchScore: float64(10 - i), Available: true})
	}
	return out
}

func testOrder(id string) model.Order {
	return model.Order{
		ID:           id,
		City:         "Paris",
		MaterialType: "PLA",
		Status:       model.OrderPending,
		CreatedAt:    time.Now(),
	}
}

func newTestScheduler(t *testing.T, rk CandidateRanker, ch *infrachannel.MockChannel) (*Scheduler, *MemoryOrderStore) {
	t.Helper()
	orders := NewMemoryOrderStore()
	s, err := NewScheduler(rk, ch, orders, testTimeout, nil, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	s.SetRetryPolicy(2, time.Millisecond)
	return s, orders
}

func nextPush(t *testing.T, ch *infrachannel.MockChannel) infrachannel.Push {
	t.Helper()
	select {
	case p := <-ch.Pushes:
		return p
	case <-time.After(2 * time.Second):
		t.Fatalf("no offer pushed")
		return infrachannel.Push{}
	}
}

func waitDone(t *testing.T, h *RunHandle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not finish")
	}
}

func TestScheduler_FirstAcceptWins(t *testing.T) {
	ch := infrachannel.NewMockChannel()
	s, orders := newTestScheduler(t, &fakeRanker{cands: candidates("f1", "f2", "f3")}, ch)

	h, err := s.StartDispatch(context.Background(), testOrder("o1"), ranking.Requirements{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	p := nextPush(t, ch)
	if p.FarmerID != "f1" {
		t.Fatalf("first offer went to %s", p.FarmerID)
	}
	out, err := s.SubmitResponse(p.Payload.OfferID, true)
	if err != nil || out != OutcomeApplied {
		t.Fatalf("response: %v %v", out, err)
	}
	waitDone(t, h)

	st := h.Status()
	if st.State != "assigned" || st.CandidatesContacted != 1 || st.AssignedFarmerID != "f1" {
		t.Fatalf("unexpected status: %#v", st)
	}
	ord, _ := orders.Get(context.Background(), "o1")
	if ord.Status != model.OrderAssigned || ord.AssignedFarmer != "f1" {
		t.Fatalf("order not assigned: %#v", ord)
	}
	if got := len(ch.Deliveries()); got != 1 {
		t.Fatalf("no farmer after the accepting one may be offered, got %d pushes", got)
	}
}

func TestScheduler_SequentialExhaustion(t *testing.T) {
	ch := infrachannel.NewMockChannel()
	s, orders := newTestScheduler(t, &fakeRanker{cands: candidates("f1", "f2", "f3")}, ch)

	h, err := s.StartDispatch(context.Background(), testOrder("o1"), ranking.Requirements{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, want := range []string{"f1", "f2", "f3"} {
		p := nextPush(t, ch)
		if p.FarmerID != want {
			t.Fatalf("offer order wrong: got %s want %s", p.FarmerID, want)
		}
		if out, err := s.SubmitResponse(p.Payload.OfferID, false); err != nil || out != OutcomeApplied {
			t.Fatalf("decline %s: %v %v", want, out, err)
		}
	}
	waitDone(t, h)

	st := h.Status()
	if st.State != "exhausted" || st.CandidatesContacted != 3 {
		t.Fatalf("unexpected status: %#v", st)
	}
	ord, _ := orders.Get(context.Background(), "o1")
	if ord.Status != model.OrderFailed {
		t.Fatalf("order not failed: %#v", ord)
	}
}

func TestScheduler_AtMostOnePendingOffer(t *testing.T) {
	ch := infrachannel.NewMockChannel()
	s, _ := newTestScheduler(t, &fakeRanker{cands: candidates("f1", "f2")}, ch)

	h, err := s.StartDispatch(context.Background(), testOrder("o1"), ranking.Requirements{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	p := nextPush(t, ch)
	// While the first offer is pending no second offer may be pushed.
	time.Sleep(testTimeout / 2)
	if got := len(ch.Deliveries()); got != 1 {
		t.Fatalf("second offer pushed while first pending: %d", got)
	}
	if _, err := s.SubmitResponse(p.Payload.OfferID, false); err != nil {
		t.Fatalf("decline: %v", err)
	}
	p2 := nextPush(t, ch)
	if p2.FarmerID != "f2" {
		t.Fatalf("expected f2 next, got %s", p2.FarmerID)
	}
	if _, err := s.SubmitResponse(p2.Payload.OfferID, true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	waitDone(t, h)
}

func TestScheduler_TimeoutAdvances(t *testing.T) {
	ch := infrachannel.NewMockChannel()
	s, orders := newTestScheduler(t, &fakeRanker{cands: candidates("f1", "f2")}, ch)

	h, err := s.StartDispatch(context.Background(), testOrder("o1"), ranking.Requirements{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// No responses at all: both offers must expire, one advance each.
	waitDone(t, h)

	st := h.Status()
	if st.State != "exhausted" || st.CandidatesContacted != 2 {
		t.Fatalf("unexpected status: %#v", st)
	}
	if got := len(ch.Deliveries()); got != 2 {
		t.Fatalf("expected exactly 2 pushes, got %d", got)
	}
	ord, _ := orders.Get(context.Background(), "o1")
	if ord.Status != model.OrderFailed {
		t.Fatalf("order not failed: %#v", ord)
	}
}

func TestScheduler_LateResponseIsStale(t *testing.T) {
	ch := infrachannel.NewMockChannel()
	s, orders := newTestScheduler(t, &fakeRanker{cands: candidates("f1", "f2")}, ch)

	h, err := s.StartDispatch(context.Background(), testOrder("o1"), ranking.Requirements{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	p1 := nextPush(t, ch)
	if _, err := s.SubmitResponse(p1.Payload.OfferID, false); err != nil {
		t.Fatalf("decline: %v", err)
	}
	p2 := nextPush(t, ch)
	if _, err := s.SubmitResponse(p2.Payload.OfferID, true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	waitDone(t, h)

	// The first offer advanced long ago; accepting it now must not change
	// anything.
	out, err := s.SubmitResponse(p1.Payload.OfferID, true)
	if err != nil {
		t.Fatalf("late response errored: %v", err)
	}
	if out != OutcomeStale {
		t.Fatalf("expected stale, got %v", out)
	}
	ord, _ := orders.Get(context.Background(), "o1")
	if ord.AssignedFarmer != "f2" {
		t.Fatalf("late response mutated the order: %#v", ord)
	}
}

func TestScheduler_UnknownOffer(t *testing.T) {
	ch := infrachannel.NewMockChannel()
	s, _ := newTestScheduler(t, &fakeRanker{cands: candidates("f1")}, ch)
	if _, err := s.SubmitResponse("never-issued", true); !errors.Is(err, ErrUnknownOffer) {
		t.Fatalf("expected ErrUnknownOffer, got %v", err)
	}
}

func TestScheduler_EmptyRankingExhaustsImmediately(t *testing.T) {
	ch := infrachannel.NewMockChannel()
	s, orders := newTestScheduler(t, &fakeRanker{}, ch)

	h, err := s.StartDispatch(context.Background(), testOrder("o2"), ranking.Requirements{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-h.Done():
	default:
		t.Fatalf("empty ranking must finish synchronously")
	}
	st := h.Status()
	if st.State != "exhausted" || st.CandidatesContacted != 0 || st.CandidatesRanked != 0 {
		t.Fatalf("unexpected status: %#v", st)
	}
	ord, _ := orders.Get(context.Background(), "o2")
	if ord.Status != model.OrderFailed {
		t.Fatalf("order not failed: %#v", ord)
	}
	if len(ch.Deliveries()) != 0 {
		t.Fatalf("no offer may be pushed for an empty snapshot")
	}
}

func TestScheduler_InvalidOrderState(t *testing.T) {
	ch := infrachannel.NewMockChannel()
	s, orders := newTestScheduler(t, &fakeRanker{cands: candidates("f1")}, ch)

	assigned := testOrder("o1")
	assigned.Status = model.OrderAssigned
	if err := orders.Put(context.Background(), assigned); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.StartDispatch(context.Background(), assigned, ranking.Requirements{}); !errors.Is(err, ErrInvalidOrderState) {
		t.Fatalf("expected ErrInvalidOrderState, got %v", err)
	}
}

func TestScheduler_DoubleDispatchRejected(t *testing.T) {
	ch := infrachannel.NewMockChannel()
	s, _ := newTestScheduler(t, &fakeRanker{cands: candidates("f1")}, ch)

	ord := testOrder("o1")
	h, err := s.StartDispatch(context.Background(), ord, ranking.Requirements{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.StartDispatch(context.Background(), ord, ranking.Requirements{}); !errors.Is(err, ErrInvalidOrderState) {
		t.Fatalf("second dispatch must be rejected, got %v", err)
	}
	p := nextPush(t, ch)
	if _, err := s.SubmitResponse(p.Payload.OfferID, true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	waitDone(t, h)
}

func TestScheduler_DeliveryFailureSkipsWait(t *testing.T) {
	ch := infrachannel.NewMockChannel()
	ch.FailFor("f1")
	s, orders := newTestScheduler(t, &fakeRanker{cands: candidates("f1", "f2")}, ch)

	start := time.Now()
	h, err := s.StartDispatch(context.Background(), testOrder("o1"), ranking.Requirements{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	p := nextPush(t, ch)
	if p.FarmerID != "f2" {
		t.Fatalf("expected advance to f2, got %s", p.FarmerID)
	}
	if elapsed := time.Since(start); elapsed > testTimeout {
		t.Fatalf("delivery failure held the window open: %s", elapsed)
	}
	if _, err := s.SubmitResponse(p.Payload.OfferID, true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	waitDone(t, h)
	st := h.Status()
	if st.CandidatesContacted != 2 || st.AssignedFarmerID != "f2" {
		t.Fatalf("unexpected status: %#v", st)
	}
	ord, _ := orders.Get(context.Background(), "o1")
	if ord.AssignedFarmer != "f2" {
		t.Fatalf("order not assigned to f2: %#v", ord)
	}
}

func TestScheduler_DeliveryFailureWaitPolicy(t *testing.T) {
	ch := infrachannel.NewMockChannel()
	ch.FailFor("f1")
	s, _ := newTestScheduler(t, &fakeRanker{cands: candidates("f1", "f2")}, ch)
	s.SetDeliveryFailurePolicy(true)

	start := time.Now()
	h, err := s.StartDispatch(context.Background(), testOrder("o1"), ranking.Requirements{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	p := nextPush(t, ch)
	if p.FarmerID != "f2" {
		t.Fatalf("expected f2, got %s", p.FarmerID)
	}
	if elapsed := time.Since(start); elapsed < testTimeout {
		t.Fatalf("wait policy must hold the full window, advanced after %s", elapsed)
	}
	if _, err := s.SubmitResponse(p.Payload.OfferID, true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	waitDone(t, h)
}

func TestScheduler_Cancel(t *testing.T) {
	ch := infrachannel.NewMockChannel()
	s, orders := newTestScheduler(t, &fakeRanker{cands: candidates("f1", "f2", "f3")}, ch)

	h, err := s.StartDispatch(context.Background(), testOrder("o1"), ranking.Requirements{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	nextPush(t, ch)
	if err := s.Cancel("o1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	waitDone(t, h)

	st := h.Status()
	if st.State != "cancelled" || st.CandidatesContacted != 1 {
		t.Fatalf("unexpected status: %#v", st)
	}
	if got := len(ch.Deliveries()); got != 1 {
		t.Fatalf("cancelled run kept offering: %d pushes", got)
	}
	// Cancellation does not claim the order record for dispatch.
	ord, _ := orders.Get(context.Background(), "o1")
	if ord.Status != model.OrderDispatching {
		t.Fatalf("cancel must not mutate order status: %#v", ord)
	}
	if err := s.Cancel("o1"); !errors.Is(err, ErrRunFinished) {
		t.Fatalf("expected ErrRunFinished, got %v", err)
	}
	if err := s.Cancel("ghost"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestScheduler_RankingErrorExhausts(t *testing.T) {
	ch := infrachannel.NewMockChannel()
	s, orders := newTestScheduler(t, &fakeRanker{err: fmt.Errorf("store unavailable")}, ch)

	h, err := s.StartDispatch(context.Background(), testOrder("o1"), ranking.Requirements{})
	if err != nil {
		t.Fatalf("start must not error on transient ranking failure: %v", err)
	}
	waitDone(t, h)
	if st := h.Status(); st.State != "exhausted" {
		t.Fatalf("unexpected status: %#v", st)
	}
	ord, _ := orders.Get(context.Background(), "o1")
	if ord.Status != model.OrderFailed {
		t.Fatalf("order not failed: %#v", ord)
	}
}

func TestScheduler_MixedScenario(t *testing.T) {
	// f1 declines quickly, f2 never answers, f3 accepts.
	ch := infrachannel.NewMockChannel()
	s, orders := newTestScheduler(t, &fakeRanker{cands: candidates("f1", "f2", "f3")}, ch)

	h, err := s.StartDispatch(context.Background(), testOrder("o1"), ranking.Requirements{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	p1 := nextPush(t, ch)
	if _, err := s.SubmitResponse(p1.Payload.OfferID, false); err != nil {
		t.Fatalf("decline f1: %v", err)
	}
	p2 := nextPush(t, ch)
	if p2.FarmerID != "f2" {
		t.Fatalf("expected f2, got %s", p2.FarmerID)
	}
	// f2 stays silent; the offer must expire on its own.
	p3 := nextPush(t, ch)
	if p3.FarmerID != "f3" {
		t.Fatalf("expected f3, got %s", p3.FarmerID)
	}
	if _, err := s.SubmitResponse(p3.Payload.OfferID, true); err != nil {
		t.Fatalf("accept f3: %v", err)
	}
	waitDone(t, h)

	st := h.Status()
	if st.State != "assigned" || st.AssignedFarmerID != "f3" || st.CandidatesContacted != 3 {
		t.Fatalf("unexpected status: %#v", st)
	}
	if st.ElapsedSeconds <= 0 {
		t.Fatalf("elapsed not recorded: %#v", st)
	}
	ord, _ := orders.Get(context.Background(), "o1")
	if ord.Status != model.OrderAssigned || ord.AssignedFarmer != "f3" {
		t.Fatalf("order wrong: %#v", ord)
	}
}

func TestScheduler_RunStatusUnknown(t *testing.T) {
	ch := infrachannel.NewMockChannel()
	s, _ := newTestScheduler(t, &fakeRanker{}, ch)
	if _, err := s.RunStatus("ghost"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestScheduler_RetryReturnsWithoutTrailingBackoff(t *testing.T) {
	ch := infrachannel.NewMockChannel()
	s, _ := newTestScheduler(t, &fakeRanker{}, ch)
	s.SetRetryPolicy(2, 50*time.Millisecond)

	opErr := errors.New("transient")
	start := time.Now()
	err := s.withRetry(context.Background(), func() error { return opErr })
	elapsed := time.Since(start)

	if !errors.Is(err, opErr) {
		t.Fatalf("err = %v", err)
	}
	// Two attempts separated by one 50ms backoff; no sleep after the last
	// attempt, so anything near 150ms means a trailing backoff crept back in.
	if elapsed >= 120*time.Millisecond {
		t.Fatalf("withRetry took %s, slept after the final attempt", elapsed)
	}
}

func TestScheduler_FinishedRunEviction(t *testing.T) {
	ch := infrachannel.NewMockChannel()
	s, _ := newTestScheduler(t, &fakeRanker{cands: candidates("f1")}, ch)
	s.SetRetention(1)

	h1, err := s.StartDispatch(context.Background(), testOrder("o1"), ranking.Requirements{})
	if err != nil {
		t.Fatalf("start o1: %v", err)
	}
	firstOffer := nextPush(t, ch).Payload.OfferID
	if _, err := s.SubmitResponse(firstOffer, false); err != nil {
		t.Fatalf("decline: %v", err)
	}
	waitDone(t, h1)

	h2, err := s.StartDispatch(context.Background(), testOrder("o2"), ranking.Requirements{})
	if err != nil {
		t.Fatalf("start o2: %v", err)
	}
	secondOffer := nextPush(t, ch).Payload.OfferID
	if _, err := s.SubmitResponse(secondOffer, false); err != nil {
		t.Fatalf("decline: %v", err)
	}
	waitDone(t, h2)

	// o2 evicted o1: its run and offer ids are gone.
	if _, err := s.RunStatus("o1"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("o1 status err = %v", err)
	}
	if _, err := s.SubmitResponse(firstOffer, true); !errors.Is(err, ErrUnknownOffer) {
		t.Fatalf("evicted offer err = %v", err)
	}
	// The retained run keeps stale detection working.
	if st, _ := s.RunStatus("o2"); st.State != "exhausted" {
		t.Fatalf("o2 state = %s", st.State)
	}
	if out, err := s.SubmitResponse(secondOffer, true); err != nil || out != OutcomeStale {
		t.Fatalf("late response: %v %v", out, err)
	}
}
