package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	coremetrics "github.com/shareprinto/dispatcher/core/metrics"
)

// PromSink records dispatch offers and run outcomes in Prometheus metrics.
type PromSink struct {
	offers  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	runs    *prometheus.CounterVec
	ranked  prometheus.Histogram
	active  prometheus.Gauge
}

// NewPromSink registers dispatch metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink() (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	offers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_offers_total",
		Help: "Total number of offers by terminal state",
	}, []string{"farmer_id", "state"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_offer_latency_seconds",
		Help:    "Time between offer push and its terminal state",
		Buckets: prometheus.DefBuckets,
	}, []string{"state"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_runs_total",
		Help: "Total number of finished dispatch runs by outcome",
	}, []string{"state"})
	ranked := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_candidates_ranked",
		Help:    "Candidate count per run after filtering and ranking",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	})
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_active_runs",
		Help: "Number of dispatch runs currently in flight",
	})

	if err := reg.Register(offers); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			offers = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(runs); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			runs = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(ranked); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			ranked = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(active); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			active = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{offers: offers, latency: latency, runs: runs, ranked: ranked, active: active}, nil
}

// RecordOfferOutcome increments the counter and observes the latency for the offer.
func (s *PromSink) RecordOfferOutcome(o coremetrics.OfferOutcome) error {
	s.offers.WithLabelValues(o.FarmerID, o.State.String()).Inc()
	s.latency.WithLabelValues(o.State.String()).Observe(o.Latency.Seconds())
	return nil
}

// RecordRunOutcome increments the run counter and observes the candidate count.
func (s *PromSink) RecordRunOutcome(o coremetrics.RunOutcome) error {
	s.runs.WithLabelValues(o.State).Inc()
	s.ranked.Observe(float64(o.CandidatesRanked))
	return nil
}

// RecordActiveRuns sets the gauge to the number of in-flight runs.
func (s *PromSink) RecordActiveRuns(n int) error {
	if s.active != nil {
		s.active.Set(float64(n))
	}
	return nil
}
