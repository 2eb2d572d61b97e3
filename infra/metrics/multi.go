package metrics

import coremetrics "github.com/shareprinto/dispatcher/core/metrics"

// MultiSink fanouts offer and run records to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordOfferOutcome forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordOfferOutcome(o coremetrics.OfferOutcome) error {
	for _, s := range m.Sinks {
		if err := s.RecordOfferOutcome(o); err != nil {
			return err
		}
	}
	return nil
}

// RecordRunOutcome forwards run outcomes to sinks that support them.
func (m *MultiSink) RecordRunOutcome(o coremetrics.RunOutcome) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.RunRecorder); ok {
			if err := rec.RecordRunOutcome(o); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordActiveRuns forwards the gauge to sinks that track in-flight runs.
func (m *MultiSink) RecordActiveRuns(n int) error {
	for _, s := range m.Sinks {
		if ar, ok := s.(coremetrics.ActiveRunsRecorder); ok {
			if err := ar.RecordActiveRuns(n); err != nil {
				return err
			}
		}
	}
	return nil
}
