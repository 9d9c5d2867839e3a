package metrics

import (
	coremetrics "github.com/kilianp07/evcharge/core/metrics"
	"github.com/kilianp07/evcharge/core/model"
)

// MultiSink fans telemetry out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSession forwards the record to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordSession(rec model.SessionRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordSession(rec); err != nil {
			return err
		}
	}
	return nil
}

// RecordCPState forwards state transitions.
func (m *MultiSink) RecordCPState(cpID string, state model.CPState) error {
	for _, s := range m.Sinks {
		if err := s.RecordCPState(cpID, state); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink, returning the first error encountered.
func (m *MultiSink) Close() error {
	var first error
	for _, s := range m.Sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
