// Package metrics defines the sink interface for session telemetry.
// Implementations live in infra/metrics.
package metrics

import "github.com/kilianp07/evcharge/core/model"

// Sink receives fleet telemetry. Calls are best effort; the central logs
// and continues on error.
type Sink interface {
	RecordSession(rec model.SessionRecord) error
	RecordCPState(cpID string, state model.CPState) error
	Close() error
}

// NopSink discards all telemetry.
type NopSink struct{}

func (NopSink) RecordSession(model.SessionRecord) error   { return nil }
func (NopSink) RecordCPState(string, model.CPState) error { return nil }
func (NopSink) Close() error                              { return nil }
