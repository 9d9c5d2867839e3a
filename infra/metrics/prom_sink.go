package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/evcharge/core/model"
)

// PromSink exposes session telemetry as Prometheus collectors, scraped via
// the endpoint started by StartPromServer.
type PromSink struct {
	sessions *prometheus.CounterVec
	energy   *prometheus.CounterVec
	amount   *prometheus.CounterVec
	cpState  *prometheus.GaugeVec

	mu   sync.Mutex
	last map[string]string // cp_id -> last published state label
}

// NewPromSink creates a PromSink and registers its collectors. A nil
// registerer uses the default registry.
func NewPromSink(reg prometheus.Registerer) *PromSink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "charge_sessions_total",
			Help: "Finalized charging sessions per charging point",
		}, []string{"cp_id"}),
		energy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "charge_session_energy_kwh_total",
			Help: "Energy billed per charging point",
		}, []string{"cp_id"}),
		amount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "charge_session_amount_eur_total",
			Help: "Amount billed per charging point",
		}, []string{"cp_id"}),
		cpState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "charging_point_state",
			Help: "Current charging point state (1 for the active state label)",
		}, []string{"cp_id", "state"}),
		last: make(map[string]string),
	}
	reg.MustRegister(s.sessions, s.energy, s.amount, s.cpState)
	return s
}

// RecordSession counts a finalized session and its billed totals.
func (s *PromSink) RecordSession(rec model.SessionRecord) error {
	s.sessions.WithLabelValues(rec.CPID).Inc()
	s.energy.WithLabelValues(rec.CPID).Add(rec.EnergyKWh)
	s.amount.WithLabelValues(rec.CPID).Add(rec.Amount)
	return nil
}

// RecordCPState flips the state gauge: the previous state label for the
// point is removed so exactly one series per point reads 1.
func (s *PromSink) RecordCPState(cpID string, state model.CPState) error {
	s.mu.Lock()
	if prev, ok := s.last[cpID]; ok && prev != string(state) {
		s.cpState.DeleteLabelValues(cpID, prev)
	}
	s.last[cpID] = string(state)
	s.mu.Unlock()
	s.cpState.WithLabelValues(cpID, string(state)).Set(1)
	return nil
}

// Close is a no-op; collectors stay registered for the process lifetime.
func (s *PromSink) Close() error { return nil }
