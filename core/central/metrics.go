package central

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	connectionsOpen   prometheus.Gauge
	framesReceived    prometheus.Counter
	decryptFailures   prometheus.Counter
	authFailures      prometheus.Counter
	sessionsStarted   prometheus.Counter
	sessionsCompleted prometheus.Counter
	energyDelivered   prometheus.Counter
	chargeDenied      *prometheus.CounterVec
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Gauge, prometheus.Counter, prometheus.Counter, prometheus.Counter, prometheus.Counter, prometheus.Counter, prometheus.Counter, *prometheus.CounterVec) {
	open := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "central_connections_open",
		Help: "Currently open peer connections",
	})
	frames := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "central_frames_received_total",
		Help: "Complete protocol frames received",
	})
	dec := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "central_decrypt_failures_total",
		Help: "Inbound frames that failed the decrypt fallback",
	})
	auth := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "central_auth_failures_total",
		Help: "Charging point registrations denied by the registry",
	})
	started := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "central_sessions_started_total",
		Help: "Charging sessions authorized",
	})
	completed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "central_sessions_completed_total",
		Help: "Charging sessions finalized",
	})
	energy := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "central_energy_delivered_kwh_total",
		Help: "Energy billed across finalized sessions",
	})
	denied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "central_charge_denied_total",
		Help: "Charge requests denied",
	}, []string{"reason"})
	return open, frames, dec, auth, started, completed, energy, denied
}

func init() {
	connectionsOpen, framesReceived, decryptFailures, authFailures,
		sessionsStarted, sessionsCompleted, energyDelivered, chargeDenied = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers central metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(connectionsOpen, framesReceived, decryptFailures, authFailures,
		sessionsStarted, sessionsCompleted, energyDelivered, chargeDenied)
}

// ResetMetrics reinitializes metric collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	connectionsOpen, framesReceived, decryptFailures, authFailures,
		sessionsStarted, sessionsCompleted, energyDelivered, chargeDenied = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
