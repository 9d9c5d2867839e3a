// Package events defines the notifications published on the in-process bus
// while the coordination service mutates fleet state. Subscribers (monitor
// broadcaster, metric sinks) consume them outside the aggregate lock.
package events

import (
	"time"

	"github.com/kilianp07/evcharge/core/model"
)

// Event is implemented by every bus event.
type Event interface{ event() }

// CPStateChanged reports a lifecycle transition of a charging point.
type CPStateChanged struct {
	CPID  string
	State model.CPState
}

// SessionStarted reports an authorized charge.
type SessionStarted struct {
	SessionID    string
	CPID         string
	DriverID     string
	EnergyNeeded float64
	Price        float64
}

// SupplyProgress reports accumulated session totals after an accepted
// metering update.
type SupplyProgress struct {
	CPID      string
	DriverID  string
	EnergyKWh float64
	Amount    float64
	Complete  bool
}

// SessionFinalized reports a finalized session.
type SessionFinalized struct {
	Session model.SessionRecord
}

// ChargeDenied reports a rejected charge request.
type ChargeDenied struct {
	DriverID string
	CPID     string
	Reason   string
}

// LogLine is a free-form entry forwarded to monitors.
type LogLine struct {
	Source string
	Text   string
	At     time.Time
}

func (CPStateChanged) event()   {}
func (SessionStarted) event()   {}
func (SupplyProgress) event()   {}
func (SessionFinalized) event() {}
func (ChargeDenied) event()     {}
func (LogLine) event()          {}
