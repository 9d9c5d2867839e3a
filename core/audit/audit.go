// Package audit defines the fire-and-forget audit trail consumed by the
// coordination service. Sinks must never block protocol handling; failures
// are the sink's problem.
package audit

import "time"

// AuthEvent records a registration attempt.
type AuthEvent struct {
	EventID  string    `json:"event_id"`
	ClientID string    `json:"client_id"`
	EntityID string    `json:"entity_id"`
	Success  bool      `json:"success"`
	At       time.Time `json:"at"`
}

// ChargeEvent records a session boundary.
type ChargeEvent struct {
	EventID   string    `json:"event_id"`
	ClientID  string    `json:"client_id"`
	CPID      string    `json:"cp_id"`
	DriverID  string    `json:"driver_id"`
	SessionID string    `json:"session_id,omitempty"`
	Action    string    `json:"action"` // CHARGE_START or CHARGE_END
	EnergyKWh float64   `json:"energy_kwh,omitempty"`
	Amount    float64   `json:"amount_eur,omitempty"`
	At        time.Time `json:"at"`
}

// FaultEvent records a charging-point fault.
type FaultEvent struct {
	EventID  string    `json:"event_id"`
	ClientID string    `json:"client_id"`
	CPID     string    `json:"cp_id"`
	Code     string    `json:"code"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// Sink receives audit events.
type Sink interface {
	Auth(AuthEvent)
	Charge(ChargeEvent)
	Fault(FaultEvent)
	Close() error
}

// Nop discards all events.
type Nop struct{}

func (Nop) Auth(AuthEvent)     {}
func (Nop) Charge(ChargeEvent) {}
func (Nop) Fault(FaultEvent)   {}
func (Nop) Close() error       { return nil }
