package model

import "time"

// CPState is a charging point lifecycle state.
type CPState string

const (
	StateDisconnected CPState = "DISCONNECTED"
	StateActivated    CPState = "ACTIVATED"
	StateSupplying    CPState = "SUPPLYING"
	StateOutOfOrder   CPState = "OUT_OF_ORDER"
)

// Valid reports whether s is one of the defined lifecycle states.
func (s CPState) Valid() bool {
	switch s {
	case StateDisconnected, StateActivated, StateSupplying, StateOutOfOrder:
		return true
	}
	return false
}

// ChargingPoint is the central's record for one charging point. It is owned
// by the central service and mutated only inside its aggregate lock. Records
// are created on first successful registration (or loaded from storage at
// startup) and never deleted, only transitioned to DISCONNECTED.
type ChargingPoint struct {
	ID          string
	State       CPState
	Latitude    float64
	Longitude   float64
	PricePerKWh float64

	// Session fields. CurrentDriver is empty when no session is open.
	CurrentDriver   string
	SessionID       string
	EnergyDelivered float64   // kWh accumulated in the open session
	AmountDue       float64   // EUR accumulated in the open session
	SessionStart    time.Time // zero when no session is open
	EnergyNeeded    float64   // kWh requested for the open session, 0 if unknown
	Complete        bool      // completion notification already fired
}

// InSession reports whether the charging point has an open session.
func (cp *ChargingPoint) InSession() bool { return cp.CurrentDriver != "" }

// ResetSession clears all session fields and returns the point to ACTIVATED.
func (cp *ChargingPoint) ResetSession() {
	cp.State = StateActivated
	cp.CurrentDriver = ""
	cp.SessionID = ""
	cp.EnergyDelivered = 0
	cp.AmountDue = 0
	cp.SessionStart = time.Time{}
	cp.EnergyNeeded = 0
}
