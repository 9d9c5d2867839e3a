package model

import "time"

// SessionRecord is the persisted result of one finalized charging session.
type SessionRecord struct {
	SessionID string        `json:"session_id"`
	CPID      string        `json:"cp_id"`
	DriverID  string        `json:"driver_id"`
	EnergyKWh float64       `json:"energy_kwh"`
	Amount    float64       `json:"amount_eur"`
	Duration  time.Duration `json:"duration"`
	EndedAt   time.Time     `json:"ended_at"`
}

// CPSummary is the monitor-facing snapshot of one charging point.
type CPSummary struct {
	ID           string  `json:"cp_id"`
	State        CPState `json:"state"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	PricePerKWh  float64 `json:"price_per_kwh"`
	Driver       string  `json:"driver,omitempty"`
	EnergyKWh    float64 `json:"energy_kwh"`
	Amount       float64 `json:"amount_eur"`
	EnergyNeeded float64 `json:"energy_needed"`
}

// DriverSummary is the monitor-facing snapshot of one driver.
type DriverSummary struct {
	ID        string       `json:"driver_id"`
	Status    DriverStatus `json:"status"`
	CurrentCP string       `json:"current_cp,omitempty"`
}
