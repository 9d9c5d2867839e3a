package config

import (
	"time"

	"github.com/kilianp07/evcharge/core/cp"
	"github.com/kilianp07/evcharge/core/driver"
)

// CPConfig is the file representation of a charging-point engine. Pacing is
// expressed in seconds so it can be written in plain YAML.
type CPConfig struct {
	ID          string  `json:"id"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	PricePerKWh float64 `json:"price_per_kwh"`
	CentralAddr string  `json:"central_addr"`
	Username    string  `json:"username"`
	Password    string  `json:"password"`

	UpdateIntervalSeconds int `json:"update_interval_seconds"`
	FullChargeSeconds     int `json:"full_charge_seconds"`
	ReconnectDelaySeconds int `json:"reconnect_delay_seconds"`
}

// Engine converts the file representation into an engine config.
// Zero pacing fields are left for the engine's own defaults.
func (c CPConfig) Engine() cp.Config {
	return cp.Config{
		ID:             c.ID,
		Latitude:       c.Latitude,
		Longitude:      c.Longitude,
		PricePerKWh:    c.PricePerKWh,
		CentralAddr:    c.CentralAddr,
		Username:       c.Username,
		Password:       c.Password,
		UpdateInterval: time.Duration(c.UpdateIntervalSeconds) * time.Second,
		FullCharge:     time.Duration(c.FullChargeSeconds) * time.Second,
		ReconnectDelay: time.Duration(c.ReconnectDelaySeconds) * time.Second,
	}
}

// DriverConfig is the file representation of a driver simulator.
type DriverConfig struct {
	ID          string  `json:"id"`
	CentralAddr string  `json:"central_addr"`
	CPID        string  `json:"cp_id"`
	EnergyKWh   float64 `json:"energy_kwh"`
}

// Simulator converts the file representation into a simulator config.
func (c DriverConfig) Simulator() driver.Config {
	return driver.Config{
		ID:          c.ID,
		CentralAddr: c.CentralAddr,
		CPID:        c.CPID,
		EnergyKWh:   c.EnergyKWh,
	}
}
