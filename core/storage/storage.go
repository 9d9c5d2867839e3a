// Package storage defines the persistence contract for charging points,
// drivers and finalized sessions. All calls are best effort: the central
// logs failures and keeps serving.
package storage

import "github.com/kilianp07/evcharge/core/model"

// Store persists system state between restarts.
type Store interface {
	ChargingPoints() ([]model.ChargingPoint, error)
	ChargingPoint(id string) (model.ChargingPoint, bool, error)
	SaveChargingPoint(cp model.ChargingPoint) error
	SaveDriver(d model.Driver) error
	SaveSession(rec model.SessionRecord) error
	UpdateDriverStats(driverID string, amount float64) error
	RecentHistory(n int) ([]model.SessionRecord, error)
}

// Nop discards everything. Used in tests and by peers that do not persist.
type Nop struct{}

func (Nop) ChargingPoints() ([]model.ChargingPoint, error)             { return nil, nil }
func (Nop) ChargingPoint(string) (model.ChargingPoint, bool, error)    { return model.ChargingPoint{}, false, nil }
func (Nop) SaveChargingPoint(model.ChargingPoint) error                { return nil }
func (Nop) SaveDriver(model.Driver) error                              { return nil }
func (Nop) SaveSession(model.SessionRecord) error                      { return nil }
func (Nop) UpdateDriverStats(string, float64) error                    { return nil }
func (Nop) RecentHistory(int) ([]model.SessionRecord, error)           { return nil, nil }
