package model

// DriverStatus is a driver's charging status.
type DriverStatus string

const (
	DriverIdle     DriverStatus = "IDLE"
	DriverCharging DriverStatus = "CHARGING"
)

// Driver is the central's record for one registered driver.
type Driver struct {
	ID        string
	Status    DriverStatus
	CurrentCP string // empty when idle
}
