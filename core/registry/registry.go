// Package registry defines the contract with the external charging-point
// registry, which owns credential issuance and verification.
package registry

import "context"

// Entry describes one charging point known to the registry.
type Entry struct {
	CPID     string  `json:"cp_id"`
	City     string  `json:"city"`
	Price    float64 `json:"price_per_kwh"`
	Username string  `json:"username,omitempty"`
	Password string  `json:"password,omitempty"`
}

// Verifier checks charging-point credentials. Verify is synchronous; an
// error or timeout is treated as a denial by callers.
type Verifier interface {
	Verify(ctx context.Context, cpID, username, password string) (bool, error)
	List(ctx context.Context) ([]Entry, error)
}

// AllowAll accepts any credentials. Used in tests and standalone setups
// without a registry service.
type AllowAll struct{}

func (AllowAll) Verify(context.Context, string, string, string) (bool, error) { return true, nil }
func (AllowAll) List(context.Context) ([]Entry, error)                        { return nil, nil }
