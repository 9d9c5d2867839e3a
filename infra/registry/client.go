// Package registry implements the HTTP client for the external
// charging-point registry service.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	coreregistry "github.com/kilianp07/evcharge/core/registry"
)

// Config locates the registry service.
type Config struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 8
	}
}

// Client talks to the registry over HTTP. It implements
// core/registry.Verifier.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a Client for the configured registry.
func NewClient(cfg Config) *Client {
	cfg.SetDefaults()
	return &Client{
		base: cfg.URL,
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

// Verify checks credentials with POST /verify. Any transport or decode
// error is returned; callers treat it as a denial.
func (c *Client) Verify(ctx context.Context, cpID, username, password string) (bool, error) {
	body, err := json.Marshal(map[string]string{
		"cp_id":    cpID,
		"username": username,
		"password": password,
	})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/verify", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("registry verify: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK, nil
}

// List fetches all registered charging points from GET /list.
func (c *Client) List(ctx context.Context) ([]coreregistry.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/list", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry list: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry list: status %d", resp.StatusCode)
	}
	var payload struct {
		ChargingPoints []coreregistry.Entry `json:"charging_points"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("registry list: %w", err)
	}
	return payload.ChargingPoints, nil
}
