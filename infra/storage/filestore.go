// Package storage implements the file-backed Store: small JSON documents
// under a data directory. Writes are whole-file and guarded by a mutex;
// durability is best effort by contract.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/kilianp07/evcharge/core/model"
)

// Config locates the data directory.
type Config struct {
	Dir string `json:"dir"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "data"
	}
}

// driverStats tracks a driver's lifetime totals.
type driverStats struct {
	Driver   model.Driver `json:"driver"`
	Sessions int          `json:"sessions"`
	Spent    float64      `json:"spent_eur"`
}

// FileStore persists charging points, drivers and session history as JSON
// files.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the data directory if needed.
func NewFileStore(cfg Config) (*FileStore, error) {
	cfg.SetDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage dir: %w", err)
	}
	return &FileStore{dir: cfg.Dir}, nil
}

func (s *FileStore) path(name string) string { return filepath.Join(s.dir, name) }

func readJSON[T any](path string) (T, error) {
	var v T
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		return v, err
	}
	if len(b) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return v, nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ChargingPoints returns every persisted charging point.
func (s *FileStore) ChargingPoints() ([]model.ChargingPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := readJSON[map[string]model.ChargingPoint](s.path("charging_points.json"))
	if err != nil {
		return nil, err
	}
	out := make([]model.ChargingPoint, 0, len(m))
	for _, cp := range m {
		out = append(out, cp)
	}
	return out, nil
}

// ChargingPoint returns one persisted charging point.
func (s *FileStore) ChargingPoint(id string) (model.ChargingPoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := readJSON[map[string]model.ChargingPoint](s.path("charging_points.json"))
	if err != nil {
		return model.ChargingPoint{}, false, err
	}
	cp, ok := m[id]
	return cp, ok, nil
}

// SaveChargingPoint upserts one charging point.
func (s *FileStore) SaveChargingPoint(cp model.ChargingPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.path("charging_points.json")
	m, err := readJSON[map[string]model.ChargingPoint](path)
	if err != nil {
		return err
	}
	if m == nil {
		m = make(map[string]model.ChargingPoint)
	}
	m[cp.ID] = cp
	return writeJSON(path, m)
}

// SaveDriver upserts a driver record, preserving accumulated stats.
func (s *FileStore) SaveDriver(d model.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.path("drivers.json")
	m, err := readJSON[map[string]driverStats](path)
	if err != nil {
		return err
	}
	if m == nil {
		m = make(map[string]driverStats)
	}
	st := m[d.ID]
	st.Driver = d
	m[d.ID] = st
	return writeJSON(path, m)
}

// UpdateDriverStats adds one finished session to the driver's totals.
func (s *FileStore) UpdateDriverStats(driverID string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.path("drivers.json")
	m, err := readJSON[map[string]driverStats](path)
	if err != nil {
		return err
	}
	if m == nil {
		m = make(map[string]driverStats)
	}
	st := m[driverID]
	if st.Driver.ID == "" {
		st.Driver = model.Driver{ID: driverID, Status: model.DriverIdle}
	}
	st.Sessions++
	st.Spent += amount
	m[driverID] = st
	return writeJSON(path, m)
}

// SaveSession appends to the session history.
func (s *FileStore) SaveSession(rec model.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.path("sessions.json")
	history, err := readJSON[[]model.SessionRecord](path)
	if err != nil {
		return err
	}
	history = append(history, rec)
	return writeJSON(path, history)
}

// RecentHistory returns the n most recent sessions, newest last.
func (s *FileStore) RecentHistory(n int) ([]model.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history, err := readJSON[[]model.SessionRecord](s.path("sessions.json"))
	if err != nil {
		return nil, err
	}
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	return history, nil
}
