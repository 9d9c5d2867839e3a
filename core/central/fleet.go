package central

import (
	"encoding/json"

	"github.com/kilianp07/evcharge/core/model"
)

// Fleet state transitions. Every function in this file runs with s.mu held
// so a check-then-set is atomic.

// upsertCP refreshes (or creates) a charging-point record on successful
// registration. Location and price come from storage when the point is
// already known there, otherwise from the registration message. A point
// that still has a driver attached resumes SUPPLYING instead of ACTIVATED:
// a socket drop never canceled its session.
func (s *Server) upsertCP(id string, lat, lon, price float64) *model.ChargingPoint {
	cp := s.cps[id]
	if cp == nil {
		cp = &model.ChargingPoint{ID: id}
		s.cps[id] = cp
	}
	cp.Latitude = lat
	cp.Longitude = lon
	cp.PricePerKWh = price
	if cp.InSession() {
		cp.State = model.StateSupplying
	} else {
		cp.State = model.StateActivated
	}
	return cp
}

// applyHeartbeat adopts the state a charging point reports about itself,
// except while the central holds it in SUPPLYING: session state is owned
// here, not by the engine.
func (s *Server) applyHeartbeat(cpID string, state model.CPState) {
	cp := s.cps[cpID]
	if cp == nil || cp.State == model.StateSupplying || !state.Valid() {
		return
	}
	cp.State = state
}

// applyFault moves a charging point out of order unconditionally.
func (s *Server) applyFault(cpID string) *model.ChargingPoint {
	cp := s.cps[cpID]
	if cp == nil {
		return nil
	}
	cp.State = model.StateOutOfOrder
	return cp
}

// applyRecovery returns a faulted point to service unless it is supplying.
func (s *Server) applyRecovery(cpID string) *model.ChargingPoint {
	cp := s.cps[cpID]
	if cp == nil || cp.State == model.StateSupplying {
		return nil
	}
	cp.State = model.StateActivated
	return cp
}

// applyWeather handles an in-band weather alert: cold takes the point out
// of service, weather-ok restores it unless a session is running.
func (s *Server) applyWeather(cpID, alert string) (*model.ChargingPoint, bool) {
	cp := s.cps[cpID]
	if cp == nil {
		return nil, false
	}
	switch alert {
	case "ALERT_COLD":
		cp.State = model.StateOutOfOrder
		return cp, true
	case "WEATHER_OK":
		if cp.State != model.StateSupplying {
			cp.State = model.StateActivated
			return cp, true
		}
	}
	return cp, false
}

// availableCPs lists points that can accept a session right now.
func (s *Server) availableCPs() []model.CPSummary {
	var out []model.CPSummary
	for _, cp := range s.cps {
		if cp.State == model.StateActivated && !cp.InSession() {
			out = append(out, model.CPSummary{
				ID:          cp.ID,
				State:       cp.State,
				Latitude:    cp.Latitude,
				Longitude:   cp.Longitude,
				PricePerKWh: cp.PricePerKWh,
			})
		}
	}
	return out
}

// snapshot renders the full system state for a monitor, JSON-encoded per
// field so it travels inside the text framing.
func (s *Server) snapshot() (cps, drivers, history string) {
	cpList := make([]model.CPSummary, 0, len(s.cps))
	for _, cp := range s.cps {
		cpList = append(cpList, model.CPSummary{
			ID:           cp.ID,
			State:        cp.State,
			Latitude:     cp.Latitude,
			Longitude:    cp.Longitude,
			PricePerKWh:  cp.PricePerKWh,
			Driver:       cp.CurrentDriver,
			EnergyKWh:    cp.EnergyDelivered,
			Amount:       cp.AmountDue,
			EnergyNeeded: cp.EnergyNeeded,
		})
	}
	drvList := make([]model.DriverSummary, 0, len(s.drivers))
	for _, d := range s.drivers {
		drvList = append(drvList, model.DriverSummary{ID: d.ID, Status: d.Status, CurrentCP: d.CurrentCP})
	}
	recent, err := s.store.RecentHistory(20)
	if err != nil {
		s.log.Warnf("recent history: %v", err)
	}
	if recent == nil {
		recent = []model.SessionRecord{}
	}
	return mustJSON(cpList), mustJSON(drvList), mustJSON(recent)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
