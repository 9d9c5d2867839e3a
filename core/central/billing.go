package central

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/evcharge/core/audit"
	"github.com/kilianp07/evcharge/core/events"
	"github.com/kilianp07/evcharge/core/model"
	"github.com/kilianp07/evcharge/core/protocol"
)

// Denial reason codes sent back on a rejected REQUEST_CHARGE.
const (
	DenyCPNotFound    = "CP_NOT_FOUND"
	DenyCPInUse       = "CP_ALREADY_IN_USE"
	denyCPStatePrefix = "CP_STATE_"
)

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// authorize atomically checks and claims a charging point for a driver.
// The lock is held from the state check through the SUPPLYING write so two
// concurrent requests cannot both succeed. On success the session fields
// are initialized and a fresh session id is stamped.
func (s *Server) authorize(driverID, cpID string, energyNeeded float64) (ok bool, reason string, price float64, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := s.cps[cpID]
	if cp == nil {
		return false, DenyCPNotFound, 0, ""
	}
	if cp.State != model.StateActivated {
		return false, denyCPStatePrefix + string(cp.State), 0, ""
	}
	if cp.InSession() {
		return false, DenyCPInUse, 0, ""
	}

	cp.State = model.StateSupplying
	cp.CurrentDriver = driverID
	cp.SessionID = uuid.NewString()
	cp.SessionStart = time.Now()
	cp.EnergyDelivered = 0
	cp.AmountDue = 0
	cp.EnergyNeeded = energyNeeded
	cp.Complete = false

	if d := s.drivers[driverID]; d != nil {
		d.Status = model.DriverCharging
		d.CurrentCP = cpID
	}
	return true, "", cp.PricePerKWh, cp.SessionID
}

// applyMeterIncrement accumulates a metering report. Energy always adds.
// The amount field is ambiguous: engines may report running totals or
// per-tick increments, and the engine is not required to commit to one
// convention. A reported value that is at least the previous total and at
// least 70% of the total computed from accumulated energy is trusted as
// the new total; anything else is treated as an increment.
func (s *Server) applyMeterIncrement(cpID string, energyInc, reportedAmount float64) (upd events.SupplyProgress, completed, known bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := s.cps[cpID]
	if cp == nil {
		return events.SupplyProgress{}, false, false
	}

	cp.EnergyDelivered += energyInc
	computed := cp.EnergyDelivered * cp.PricePerKWh
	if reportedAmount >= cp.AmountDue && reportedAmount >= computed*0.7 {
		cp.AmountDue = reportedAmount
	} else {
		cp.AmountDue += energyInc * cp.PricePerKWh
	}
	cp.AmountDue = round2(cp.AmountDue)

	if cp.EnergyNeeded > 0 && cp.EnergyDelivered >= cp.EnergyNeeded && !cp.Complete {
		cp.Complete = true
		completed = true
	}
	return events.SupplyProgress{
		CPID:      cpID,
		DriverID:  cp.CurrentDriver,
		EnergyKWh: cp.EnergyDelivered,
		Amount:    cp.AmountDue,
		Complete:  cp.Complete,
	}, completed, true
}

// finalize ends a session: resets the charging point and driver, persists
// the result, emits the billing ticket and notifies monitors. The totals
// are the caller's view, not re-read from the record, so a duplicate
// termination signal after a finalize operates on an already reset record
// and yields a harmless duplicate ticket instead of double accumulation.
func (s *Server) finalize(cpID, driverID string, totalEnergy, totalAmount float64, clientID string) {
	var duration time.Duration
	var sessionID string

	s.mu.Lock()
	cp := s.cps[cpID]
	if cp != nil {
		if !cp.SessionStart.IsZero() {
			duration = time.Since(cp.SessionStart).Round(time.Second)
		}
		sessionID = cp.SessionID
		cp.ResetSession()
		cp.Complete = true
	}
	if d := s.drivers[driverID]; d != nil {
		d.Status = model.DriverIdle
		d.CurrentCP = ""
	}
	s.mu.Unlock()

	rec := model.SessionRecord{
		SessionID: sessionID,
		CPID:      cpID,
		DriverID:  driverID,
		EnergyKWh: totalEnergy,
		Amount:    totalAmount,
		Duration:  duration,
		EndedAt:   time.Now().UTC(),
	}
	if err := s.store.SaveSession(rec); err != nil {
		s.log.Warnf("save session %s: %v", cpID, err)
	}
	if err := s.store.UpdateDriverStats(driverID, totalAmount); err != nil {
		s.log.Warnf("update driver stats %s: %v", driverID, err)
	}
	s.audit.Charge(audit.ChargeEvent{
		EventID:   uuid.NewString(),
		ClientID:  clientID,
		CPID:      cpID,
		DriverID:  driverID,
		SessionID: sessionID,
		Action:    "CHARGE_END",
		EnergyKWh: totalEnergy,
		Amount:    totalAmount,
		At:        time.Now().UTC(),
	})
	if err := s.sink.RecordSession(rec); err != nil {
		s.log.Warnf("metrics sink: %v", err)
	}
	sessionsCompleted.Inc()
	energyDelivered.Add(totalEnergy)

	s.sendTo(driverID, protocol.Build(protocol.TypeTicket, cpID, formatEnergy(totalEnergy), formatAmount(totalAmount)))
	s.notifyDriverStop(cpID, driverID)
	s.bus.Publish(events.SessionFinalized{Session: rec})
	if cp != nil {
		s.publishCPState(events.CPStateChanged{CPID: cpID, State: model.StateActivated})
	}
	s.addLog("EV_Central", "charge finished "+driverID+" @ "+cpID)
}

// ForceStop is the administrative stop: it asks the charging point to end
// the supply and finalizes with whatever totals are accumulated. Nothing
// calls it on a timer; sessions run until explicitly ended.
func (s *Server) ForceStop(cpID string) bool {
	s.mu.Lock()
	cp := s.cps[cpID]
	if cp == nil || cp.State != model.StateSupplying {
		s.mu.Unlock()
		return false
	}
	driverID := cp.CurrentDriver
	totalEnergy := cp.EnergyDelivered
	totalAmount := cp.AmountDue
	s.mu.Unlock()

	s.addLog("EV_Central", "force stop "+cpID)
	s.sendTo(cpID, protocol.Build(protocol.TypeEndSupply, cpID))
	s.finalize(cpID, driverID, totalEnergy, totalAmount, "EV_Central")
	return true
}
