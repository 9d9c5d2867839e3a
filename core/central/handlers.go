package central

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/evcharge/core/audit"
	"github.com/kilianp07/evcharge/core/crypto"
	"github.com/kilianp07/evcharge/core/events"
	"github.com/kilianp07/evcharge/core/model"
	"github.com/kilianp07/evcharge/core/protocol"
)

// handleRegister admits a peer. Charging points are verified against the
// external registry and receive the derived symmetric key inside the
// acknowledgement; drivers and monitors are admitted as-is.
func (s *Server) handleRegister(cn *conn, pkt protocol.Packet) {
	reg := pkt.(protocol.Register)
	switch reg.Kind {
	case "CP":
		s.registerCP(cn, reg)
	case "DRIVER":
		s.registerDriver(cn, reg.ID)
	case "MONITOR":
		s.registerMonitor(cn, reg.ID)
	default:
		s.log.Warnf("conn %d: register with unknown kind %q", cn.id, reg.Kind)
	}
}

func (s *Server) registerCP(cn *conn, reg protocol.Register) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.VerifyTimeout)*time.Second)
	defer cancel()
	ok, err := s.verifier.Verify(ctx, reg.ID, reg.Username, reg.Password)
	if err != nil {
		s.log.Warnf("registry verify %s: %v", reg.ID, err)
		ok = false
	}
	clientID := cn.c.RemoteAddr().String()
	s.audit.Auth(audit.AuthEvent{
		EventID:  uuid.NewString(),
		ClientID: clientID,
		EntityID: reg.ID,
		Success:  ok,
		At:       time.Now().UTC(),
	})
	if !ok {
		authFailures.Inc()
		if err := cn.send(protocol.Build(protocol.TypeDeny, reg.ID, "AUTH_FAILED")); err != nil {
			s.log.Warnf("deny to %s: %v", reg.ID, err)
		}
		return
	}

	key := crypto.DeriveKey(reg.Password)

	// Persisted location and price win over the registration message, so a
	// point keeps its canonical placement across engine restarts.
	lat, lon, price := reg.Latitude, reg.Longitude, reg.Price
	if stored, found, serr := s.store.ChargingPoint(reg.ID); serr == nil && found {
		lat, lon, price = stored.Latitude, stored.Longitude, stored.PricePerKWh
	} else if serr != nil {
		s.log.Warnf("load charging point %s: %v", reg.ID, serr)
	}

	s.mu.Lock()
	s.registry.bind(reg.ID, KindCP, cn.id)
	cp := s.upsertCP(reg.ID, lat, lon, price)
	snapshot := *cp
	s.mu.Unlock()

	// The key is installed after the ACK is built: the ACK itself travels
	// in the clear, it is what hands the key over.
	if err := cn.send(protocol.Build(protocol.TypeAcknowledge,
		reg.ID, "OK", key, formatCoord(lat), formatCoord(lon))); err != nil {
		s.log.Warnf("ack to %s: %v", reg.ID, err)
		return
	}
	s.keys.Set(reg.ID, key)

	if err := s.store.SaveChargingPoint(snapshot); err != nil {
		s.log.Warnf("save charging point %s: %v", reg.ID, err)
	}
	s.publishCPState(events.CPStateChanged{CPID: reg.ID, State: snapshot.State})
	s.addLog("EV_Central", "CP "+reg.ID+" connected")
	s.fullStateToMonitors()
}

func (s *Server) registerDriver(cn *conn, driverID string) {
	s.mu.Lock()
	if s.drivers[driverID] == nil {
		s.drivers[driverID] = &model.Driver{ID: driverID, Status: model.DriverIdle}
	}
	d := *s.drivers[driverID]
	s.registry.bind(driverID, KindDriver, cn.id)
	s.mu.Unlock()

	if err := s.store.SaveDriver(d); err != nil {
		s.log.Warnf("save driver %s: %v", driverID, err)
	}
	s.addLog("EV_Central", "driver "+driverID+" registered")
	if err := cn.send(protocol.Build(protocol.TypeAcknowledge, driverID, "OK")); err != nil {
		s.log.Warnf("ack to %s: %v", driverID, err)
	}
}

func (s *Server) registerMonitor(cn *conn, monitorID string) {
	s.mu.Lock()
	s.registry.bind(monitorID, KindMonitor, cn.id)
	s.mu.Unlock()

	s.log.Infof("monitor %s connected", monitorID)
	if err := cn.send(protocol.Build(protocol.TypeAcknowledge, monitorID, "OK")); err != nil {
		s.log.Warnf("ack to %s: %v", monitorID, err)
		return
	}
	s.sendFullState(cn)
}

func (s *Server) handleHeartbeat(_ *conn, pkt protocol.Packet) {
	hb := pkt.(protocol.Heartbeat)
	s.mu.Lock()
	s.applyHeartbeat(hb.CPID, model.CPState(hb.State))
	s.mu.Unlock()
}

// handleRequestCharge runs the authorization path: atomic claim, then
// notifications to driver (clear), charging point (encrypted) and monitor.
func (s *Server) handleRequestCharge(cn *conn, pkt protocol.Packet) {
	req := pkt.(protocol.RequestCharge)
	ok, reason, price, sessionID := s.authorize(req.DriverID, req.CPID, req.EnergyNeeded)
	if !ok {
		chargeDenied.WithLabelValues(reason).Inc()
		s.bus.Publish(events.ChargeDenied{DriverID: req.DriverID, CPID: req.CPID, Reason: reason})
		if err := cn.send(protocol.Build(protocol.TypeDeny, req.DriverID, req.CPID, reason)); err != nil {
			s.log.Warnf("deny to %s: %v", req.DriverID, err)
		}
		return
	}

	sessionsStarted.Inc()
	s.audit.Charge(audit.ChargeEvent{
		EventID:   uuid.NewString(),
		ClientID:  cn.c.RemoteAddr().String(),
		CPID:      req.CPID,
		DriverID:  req.DriverID,
		SessionID: sessionID,
		Action:    "CHARGE_START",
		At:        time.Now().UTC(),
	})
	s.addLog("EV_Central", "charge authorized "+req.DriverID+" -> "+req.CPID)

	energy := formatEnergy(req.EnergyNeeded)
	if err := cn.send(protocol.Build(protocol.TypeAuthorize,
		req.DriverID, req.CPID, energy, formatAmount(price))); err != nil {
		s.log.Warnf("authorize to %s: %v", req.DriverID, err)
	}
	s.sendTo(req.CPID, protocol.Build(protocol.TypeAuthorize, req.DriverID, req.CPID, energy))
	s.bus.Publish(events.SessionStarted{
		SessionID:    sessionID,
		CPID:         req.CPID,
		DriverID:     req.DriverID,
		EnergyNeeded: req.EnergyNeeded,
		Price:        price,
	})
	s.publishCPState(events.CPStateChanged{CPID: req.CPID, State: model.StateSupplying})
}

func (s *Server) handleQueryAvailable(cn *conn, pkt protocol.Packet) {
	q := pkt.(protocol.QueryAvailable)
	s.mu.Lock()
	avail := s.availableCPs()
	s.mu.Unlock()

	fields := make([]string, 0, len(avail)*4)
	for _, cp := range avail {
		fields = append(fields, cp.ID, formatCoord(cp.Latitude), formatCoord(cp.Longitude), formatAmount(cp.PricePerKWh))
	}
	if err := cn.send(protocol.Build(protocol.TypeAvailableCPs, fields...)); err != nil {
		s.log.Warnf("available cps to %s: %v", q.DriverID, err)
	}
}

// handleSupplyUpdate accumulates metering and forwards the running totals
// to the session's driver and the monitors.
func (s *Server) handleSupplyUpdate(_ *conn, pkt protocol.Packet) {
	up := pkt.(protocol.SupplyUpdate)
	progress, completed, known := s.applyMeterIncrement(up.CPID, up.Energy, up.Amount)
	if !known {
		return
	}
	if progress.DriverID != "" {
		s.sendTo(progress.DriverID, protocol.Build(protocol.TypeSupplyUpdate,
			up.CPID, formatEnergy(progress.EnergyKWh), formatAmount(progress.Amount)))
	}
	s.bus.Publish(progress)
	if completed {
		s.broadcastToMonitors(protocol.Build(protocol.TypeChargingComplete, up.CPID, progress.DriverID))
	}
}

func (s *Server) handleSupplyEnd(cn *conn, pkt protocol.Packet) {
	end := pkt.(protocol.SupplyEnd)
	s.finalize(end.CPID, end.DriverID, end.TotalEnergy, end.TotalAmount, cn.c.RemoteAddr().String())
}

// handleEndCharge is the driver- or dashboard-initiated stop. It finalizes
// with the currently accumulated totals; the engine's own SUPPLY_END may
// still arrive and cause a duplicate, tolerated finalize.
func (s *Server) handleEndCharge(cn *conn, pkt protocol.Packet) {
	end := pkt.(protocol.EndCharge)
	s.mu.Lock()
	cp := s.cps[end.CPID]
	if cp == nil || cp.CurrentDriver != end.DriverID {
		s.mu.Unlock()
		return
	}
	totalEnergy := cp.EnergyDelivered
	totalAmount := cp.AmountDue
	s.mu.Unlock()

	s.sendTo(end.CPID, protocol.Build(protocol.TypeEndSupply, end.CPID))
	s.finalize(end.CPID, end.DriverID, totalEnergy, totalAmount, cn.c.RemoteAddr().String())
}

func (s *Server) handleFault(cn *conn, pkt protocol.Packet) {
	f := pkt.(protocol.Fault)
	s.mu.Lock()
	cp := s.applyFault(f.CPID)
	s.mu.Unlock()
	if cp == nil {
		return
	}
	s.audit.Fault(audit.FaultEvent{
		EventID:  uuid.NewString(),
		ClientID: cn.c.RemoteAddr().String(),
		CPID:     f.CPID,
		Code:     "CP_FAULT",
		Detail:   "health check failed",
		At:       time.Now().UTC(),
	})
	s.addLog("EV_Central", "FAULT "+f.CPID)
	s.publishCPState(events.CPStateChanged{CPID: f.CPID, State: model.StateOutOfOrder})
}

func (s *Server) handleRecovery(_ *conn, pkt protocol.Packet) {
	r := pkt.(protocol.Recovery)
	s.mu.Lock()
	cp := s.applyRecovery(r.CPID)
	s.mu.Unlock()
	if cp == nil {
		return
	}
	s.addLog("EV_Central", "RECOVERY "+r.CPID)
	s.publishCPState(events.CPStateChanged{CPID: r.CPID, State: model.StateActivated})
}

func (s *Server) handleLog(_ *conn, pkt protocol.Packet) {
	l := pkt.(protocol.Log)
	s.addLog(l.Source, l.Text)
}

func (s *Server) handleWeatherAlert(_ *conn, pkt protocol.Packet) {
	w := pkt.(protocol.WeatherAlert)
	s.mu.Lock()
	cp, changed := s.applyWeather(w.CPID, w.Alert)
	var state model.CPState
	if cp != nil {
		state = cp.State
	}
	s.mu.Unlock()
	if cp == nil {
		s.log.Warnf("weather alert for unknown CP %s", w.CPID)
		return
	}
	s.addLog("EV_Weather", w.CPID+": "+w.Alert)
	if changed {
		s.publishCPState(events.CPStateChanged{CPID: w.CPID, State: state})
	}
}
