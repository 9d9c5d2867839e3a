package central

import (
	"context"
	"strconv"

	"github.com/kilianp07/evcharge/core/events"
	"github.com/kilianp07/evcharge/core/protocol"
)

func formatEnergy(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
func formatAmount(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
func formatCoord(v float64) string  { return strconv.FormatFloat(v, 'f', -1, 64) }

// broadcastLoop drains the event bus and forwards incremental updates to
// every monitor connection. It runs outside the aggregate lock so slow
// monitors never stall protocol handling.
func (s *Server) broadcastLoop(ctx context.Context) {
	sub := s.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if msg := monitorMessage(ev); msg != "" {
				s.broadcastToMonitors(msg)
			}
		}
	}
}

// monitorMessage renders a bus event as its monitor-facing protocol
// message. Events without a monitor representation yield "".
func monitorMessage(ev events.Event) string {
	switch e := ev.(type) {
	case events.CPStateChanged:
		return protocol.Build(protocol.TypeCPState, e.CPID, string(e.State))
	case events.SessionStarted:
		return protocol.Build(protocol.TypeDriverStart, e.CPID, e.DriverID)
	case events.SupplyProgress:
		return protocol.Build(protocol.TypeSupplyUpdate, e.CPID, formatEnergy(e.EnergyKWh), formatAmount(e.Amount))
	case events.SessionFinalized:
		return protocol.Build(protocol.TypeSupplyEnd,
			e.Session.CPID, e.Session.DriverID,
			formatEnergy(e.Session.EnergyKWh), formatAmount(e.Session.Amount))
	case events.ChargeDenied:
		return protocol.Build(protocol.TypeDeny, e.DriverID, e.CPID, e.Reason)
	case events.LogLine:
		return protocol.Build(protocol.TypeLog, e.Source, e.Text)
	}
	return ""
}

func (s *Server) broadcastToMonitors(msg string) {
	s.mu.Lock()
	var targets []*conn
	for id, b := range s.registry.byConn {
		if b.kind == KindMonitor {
			if cn := s.conns[id]; cn != nil {
				targets = append(targets, cn)
			}
		}
	}
	s.mu.Unlock()
	for _, cn := range targets {
		if err := cn.send(msg); err != nil {
			s.log.Warnf("monitor broadcast: %v", err)
		}
	}
}

// sendFullState pushes the complete system dump to one monitor. Called on
// monitor registration and whenever a charging point (re)registers so the
// dashboard converges immediately.
func (s *Server) sendFullState(cn *conn) {
	s.mu.Lock()
	cps, drivers, history := s.snapshot()
	s.mu.Unlock()
	if err := cn.send(protocol.Build(protocol.TypeFullState, cps, drivers, history)); err != nil {
		s.log.Warnf("full state to monitor: %v", err)
	}
}

// fullStateToMonitors refreshes every connected monitor.
func (s *Server) fullStateToMonitors() {
	s.mu.Lock()
	var targets []*conn
	for id, b := range s.registry.byConn {
		if b.kind == KindMonitor {
			if cn := s.conns[id]; cn != nil {
				targets = append(targets, cn)
			}
		}
	}
	cps, drivers, history := s.snapshot()
	s.mu.Unlock()
	msg := protocol.Build(protocol.TypeFullState, cps, drivers, history)
	for _, cn := range targets {
		if err := cn.send(msg); err != nil {
			s.log.Warnf("full state to monitor: %v", err)
		}
	}
}

// DriverStop has no dedicated event; finalize publishes SessionFinalized
// and the monitor additionally needs DRIVER_STOP for its driver panel.
func (s *Server) notifyDriverStop(cpID, driverID string) {
	s.broadcastToMonitors(protocol.Build(protocol.TypeDriverStop, cpID, driverID))
}
