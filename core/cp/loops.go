package cp

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/kilianp07/evcharge/core/crypto"
	"github.com/kilianp07/evcharge/core/model"
	"github.com/kilianp07/evcharge/core/protocol"
)

func formatCoord(v float64) string  { return strconv.FormatFloat(v, 'f', -1, 64) }
func formatAmount(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
func formatEnergy(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
func round2(v float64) float64      { return math.Round(v*100) / 100 }

// cleartext is the allow-list of types the central may send without
// encryption; anything else is tried against the session key.
var cleartext = map[string]bool{
	protocol.TypeAcknowledge:  true,
	protocol.TypeDeny:         true,
	protocol.TypeAuthorize:    true,
	protocol.TypeEndSupply:    true,
	protocol.TypeStopSupply:   true,
	protocol.TypeResumeSupply: true,
}

// listenLoop drains the central connection for the lifetime of the
// process, tolerating the transport disappearing and reappearing.
func (e *Engine) listenLoop(ctx context.Context) {
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for ctx.Err() == nil {
		e.mu.Lock()
		c, connected := e.conn, e.connected
		e.mu.Unlock()
		if !connected || c == nil {
			buf = buf[:0]
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}
		n, err := c.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			for {
				payload, advance, ok, derr := protocol.Decode(buf)
				if !ok {
					break
				}
				buf = buf[advance:]
				if derr != nil {
					e.log.Warnf("%s: dropping frame: %v", e.cfg.ID, derr)
					continue
				}
				if pkt, ok := e.interpret(payload); ok {
					e.handle(pkt)
				}
			}
		}
		if err != nil {
			e.log.Warnf("%s: connection to central lost", e.cfg.ID)
			e.closeConn()
		}
	}
}

// interpret applies the plaintext-first policy: accept a cleartext parse
// only for allow-listed types, otherwise try the session key.
func (e *Engine) interpret(payload string) (protocol.Packet, bool) {
	if fields, err := protocol.Parse(payload); err == nil {
		if pkt, derr := protocol.DecodePacket(fields); derr == nil && cleartext[pkt.MsgType()] {
			return pkt, true
		}
	}
	e.mu.Lock()
	key := e.key
	e.mu.Unlock()
	if key == "" {
		return nil, false
	}
	plain, err := crypto.Decrypt(payload, key)
	if err != nil {
		return nil, false
	}
	fields, err := protocol.Parse(plain)
	if err != nil {
		return nil, false
	}
	pkt, err := protocol.DecodePacket(fields)
	return pkt, err == nil
}

func (e *Engine) handle(pkt protocol.Packet) {
	switch p := pkt.(type) {
	case protocol.Authorize:
		e.handleAuthorize(p)
	case protocol.EndSupply:
		e.handleEndSupply()
	case protocol.StopSupply:
		e.handleStopSupply()
	case protocol.ResumeSupply:
		e.handleResumeSupply()
	}
}

// handleAuthorize starts supplying. The server already validated
// single-occupancy, so an AUTHORIZE while not ACTIVATED is silently
// ignored; no re-ack is required.
func (e *Engine) handleAuthorize(p protocol.Authorize) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != model.StateActivated {
		return
	}
	e.state = model.StateSupplying
	e.sess = &session{start: time.Now(), needed: p.EnergyNeeded, driver: p.DriverID}
	e.pendingStop = false
	e.log.Infof("%s: charging started for %s (%.1f kWh)", e.cfg.ID, p.DriverID, p.EnergyNeeded)
}

// handleEndSupply finalizes on the central's request, reporting totals
// computed from elapsed time against the nominal full-charge duration.
func (e *Engine) handleEndSupply() {
	e.mu.Lock()
	if e.sess == nil {
		e.mu.Unlock()
		return
	}
	elapsed := time.Since(e.sess.start)
	frac := float64(elapsed) / float64(e.cfg.FullCharge)
	if frac > 1 {
		frac = 1
	}
	totalEnergy := e.sess.needed * frac
	totalAmount := round2(totalEnergy * e.cfg.PricePerKWh)
	driver := e.sess.driver
	e.resetSessionLocked()
	e.mu.Unlock()

	e.send(protocol.Build(protocol.TypeSupplyEnd, e.cfg.ID, driver,
		formatEnergy(totalEnergy), formatAmount(totalAmount)))
	e.log.Infof("%s: charging finished", e.cfg.ID)
}

// handleStopSupply takes the point out of service; if a session is
// running the stop is deferred until it ends.
func (e *Engine) handleStopSupply() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == model.StateSupplying {
		e.pendingStop = true
		e.log.Infof("%s: stop requested, deferring until session ends", e.cfg.ID)
		return
	}
	e.state = model.StateOutOfOrder
	e.log.Infof("%s: out of order", e.cfg.ID)
}

func (e *Engine) handleResumeSupply() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingStop = false
	if e.state != model.StateSupplying {
		e.state = model.StateActivated
	}
	e.log.Infof("%s: back in service", e.cfg.ID)
}

// resetSessionLocked clears the session; a deferred stop takes effect now.
func (e *Engine) resetSessionLocked() {
	e.sess = nil
	if e.pendingStop {
		e.state = model.StateOutOfOrder
		e.pendingStop = false
	} else {
		e.state = model.StateActivated
	}
}

// statusLoop emits a heartbeat every interval and, while supplying, a
// metering increment sized so the session completes within the nominal
// full-charge duration. Reaching the needed energy emits SUPPLY_END
// exactly once and resets locally.
func (e *Engine) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !e.Connected() {
			continue
		}

		e.mu.Lock()
		state := e.state
		e.mu.Unlock()
		e.send(protocol.Build(protocol.TypeHeartbeat, e.cfg.ID, string(state)))

		var update, endMsg string
		e.mu.Lock()
		if e.state == model.StateSupplying && e.sess != nil {
			inc := e.sess.needed * float64(e.cfg.UpdateInterval) / float64(e.cfg.FullCharge)
			if remaining := e.sess.needed - e.sess.delivered; inc > remaining {
				inc = remaining
			}
			if inc < 0 {
				inc = 0
			}
			e.sess.delivered += inc
			update = protocol.Build(protocol.TypeSupplyUpdate, e.cfg.ID,
				formatEnergy(inc), formatAmount(round2(inc*e.cfg.PricePerKWh)))

			if e.sess.delivered >= e.sess.needed-1e-9 {
				total := e.sess.needed
				endMsg = protocol.Build(protocol.TypeSupplyEnd, e.cfg.ID, e.sess.driver,
					formatEnergy(total), formatAmount(round2(total*e.cfg.PricePerKWh)))
				e.resetSessionLocked()
			}
		}
		e.mu.Unlock()

		if update != "" {
			e.send(update)
		}
		if endMsg != "" {
			e.send(endMsg)
			e.log.Infof("%s: session complete", e.cfg.ID)
		}
	}
}

// displayLoop periodically reports the engine's state.
func (e *Engine) displayLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		e.mu.Lock()
		state := e.state
		var delivered, needed float64
		if e.sess != nil {
			delivered, needed = e.sess.delivered, e.sess.needed
		}
		e.mu.Unlock()
		if state == model.StateSupplying {
			e.log.Infof("%s: SUPPLYING %.3f/%.3f kWh", e.cfg.ID, delivered, needed)
		} else {
			e.log.Debugf("%s: %s", e.cfg.ID, state)
		}
	}
}
