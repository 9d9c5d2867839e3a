// Package driver implements a protocol driver client: it registers,
// requests a charging session and follows it through to the billing
// ticket. Used by the driver CLI command and in end-to-end tests.
package driver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kilianp07/evcharge/core/logger"
	"github.com/kilianp07/evcharge/core/protocol"
)

// Config identifies the driver and the session it wants.
type Config struct {
	ID          string  `json:"id"`
	CentralAddr string  `json:"central_addr"`
	CPID        string  `json:"cp_id"`
	EnergyKWh   float64 `json:"energy_kwh"`

	DialTimeout time.Duration `json:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.EnergyKWh <= 0 {
		c.EnergyKWh = 10
	}
}

// Simulator drives one charging session.
type Simulator struct {
	cfg Config
	log logger.Logger
}

// New creates a Simulator.
func New(cfg Config, log logger.Logger) *Simulator {
	cfg.SetDefaults()
	return &Simulator{cfg: cfg, log: log}
}

// Run performs one full session: register, pick a charging point, request
// the charge and wait for the ticket. It returns once the ticket arrives,
// the request is denied, or ctx is canceled.
func (s *Simulator) Run(ctx context.Context) error {
	c, err := net.DialTimeout("tcp", s.cfg.CentralAddr, s.cfg.DialTimeout)
	if err != nil {
		return fmt.Errorf("dial central: %w", err)
	}
	defer func() { _ = c.Close() }()
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()

	r := newReader(c)
	if _, err := c.Write(protocol.Encode(protocol.Build(protocol.TypeRegister, "DRIVER", s.cfg.ID))); err != nil {
		return err
	}
	pkt, err := r.next()
	if err != nil {
		return err
	}
	if ack, ok := pkt.(protocol.Acknowledge); !ok || ack.Status != "OK" {
		return fmt.Errorf("registration failed: %v", pkt)
	}
	s.log.Infof("%s: registered", s.cfg.ID)

	target := s.cfg.CPID
	if target == "" {
		if target, err = s.pickAvailable(c, r); err != nil {
			return err
		}
	}

	req := protocol.Build(protocol.TypeRequestCharge, s.cfg.ID, target, fmt.Sprintf("%.3f", s.cfg.EnergyKWh))
	if _, err := c.Write(protocol.Encode(req)); err != nil {
		return err
	}

	for {
		pkt, err := r.next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		switch p := pkt.(type) {
		case protocol.Deny:
			return fmt.Errorf("charge denied at %s: %s", target, p.Reason)
		case protocol.Authorize:
			s.log.Infof("%s: authorized at %s for %.1f kWh (%.2f EUR/kWh)", s.cfg.ID, p.CPID, p.EnergyNeeded, p.Price)
		case protocol.SupplyUpdate:
			s.log.Infof("%s: %s delivered %.3f kWh, %.2f EUR", s.cfg.ID, p.CPID, p.Energy, p.Amount)
		case protocol.Ticket:
			s.log.Infof("%s: ticket from %s: %.3f kWh, %.2f EUR", s.cfg.ID, p.CPID, p.TotalEnergy, p.TotalAmount)
			return nil
		}
	}
}

// pickAvailable queries the central and takes the first free charging point.
func (s *Simulator) pickAvailable(c net.Conn, r *reader) (string, error) {
	if _, err := c.Write(protocol.Encode(protocol.Build(protocol.TypeQueryAvailable, s.cfg.ID))); err != nil {
		return "", err
	}
	for {
		pkt, err := r.next()
		if err != nil {
			return "", err
		}
		if avail, ok := pkt.(protocol.AvailableCPs); ok {
			if len(avail.CPs) == 0 {
				return "", fmt.Errorf("no charging point available")
			}
			return avail.CPs[0].CPID, nil
		}
	}
}

// reader accumulates socket bytes and yields decoded packets.
type reader struct {
	c   net.Conn
	buf []byte
	tmp []byte
}

func newReader(c net.Conn) *reader {
	return &reader{c: c, tmp: make([]byte, 4096)}
}

func (r *reader) next() (protocol.Packet, error) {
	for {
		payload, advance, ok, derr := protocol.Decode(r.buf)
		if ok {
			r.buf = r.buf[advance:]
			if derr != nil {
				continue
			}
			fields, err := protocol.Parse(payload)
			if err != nil {
				continue
			}
			pkt, err := protocol.DecodePacket(fields)
			if err != nil {
				continue
			}
			return pkt, nil
		}
		n, err := r.c.Read(r.tmp)
		if n > 0 {
			r.buf = append(r.buf, r.tmp[:n]...)
		}
		if err != nil && n == 0 {
			return nil, err
		}
	}
}
