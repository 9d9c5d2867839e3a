// Package cp implements the charging-point engine: the client side of the
// coordination protocol. It registers with the central, simulates energy
// delivery while a session is authorized, and survives any number of
// disconnects without losing in-progress session semantics.
package cp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kilianp07/evcharge/core/crypto"
	"github.com/kilianp07/evcharge/core/logger"
	"github.com/kilianp07/evcharge/core/model"
	"github.com/kilianp07/evcharge/core/protocol"
)

// Config holds one engine's identity and pacing.
type Config struct {
	ID          string  `json:"id"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	PricePerKWh float64 `json:"price_per_kwh"`
	CentralAddr string  `json:"central_addr"`
	Username    string  `json:"username"`
	Password    string  `json:"password"`

	// UpdateInterval paces heartbeats and metering reports. FullCharge is
	// the nominal duration to deliver a session's full requested energy.
	UpdateInterval time.Duration `json:"-"`
	FullCharge     time.Duration `json:"-"`
	ReconnectDelay time.Duration `json:"-"`
	DialTimeout    time.Duration `json:"-"`
}

// SetDefaults fills unset pacing fields.
func (c *Config) SetDefaults() {
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = time.Second
	}
	if c.FullCharge <= 0 {
		c.FullCharge = 15 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
}

type session struct {
	start     time.Time
	needed    float64
	delivered float64
	driver    string
}

// Engine is one simulated charging point.
type Engine struct {
	cfg Config
	log logger.Logger

	mu          sync.Mutex
	state       model.CPState
	sess        *session
	pendingStop bool
	key         string
	conn        net.Conn
	connected   bool

	// Worker loops are started exactly once across the process lifetime;
	// they poll the connected flag and tolerate the transport disappearing.
	workersOnce sync.Once
}

// New creates an engine ready to Run.
func New(cfg Config, log logger.Logger) *Engine {
	cfg.SetDefaults()
	return &Engine{cfg: cfg, log: log, state: model.StateActivated}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() model.CPState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Connected reports whether the engine currently holds a live connection.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// Run supervises the connection forever: it retries the connect sequence
// with a fixed delay and never exits on transport loss, only when ctx is
// canceled.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			e.closeConn()
			return ctx.Err()
		}
		if !e.Connected() {
			if err := e.connect(ctx); err != nil {
				e.log.Warnf("%s: connect: %v", e.cfg.ID, err)
				if !sleepCtx(ctx, e.cfg.ReconnectDelay) {
					e.closeConn()
					return ctx.Err()
				}
				continue
			}
		}
		if !sleepCtx(ctx, time.Second) {
			e.closeConn()
			return ctx.Err()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// connect performs one registration attempt: dial, REGISTER in the clear,
// await the acknowledgement carrying the symmetric key and canonical
// location.
func (e *Engine) connect(ctx context.Context) error {
	c, err := net.DialTimeout("tcp", e.cfg.CentralAddr, e.cfg.DialTimeout)
	if err != nil {
		return err
	}
	reg := protocol.Build(protocol.TypeRegister, "CP", e.cfg.ID,
		formatCoord(e.cfg.Latitude), formatCoord(e.cfg.Longitude),
		formatAmount(e.cfg.PricePerKWh), e.cfg.Username, e.cfg.Password)
	if _, err := c.Write(protocol.Encode(reg)); err != nil {
		_ = c.Close()
		return err
	}

	ack, err := readPacket(c, e.cfg.DialTimeout)
	if err != nil {
		_ = c.Close()
		return err
	}
	switch p := ack.(type) {
	case protocol.Acknowledge:
		if p.Status != "OK" {
			_ = c.Close()
			return fmt.Errorf("registration status %s", p.Status)
		}
		e.mu.Lock()
		e.key = p.Key
		e.conn = c
		e.connected = true
		e.mu.Unlock()
	case protocol.Deny:
		_ = c.Close()
		return fmt.Errorf("registration denied: %s", p.Reason)
	default:
		_ = c.Close()
		return fmt.Errorf("unexpected %s during registration", ack.MsgType())
	}

	e.log.Infof("%s: connected to central", e.cfg.ID)
	e.workersOnce.Do(func() {
		go e.listenLoop(ctx)
		go e.statusLoop(ctx)
		go e.displayLoop(ctx)
	})
	return nil
}

// readPacket blocks for one complete frame, used only for the synchronous
// registration acknowledgement.
func readPacket(c net.Conn, timeout time.Duration) (protocol.Packet, error) {
	_ = c.SetReadDeadline(time.Now().Add(timeout))
	defer func() { _ = c.SetReadDeadline(time.Time{}) }()

	buf := make([]byte, 0, 1024)
	tmp := make([]byte, 1024)
	for {
		n, err := c.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			payload, _, ok, derr := protocol.Decode(buf)
			if ok {
				if derr != nil {
					return nil, derr
				}
				fields, perr := protocol.Parse(payload)
				if perr != nil {
					return nil, perr
				}
				return protocol.DecodePacket(fields)
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

func (e *Engine) closeConn() {
	e.mu.Lock()
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
	e.connected = false
	e.mu.Unlock()
}

// send encrypts (once a key is held) and frames one message. Transport
// errors drop the connection; the supervisor reconnects.
func (e *Engine) send(msg string) {
	e.mu.Lock()
	c, key, connected := e.conn, e.key, e.connected
	e.mu.Unlock()
	if !connected || c == nil {
		return
	}
	wire := msg
	if key != "" {
		enc, err := crypto.Encrypt(msg, key)
		if err != nil {
			e.log.Errorf("%s: encrypt: %v", e.cfg.ID, err)
			return
		}
		wire = enc
	}
	if _, err := c.Write(protocol.Encode(wire)); err != nil {
		e.log.Warnf("%s: send: %v", e.cfg.ID, err)
		e.closeConn()
	}
}
