// Package central implements the EV charging coordination service: the TCP
// accept loop, the per-connection dispatch loops, the charging-point state
// machine and the session billing engine.
package central

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/evcharge/core/audit"
	"github.com/kilianp07/evcharge/core/crypto"
	"github.com/kilianp07/evcharge/core/events"
	"github.com/kilianp07/evcharge/core/logger"
	coremetrics "github.com/kilianp07/evcharge/core/metrics"
	"github.com/kilianp07/evcharge/core/model"
	"github.com/kilianp07/evcharge/core/protocol"
	"github.com/kilianp07/evcharge/core/registry"
	"github.com/kilianp07/evcharge/core/storage"
	"github.com/kilianp07/evcharge/internal/eventbus"
)

// Config holds the central service settings.
type Config struct {
	Addr          string `json:"addr"`
	HistorySize   int    `json:"history_size"`
	VerifyTimeout int    `json:"verify_timeout_seconds"`
	// RegistryPollSeconds paces the background registry inventory poll.
	RegistryPollSeconds int `json:"registry_poll_seconds"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":5000"
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = 8
	}
	if c.RegistryPollSeconds <= 0 {
		c.RegistryPollSeconds = 30
	}
}

type handlerFunc func(cn *conn, pkt protocol.Packet)

// Server multiplexes all charging points, drivers and monitors over
// persistent TCP connections. Shared state (fleet records, bindings) is
// guarded by one aggregate mutex; socket writes happen outside it.
type Server struct {
	cfg      Config
	log      logger.Logger
	store    storage.Store
	verifier registry.Verifier
	audit    audit.Sink
	sink     coremetrics.Sink
	keys     *crypto.Keystore
	bus      *eventbus.Bus[events.Event]
	handlers map[string]handlerFunc

	mu       sync.Mutex
	cps      map[string]*model.ChargingPoint
	drivers  map[string]*model.Driver
	registry connRegistry
	conns    map[int64]*conn
	logs     []events.LogLine

	nextConnID atomic.Int64
	ready      chan struct{}
	addr       atomic.Value // string, actual listen address
}

// New assembles a Server. Nil collaborators default to no-ops so tests and
// standalone runs need no external services.
func New(cfg Config, store storage.Store, verifier registry.Verifier, sink audit.Sink, msink coremetrics.Sink, log logger.Logger) *Server {
	cfg.SetDefaults()
	if store == nil {
		store = storage.Nop{}
	}
	if verifier == nil {
		verifier = registry.AllowAll{}
	}
	if sink == nil {
		sink = audit.Nop{}
	}
	if msink == nil {
		msink = coremetrics.NopSink{}
	}
	s := &Server{
		cfg:      cfg,
		log:      log,
		store:    store,
		verifier: verifier,
		audit:    sink,
		sink:     msink,
		keys:     crypto.NewKeystore(),
		bus:      eventbus.New[events.Event](256),
		cps:      make(map[string]*model.ChargingPoint),
		drivers:  make(map[string]*model.Driver),
		registry: newConnRegistry(),
		conns:    make(map[int64]*conn),
		ready:    make(chan struct{}),
	}
	s.handlers = map[string]handlerFunc{
		protocol.TypeRegister:       s.handleRegister,
		protocol.TypeHeartbeat:      s.handleHeartbeat,
		protocol.TypeRequestCharge:  s.handleRequestCharge,
		protocol.TypeQueryAvailable: s.handleQueryAvailable,
		protocol.TypeSupplyUpdate:   s.handleSupplyUpdate,
		protocol.TypeSupplyEnd:      s.handleSupplyEnd,
		protocol.TypeEndCharge:      s.handleEndCharge,
		protocol.TypeFault:          s.handleFault,
		protocol.TypeRecovery:       s.handleRecovery,
		protocol.TypeLog:            s.handleLog,
		protocol.TypeWeatherAlert:   s.handleWeatherAlert,
	}
	s.loadStored()
	return s
}

// Events exposes the state-change bus for additional observers.
func (s *Server) Events() *eventbus.Bus[events.Event] { return s.bus }

// Addr returns the bound listen address once Run has started.
func (s *Server) Addr() string {
	<-s.ready
	v, _ := s.addr.Load().(string)
	return v
}

// loadStored seeds the fleet from persisted charging points. Stored points
// start DISCONNECTED until their engine registers again.
func (s *Server) loadStored() {
	stored, err := s.store.ChargingPoints()
	if err != nil {
		s.log.Warnf("load stored charging points: %v", err)
		return
	}
	s.mu.Lock()
	for _, cp := range stored {
		rec := cp
		rec.ResetSession()
		rec.State = model.StateDisconnected
		s.cps[rec.ID] = &rec
	}
	s.mu.Unlock()
	if len(stored) > 0 {
		s.log.Infof("loaded %d charging points from storage", len(stored))
	}
}

// Run listens on the configured address and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.addr.Store(ln.Addr().String())
	close(s.ready)
	s.log.Infof("central listening on %s", ln.Addr())

	go s.broadcastLoop(ctx)
	go s.registryPollLoop(ctx)
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.bus.Close()
				return nil
			}
			s.log.Errorf("accept: %v", err)
			continue
		}
		cn := &conn{id: s.nextConnID.Add(1), c: c}
		s.mu.Lock()
		s.conns[cn.id] = cn
		s.mu.Unlock()
		connectionsOpen.Inc()
		go s.serve(ctx, cn)
	}
}

// serve is the per-connection dispatch loop: it drains the socket, scans
// for complete frames and routes each one. Termination always runs the
// registry cleanup.
func (s *Server) serve(ctx context.Context, cn *conn) {
	defer s.cleanup(cn)
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for ctx.Err() == nil {
		n, err := cn.c.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			for {
				payload, advance, ok, derr := protocol.Decode(buf)
				if !ok {
					break
				}
				buf = buf[advance:]
				framesReceived.Inc()
				if derr != nil {
					s.log.Warnf("conn %d: dropping frame: %v", cn.id, derr)
					continue
				}
				s.handleFrame(cn, payload)
			}
		}
		if err != nil {
			return
		}
	}
}

// handleFrame interprets one frame and invokes its handler. A failing or
// panicking handler loses only this message, never the connection.
func (s *Server) handleFrame(cn *conn, payload string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("conn %d: handler panic: %v", cn.id, r)
		}
	}()
	pkt, ok := s.interpret(cn, payload)
	if !ok {
		return
	}
	h, ok := s.handlers[pkt.MsgType()]
	if !ok {
		// Unrecognized types are not an error.
		return
	}
	h(cn, pkt)
}

// cpCleartext is the allow-list of types a charging point may send in the
// clear; everything else from a CP-bound connection goes through the
// decrypt path.
var cpCleartext = map[string]bool{
	protocol.TypeRegister:  true,
	protocol.TypeHeartbeat: true,
	protocol.TypeLog:       true,
}

// interpret applies the two-stage parse policy: first attempt a plaintext
// decode restricted to what the sender may legitimately send in the clear,
// then fall back to decrypt-then-parse for registered charging points.
func (s *Server) interpret(cn *conn, payload string) (protocol.Packet, bool) {
	s.mu.Lock()
	b, bound := s.registry.bindingFor(cn.id)
	s.mu.Unlock()

	if pkt, ok := tryPlaintext(payload); ok {
		if !bound || b.kind != KindCP || cpCleartext[pkt.MsgType()] {
			return pkt, true
		}
	}
	if !bound || b.kind != KindCP {
		return nil, false
	}
	plain, err := s.keys.DecryptFrom(b.entity, payload)
	if err != nil {
		decryptFailures.Inc()
		s.log.Warnf("conn %d (%s): %v", cn.id, b.entity, err)
		return nil, false
	}
	pkt, ok := tryPlaintext(plain)
	if !ok {
		s.log.Warnf("conn %d (%s): undecodable frame after decrypt", cn.id, b.entity)
	}
	return pkt, ok
}

func tryPlaintext(payload string) (protocol.Packet, bool) {
	fields, err := protocol.Parse(payload)
	if err != nil {
		return nil, false
	}
	pkt, err := protocol.DecodePacket(fields)
	if err != nil {
		return nil, false
	}
	return pkt, true
}

// cleanup tears down a terminated connection. For a charging point that is
// mid-session the record deliberately keeps SUPPLYING so a re-registering
// engine resumes the same logical session; otherwise the point goes
// DISCONNECTED.
func (s *Server) cleanup(cn *conn) {
	cn.close()
	connectionsOpen.Dec()

	s.mu.Lock()
	delete(s.conns, cn.id)
	b, current, ok := s.registry.unbind(cn.id)
	var ev *events.CPStateChanged
	if ok && current && b.kind == KindCP {
		if cp := s.cps[b.entity]; cp != nil && cp.State != model.StateSupplying {
			cp.State = model.StateDisconnected
			cp.CurrentDriver = ""
			cp.Complete = false
			ev = &events.CPStateChanged{CPID: cp.ID, State: cp.State}
		}
	}
	s.mu.Unlock()

	if !ok {
		s.log.Debugf("conn %d closed before registering", cn.id)
		return
	}
	if !current {
		s.log.Debugf("stale conn %d for %s closed", cn.id, b.entity)
		return
	}
	s.log.Infof("%s %s disconnected", b.kind, b.entity)
	if b.kind == KindCP {
		s.keys.Forget(b.entity)
	}
	if ev != nil {
		s.publishCPState(*ev)
	}
}

func (s *Server) publishCPState(ev events.CPStateChanged) {
	s.bus.Publish(ev)
	if err := s.sink.RecordCPState(ev.CPID, ev.State); err != nil {
		s.log.Warnf("metrics sink: %v", err)
	}
}

// sendTo writes a message to the entity's live connection, encrypting for
// charging points with a key on file. Returns false when the entity is
// unreachable or the write fails.
func (s *Server) sendTo(entity, msg string) bool {
	s.mu.Lock()
	var cn *conn
	if id, ok := s.registry.connFor(entity); ok {
		cn = s.conns[id]
	}
	s.mu.Unlock()
	if cn == nil {
		s.log.Debugf("%s not reachable, dropping %s", entity, msg)
		return false
	}
	wire, err := s.keys.EncryptFor(entity, msg)
	if err != nil {
		s.log.Errorf("encrypt for %s: %v", entity, err)
		return false
	}
	if err := cn.send(wire); err != nil {
		s.log.Warnf("send to %s: %v", entity, err)
		return false
	}
	return true
}

// addLog appends to the bounded in-memory log and notifies monitors.
func (s *Server) addLog(source, text string) {
	entry := events.LogLine{Source: source, Text: text, At: time.Now().UTC()}
	s.mu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > s.cfg.HistorySize {
		s.logs = s.logs[len(s.logs)-s.cfg.HistorySize:]
	}
	s.mu.Unlock()
	s.bus.Publish(entry)
}
