package central

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evcharge/core/crypto"
	"github.com/kilianp07/evcharge/core/protocol"
	"github.com/kilianp07/evcharge/infra/logger"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := New(Config{Addr: "127.0.0.1:0"}, nil, nil, nil, nil, logger.NopLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, s.Addr()
}

// testClient speaks the wire protocol against a running server. Once key is
// set, outgoing messages are sealed and incoming payloads that open with the
// key are returned decrypted.
type testClient struct {
	t   *testing.T
	c   net.Conn
	buf []byte
	key string
}

func dialCentral(t *testing.T, addr string) *testClient {
	t.Helper()
	c, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return &testClient{t: t, c: c}
}

func (tc *testClient) send(msg string) {
	tc.t.Helper()
	wire := msg
	if tc.key != "" {
		var err error
		wire, err = crypto.Encrypt(msg, tc.key)
		require.NoError(tc.t, err)
	}
	_, err := tc.c.Write(protocol.Encode(wire))
	require.NoError(tc.t, err)
}

func (tc *testClient) sendClear(msg string) {
	tc.t.Helper()
	_, err := tc.c.Write(protocol.Encode(msg))
	require.NoError(tc.t, err)
}

func (tc *testClient) next() string {
	tc.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	tmp := make([]byte, 4096)
	for {
		msg, advance, ok, err := protocol.Decode(tc.buf)
		if ok {
			require.NoError(tc.t, err)
			tc.buf = tc.buf[advance:]
			if tc.key != "" {
				if plain, derr := crypto.Decrypt(msg, tc.key); derr == nil {
					return plain
				}
			}
			return msg
		}
		require.NoError(tc.t, tc.c.SetReadDeadline(deadline))
		n, rerr := tc.c.Read(tmp)
		require.NoError(tc.t, rerr, "waiting for a frame")
		tc.buf = append(tc.buf, tmp[:n]...)
	}
}

// nextOfType skips frames until one with the wanted type tag arrives.
func (tc *testClient) nextOfType(msgType string) []string {
	tc.t.Helper()
	for i := 0; i < 32; i++ {
		fields := strings.Split(tc.next(), protocol.Separator)
		if fields[0] == msgType {
			return fields
		}
	}
	tc.t.Fatalf("no %s frame received", msgType)
	return nil
}

func registerCP(t *testing.T, addr, id, password string) *testClient {
	t.Helper()
	cp := dialCentral(t, addr)
	cp.sendClear(protocol.Build(protocol.TypeRegister, "CP", id, "48.85", "2.35", "0.40", id, password))
	ack := cp.nextOfType(protocol.TypeAcknowledge)
	require.GreaterOrEqual(t, len(ack), 4)
	require.Equal(t, "OK", ack[2])
	cp.key = ack[3]
	return cp
}

func registerDriver(t *testing.T, addr, id string) *testClient {
	t.Helper()
	d := dialCentral(t, addr)
	d.sendClear(protocol.Build(protocol.TypeRegister, "DRIVER", id))
	ack := d.nextOfType(protocol.TypeAcknowledge)
	require.Equal(t, "OK", ack[2])
	return d
}

func TestRegisterCPHandsOverDerivedKey(t *testing.T) {
	_, addr := startServer(t)
	cp := registerCP(t, addr, "CP1", "secret")
	assert.Equal(t, crypto.DeriveKey("secret"), cp.key)
}

func TestChargeSessionHappyPath(t *testing.T) {
	_, addr := startServer(t)
	cp := registerCP(t, addr, "CP1", "secret")
	d := registerDriver(t, addr, "D1")

	d.sendClear(protocol.Build(protocol.TypeRequestCharge, "D1", "CP1", "10"))

	auth := d.nextOfType(protocol.TypeAuthorize)
	assert.Equal(t, []string{"AUTHORIZE", "D1", "CP1", "10.000", "0.40"}, auth)

	// The charging point receives its authorization encrypted.
	cpAuth := cp.nextOfType(protocol.TypeAuthorize)
	assert.Equal(t, []string{"AUTHORIZE", "D1", "CP1", "10.000"}, cpAuth)

	// Metering flows back to the driver as running totals.
	cp.send(protocol.Build(protocol.TypeSupplyUpdate, "CP1", "4", "1.60"))
	upd := d.nextOfType(protocol.TypeSupplyUpdate)
	assert.Equal(t, []string{"SUPPLY_UPDATE", "CP1", "4.000", "1.60"}, upd)

	cp.send(protocol.Build(protocol.TypeSupplyEnd, "CP1", "D1", "10.000", "4.00"))
	ticket := d.nextOfType(protocol.TypeTicket)
	assert.Equal(t, []string{"TICKET", "CP1", "10.000", "4.00"}, ticket)
}

func TestRequestChargeUnknownCPDenied(t *testing.T) {
	s, addr := startServer(t)
	d := registerDriver(t, addr, "D1")

	d.sendClear(protocol.Build(protocol.TypeRequestCharge, "D1", "CPX", "10"))
	deny := d.nextOfType(protocol.TypeDeny)
	assert.Equal(t, []string{"DENY", "D1", "CPX", "CP_NOT_FOUND"}, deny)

	// Nothing was created for the phantom point.
	s.mu.Lock()
	_, exists := s.cps["CPX"]
	s.mu.Unlock()
	assert.False(t, exists)
}

func TestConcurrentRequestsSingleWinner(t *testing.T) {
	_, addr := startServer(t)
	registerCP(t, addr, "CP1", "secret")
	d1 := registerDriver(t, addr, "D1")
	d2 := registerDriver(t, addr, "D2")

	d1.sendClear(protocol.Build(protocol.TypeRequestCharge, "D1", "CP1", "10"))
	d2.sendClear(protocol.Build(protocol.TypeRequestCharge, "D2", "CP1", "10"))

	results := make(map[string]string)
	for _, d := range []*testClient{d1, d2} {
		for i := 0; i < 32; i++ {
			fields := strings.Split(d.next(), protocol.Separator)
			if fields[0] == protocol.TypeAuthorize {
				results[fields[1]] = "AUTHORIZE"
				break
			}
			if fields[0] == protocol.TypeDeny {
				results[fields[1]] = fields[len(fields)-1]
				break
			}
		}
	}

	var wins, denies int
	for _, outcome := range results {
		if outcome == "AUTHORIZE" {
			wins++
		} else {
			denies++
			assert.Contains(t,
				[]string{DenyCPInUse, denyCPStatePrefix + "SUPPLYING"}, outcome)
		}
	}
	assert.Equal(t, 1, wins, "exactly one driver wins the point")
	assert.Equal(t, 1, denies)
}

func TestDuplicateSupplyEndYieldsDuplicateTicket(t *testing.T) {
	s, addr := startServer(t)
	cp := registerCP(t, addr, "CP1", "secret")
	d := registerDriver(t, addr, "D1")

	d.sendClear(protocol.Build(protocol.TypeRequestCharge, "D1", "CP1", "10"))
	d.nextOfType(protocol.TypeAuthorize)
	cp.nextOfType(protocol.TypeAuthorize)

	cp.send(protocol.Build(protocol.TypeSupplyEnd, "CP1", "D1", "10.000", "4.00"))
	d.nextOfType(protocol.TypeTicket)
	cp.send(protocol.Build(protocol.TypeSupplyEnd, "CP1", "D1", "10.000", "4.00"))
	d.nextOfType(protocol.TypeTicket)

	// The point is idle and claimable after the duplicate.
	s.mu.Lock()
	assert.Empty(t, s.cps["CP1"].CurrentDriver)
	s.mu.Unlock()
	d.sendClear(protocol.Build(protocol.TypeRequestCharge, "D1", "CP1", "5"))
	d.nextOfType(protocol.TypeAuthorize)
}

func TestEndChargeStopsSession(t *testing.T) {
	_, addr := startServer(t)
	cp := registerCP(t, addr, "CP1", "secret")
	d := registerDriver(t, addr, "D1")

	d.sendClear(protocol.Build(protocol.TypeRequestCharge, "D1", "CP1", "10"))
	d.nextOfType(protocol.TypeAuthorize)
	cp.nextOfType(protocol.TypeAuthorize)

	cp.send(protocol.Build(protocol.TypeSupplyUpdate, "CP1", "4", "1.60"))
	d.nextOfType(protocol.TypeSupplyUpdate)

	d.sendClear(protocol.Build(protocol.TypeEndCharge, "D1", "CP1"))
	// The engine is told to stop, the driver is billed what accumulated.
	stop := cp.nextOfType(protocol.TypeEndSupply)
	assert.Equal(t, []string{"END_SUPPLY", "CP1"}, stop)
	ticket := d.nextOfType(protocol.TypeTicket)
	assert.Equal(t, []string{"TICKET", "CP1", "4.000", "1.60"}, ticket)
}

func TestEndChargeWrongDriverIgnored(t *testing.T) {
	s, addr := startServer(t)
	registerCP(t, addr, "CP1", "secret")
	d := registerDriver(t, addr, "D1")
	other := registerDriver(t, addr, "D2")

	d.sendClear(protocol.Build(protocol.TypeRequestCharge, "D1", "CP1", "10"))
	d.nextOfType(protocol.TypeAuthorize)

	other.sendClear(protocol.Build(protocol.TypeEndCharge, "D2", "CP1"))
	time.Sleep(100 * time.Millisecond)

	s.mu.Lock()
	assert.Equal(t, "D1", s.cps["CP1"].CurrentDriver)
	s.mu.Unlock()
}

func TestDisconnectDuringSessionPreservesIt(t *testing.T) {
	s, addr := startServer(t)
	cp := registerCP(t, addr, "CP1", "secret")
	d := registerDriver(t, addr, "D1")

	d.sendClear(protocol.Build(protocol.TypeRequestCharge, "D1", "CP1", "10"))
	d.nextOfType(protocol.TypeAuthorize)
	cp.nextOfType(protocol.TypeAuthorize)

	cp.send(protocol.Build(protocol.TypeSupplyUpdate, "CP1", "4", "1.60"))
	d.nextOfType(protocol.TypeSupplyUpdate)

	// Socket drop mid-session: the record keeps SUPPLYING and the driver.
	require.NoError(t, cp.c.Close())
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, reachable := s.registry.connFor("CP1")
		return !reachable
	}, 2*time.Second, 10*time.Millisecond)
	s.mu.Lock()
	assert.Equal(t, "D1", s.cps["CP1"].CurrentDriver)
	s.mu.Unlock()

	// The engine reconnects and ends the session with final totals.
	cp2 := registerCP(t, addr, "CP1", "secret")
	cp2.send(protocol.Build(protocol.TypeSupplyEnd, "CP1", "D1", "10.000", "4.00"))
	ticket := d.nextOfType(protocol.TypeTicket)
	assert.Equal(t, []string{"TICKET", "CP1", "10.000", "4.00"}, ticket)
}

func TestIdleCPDisconnectGoesDisconnected(t *testing.T) {
	s, addr := startServer(t)
	cp := registerCP(t, addr, "CP1", "secret")

	require.NoError(t, cp.c.Close())
	require.Eventually(t, func() bool {
		_, hasKey := s.keys.Key("CP1")
		return !hasKey
	}, 2*time.Second, 10*time.Millisecond)
	s.mu.Lock()
	assert.Equal(t, "DISCONNECTED", string(s.cps["CP1"].State))
	s.mu.Unlock()
}

func TestMonitorReceivesFullStateAndUpdates(t *testing.T) {
	_, addr := startServer(t)
	registerCP(t, addr, "CP1", "secret")

	m := dialCentral(t, addr)
	m.sendClear(protocol.Build(protocol.TypeRegister, "MONITOR", "M1"))
	m.nextOfType(protocol.TypeAcknowledge)
	full := m.nextOfType(protocol.TypeFullState)
	assert.Contains(t, full[1], "CP1")

	d := registerDriver(t, addr, "D1")
	d.sendClear(protocol.Build(protocol.TypeRequestCharge, "D1", "CP1", "10"))
	start := m.nextOfType(protocol.TypeDriverStart)
	assert.Equal(t, []string{"DRIVER_START", "CP1", "D1"}, start)
}

func TestWeatherAlertOverridesAvailability(t *testing.T) {
	_, addr := startServer(t)
	registerCP(t, addr, "CP1", "secret")
	d := registerDriver(t, addr, "D1")

	w := dialCentral(t, addr)
	w.sendClear(protocol.Build(protocol.TypeWeatherAlert, "CP1", "ALERT_COLD"))
	time.Sleep(100 * time.Millisecond)

	d.sendClear(protocol.Build(protocol.TypeQueryAvailable, "D1"))
	avail := d.nextOfType(protocol.TypeAvailableCPs)
	assert.Equal(t, []string{"AVAILABLE_CPS"}, avail)

	w.sendClear(protocol.Build(protocol.TypeWeatherAlert, "CP1", "WEATHER_OK"))
	time.Sleep(100 * time.Millisecond)

	d.sendClear(protocol.Build(protocol.TypeQueryAvailable, "D1"))
	avail = d.nextOfType(protocol.TypeAvailableCPs)
	assert.Equal(t, []string{"AVAILABLE_CPS", "CP1", "48.85", "2.35", "0.40"}, avail)
}

func TestCorruptFrameDoesNotKillConnection(t *testing.T) {
	_, addr := startServer(t)
	d := registerDriver(t, addr, "D1")

	// A frame with a bad checksum is dropped, the next one still works.
	frame := protocol.Encode(protocol.Build(protocol.TypeQueryAvailable, "D1"))
	frame[len(frame)-1] ^= 0xff
	_, err := d.c.Write(frame)
	require.NoError(t, err)

	d.sendClear(protocol.Build(protocol.TypeQueryAvailable, "D1"))
	d.nextOfType(protocol.TypeAvailableCPs)
}

func TestEncryptedGarbageFromCPIsDropped(t *testing.T) {
	_, addr := startServer(t)
	cp := registerCP(t, addr, "CP1", "secret")
	d := registerDriver(t, addr, "D1")
	d.sendClear(protocol.Build(protocol.TypeRequestCharge, "D1", "CP1", "10"))
	d.nextOfType(protocol.TypeAuthorize)

	// A protocol-shaped plaintext from a registered CP must not bypass the
	// decrypt path: SUPPLY_END is not on the cleartext allow-list.
	cp.sendClear(protocol.Build(protocol.TypeSupplyEnd, "CP1", "D1", "10.000", "4.00"))
	time.Sleep(100 * time.Millisecond)

	// No ticket was produced; the session is still running.
	cp.send(protocol.Build(protocol.TypeSupplyUpdate, "CP1", "1", "0.40"))
	upd := d.nextOfType(protocol.TypeSupplyUpdate)
	assert.Equal(t, []string{"SUPPLY_UPDATE", "CP1", "1.000", "0.40"}, upd)
}
