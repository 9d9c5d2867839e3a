package central

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evcharge/core/model"
	"github.com/kilianp07/evcharge/core/registry"
	"github.com/kilianp07/evcharge/infra/logger"
)

type stubVerifier struct {
	entries []registry.Entry
	err     error
	calls   atomic.Int32
}

func (v *stubVerifier) Verify(context.Context, string, string, string) (bool, error) {
	return true, nil
}

func (v *stubVerifier) List(context.Context) ([]registry.Entry, error) {
	v.calls.Add(1)
	return v.entries, v.err
}

func TestPollRegistryReportsUnconnected(t *testing.T) {
	v := &stubVerifier{entries: []registry.Entry{
		{CPID: "CP1", City: "Paris", Price: 0.40},
		{CPID: "CP2", City: "Lyon", Price: 0.35},
		{CPID: "CP3", City: "Lille", Price: 0.45},
	}}
	s := New(Config{Addr: "127.0.0.1:0"}, nil, v, nil, nil, logger.NopLogger{})
	seedCP(s, "CP1", 0.40)
	seedCP(s, "CP3", 0.45)
	s.mu.Lock()
	s.cps["CP3"].State = model.StateDisconnected
	s.mu.Unlock()

	missing, err := s.pollRegistry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"CP2", "CP3"}, missing)
	assert.EqualValues(t, 1, v.calls.Load())
}

func TestPollRegistryEmptyWhenAllConnected(t *testing.T) {
	v := &stubVerifier{entries: []registry.Entry{{CPID: "CP1"}}}
	s := New(Config{Addr: "127.0.0.1:0"}, nil, v, nil, nil, logger.NopLogger{})
	seedCP(s, "CP1", 0.40)

	missing, err := s.pollRegistry(context.Background())
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestPollRegistryPropagatesError(t *testing.T) {
	v := &stubVerifier{err: errors.New("registry down")}
	s := New(Config{Addr: "127.0.0.1:0"}, nil, v, nil, nil, logger.NopLogger{})

	_, err := s.pollRegistry(context.Background())
	assert.ErrorContains(t, err, "registry down")
}

func TestRegistryPollLoopTicks(t *testing.T) {
	v := &stubVerifier{}
	s := New(Config{Addr: "127.0.0.1:0", RegistryPollSeconds: 1}, nil, v, nil, nil, logger.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.registryPollLoop(ctx)

	require.Eventually(t, func() bool {
		return v.calls.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}
