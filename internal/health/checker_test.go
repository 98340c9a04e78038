package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcplb/internal/config"
	"tcplb/internal/corestate"
	"tcplb/internal/events"
)

func listenLoopback(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return ln
}

func newTestContext(t *testing.T, addrs ...string) *corestate.Context {
	t.Helper()
	var backends []config.BackendConfig
	for i, addr := range addrs {
		backends = append(backends, config.BackendConfig{ID: uint8(i + 1), Address: addr})
	}
	cfg := &config.Config{
		Proxy:    config.ProxyConfig{ListenAddress: "127.0.0.1:9000"},
		Strategy: config.StrategyRoundRobin,
		Backends: backends,
	}
	cfg.ApplyDefaults()
	return corestate.New(cfg, nil)
}

func TestCheckerMarksAllAliveAtStartup(t *testing.T) {
	ln := listenLoopback(t)
	defer ln.Close()

	ctx := newTestContext(t, ln.Addr().String())
	b, _ := ctx.RouteTable().Get(1)
	b.SetAlive(false)

	c := New(ctx, 50, 50, nil)
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(runCtx)

	require.Eventually(t, func() bool { return b.IsAlive() }, time.Second, 5*time.Millisecond)
}

func TestCheckerDetectsDeadBackendOnTick(t *testing.T) {
	ctx := newTestContext(t, "127.0.0.1:1") // nothing listens here
	b, _ := ctx.RouteTable().Get(1)

	sub := ctx.SubscribeHealth()
	defer sub.Close()

	c := New(ctx, 20, 50, nil)
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(runCtx)

	select {
	case ev := <-sub.C:
		assert.Equal(t, events.BackendDown, ev.Kind)
		assert.Equal(t, uint8(1), ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a BackendDown health event")
	}
	assert.False(t, b.IsAlive())
}

func TestCheckerSkipsBackendsWithActiveConnections(t *testing.T) {
	ctx := newTestContext(t, "127.0.0.1:1")
	b, _ := ctx.RouteTable().Get(1)
	b.IncActiveConnections()

	c := New(ctx, 20, 50, nil)
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(runCtx)

	time.Sleep(150 * time.Millisecond)
	assert.True(t, b.IsAlive(), "a busy backend must never be actively probed")
}

func TestCheckerConsumesFailureEventImmediately(t *testing.T) {
	ln := listenLoopback(t)
	defer ln.Close()

	ctx := newTestContext(t, ln.Addr().String())
	b, _ := ctx.RouteTable().Get(1)

	checker := New(ctx, 60*60*1000, 50, nil) // interval long enough that only the failure event matters
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go checker.Run(runCtx)

	require.Eventually(t, func() bool { return b.IsAlive() }, time.Second, 5*time.Millisecond)

	ctx.ReportFailure(events.BackendFailureEvent{ID: 1, Reason: events.DialFailure})

	require.Eventually(t, func() bool { return !b.IsAlive() }, time.Second, 5*time.Millisecond)
}

func TestCheckerStopsOnContextDone(t *testing.T) {
	ctx := newTestContext(t, "127.0.0.1:1")
	c := New(ctx, 10, 10, nil)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(runCtx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
