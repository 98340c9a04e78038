package proxy

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcplb/internal/config"
	"tcplb/internal/corestate"
)

func echoServer(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				io.Copy(c, c)
				c.Close()
			}(conn)
		}
	}()
	return ln
}

func newTestContext(t *testing.T, maxConnections int, addrs ...string) *corestate.Context {
	t.Helper()
	var backends []config.BackendConfig
	for i, addr := range addrs {
		backends = append(backends, config.BackendConfig{ID: uint8(i + 1), Address: addr})
	}
	cfg := &config.Config{
		Proxy:    config.ProxyConfig{ListenAddress: "127.0.0.1:0", MaxConnections: maxConnections},
		Strategy: config.StrategyRoundRobin,
		Backends: backends,
	}
	cfg.ApplyDefaults()
	cfg.Runtime.AcceptTimeoutMillis = 50
	return corestate.New(cfg, nil)
}

func startProxy(t *testing.T, ctx *corestate.Context) *Proxy {
	t.Helper()
	p := New(ctx, nil)
	require.NoError(t, p.Listen())
	go p.Serve()
	return p
}

func TestProxyRoundTripsBytesAndAccountsConnection(t *testing.T) {
	backendLn := echoServer(t)
	defer backendLn.Close()

	ctx := newTestContext(t, 0, backendLn.Addr().String())
	p := startProxy(t, ctx)
	defer p.Stop()

	conn, err := net.Dial("tcp", p.Addr().String())
	require.NoError(t, err)

	_, err = conn.Write([]byte("hello\n"))
	require.NoError(t, err)
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello\n", line)

	b, _ := ctx.RouteTable().Get(1)
	assert.Equal(t, int64(1), b.ActiveConnections())

	conn.Close()
	require.Eventually(t, func() bool { return b.ActiveConnections() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), b.TotalRequests())
}

func TestProxyClosesClientWhenNoSelectableBackend(t *testing.T) {
	ctx := newTestContext(t, 0, "127.0.0.1:1")
	b, _ := ctx.RouteTable().Get(1)
	b.SetAlive(false)

	p := startProxy(t, ctx)
	defer p.Stop()

	conn, err := net.Dial("tcp", p.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Equal(t, io.EOF, err)
}

func TestProxyDialFailureAccountsErrorAndClosesClient(t *testing.T) {
	deadLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := deadLn.Addr().String()
	deadLn.Close() // nothing listens here now

	ctx := newTestContext(t, 0, addr)
	b, _ := ctx.RouteTable().Get(1)

	p := startProxy(t, ctx)
	defer p.Stop()

	conn, err := net.Dial("tcp", p.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Equal(t, io.EOF, err)

	require.Eventually(t, func() bool { return b.TotalErrors() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), b.ActiveConnections())
}

func TestProxyMaxConnectionsPausesAccept(t *testing.T) {
	backendLn := echoServer(t)
	defer backendLn.Close()

	ctx := newTestContext(t, 1, backendLn.Addr().String())
	p := startProxy(t, ctx)
	defer p.Stop()

	first, err := net.Dial("tcp", p.Addr().String())
	require.NoError(t, err)
	defer first.Close()
	// Make sure the first connection is actually being served before the
	// second dial, so the semaphore slot is held.
	_, err = first.Write([]byte("x\n"))
	require.NoError(t, err)
	_, err = bufio.NewReader(first).ReadString('\n')
	require.NoError(t, err)

	second, err := net.Dial("tcp", p.Addr().String())
	require.NoError(t, err)
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err = second.Write([]byte("y\n"))
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = second.Read(buf)
	assert.Error(t, err, "second connection must not be served while the pool is full")

	first.Close()

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(second).ReadString('\n')
	require.NoError(t, err, "second connection must be served once the slot frees")
	assert.Equal(t, "y\n", line)
}

func TestForceCloseBackendClosesLiveUpstreamSockets(t *testing.T) {
	backendLn := echoServer(t)
	defer backendLn.Close()

	ctx := newTestContext(t, 0, backendLn.Addr().String())
	p := startProxy(t, ctx)
	defer p.Stop()

	conn, err := net.Dial("tcp", p.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("x\n"))
	require.NoError(t, err)
	_, err = bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)

	b, _ := ctx.RouteTable().Get(1)
	require.Eventually(t, func() bool { return b.ActiveConnections() == 1 }, time.Second, 5*time.Millisecond)

	p.forceCloseBackend(1)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Equal(t, io.EOF, err, "client side must observe closure once the backend side is force-closed")
}
