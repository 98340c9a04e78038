// Package proxy implements the accept-and-forward loop of spec.md §4.5. The
// teacher has no raw-TCP proxy (balancer/balancer.go wraps
// httputil.ReverseProxy over an http.Handler); this package is modeled
// instead on the pack's TCP proxy references: the semaphore-gated accept
// loop of other_examples' systemli tcpserver.go, and the per-backend
// connection registry + dial/health coupling of hotafrika's
// service-backend.go.
package proxy

import (
	"net"
	"sync"
	"time"

	"tcplb/internal/corestate"
	"tcplb/internal/logging"
	"tcplb/internal/metrics"
)

// Proxy owns the listener, the max_connections semaphore, and the
// per-backend live-connection registry used to force-close sockets when a
// drain deadline expires.
type Proxy struct {
	ctx     *corestate.Context
	log     *logging.Logger
	metrics *metrics.Collector

	lnMu         sync.Mutex
	ln           net.Listener
	acceptBudget time.Duration

	sem chan struct{}

	connsMu sync.Mutex
	conns   map[uint8]map[net.Conn]struct{}

	wg sync.WaitGroup
}

// New builds a Proxy for ctx. It registers itself as the Context's
// force-close hook so a migration or shutdown drain timeout can reach in
// and close live backend-side sockets.
func New(ctx *corestate.Context, log *logging.Logger) *Proxy {
	cfg := ctx.Config()
	p := &Proxy{
		ctx:          ctx,
		log:          log,
		conns:        make(map[uint8]map[net.Conn]struct{}),
		acceptBudget: time.Duration(cfg.Runtime.AcceptTimeoutMillis) * time.Millisecond,
	}
	if cfg.Proxy.MaxConnections > 0 {
		p.sem = make(chan struct{}, cfg.Proxy.MaxConnections)
	}
	ctx.SetForceCloseHook(p.forceCloseBackend)
	return p
}

// SetCollector attaches the Prometheus surface. Optional.
func (p *Proxy) SetCollector(m *metrics.Collector) { p.metrics = m }

// Listen binds proxy.listen_address. Must succeed before Serve is called.
func (p *Proxy) Listen() error {
	cfg := p.ctx.Config()
	ln, err := net.Listen("tcp", cfg.Proxy.ListenAddress)
	if err != nil {
		return err
	}
	p.lnMu.Lock()
	p.ln = ln
	p.lnMu.Unlock()
	return nil
}

// Addr returns the bound listener's address, or nil if not yet listening.
func (p *Proxy) Addr() net.Addr {
	p.lnMu.Lock()
	defer p.lnMu.Unlock()
	if p.ln == nil {
		return nil
	}
	return p.ln.Addr()
}

// Stop closes the listener, the orchestrator's shutdown step 2 (spec.md
// §4.7): the listener stays up across migrations and is only ever closed
// here or replaced wholesale by a rebind.
func (p *Proxy) Stop() {
	p.lnMu.Lock()
	ln := p.ln
	p.lnMu.Unlock()
	if ln != nil {
		ln.Close()
	}
}

// Wait blocks until every in-flight connection task has returned, or
// timeout elapses; reports whether it returned because of the timeout.
func (p *Proxy) Wait(timeout time.Duration) (timedOut bool) {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return false
	case <-time.After(timeout):
		return true
	}
}
