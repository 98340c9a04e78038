package proxy

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"tcplb/internal/backend"
	"tcplb/internal/events"
)

// handle runs the per-connection procedure of spec.md §4.5, steps 1-6.
func (p *Proxy) handle(client net.Conn) {
	defer p.wg.Done()
	defer func() {
		if p.sem != nil {
			<-p.sem
		}
	}()
	defer client.Close()

	start := time.Now()
	connID := uuid.NewString()
	clientAddr := client.RemoteAddr().String()

	b, err := p.ctx.Strategy().Pick(p.ctx.RouteTable())
	if err != nil {
		return
	}

	b.IncActiveConnections()
	b.IncTotalRequests()
	p.ctx.PublishConnection(events.ConnectionEvent{
		Kind: events.Opened, BackendID: b.ID(), ConnID: connID, ClientAddr: clientAddr,
	})

	dialTimeout := time.Duration(p.ctx.Config().Health.TimeoutMs) * time.Millisecond
	upstream, err := net.DialTimeout("tcp", b.Address(), dialTimeout)
	if err != nil {
		p.closeFailedDial(b, connID, start)
		return
	}

	p.registerConn(b.ID(), upstream)
	ok := p.pump(client, upstream, b)
	p.unregisterConn(b.ID(), upstream)
	upstream.Close()

	p.closeSession(b, connID, start, ok)
}

func (p *Proxy) closeFailedDial(b *backend.Backend, connID string, start time.Time) {
	b.IncTotalErrors()
	b.DecActiveConnections()
	p.ctx.NotifyDrain()
	p.ctx.ReportFailure(events.BackendFailureEvent{ID: b.ID(), Reason: events.DialFailure})
	durationMs := time.Since(start).Milliseconds()
	p.ctx.PublishConnection(events.ConnectionEvent{
		Kind: events.Closed, BackendID: b.ID(), ConnID: connID, DurationMs: durationMs, OK: false,
	})
	p.metrics.ObserveConnection(b.ID(), time.Since(start).Seconds(), false)
}

func (p *Proxy) closeSession(b *backend.Backend, connID string, start time.Time, ok bool) {
	durationMs := time.Since(start).Milliseconds()
	b.AddLatency(durationMs)
	if !ok {
		b.IncTotalErrors()
	}
	b.DecActiveConnections()
	p.ctx.NotifyDrain()
	p.ctx.PublishConnection(events.ConnectionEvent{
		Kind: events.Closed, BackendID: b.ID(), ConnID: connID, DurationMs: durationMs, OK: ok,
	})
	p.metrics.ObserveConnection(b.ID(), time.Since(start).Seconds(), ok)
}

// pump runs the two half-duplex copies concurrently, half-closing each peer
// on its EOF (spec.md §4.5 step 5). It reports false if either direction
// errored for a reason other than a clean peer close.
func (p *Proxy) pump(client, upstream net.Conn, b *backend.Backend) bool {
	var wg sync.WaitGroup
	wg.Add(2)
	errs := make(chan error, 2)

	go func() {
		defer wg.Done()
		_, err := io.Copy(upstream, client)
		halfClose(upstream)
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := io.Copy(client, upstream)
		halfClose(client)
		errs <- err
	}()

	wg.Wait()
	close(errs)

	ok := true
	for err := range errs {
		if err != nil {
			ok = false
			p.ctx.ReportFailure(events.BackendFailureEvent{ID: b.ID(), Reason: events.CopyFailure})
		}
	}
	return ok
}

func halfClose(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.CloseWrite()
	}
}

func (p *Proxy) registerConn(id uint8, conn net.Conn) {
	p.connsMu.Lock()
	defer p.connsMu.Unlock()
	if p.conns[id] == nil {
		p.conns[id] = make(map[net.Conn]struct{})
	}
	p.conns[id][conn] = struct{}{}
}

func (p *Proxy) unregisterConn(id uint8, conn net.Conn) {
	p.connsMu.Lock()
	defer p.connsMu.Unlock()
	delete(p.conns[id], conn)
}

// forceCloseBackend closes every live backend-side socket for id. Called by
// corestate.Context when a drain deadline expires (spec.md §4.8); closing
// the upstream half is enough — it unblocks pump's io.Copy on that side,
// which then half-closes and tears down the client side normally.
func (p *Proxy) forceCloseBackend(id uint8) {
	p.connsMu.Lock()
	conns := make([]net.Conn, 0, len(p.conns[id]))
	for c := range p.conns[id] {
		conns = append(conns, c)
	}
	p.connsMu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
