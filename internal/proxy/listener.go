package proxy

import (
	"net"
	"time"

	"tcplb/internal/events"
)

// Serve runs the accept loop until the Context shuts down. Closing the
// listener with Stop alone does not end the loop: a failed Accept on a
// closed listener is retried until the shutdown broadcast is seen. Each
// accepted connection is handed to its own goroutine (the
// per-connection task spec.md §5 describes). max_connections is enforced by
// acquiring a semaphore slot before Accept, so a full pool pauses new
// accepts — lets them queue in the kernel backlog — instead of accepting
// and then rejecting (spec.md §4.5).
func (p *Proxy) Serve() {
	go p.watchListenAddressChanges()

	for {
		if p.sem != nil {
			select {
			case p.sem <- struct{}{}:
			case <-p.ctx.Done():
				return
			}
		}

		conn, err := p.acceptOne()
		if err != nil {
			if p.sem != nil {
				<-p.sem
			}
			select {
			case <-p.ctx.Done():
				return
			default:
			}
			if isTimeout(err) {
				continue
			}
			if p.log != nil {
				p.log.Warn("accept failed", "err", err)
			}
			continue
		}

		p.wg.Add(1)
		go p.handle(conn)
	}
}

// acceptOne calls Accept with an accept_timeout_millis deadline so the loop
// periodically wakes to re-check ctx.Done() and to observe a listener
// swapped in by a rebind, per the cooperative-cancellation model of spec.md
// §5 ("no blocking I/O is permitted in any task").
func (p *Proxy) acceptOne() (net.Conn, error) {
	p.lnMu.Lock()
	ln := p.ln
	p.lnMu.Unlock()

	if tl, ok := ln.(*net.TCPListener); ok && p.acceptBudget > 0 {
		tl.SetDeadline(time.Now().Add(p.acceptBudget))
	}
	return ln.Accept()
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// watchListenAddressChanges rebinds the listener whenever a migration
// reports a new proxy.listen_address (spec.md §4.8).
func (p *Proxy) watchListenAddressChanges() {
	sub := p.ctx.SubscribeConfig()
	defer sub.Close()

	for {
		select {
		case <-p.ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.Kind == events.ListenAddressChanged {
				p.rebind(ev.NewAddress)
			}
		}
	}
}

func (p *Proxy) rebind(addr string) {
	newLn, err := net.Listen("tcp", addr)
	if err != nil {
		if p.log != nil {
			p.log.Error("listener rebind failed, keeping old listener", "addr", addr, "err", err)
		}
		return
	}

	p.lnMu.Lock()
	old := p.ln
	p.ln = newLn
	p.lnMu.Unlock()

	if old != nil {
		old.Close()
	}
	if p.log != nil {
		p.log.Info("listener rebound", "addr", addr)
	}
}
