// Package health implements the HealthChecker (spec.md §4.3): a periodic
// TCP-connect probe loop generalized from the teacher's HTTP GET checker
// (active.go), plus point-to-point BackendFailureEvent consumption
// generalized from its passive tracker (passive.go).
package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"tcplb/internal/backend"
	"tcplb/internal/corestate"
	"tcplb/internal/events"
	"tcplb/internal/logging"
	"tcplb/internal/metrics"
)

// Checker runs the active probe ticker and the failure-event consumer for
// one Context. One Checker per process.
type Checker struct {
	ctx      *corestate.Context
	interval time.Duration
	timeout  time.Duration
	log      *logging.Logger
	metrics  *metrics.Collector

	flap      *flapDetector
	logBudget *logBudget
}

// New builds a Checker from the health.interval_ms/health.timeout_ms inputs
// spec.md §4.3 names.
func New(ctx *corestate.Context, intervalMs, timeoutMs int, log *logging.Logger) *Checker {
	return &Checker{
		ctx:       ctx,
		interval:  time.Duration(intervalMs) * time.Millisecond,
		timeout:   time.Duration(timeoutMs) * time.Millisecond,
		log:       log,
		flap:      newFlapDetector(10*time.Second, 5),
		logBudget: newLogBudget(3, 30*time.Second),
	}
}

// SetCollector attaches the Prometheus surface every probe and transition
// reports into. Optional; a nil collector is a no-op at every call site.
func (c *Checker) SetCollector(m *metrics.Collector) { c.metrics = m }

// Run marks every backend alive, then probes on every tick and drains
// BackendFailureEvent concurrently, until parent or the Context shuts down.
// Returns once stopped, per spec.md §4.3's "stops on shutdown broadcast"
// termination rule; the orchestrator enforces background_timeout_ms around
// the call site.
func (c *Checker) Run(parent context.Context) {
	for _, b := range c.ctx.RouteTable().All() {
		b.SetAlive(true)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-parent.Done():
			return
		case <-c.ctx.Done():
			return
		case ev := <-c.ctx.Failures():
			c.handleFailure(ev)
		case <-ticker.C:
			c.probeAll()
		}
	}
}

// probeAll fans out one probe per backend that currently has no in-flight
// connection — spec.md §4.3 excludes busy backends from active probing so a
// slow-but-alive backend under load isn't mistaken for dead.
func (c *Checker) probeAll() {
	for _, b := range c.ctx.RouteTable().All() {
		if b.ActiveConnections() == 0 {
			go c.probeOne(b)
		}
	}
}

func (c *Checker) probeOne(b *backend.Backend) {
	conn, err := net.DialTimeout("tcp", b.Address(), c.timeout)
	b.StampHealthCheck(time.Now().UnixMilli())
	if err != nil {
		c.metrics.ObserveHealthCheck(b.ID(), false)
		c.transition(b, false, err)
		return
	}
	conn.Close()
	c.metrics.ObserveHealthCheck(b.ID(), true)
	c.transition(b, true, nil)
}

func (c *Checker) handleFailure(ev events.BackendFailureEvent) {
	b, ok := c.ctx.RouteTable().Get(ev.ID)
	if !ok {
		return
	}
	b.StampHealthCheck(time.Now().UnixMilli())
	c.transition(b, false, fmt.Errorf("reported %s", ev.Reason))
}

// transition applies the new alive state and, only on an actual flip,
// publishes a HealthEvent (spec.md §4.3: "on any state transition, publish
// a HealthEvent").
func (c *Checker) transition(b *backend.Backend, alive bool, cause error) {
	was := b.IsAlive()
	b.SetAlive(alive)
	if was == alive {
		return
	}

	kind := events.BackendUp
	if !alive {
		kind = events.BackendDown
	}
	c.ctx.PublishHealth(events.HealthEvent{Kind: kind, ID: b.ID()})

	flapping := c.flap.Record(b.ID())
	if flapping {
		c.metrics.ObserveFlap(b.ID())
	}

	if c.log == nil {
		return
	}
	if flapping {
		if c.logBudget.Allow(b.ID()) {
			c.log.Warn("backend flapping", "id", b.ID(), "cause", cause)
		}
		return
	}
	c.log.Info("backend health transition", "id", b.ID(), "alive", alive, "cause", cause)
}
