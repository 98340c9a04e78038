// Package corestate implements Context, the shared mutable state spec.md
// §4.1 describes: the route table, the active strategy, the current config
// snapshot, and the event buses every other package subscribes to or
// publishes on. The teacher has no equivalent type — Pool and the HTTP
// mux were wired directly together in main() — so Context's shape is new,
// but every primitive it's built from (atomic snapshot swap, the Bus type,
// a ctx.Done()-style shutdown channel) is lifted from elsewhere in the
// teacher or from internal/events.
package corestate

import (
	"sync"
	"sync/atomic"
	"time"

	"tcplb/internal/backend"
	"tcplb/internal/config"
	"tcplb/internal/events"
	"tcplb/internal/logging"
	"tcplb/internal/routetable"
	"tcplb/internal/strategy"
)

// DrainResult is the outcome of a bounded wait for active connections to
// reach zero.
type DrainResult int

const (
	Drained DrainResult = iota
	TimedOut
)

func (r DrainResult) String() string {
	if r == Drained {
		return "drained"
	}
	return "timed_out"
}

// stratHolder lets an interface value live behind atomic.Pointer, which
// requires a concrete pointee type.
type stratHolder struct{ s strategy.Strategy }

// Context owns everything a running proxy needs to pick a backend, track
// its config, and coordinate drains and shutdown. One Context per process.
type Context struct {
	cfg      atomic.Pointer[config.Config]
	strategy atomic.Pointer[stratHolder]
	rt       *routetable.RouteTable

	configBus *events.Bus[events.ConfigEvent]
	healthBus *events.Bus[events.HealthEvent]
	connBus   *events.Bus[events.ConnectionEvent]
	failureCh chan events.BackendFailureEvent

	migrateMu sync.Mutex

	drainMu sync.Mutex
	drainCh chan struct{}

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	forceCloseMu sync.Mutex
	forceClose   func(id uint8)

	log *logging.Logger
}

// New builds a Context from an already-validated, defaulted Config,
// populating the route table with its backends and selecting its strategy.
func New(cfg *config.Config, log *logging.Logger) *Context {
	c := &Context{
		rt:         routetable.New(),
		configBus:  events.NewBus[events.ConfigEvent](8),
		healthBus:  events.NewBus[events.HealthEvent](cfg.Runtime.HealthCap),
		connBus:    events.NewBus[events.ConnectionEvent](cfg.Runtime.MetricsCap),
		failureCh:  make(chan events.BackendFailureEvent, len(cfg.Backends)+1),
		drainCh:    make(chan struct{}),
		shutdownCh: make(chan struct{}),
		log:        log,
	}
	c.cfg.Store(cfg)
	c.strategy.Store(&stratHolder{s: strategy.New(cfg.Strategy)})
	for _, bc := range cfg.Backends {
		c.rt.Insert(backend.New(toMeta(bc)))
	}
	return c
}

func toMeta(bc config.BackendConfig) backend.Meta {
	return backend.Meta{ID: bc.ID, Name: bc.Name, Address: bc.Address, Weight: bc.Weight}
}

// Config returns the current validated snapshot.
func (c *Context) Config() *config.Config { return c.cfg.Load() }

// RouteTable returns the backend route table.
func (c *Context) RouteTable() *routetable.RouteTable { return c.rt }

// Strategy returns the active selection strategy.
func (c *Context) Strategy() strategy.Strategy { return c.strategy.Load().s }

// SetStrategy swaps the active strategy. Exported for tests; production
// callers go through Migrate.
func (c *Context) SetStrategy(s strategy.Strategy) { c.strategy.Store(&stratHolder{s: s}) }

// SubscribeConfig, SubscribeHealth and SubscribeConnections hand out
// broadcast subscriptions (spec.md §3's three broadcast event kinds).
func (c *Context) SubscribeConfig() *events.Subscription[events.ConfigEvent] {
	return c.configBus.Subscribe()
}

func (c *Context) SubscribeHealth() *events.Subscription[events.HealthEvent] {
	return c.healthBus.Subscribe()
}

func (c *Context) SubscribeConnections() *events.Subscription[events.ConnectionEvent] {
	return c.connBus.Subscribe()
}

// PublishHealth and PublishConnection are called by the health checker and
// proxy respectively; Migrate is the only internal publisher of ConfigEvent.
func (c *Context) PublishHealth(ev events.HealthEvent)         { c.healthBus.Publish(ev) }
func (c *Context) PublishConnection(ev events.ConnectionEvent) { c.connBus.Publish(ev) }

// ReportFailure sends a BackendFailureEvent point-to-point to whatever is
// reading Failures() (the health checker). It blocks if that channel is
// full, applying real backpressure to a proxy failing faster than the
// checker can absorb (spec.md §3).
func (c *Context) ReportFailure(ev events.BackendFailureEvent) {
	select {
	case c.failureCh <- ev:
	case <-c.shutdownCh:
	}
}

// Failures returns the receive side of the failure channel, for the health
// checker's consumption loop.
func (c *Context) Failures() <-chan events.BackendFailureEvent { return c.failureCh }

// SetForceCloseHook registers the callback the proxy uses to forcibly close
// every live socket attached to a backend id. Context never holds sockets
// itself; it only triggers this hook when a drain deadline expires (spec.md
// §4.8's "removed anyway, in-flight sockets force-closed").
func (c *Context) SetForceCloseHook(fn func(id uint8)) {
	c.forceCloseMu.Lock()
	defer c.forceCloseMu.Unlock()
	c.forceClose = fn
}

func (c *Context) forceCloseBackend(id uint8) {
	c.forceCloseMu.Lock()
	fn := c.forceClose
	c.forceCloseMu.Unlock()
	if fn != nil {
		fn(id)
	}
}

// ForceClose invokes the registered force-close hook for id. Exposed for the
// orchestrator's shutdown-drain-timeout step (spec.md §4.7 step 3); a nil
// hook (no proxy registered yet) is a no-op.
func (c *Context) ForceClose(id uint8) { c.forceCloseBackend(id) }

// Shutdown marks the Context as shutting down. Idempotent.
func (c *Context) Shutdown() { c.shutdownOnce.Do(func() { close(c.shutdownCh) }) }

// Done returns a channel closed once Shutdown has been called.
func (c *Context) Done() <-chan struct{} { return c.shutdownCh }

// NotifyDrain wakes every goroutine blocked in WaitForDrain/WaitForAllIdle
// so it can re-check its predicate. Called by the proxy after every
// active-connection decrement; over-notifying is harmless because waiters
// only act on the recomputed sum, never on the wake itself (spec.md §9).
func (c *Context) NotifyDrain() {
	c.drainMu.Lock()
	close(c.drainCh)
	c.drainCh = make(chan struct{})
	c.drainMu.Unlock()
}

func (c *Context) drainWaitChan() <-chan struct{} {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()
	return c.drainCh
}

// WaitForDrain blocks until every Draining backend's active_connections has
// reached zero, or timeout elapses. Migrate does not call it; it waits on
// its own list of drained backends via waitForBackends.
func (c *Context) WaitForDrain(timeout time.Duration) DrainResult {
	return c.waitForPredicate(timeout, func() int64 {
		var sum int64
		for _, b := range c.rt.All() {
			if b.Status() == backend.Draining {
				sum += b.ActiveConnections()
			}
		}
		return sum
	})
}

// WaitForAllIdle blocks until every backend's active_connections has reached
// zero regardless of status, or timeout elapses. Used by the orchestrator's
// shutdown sequence (spec.md §4.7), where no backend needs to be marked
// Draining — the listener is already closed, so no new connections land.
func (c *Context) WaitForAllIdle(timeout time.Duration) DrainResult {
	return c.waitForPredicate(timeout, func() int64 {
		var sum int64
		for _, b := range c.rt.All() {
			sum += b.ActiveConnections()
		}
		return sum
	})
}

func (c *Context) waitForBackends(backends []*backend.Backend, timeout time.Duration) DrainResult {
	return c.waitForPredicate(timeout, func() int64 {
		var sum int64
		for _, b := range backends {
			sum += b.ActiveConnections()
		}
		return sum
	})
}

func (c *Context) waitForPredicate(timeout time.Duration, sum func() int64) DrainResult {
	deadline := time.Now().Add(timeout)
	for {
		if sum() == 0 {
			return Drained
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return TimedOut
		}
		ch := c.drainWaitChan()
		timer := time.NewTimer(remaining)
		select {
		case <-ch:
			timer.Stop()
		case <-timer.C:
			return TimedOut
		}
	}
}
