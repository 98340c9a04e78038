// Package backend holds the per-backend immutable metadata and atomic
// runtime counters that every other package in tcplb reads and mutates
// without taking a lock.
package backend

import (
	"sync"
	"sync/atomic"
)

// Meta is the configuration-derived identity of a Backend. ID and Address
// never change after construction; an address change during migration
// produces a new Backend value, while name and weight are updated in place
// by UpdateMutableMeta (see corestate's migration code for the
// address-change-is-replace rule).
type Meta struct {
	ID      uint8
	Name    string // optional; "" means absent
	Address string // "ip:port", IPv4 or IPv6
	Weight  uint8  // 1..255; 0 means "absent", resolved to 1 by EffectiveWeight
}

// EffectiveWeight returns the configured weight, defaulting absence (0) to 1.
func (m Meta) EffectiveWeight() int {
	if m.Weight == 0 {
		return 1
	}
	return int(m.Weight)
}

// Backend is one configured TCP target. Meta's name and weight change only
// under metaMu during migration; every other field is a lock-free atomic so
// the proxy hot path never blocks on a mutex to update counters.
type Backend struct {
	meta   Meta
	metaMu sync.RWMutex // guards meta.Name / meta.Weight; ID and Address are fixed at construction

	alive  atomic.Bool
	status atomic.Int32 // backend.Status

	activeConnections atomic.Int64
	totalRequests     atomic.Uint64
	totalErrors       atomic.Uint64
	totalLatencyMs    atomic.Uint64

	lastHealthCheckMs   atomic.Int64
	lastMetricsUpdateMs atomic.Int64
}

// New creates a Backend from immutable metadata. Per spec.md §3, new
// backends start alive and Active with all counters at zero.
func New(meta Meta) *Backend {
	b := &Backend{meta: meta}
	b.alive.Store(true)
	b.status.Store(int32(Active))
	return b
}

func (b *Backend) ID() uint8       { return b.meta.ID }
func (b *Backend) Address() string { return b.meta.Address }

func (b *Backend) Meta() Meta {
	b.metaMu.RLock()
	defer b.metaMu.RUnlock()
	return b.meta
}

func (b *Backend) Name() string {
	b.metaMu.RLock()
	defer b.metaMu.RUnlock()
	return b.meta.Name
}

func (b *Backend) Weight() int {
	b.metaMu.RLock()
	defer b.metaMu.RUnlock()
	return b.meta.EffectiveWeight()
}

// UpdateMutableMeta updates name/weight in place during a config migration
// that kept this backend's id and address. Called only from corestate's
// single-writer migration path, never from the connection hot path.
func (b *Backend) UpdateMutableMeta(name string, weight uint8) {
	b.metaMu.Lock()
	defer b.metaMu.Unlock()
	b.meta.Name = name
	b.meta.Weight = weight
}

// IsAlive reports the last health-determined liveness.
func (b *Backend) IsAlive() bool { return b.alive.Load() }

// SetAlive is called by the health checker on probe completion or failure
// event consumption.
func (b *Backend) SetAlive(alive bool) { b.alive.Store(alive) }

// Status returns the current lifecycle state (Active or Draining).
func (b *Backend) Status() Status { return Status(b.status.Load()) }

// Drain transitions the backend to Draining. Idempotent; once Draining, a
// backend never returns to Active (enforced by never calling any other
// status setter after this one — RouteTable/corestate never re-activate a
// drained backend, they remove and, if still configured, recreate it).
func (b *Backend) Drain() { b.status.Store(int32(Draining)) }

// Selectable reports whether this backend may be returned by a strategy:
// alive and not draining.
func (b *Backend) Selectable() bool {
	return b.IsAlive() && b.Status() == Active
}

// IncActiveConnections records a new in-flight connection and returns the
// updated count.
func (b *Backend) IncActiveConnections() int64 { return b.activeConnections.Add(1) }

// DecActiveConnections records a connection closing and returns the updated
// count. Never lets the counter go negative (a defensive floor; it should
// never happen if Inc/Dec are paired correctly).
func (b *Backend) DecActiveConnections() int64 {
	v := b.activeConnections.Add(-1)
	if v < 0 {
		b.activeConnections.CompareAndSwap(v, 0)
		return 0
	}
	return v
}

func (b *Backend) ActiveConnections() int64 { return b.activeConnections.Load() }

func (b *Backend) IncTotalRequests()    { b.totalRequests.Add(1) }
func (b *Backend) TotalRequests() uint64 { return b.totalRequests.Load() }

func (b *Backend) IncTotalErrors()    { b.totalErrors.Add(1) }
func (b *Backend) TotalErrors() uint64 { return b.totalErrors.Load() }

// AddLatency adds to the cumulative latency counter, in milliseconds.
func (b *Backend) AddLatency(ms int64) {
	if ms < 0 {
		return
	}
	b.totalLatencyMs.Add(uint64(ms))
}

func (b *Backend) TotalLatencyMs() uint64 { return b.totalLatencyMs.Load() }

// AvgLatencyMs returns total_latency_ms / max(total_requests, 1), the
// formula strategies use for latency comparisons.
func (b *Backend) AvgLatencyMs() float64 {
	n := b.totalRequests.Load()
	if n == 0 {
		return 0
	}
	return float64(b.totalLatencyMs.Load()) / float64(n)
}

// ErrorRate returns total_errors / max(total_requests, 1).
func (b *Backend) ErrorRate() float64 {
	n := b.totalRequests.Load()
	if n == 0 {
		return 0
	}
	return float64(b.totalErrors.Load()) / float64(n)
}

func (b *Backend) StampHealthCheck(nowMs int64) { b.lastHealthCheckMs.Store(nowMs) }
func (b *Backend) LastHealthCheckMs() int64     { return b.lastHealthCheckMs.Load() }

func (b *Backend) StampMetricsUpdate(nowMs int64) { b.lastMetricsUpdateMs.Store(nowMs) }
func (b *Backend) LastMetricsUpdateMs() int64     { return b.lastMetricsUpdateMs.Load() }
