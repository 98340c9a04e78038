package metrics

import (
	"context"
	"time"

	"tcplb/internal/backend"
	"tcplb/internal/corestate"
)

// Snapshot is one backend's point-in-time counters, the shape
// spec.md §4.4's `snapshot()` contract names.
type Snapshot struct {
	ID                uint8
	TotalRequests     uint64
	TotalErrors       uint64
	AvgLatencyMs      float64
	ActiveConnections int64
}

// Aggregator is the MetricsAggregator of spec.md §4.4: a periodic timer
// that stamps last_metrics_update_ms and refreshes the Prometheus gauge
// surface. It never mutates per-request counters — those are the Proxy's
// job — so Aggregator is read-only with respect to Backend's hot-path
// fields, matching the teacher's exporter.go.
type Aggregator struct {
	ctx       *corestate.Context
	interval  time.Duration
	collector *Collector
}

// NewAggregator builds an Aggregator from metrics.interval_ms. collector may
// be nil to disable the Prometheus refresh while still keeping the
// stamping/Snapshot behavior.
func NewAggregator(ctx *corestate.Context, intervalMs int, collector *Collector) *Aggregator {
	return &Aggregator{ctx: ctx, interval: time.Duration(intervalMs) * time.Millisecond, collector: collector}
}

// Run ticks until parent or the Context shuts down.
func (a *Aggregator) Run(parent context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-parent.Done():
			return
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.tick()
		}
	}
}

func (a *Aggregator) tick() {
	now := time.Now().UnixMilli()
	for _, b := range a.ctx.RouteTable().All() {
		b.StampMetricsUpdate(now)
		a.collector.refresh(b.ID(), b.ActiveConnections(), b.IsAlive())
	}
}

// Snapshot returns every backend's current counters, ascending by id
// (spec.md §4.4).
func (a *Aggregator) Snapshot() []Snapshot {
	all := a.ctx.RouteTable().All()
	out := make([]Snapshot, len(all))
	for i, b := range all {
		out[i] = toSnapshot(b)
	}
	return out
}

func toSnapshot(b *backend.Backend) Snapshot {
	return Snapshot{
		ID:                b.ID(),
		TotalRequests:     b.TotalRequests(),
		TotalErrors:       b.TotalErrors(),
		AvgLatencyMs:      b.AvgLatencyMs(),
		ActiveConnections: b.ActiveConnections(),
	}
}
