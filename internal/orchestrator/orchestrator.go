// Package orchestrator runs the lifecycle spec.md §4.7 names: build Context,
// spawn the background activities, start the Proxy listener, and tear
// everything down in strict order on shutdown. Generalized from
// cmd/gobalance/main.go, which does the same construction and
// sigChan/context.WithTimeout shutdown inline in main; here it is its own
// package so cmd/tcplb/main.go stays a thin wiring shim.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tcplb/internal/config"
	"tcplb/internal/corestate"
	"tcplb/internal/health"
	"tcplb/internal/logging"
	"tcplb/internal/metrics"
	"tcplb/internal/proxy"
)

// Orchestrator wires Context, Proxy, HealthChecker, MetricsAggregator and
// the config watcher together and runs the startup/shutdown sequences.
type Orchestrator struct {
	ctx       *corestate.Context
	log       *logging.Logger
	collector *metrics.Collector

	proxy      *proxy.Proxy
	checker    *health.Checker
	aggregator *metrics.Aggregator
	watcher    *config.Watcher

	backgroundCancel context.CancelFunc
	backgroundWg     sync.WaitGroup

	drainTimeout      time.Duration
	backgroundTimeout time.Duration
}

// New builds every component from cfg but starts nothing.
func New(cfg *config.Config, configPath string, log *logging.Logger) (*Orchestrator, error) {
	ctx := corestate.New(cfg, log)
	collector := metrics.NewCollector()

	p := proxy.New(ctx, log)
	p.SetCollector(collector)

	checker := health.New(ctx, cfg.Health.IntervalMs, cfg.Health.TimeoutMs, log)
	checker.SetCollector(collector)

	aggregator := metrics.NewAggregator(ctx, cfg.Metrics.IntervalMs, collector)

	o := &Orchestrator{
		ctx:               ctx,
		log:               log,
		collector:         collector,
		proxy:             p,
		checker:           checker,
		aggregator:        aggregator,
		drainTimeout:      time.Duration(cfg.Runtime.DrainTimeoutMillis) * time.Millisecond,
		backgroundTimeout: time.Duration(cfg.Runtime.BackgroundTimeoutMillis) * time.Millisecond,
	}

	if configPath != "" {
		w, err := config.NewWatcher(configPath, o.applyConfig, o.onConfigError)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
		o.watcher = w
	}

	return o, nil
}

// Context exposes the shared state handle.
func (o *Orchestrator) Context() *corestate.Context { return o.ctx }

// Collector exposes the Prometheus surface for an ambient /metrics endpoint.
func (o *Orchestrator) Collector() *metrics.Collector { return o.collector }

func (o *Orchestrator) applyConfig(n *config.Config) error {
	if err := o.ctx.Migrate(n); err != nil {
		return err
	}
	if o.log != nil {
		o.log.Info("config reload applied")
	}
	return nil
}

func (o *Orchestrator) onConfigError(err error) {
	if o.log != nil {
		o.log.Error("config reload failed", "err", err)
	}
}

// Run executes the startup sequence and blocks on the Proxy listener (the
// main activity, spec.md §4.7 step 3) until the Context shuts down (Shutdown
// triggered elsewhere). It then runs the shutdown sequence and returns its
// aggregate error.
func (o *Orchestrator) Run() error {
	if err := o.proxy.Listen(); err != nil {
		return fmt.Errorf("orchestrator: listen: %w", err)
	}

	backgroundCtx, cancel := context.WithCancel(context.Background())
	o.backgroundCancel = cancel

	o.spawnBackground("health", o.checker.Run, backgroundCtx)
	o.spawnBackground("metrics", o.aggregator.Run, backgroundCtx)
	if o.watcher != nil {
		o.spawnBackground("config-watch", o.watcher.Start, backgroundCtx)
	}

	o.proxy.Serve()
	return o.Shutdown()
}

func (o *Orchestrator) spawnBackground(name string, run func(context.Context), parent context.Context) {
	o.backgroundWg.Add(1)
	go func() {
		defer o.backgroundWg.Done()
		run(parent)
		if o.log != nil {
			o.log.Info("background activity stopped", "activity", name)
		}
	}()
}

// Shutdown runs the strict-order sequence of spec.md §4.7: broadcast,
// stop the listener, wait for drain, cancel background activities, return
// the aggregate error. Safe to call from a signal handler goroutine while
// Run blocks in Serve — the shutdown broadcast is what ends Run's Serve
// loop, and closing the listener makes a pending Accept return at once.
func (o *Orchestrator) Shutdown() error {
	o.ctx.Shutdown()
	o.proxy.Stop()

	if result := o.ctx.WaitForAllIdle(o.drainTimeout); result == corestate.TimedOut {
		o.forceCloseEverything()
	}

	if o.backgroundCancel != nil {
		o.backgroundCancel()
	}

	done := make(chan struct{})
	go func() {
		o.backgroundWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(o.backgroundTimeout):
		return fmt.Errorf("orchestrator: background activities did not stop within %s", o.backgroundTimeout)
	}
}

func (o *Orchestrator) forceCloseEverything() {
	for _, b := range o.ctx.RouteTable().All() {
		o.ctx.ForceClose(b.ID())
	}
}
