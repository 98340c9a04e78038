// Command tcplb is the process entrypoint: load config, wire the
// orchestrator, expose the ambient Prometheus endpoint, and wait for a
// shutdown signal. Grounded on cmd/gobalance/main.go's wiring order; the
// construction itself lives in internal/orchestrator so this stays thin.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tcplb/internal/config"
	"tcplb/internal/logging"
	"tcplb/internal/orchestrator"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	metricsAddr := flag.String("metrics-addr", ":9090", "address for the Prometheus /metrics endpoint; empty disables it")
	dev := flag.Bool("dev", false, "use a human-readable development logger instead of JSON")
	flag.Parse()

	logger := logging.NewLogger("tcplb")
	if *dev {
		logger = logging.NewDevelopment("tcplb")
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "err", err)
		log.Fatal(err)
	}

	o, err := orchestrator.New(cfg, *configPath, logger)
	if err != nil {
		logger.Error("failed to build orchestrator", "err", err)
		log.Fatal(err)
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown signal received", "signal", sig.String())
		if err := o.Shutdown(); err != nil {
			logger.Error("shutdown error", "err", err)
		}
	}()

	logger.Info("starting tcplb", "listen_address", cfg.Proxy.ListenAddress, "strategy", cfg.Strategy)
	if err := o.Run(); err != nil {
		logger.Error("orchestrator run error", "err", err)
		log.Fatal(err)
	}
	logger.Info("shutdown complete")
}

// serveMetrics exposes the ambient /metrics endpoint (SPEC_FULL.md §6); it
// is purely an observability surface over the default Prometheus registry
// promauto registers against, not part of the proxy's data plane.
func serveMetrics(addr string, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics endpoint stopped", "err", err)
	}
}
