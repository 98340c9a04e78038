// Package config defines the validated Config snapshot (spec.md §6) and
// the loader/watcher that deliver it to corestate.Context.Migrate, playing
// the external-collaborator role spec.md §4.6 describes.
package config

import (
	"fmt"
	"net"
)

// Config is one complete, validated configuration snapshot. Snapshots are
// replaced atomically by corestate.Context; nothing in this package mutates
// a Config after Load returns it.
type Config struct {
	Runtime  RuntimeConfig   `yaml:"runtime"`
	Proxy    ProxyConfig     `yaml:"proxy"`
	Strategy string          `yaml:"strategy"`
	Backends []BackendConfig `yaml:"backends"`
	Health   HealthConfig    `yaml:"health"`
	Metrics  MetricsConfig   `yaml:"metrics"`
}

// RuntimeConfig holds bus-sizing hints and the four lifecycle timeouts, all
// in milliseconds (spec.md §6).
type RuntimeConfig struct {
	MetricsCap              int `yaml:"metrics_cap"`
	HealthCap               int `yaml:"health_cap"`
	DrainTimeoutMillis      int `yaml:"drain_timeout_millis"`
	BackgroundTimeoutMillis int `yaml:"background_timeout_millis"`
	AcceptTimeoutMillis     int `yaml:"accept_timeout_millis"`
	ConfigWatchIntervalMs   int `yaml:"config_watch_interval_millis"`
}

// ProxyConfig holds the listen address and optional connection cap.
type ProxyConfig struct {
	ListenAddress  string `yaml:"listen_address"`
	MaxConnections int    `yaml:"max_connections"` // 0 means unset/unlimited
}

// BackendConfig is one configured target, as delivered by the external
// collaborator (spec.md §6). Weight 0 means "absent" (default 1).
type BackendConfig struct {
	ID      uint8  `yaml:"id"`
	Name    string `yaml:"name,omitempty"`
	Address string `yaml:"address"`
	Weight  uint8  `yaml:"weight,omitempty"`
}

// HealthConfig holds the active-probe cadence and per-probe timeout.
type HealthConfig struct {
	IntervalMs int `yaml:"interval_ms"`
	TimeoutMs  int `yaml:"timeout_ms"`
}

// MetricsConfig holds the aggregator's tick cadence and a soft timeout hint
// for any future external export.
type MetricsConfig struct {
	IntervalMs int `yaml:"interval_ms"`
	TimeoutMs  int `yaml:"timeout_ms"`
}

// Strategy tag constants (spec.md §6).
const (
	StrategyRoundRobin          = "round_robin"
	StrategyLeastConnections    = "least_connections"
	StrategyWeightedRoundRobin  = "weighted_round_robin"
	StrategyFastestResponseTime = "fastest_response_time"
	StrategyAdaptive            = "adaptive"
)

// ConfigError wraps a validation failure (spec.md §7's ConfigError kind).
// Migration is never attempted for a Config that fails Validate.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "config: " + e.Reason }

// Validate checks the §6 schema: unique ids, parseable addresses, positive
// intervals, a known strategy tag. It does not mutate cfg.
func (cfg *Config) Validate() error {
	if cfg.Proxy.ListenAddress == "" {
		return &ConfigError{Reason: "proxy.listen_address is required"}
	}
	if _, _, err := net.SplitHostPort(cfg.Proxy.ListenAddress); err != nil {
		return &ConfigError{Reason: fmt.Sprintf("proxy.listen_address %q is not host:port: %v", cfg.Proxy.ListenAddress, err)}
	}
	if cfg.Proxy.MaxConnections < 0 {
		return &ConfigError{Reason: "proxy.max_connections must not be negative"}
	}

	switch cfg.Strategy {
	case StrategyRoundRobin, StrategyLeastConnections, StrategyWeightedRoundRobin,
		StrategyFastestResponseTime, StrategyAdaptive:
	default:
		return &ConfigError{Reason: fmt.Sprintf("unknown strategy %q", cfg.Strategy)}
	}

	if len(cfg.Backends) == 0 {
		return &ConfigError{Reason: "at least one backend is required"}
	}
	seen := make(map[uint8]bool, len(cfg.Backends))
	for _, b := range cfg.Backends {
		if seen[b.ID] {
			return &ConfigError{Reason: fmt.Sprintf("duplicate backend id %d", b.ID)}
		}
		seen[b.ID] = true
		if _, _, err := net.SplitHostPort(b.Address); err != nil {
			return &ConfigError{Reason: fmt.Sprintf("backend %d address %q is not host:port: %v", b.ID, b.Address, err)}
		}
	}

	if cfg.Health.IntervalMs <= 0 {
		return &ConfigError{Reason: "health.interval_ms must be positive"}
	}
	if cfg.Health.TimeoutMs <= 0 {
		return &ConfigError{Reason: "health.timeout_ms must be positive"}
	}
	if cfg.Metrics.IntervalMs <= 0 {
		return &ConfigError{Reason: "metrics.interval_ms must be positive"}
	}
	if cfg.Runtime.DrainTimeoutMillis <= 0 {
		return &ConfigError{Reason: "runtime.drain_timeout_millis must be positive"}
	}
	if cfg.Runtime.BackgroundTimeoutMillis <= 0 {
		return &ConfigError{Reason: "runtime.background_timeout_millis must be positive"}
	}
	if cfg.Runtime.AcceptTimeoutMillis <= 0 {
		return &ConfigError{Reason: "runtime.accept_timeout_millis must be positive"}
	}
	if cfg.Runtime.ConfigWatchIntervalMs <= 0 {
		return &ConfigError{Reason: "runtime.config_watch_interval_millis must be positive"}
	}

	return nil
}

// ApplyDefaults fills in the same conservative defaults the teacher's
// loader.go used for health-check tuning, generalized to the full schema.
func (cfg *Config) ApplyDefaults() {
	if cfg.Health.IntervalMs == 0 {
		cfg.Health.IntervalMs = 5000
	}
	if cfg.Health.TimeoutMs == 0 {
		cfg.Health.TimeoutMs = 3000
	}
	if cfg.Metrics.IntervalMs == 0 {
		cfg.Metrics.IntervalMs = 5000
	}
	if cfg.Runtime.DrainTimeoutMillis == 0 {
		cfg.Runtime.DrainTimeoutMillis = 30000
	}
	if cfg.Runtime.BackgroundTimeoutMillis == 0 {
		cfg.Runtime.BackgroundTimeoutMillis = 5000
	}
	if cfg.Runtime.AcceptTimeoutMillis == 0 {
		cfg.Runtime.AcceptTimeoutMillis = 1000
	}
	if cfg.Runtime.ConfigWatchIntervalMs == 0 {
		cfg.Runtime.ConfigWatchIntervalMs = 500
	}
	if cfg.Runtime.MetricsCap == 0 {
		cfg.Runtime.MetricsCap = 64
	}
	if cfg.Runtime.HealthCap == 0 {
		cfg.Runtime.HealthCap = 64
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyRoundRobin
	}
}
