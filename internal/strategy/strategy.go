// Package strategy implements the five backend-selection policies of
// spec.md §4.2. Every strategy is stateless with respect to the route
// table (it reads a fresh Selectable() snapshot on every call) and carries
// only its own small rotation/weighting state, matching the teacher's
// balancer.Strategy shape (balancer/roundrobin.go, leastconn.go,
// weightedrr.go) generalized from *backend.Pool to *routetable.RouteTable.
package strategy

import (
	"errors"

	"tcplb/internal/backend"
	"tcplb/internal/config"
	"tcplb/internal/routetable"
)

// ErrNoHealthyBackend is returned when Selectable() is empty.
var ErrNoHealthyBackend = errors.New("strategy: no healthy backend available")

// Strategy picks one backend per call from the route table's current
// selectable set.
type Strategy interface {
	// Pick returns a selectable backend, or ErrNoHealthyBackend if none
	// exists.
	Pick(rt *routetable.RouteTable) (*backend.Backend, error)

	// Name returns the strategy's config tag (config.StrategyRoundRobin
	// and friends).
	Name() string
}

// New builds the Strategy instance for a config strategy tag. Unknown tags
// are rejected at config-validation time (internal/config), so New panics
// on an unrecognized tag rather than silently defaulting — by the time
// corestate calls this, the tag has already been validated.
func New(tag string) Strategy {
	switch tag {
	case config.StrategyRoundRobin:
		return NewRoundRobin()
	case config.StrategyLeastConnections:
		return NewLeastConnections()
	case config.StrategyWeightedRoundRobin:
		return NewWeightedRoundRobin()
	case config.StrategyFastestResponseTime:
		return NewFastestResponseTime()
	case config.StrategyAdaptive:
		return NewAdaptive()
	default:
		panic("strategy: unknown tag " + tag)
	}
}
