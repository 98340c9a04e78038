package strategy

import (
	"sync/atomic"

	"tcplb/internal/backend"
	"tcplb/internal/routetable"
)

// RoundRobin picks the selectable list sorted by id ascending and advances
// a monotonic counter modulo its length. Kept from the teacher's
// balancer/roundrobin.go almost verbatim: atomic counter, modulo index.
type RoundRobin struct {
	counter uint64
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (rr *RoundRobin) Pick(rt *routetable.RouteTable) (*backend.Backend, error) {
	sel := rt.Selectable()
	if len(sel) == 0 {
		return nil, ErrNoHealthyBackend
	}
	n := atomic.AddUint64(&rr.counter, 1)
	return sel[(n-1)%uint64(len(sel))], nil
}

func (rr *RoundRobin) Name() string { return "round_robin" }
