package strategy

import (
	"tcplb/internal/backend"
	"tcplb/internal/routetable"
)

// LeastConnections picks the selectable backend with the fewest active
// connections, tie-breaking by lower id. Kept from the teacher's
// balancer/leastconn.go linear-scan shape; the tie-break falls out for free
// because Selectable() is already ascending by id and a strict "<"
// comparison keeps the first (lowest-id) minimum found.
type LeastConnections struct{}

func NewLeastConnections() *LeastConnections { return &LeastConnections{} }

func (lc *LeastConnections) Pick(rt *routetable.RouteTable) (*backend.Backend, error) {
	sel := rt.Selectable()
	if len(sel) == 0 {
		return nil, ErrNoHealthyBackend
	}

	best := sel[0]
	for _, b := range sel[1:] {
		if b.ActiveConnections() < best.ActiveConnections() {
			best = b
		}
	}
	return best, nil
}

func (lc *LeastConnections) Name() string { return "least_connections" }
