package strategy

import (
	"sync"

	"tcplb/internal/backend"
	"tcplb/internal/routetable"
)

// weightedState is the per-backend rotation state, re-keyed from the
// teacher's balancer/weightedrr.go (which keyed by b.URL.String(), an
// HTTP-only identity) to backend id, per spec.md §4.2.
type weightedState struct {
	currentWeight int
}

// WeightedRoundRobin implements Nginx's smooth weighted round robin: every
// call, every selectable backend's current_weight grows by its effective
// weight, the backend with the largest current_weight is picked, and the
// sum of all effective weights is subtracted from the winner. State
// persists across calls keyed by id, so it survives set changes over the
// surviving intersection (spec.md §4.2).
type WeightedRoundRobin struct {
	mu    sync.Mutex
	state map[uint8]*weightedState
}

func NewWeightedRoundRobin() *WeightedRoundRobin {
	return &WeightedRoundRobin{state: make(map[uint8]*weightedState)}
}

func (w *WeightedRoundRobin) Pick(rt *routetable.RouteTable) (*backend.Backend, error) {
	sel := rt.Selectable()
	if len(sel) == 0 {
		return nil, ErrNoHealthyBackend
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	live := make(map[uint8]bool, len(sel))
	for _, b := range sel {
		live[b.ID()] = true
		if _, ok := w.state[b.ID()]; !ok {
			w.state[b.ID()] = &weightedState{}
		}
	}
	for id := range w.state {
		if !live[id] {
			delete(w.state, id)
		}
	}

	total := 0
	var winner *backend.Backend
	var winnerState *weightedState
	for _, b := range sel {
		st := w.state[b.ID()]
		st.currentWeight += b.Weight()
		total += b.Weight()
		if winnerState == nil || st.currentWeight > winnerState.currentWeight {
			winner = b
			winnerState = st
		}
	}

	winnerState.currentWeight -= total
	return winner, nil
}

func (w *WeightedRoundRobin) Name() string { return "weighted_round_robin" }
