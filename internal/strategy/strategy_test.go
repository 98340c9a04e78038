package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcplb/internal/backend"
	"tcplb/internal/routetable"
)

func rtWith(metas ...backend.Meta) (*routetable.RouteTable, map[uint8]*backend.Backend) {
	rt := routetable.New()
	byID := make(map[uint8]*backend.Backend, len(metas))
	for _, m := range metas {
		b := backend.New(m)
		rt.Insert(b)
		byID[m.ID] = b
	}
	return rt, byID
}

// Scenario 1 from spec.md §8: RoundRobin fairness over backends 1,2,3.
func TestRoundRobinFairnessScenario(t *testing.T) {
	rt, _ := rtWith(
		backend.Meta{ID: 1, Address: "a:1"},
		backend.Meta{ID: 2, Address: "b:1"},
		backend.Meta{ID: 3, Address: "c:1"},
	)
	rr := NewRoundRobin()

	var got []uint8
	for i := 0; i < 9; i++ {
		b, err := rr.Pick(rt)
		require.NoError(t, err)
		got = append(got, b.ID())
	}

	assert.Equal(t, []uint8{1, 2, 3, 1, 2, 3, 1, 2, 3}, got)
}

func TestRoundRobinSkipsNonSelectable(t *testing.T) {
	rt, byID := rtWith(
		backend.Meta{ID: 1, Address: "a:1"},
		backend.Meta{ID: 2, Address: "b:1"},
	)
	byID[2].SetAlive(false)

	rr := NewRoundRobin()
	for i := 0; i < 5; i++ {
		b, err := rr.Pick(rt)
		require.NoError(t, err)
		assert.Equal(t, uint8(1), b.ID())
	}
}

func TestRoundRobinEmptyReturnsNoHealthyBackend(t *testing.T) {
	rt := routetable.New()
	_, err := NewRoundRobin().Pick(rt)
	assert.ErrorIs(t, err, ErrNoHealthyBackend)
}

// Scenario 2 from spec.md §8: weights 5,1,1 over 7 picks -> 1,1,2,1,3,1,1.
func TestWeightedRoundRobinSmoothingScenario(t *testing.T) {
	rt, _ := rtWith(
		backend.Meta{ID: 1, Address: "a:1", Weight: 5},
		backend.Meta{ID: 2, Address: "b:1", Weight: 1},
		backend.Meta{ID: 3, Address: "c:1", Weight: 1},
	)
	wrr := NewWeightedRoundRobin()

	var got []uint8
	for i := 0; i < 7; i++ {
		b, err := wrr.Pick(rt)
		require.NoError(t, err)
		got = append(got, b.ID())
	}

	assert.Equal(t, []uint8{1, 1, 2, 1, 3, 1, 1}, got)
}

func TestWeightedRoundRobinFullWindowCounts(t *testing.T) {
	rt, _ := rtWith(
		backend.Meta{ID: 1, Address: "a:1", Weight: 5},
		backend.Meta{ID: 2, Address: "b:1", Weight: 1},
		backend.Meta{ID: 3, Address: "c:1", Weight: 1},
	)
	wrr := NewWeightedRoundRobin()

	counts := map[uint8]int{}
	for i := 0; i < 7; i++ {
		b, err := wrr.Pick(rt)
		require.NoError(t, err)
		counts[b.ID()]++
	}

	assert.Equal(t, 5, counts[1])
	assert.Equal(t, 1, counts[2])
	assert.Equal(t, 1, counts[3])
}

// Scenario 3 from spec.md §8: two backends at active=2, one at active=3;
// next pick returns the tied backend with the lower id.
func TestLeastConnectionsTieBreak(t *testing.T) {
	rt, byID := rtWith(
		backend.Meta{ID: 1, Address: "a:1"},
		backend.Meta{ID: 2, Address: "b:1"},
		backend.Meta{ID: 3, Address: "c:1"},
	)
	byID[1].IncActiveConnections()
	byID[1].IncActiveConnections()
	byID[2].IncActiveConnections()
	byID[2].IncActiveConnections()
	byID[3].IncActiveConnections()
	byID[3].IncActiveConnections()
	byID[3].IncActiveConnections()

	lc := NewLeastConnections()
	picked, err := lc.Pick(rt)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), picked.ID())
}

func TestFastestResponseTimeFavoursBootstrapping(t *testing.T) {
	rt, byID := rtWith(
		backend.Meta{ID: 1, Address: "a:1"},
		backend.Meta{ID: 2, Address: "b:1"},
	)
	// Backend 2 has a long history of fast responses; backend 1 is brand new.
	for i := 0; i < 20; i++ {
		byID[2].IncTotalRequests()
		byID[2].AddLatency(5)
	}

	f := NewFastestResponseTime()
	picked, err := f.Pick(rt)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), picked.ID(), "a zero-request backend should be favoured during warmup")
}

func TestFastestResponseTimeComparesAfterWarmup(t *testing.T) {
	rt, byID := rtWith(
		backend.Meta{ID: 1, Address: "a:1"},
		backend.Meta{ID: 2, Address: "b:1"},
	)
	for i := 0; i < warmupRequests; i++ {
		byID[1].IncTotalRequests()
		byID[1].AddLatency(100)
		byID[2].IncTotalRequests()
		byID[2].AddLatency(10)
	}

	f := NewFastestResponseTime()
	picked, err := f.Pick(rt)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), picked.ID())
}

func TestAdaptivePrefersLowerLoadAndHigherWeight(t *testing.T) {
	rt, byID := rtWith(
		backend.Meta{ID: 1, Address: "a:1", Weight: 1},
		backend.Meta{ID: 2, Address: "b:1", Weight: 10},
	)
	// Same latency/error profile; backend 2 has both fewer connections and
	// a higher configured weight, so it must win on every axis.
	byID[1].IncActiveConnections()
	byID[1].IncActiveConnections()

	picked, err := NewAdaptive().Pick(rt)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), picked.ID())
}

func TestAdaptiveSingleSelectableShortCircuits(t *testing.T) {
	rt, _ := rtWith(backend.Meta{ID: 7, Address: "a:1"})
	picked, err := NewAdaptive().Pick(rt)
	require.NoError(t, err)
	assert.Equal(t, uint8(7), picked.ID())
}

func TestNewDispatchesOnConfigTag(t *testing.T) {
	assert.Equal(t, "round_robin", New("round_robin").Name())
	assert.Equal(t, "least_connections", New("least_connections").Name())
	assert.Equal(t, "weighted_round_robin", New("weighted_round_robin").Name())
	assert.Equal(t, "fastest_response_time", New("fastest_response_time").Name())
	assert.Equal(t, "adaptive", New("adaptive").Name())
}
