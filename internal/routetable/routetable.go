// Package routetable holds the concurrent id→Backend map that strategies
// read and the migration protocol writes, generalized from the teacher's
// backend.Pool (a plain slice keyed by insertion order) to an id-keyed map
// per spec.md §3.
package routetable

import (
	"sort"
	"sync"

	"tcplb/internal/backend"
)

// MaxBackends is the id space's ceiling (ids are uint8).
const MaxBackends = 256

// RouteTable maps backend id to *backend.Backend. Every method takes mu:
// reads hold the read lock for the whole lookup or walk, and Insert/Remove
// take the write lock and change the map in place. Lookups are therefore
// not lock-free; they wait while a mutation holds the lock.
type RouteTable struct {
	mu    sync.RWMutex
	byID  map[uint8]*backend.Backend
}

// New creates an empty RouteTable.
func New() *RouteTable {
	return &RouteTable{byID: make(map[uint8]*backend.Backend)}
}

// Insert adds or replaces the backend at its id.
func (rt *RouteTable) Insert(b *backend.Backend) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.byID[b.ID()] = b
}

// Remove deletes the backend with the given id, if present.
func (rt *RouteTable) Remove(id uint8) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.byID, id)
}

// Get returns the backend for id, and whether it was found.
func (rt *RouteTable) Get(id uint8) (*backend.Backend, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	b, ok := rt.byID[id]
	return b, ok
}

// Len returns the number of backends currently routed.
func (rt *RouteTable) Len() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.byID)
}

// Ids returns every routed id, ascending, regardless of selectability.
func (rt *RouteTable) Ids() []uint8 {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	ids := make([]uint8, 0, len(rt.byID))
	for id := range rt.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// All returns every routed backend, ordered by ascending id, as a
// point-in-time-consistent snapshot slice (a fresh copy on every call).
func (rt *RouteTable) All() []*backend.Backend {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.snapshotLocked(func(*backend.Backend) bool { return true })
}

// Selectable returns the alive-and-Active backends, ordered by ascending
// id. Every strategy call observes one such snapshot per spec.md §4.2 — the
// slice is never mutated after this call returns, so the caller's
// comparisons (tie-breaks, weighting) are internally consistent even if a
// concurrent migration starts removing backends a moment later.
func (rt *RouteTable) Selectable() []*backend.Backend {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.snapshotLocked((*backend.Backend).Selectable)
}

func (rt *RouteTable) snapshotLocked(keep func(*backend.Backend) bool) []*backend.Backend {
	ids := make([]uint8, 0, len(rt.byID))
	for id, b := range rt.byID {
		if keep(b) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*backend.Backend, len(ids))
	for i, id := range ids {
		out[i] = rt.byID[id]
	}
	return out
}
