package corestate

import (
	"time"

	"tcplb/internal/backend"
	"tcplb/internal/config"
	"tcplb/internal/events"
	"tcplb/internal/strategy"
)

// Migrate applies a new validated Config as an atomic unit (spec.md §4.8).
// Only one migration runs at a time; a config watcher firing again mid-drain
// simply waits on migrateMu — migrations never interleave.
//
// Order of operations:
//  1. Diff the new backend set against the route table by id. An id present
//     in both but with a changed address is treated as removed-then-added
//     (never re-route live sockets onto a different endpoint under the same
//     id): it drains under its old identity and is re-created fresh.
//  2. Drain every removed/address-changed id, waiting up to
//     runtime.drain_timeout_millis; force-close what's left, then remove
//     from the table.
//  3. Insert every added and address-changed id as a new Backend.
//  4. Update name/weight in place for ids that kept their address.
//  5. Swap the strategy if the tag changed.
//  6. If the listen address changed, publish ListenAddressChanged (carrying
//     the new address directly, so the proxy can rebind before the snapshot
//     swap below is even visible).
//  7. Store the new snapshot and publish Migrated.
func (c *Context) Migrate(n *config.Config) error {
	if err := n.Validate(); err != nil {
		return err
	}

	c.migrateMu.Lock()
	defer c.migrateMu.Unlock()

	old := c.cfg.Load()

	currentIDs := make(map[uint8]bool)
	for _, id := range c.rt.Ids() {
		currentIDs[id] = true
	}
	newByID := make(map[uint8]config.BackendConfig, len(n.Backends))
	for _, bc := range n.Backends {
		newByID[bc.ID] = bc
	}

	var added, removed, keptSame, keptChanged []uint8
	for id := range newByID {
		if !currentIDs[id] {
			added = append(added, id)
		}
	}
	for id := range currentIDs {
		if _, ok := newByID[id]; !ok {
			removed = append(removed, id)
		}
	}
	for id, bc := range newByID {
		if !currentIDs[id] {
			continue
		}
		existing, ok := c.rt.Get(id)
		if !ok {
			continue
		}
		if existing.Address() != bc.Address {
			keptChanged = append(keptChanged, id)
		} else {
			keptSame = append(keptSame, id)
		}
	}

	drainTimeout := time.Duration(n.Runtime.DrainTimeoutMillis) * time.Millisecond

	toDrain := append(append([]uint8{}, removed...), keptChanged...)
	if len(toDrain) > 0 {
		var drainList []*backend.Backend
		for _, id := range toDrain {
			b, ok := c.rt.Get(id)
			if !ok {
				continue
			}
			b.Drain()
			drainList = append(drainList, b)
		}

		if c.waitForBackends(drainList, drainTimeout) == TimedOut {
			for _, b := range drainList {
				if b.ActiveConnections() > 0 {
					c.forceCloseBackend(b.ID())
				}
			}
		}
		for _, id := range toDrain {
			c.rt.Remove(id)
		}
	}

	for _, id := range append(append([]uint8{}, added...), keptChanged...) {
		c.rt.Insert(backend.New(toMeta(newByID[id])))
	}

	for _, id := range keptSame {
		b, ok := c.rt.Get(id)
		if !ok {
			continue
		}
		bc := newByID[id]
		b.UpdateMutableMeta(bc.Name, bc.Weight)
	}

	if old == nil || old.Strategy != n.Strategy {
		c.SetStrategy(strategy.New(n.Strategy))
	}

	if old != nil && old.Proxy.ListenAddress != n.Proxy.ListenAddress {
		c.configBus.Publish(events.ConfigEvent{Kind: events.ListenAddressChanged, NewAddress: n.Proxy.ListenAddress})
	}

	c.cfg.Store(n)
	c.configBus.Publish(events.ConfigEvent{Kind: events.Migrated})

	if c.log != nil {
		c.log.Info("config migrated",
			"added", len(added), "removed", len(removed), "changed_address", len(keptChanged),
			"strategy", n.Strategy)
	}

	return nil
}
