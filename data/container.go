// Package data keeps an in-process snapshot of every lot. The snapshot is
// swapped atomically, so readers never block writers and never see a
// partial update.
package data

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giygas/healthpost-api/interfaces"
	"github.com/giygas/healthpost-api/inventory"
	"github.com/giygas/healthpost-api/logging"
)

// Compile-time check to ensure LotCache implements CacheStatus
var _ interfaces.CacheStatus = (*LotCache)(nil)

// LotFilter selects lots. Empty fields match everything; Name matches a
// case-insensitive substring of the item name.
type LotFilter struct {
	StoreID  string
	ItemType inventory.ItemType
	Name     string
}

func (f LotFilter) match(l inventory.Lot) bool {
	if f.StoreID != "" && l.StoreID != f.StoreID {
		return false
	}
	if f.ItemType != "" && l.ItemType != f.ItemType {
		return false
	}
	if f.Name != "" && !strings.Contains(inventory.NormalizeName(l.ItemName), inventory.NormalizeName(f.Name)) {
		return false
	}
	return true
}

// LotCache holds the lots of the inventory tree, kept current by a store
// subscription.
type LotCache struct {
	ds          interfaces.DocumentStore
	lots        atomic.Value // []inventory.Lot
	lastUpdated atomic.Value // time.Time
	updating    atomic.Bool

	// generation counts subscription swaps; a refresh whose read raced
	// one of them is dropped
	swapMu     sync.Mutex
	generation uint64

	mu     sync.Mutex
	cancel func()
}

// NewLotCache creates an empty cache over ds. Call Start to load it.
func NewLotCache(ds interfaces.DocumentStore) *LotCache {
	c := &LotCache{ds: ds}
	c.lots.Store([]inventory.Lot{})
	c.lastUpdated.Store(time.Time{})
	return c
}

// Start loads the snapshot and subscribes to inventory changes. The
// subscription ends with ctx or Stop.
func (c *LotCache) Start(ctx context.Context) error {
	cancel, err := c.ds.Subscribe(ctx, inventory.InventoryRoot, c.onChange)
	if err != nil {
		return fmt.Errorf("subscribe to inventory: %w", err)
	}
	if err := c.Refresh(ctx); err != nil {
		cancel()
		return err
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.mu.Unlock()

	logging.Info("Lot cache started", "lots", c.Count())
	return nil
}

// Stop ends the subscription. The last snapshot stays readable.
func (c *LotCache) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Refresh reloads the snapshot from the store. Concurrent refreshes are
// collapsed into the one already running.
func (c *LotCache) Refresh(ctx context.Context) error {
	if !c.updating.CompareAndSwap(false, true) {
		logging.Debug("Lot cache refresh already in progress")
		return nil
	}
	defer c.updating.Store(false)

	c.swapMu.Lock()
	gen := c.generation
	c.swapMu.Unlock()

	v, ok, err := c.ds.Read(ctx, inventory.InventoryRoot)
	if err != nil {
		return fmt.Errorf("refresh lot cache: %w", err)
	}
	lots := []inventory.Lot{}
	if ok {
		if lots, err = inventory.DecodeInventory(v); err != nil {
			return fmt.Errorf("refresh lot cache: %w", err)
		}
	}

	c.swapMu.Lock()
	defer c.swapMu.Unlock()
	if c.generation != gen {
		logging.Debug("Lot cache refresh superseded by a newer change")
		return nil
	}
	c.swap(lots)
	return nil
}

func (c *LotCache) onChange(ch interfaces.Change) {
	lots := []inventory.Lot{}
	if ch.Exists {
		var err error
		if lots, err = inventory.DecodeInventory(ch.Value); err != nil {
			logging.Warn("Ignoring undecodable inventory change", "error", err)
			return
		}
	}

	c.swapMu.Lock()
	defer c.swapMu.Unlock()
	c.generation++
	c.swap(lots)
}

// swap replaces the snapshot (zero downtime replacement). Callers hold swapMu.
func (c *LotCache) swap(lots []inventory.Lot) {
	c.lots.Store(lots)
	c.lastUpdated.Store(time.Now())
}

// Lots returns the cached lots matching f, ordered by store and id. The
// returned slice is a copy.
func (c *LotCache) Lots(f LotFilter) []inventory.Lot {
	all := c.all()
	out := make([]inventory.Lot, 0, len(all))
	for _, l := range all {
		if f.match(l) {
			out = append(out, l)
		}
	}
	return out
}

func (c *LotCache) all() []inventory.Lot {
	if v := c.lots.Load(); v != nil {
		if lots, ok := v.([]inventory.Lot); ok {
			return lots
		}
	}

	logging.Warn("Lot cache is empty or invalid")
	return []inventory.Lot{}
}

// Count returns the number of cached lots
func (c *LotCache) Count() int {
	return len(c.all())
}

// LastUpdated returns the time of the last snapshot swap
func (c *LotCache) LastUpdated() time.Time {
	if v := c.lastUpdated.Load(); v != nil {
		if lastUpdated, ok := v.(time.Time); ok {
			return lastUpdated
		}
	}

	logging.Warn("Could not get the last updated value")
	return time.Time{}
}

// IsUpdating returns true if a refresh is in progress
func (c *LotCache) IsUpdating() bool {
	return c.updating.Load()
}
