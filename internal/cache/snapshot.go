// Package cache implements the admission cache: short-TTL capacity
// snapshots keyed by event id. The cache is an optimization for dashboard
// reads only; admission decisions always recompute from the store. It is
// volatile and safe to lose at any point.
package cache

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doorlist/checkin-engine/internal/model"
)

// DefaultTTL matches the 2-minute capacity cache of the check-in service.
const DefaultTTL = 2 * time.Minute

const cleanupInterval = 5 * time.Minute

type entry struct {
	snapshot  model.CapacitySnapshot
	expiresAt time.Time
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Keys      int
}

// SnapshotCache is a thread-safe TTL cache of per-event capacity
// snapshots. Invalidate must be called exactly once per committing
// mutation, before the mutation is reported complete to the caller.
type SnapshotCache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]entry
	ttl     time.Duration

	statsMu sync.Mutex
	stats   Stats

	stop chan struct{}
}

// New creates a snapshot cache. A non-positive ttl falls back to
// DefaultTTL. A background goroutine sweeps expired entries until Close.
func New(ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &SnapshotCache{
		entries: make(map[uuid.UUID]entry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get returns the cached snapshot for an event, if present and fresh.
// The snapshot is returned by value so callers cannot mutate the cache.
func (c *SnapshotCache) Get(eventID uuid.UUID) (model.CapacitySnapshot, bool) {
	c.mu.RLock()
	e, ok := c.entries[eventID]
	c.mu.RUnlock()

	if !ok {
		c.recordMiss()
		return model.CapacitySnapshot{}, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock: a Set may have raced the expiry.
		if cur, ok := c.entries[eventID]; ok && time.Now().After(cur.expiresAt) {
			delete(c.entries, eventID)
			c.recordEviction()
		}
		c.mu.Unlock()
		c.recordMiss()
		return model.CapacitySnapshot{}, false
	}
	c.recordHit()
	return e.snapshot, true
}

// Set stores a snapshot for an event with the default TTL.
func (c *SnapshotCache) Set(eventID uuid.UUID, snap model.CapacitySnapshot) {
	c.mu.Lock()
	c.entries[eventID] = entry{snapshot: snap, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate evicts an event's snapshot. Readers after this point must
// recompute from the store.
func (c *SnapshotCache) Invalidate(eventID uuid.UUID) {
	c.mu.Lock()
	if _, ok := c.entries[eventID]; ok {
		delete(c.entries, eventID)
		c.mu.Unlock()
		c.recordEviction()
		return
	}
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *SnapshotCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[uuid.UUID]entry)
	c.mu.Unlock()
}

// GetStats returns a copy of the current counters.
func (c *SnapshotCache) GetStats() Stats {
	c.statsMu.Lock()
	s := c.stats
	c.statsMu.Unlock()

	c.mu.RLock()
	s.Keys = len(c.entries)
	c.mu.RUnlock()
	return s
}

// HitRate returns the hit percentage across the cache's lifetime.
func (c *SnapshotCache) HitRate() float64 {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	total := c.stats.Hits + c.stats.Misses
	if total == 0 {
		return 0
	}
	return float64(c.stats.Hits) / float64(total) * 100
}

// Close stops the background cleanup goroutine.
func (c *SnapshotCache) Close() {
	close(c.stop)
}

func (c *SnapshotCache) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *SnapshotCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	var evicted int64
	for id, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, id)
			evicted++
		}
	}
	c.mu.Unlock()
	if evicted > 0 {
		c.statsMu.Lock()
		c.stats.Evictions += evicted
		c.statsMu.Unlock()
	}
}

func (c *SnapshotCache) recordHit() {
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
}

func (c *SnapshotCache) recordMiss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
}

func (c *SnapshotCache) recordEviction() {
	c.statsMu.Lock()
	c.stats.Evictions++
	c.statsMu.Unlock()
}
