package cache

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/doorlist/checkin-engine/internal/model"
)

func TestSnapshotCacheBasicOperations(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	eventID := uuid.New()
	snap := model.CapacitySnapshot{TotalCapacity: 50, CheckedInCount: 10, AvailableSpots: 40}

	c.Set(eventID, snap)
	got, ok := c.Get(eventID)
	if !ok {
		t.Fatal("expected snapshot to be cached")
	}
	if got.AvailableSpots != 40 {
		t.Errorf("AvailableSpots = %d, want 40", got.AvailableSpots)
	}

	if _, ok := c.Get(uuid.New()); ok {
		t.Error("expected miss for unknown event")
	}
}

func TestSnapshotCacheExpiration(t *testing.T) {
	c := New(50 * time.Millisecond)
	defer c.Close()

	eventID := uuid.New()
	c.Set(eventID, model.CapacitySnapshot{TotalCapacity: 5})

	if _, ok := c.Get(eventID); !ok {
		t.Fatal("expected snapshot immediately after set")
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok := c.Get(eventID); ok {
		t.Error("expected snapshot to have expired")
	}
}

func TestSnapshotCacheInvalidate(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	eventID := uuid.New()
	c.Set(eventID, model.CapacitySnapshot{TotalCapacity: 5})
	c.Invalidate(eventID)

	if _, ok := c.Get(eventID); ok {
		t.Error("expected snapshot to be gone after Invalidate")
	}

	// Invalidating an absent key must be a no-op, not a panic.
	c.Invalidate(uuid.New())
}

func TestSnapshotCacheStats(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	eventID := uuid.New()
	c.Set(eventID, model.CapacitySnapshot{})

	c.Get(eventID)    // hit
	c.Get(uuid.New()) // miss
	c.Invalidate(eventID)

	stats := c.GetStats()
	if stats.Hits != 1 {
		t.Errorf("Hits = %d, want 1", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
	if stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}
	if rate := c.HitRate(); rate != 50 {
		t.Errorf("HitRate = %v, want 50", rate)
	}
}

func TestSnapshotCacheSetOverwrites(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	eventID := uuid.New()
	c.Set(eventID, model.CapacitySnapshot{CheckedInCount: 1})
	c.Set(eventID, model.CapacitySnapshot{CheckedInCount: 2})

	got, ok := c.Get(eventID)
	if !ok || got.CheckedInCount != 2 {
		t.Errorf("got %+v, want CheckedInCount 2", got)
	}
}
