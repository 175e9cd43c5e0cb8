package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatal(err)
	}

	val, found, err := c.Get(ctx, "k")
	if err != nil || !found || val != "v" {
		t.Fatalf("Get() = %q, %v, %v", val, found, err)
	}

	now = now.Add(time.Minute)
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Error("Expected entry to expire at its TTL")
	}
}

func TestMemoryCache_NullIsAValue(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	if _, found, _ := c.Get(ctx, "team:subdomain:ghost"); found {
		t.Fatal("Expected absent key")
	}

	c.Set(ctx, "team:subdomain:ghost", "null", time.Minute)
	val, found, _ := c.Get(ctx, "team:subdomain:ghost")
	if !found || val != "null" {
		t.Errorf("Expected stored null sentinel, got %q found=%v", val, found)
	}

	c.Delete(ctx, "team:subdomain:ghost")
	if _, found, _ := c.Get(ctx, "team:subdomain:ghost"); found {
		t.Error("Expected key to be deleted")
	}
}

func TestMemoryCache_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	c.Set(ctx, "short", "1", time.Second)
	c.Set(ctx, "long", "2", time.Hour)

	now = now.Add(time.Minute)
	if removed := c.Sweep(); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if _, found, _ := c.Get(ctx, "long"); !found {
		t.Error("Expected long-lived entry to survive the sweep")
	}
}
