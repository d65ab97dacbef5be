package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-health/harrier/internal/domain"
)

func TestLRUBasicOperations(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "registry", "1234567890", []byte("value1"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	val, err := c.Get(ctx, "registry", "1234567890")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(val) != "value1" {
		t.Errorf("expected value1, got %s", val)
	}

	if err := c.Delete(ctx, "registry", "1234567890"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	val, err = c.Get(ctx, "registry", "1234567890")
	if err != nil {
		t.Fatalf("get after delete failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil after delete, got %s", val)
	}
}

func TestLRUNamespaceIsolation(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "registry", "1234567890", []byte("registry-data"), time.Minute)
	c.Set(ctx, "exclusion", "1234567890", []byte("exclusion-data"), time.Minute)

	val, _ := c.Get(ctx, "registry", "1234567890")
	if string(val) != "registry-data" {
		t.Errorf("namespace collision: got %s", val)
	}

	val, _ = c.Get(ctx, "exclusion", "1234567890")
	if string(val) != "exclusion-data" {
		t.Errorf("namespace collision: got %s", val)
	}
}

func TestLRUMissingNamespace(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()

	if _, err := c.Get(context.Background(), "", "key"); err == nil {
		t.Error("expected error for empty namespace")
	}
	if err := c.Set(context.Background(), "", "key", []byte("v"), time.Minute); err == nil {
		t.Error("expected error for empty namespace")
	}
}

func TestLRUTTLExpiry(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	c.Set(ctx, "utilization", "1234567890", []byte("fresh"), time.Hour)

	val, _ := c.Get(ctx, "utilization", "1234567890")
	if string(val) != "fresh" {
		t.Fatalf("expected fresh value, got %v", val)
	}

	// Advance past the TTL
	now = now.Add(2 * time.Hour)

	val, _ = c.Get(ctx, "utilization", "1234567890")
	if val != nil {
		t.Errorf("expected expired entry to miss, got %s", val)
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache(3)
	defer c.Close()
	ctx := context.Background()

	for _, npi := range []string{"1111111111", "2222222222", "3333333333", "4444444444"} {
		c.Set(ctx, "registry", npi, []byte(npi), time.Minute)
	}

	size, capacity := c.Stats()
	if size != 3 || capacity != 3 {
		t.Errorf("expected size=3 capacity=3, got %d/%d", size, capacity)
	}

	// Oldest entry should have been evicted
	val, _ := c.Get(ctx, "registry", "1111111111")
	if val != nil {
		t.Errorf("expected oldest entry evicted, got %s", val)
	}
}

func TestNewFactory(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	defer c.Close()

	if _, err := New(domain.CacheConfig{Type: "bogus"}); err == nil {
		t.Error("expected error for unsupported cache type")
	}
}
