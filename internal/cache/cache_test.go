package cache

import (
	"testing"
	"time"
)

func TestTTLExpiry(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c := NewTTL[string, int](time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected fresh entry, got %v %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected entry to expire")
	}
	if len(c.entries) != 0 {
		t.Fatalf("expected expired entry to be dropped, got %d", len(c.entries))
	}
}

func TestTTLOverwrite(t *testing.T) {
	c := NewTTL[string, int](time.Minute)

	c.Set("a", 1)
	c.Set("a", 2)
	if v, ok := c.Get("a"); !ok || v != 2 {
		t.Fatalf("expected overwritten value 2, got %v %v", v, ok)
	}
}

func TestTTLDisabled(t *testing.T) {
	c := NewTTL[string, int](0)

	c.Set("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("zero ttl cache must never hit")
	}
}
