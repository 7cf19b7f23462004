package cache

import (
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, 20*time.Millisecond)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("get = %v %v, want 1 true", v, ok)
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expired entry still served")
	}
}

func TestTTLCacheNoExpiryWithoutTTL(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, 0)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("entry without ttl should not expire")
	}
}

func TestNoopCacheAlwaysMisses(t *testing.T) {
	var c Cache[string, int] = NoopCache[string, int]{}

	c.Set("a", 1, time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatal("noop cache returned a hit")
	}
}
