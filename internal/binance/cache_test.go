package binance

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestCacheHitWithinTTL(t *testing.T) {
	mock := clock.NewMock()
	cache := newResponseCache(mock)

	cache.put("GET /api/v3/exchangeInfo", []byte(`{"symbols":[]}`), 10*time.Second)

	mock.Add(9 * time.Second)
	if got := cache.get("GET /api/v3/exchangeInfo"); got == nil {
		t.Fatal("expected cache hit within TTL")
	}
}

func TestCacheMissAfterExpiry(t *testing.T) {
	mock := clock.NewMock()
	cache := newResponseCache(mock)

	cache.put("key", []byte("body"), 10*time.Second)

	mock.Add(11 * time.Second)
	if got := cache.get("key"); got != nil {
		t.Fatal("expected cache miss after TTL")
	}

	// Expired entry must be evicted, not just hidden.
	if cache.len() != 0 {
		t.Errorf("expected lazy eviction to remove expired entry, len = %d", cache.len())
	}
}

func TestCacheDistinctKeys(t *testing.T) {
	mock := clock.NewMock()
	cache := newResponseCache(mock)

	cache.put("GET /a", []byte("a"), time.Minute)
	cache.put("GET /b", []byte("b"), time.Minute)

	if string(cache.get("GET /a")) != "a" || string(cache.get("GET /b")) != "b" {
		t.Error("keys must not collide")
	}
}

func TestCachePerEntryTTL(t *testing.T) {
	mock := clock.NewMock()
	cache := newResponseCache(mock)

	cache.put("short", []byte("s"), 5*time.Second)
	cache.put("long", []byte("l"), time.Minute)

	mock.Add(10 * time.Second)
	if cache.get("short") != nil {
		t.Error("short-TTL entry must expire independently")
	}
	if string(cache.get("long")) != "l" {
		t.Error("long-TTL entry expired with its neighbor")
	}
}

func TestCacheZeroTTLStoresNothing(t *testing.T) {
	cache := newResponseCache(clock.NewMock())
	cache.put("key", []byte("body"), 0)
	if cache.get("key") != nil {
		t.Error("zero TTL must not store an entry")
	}
	if cache.len() != 0 {
		t.Errorf("expected empty cache, len = %d", cache.len())
	}
}

func TestCacheOverwriteRefreshesExpiry(t *testing.T) {
	mock := clock.NewMock()
	cache := newResponseCache(mock)

	cache.put("key", []byte("old"), 10*time.Second)
	mock.Add(8 * time.Second)
	cache.put("key", []byte("new"), 10*time.Second)
	mock.Add(8 * time.Second)

	got := cache.get("key")
	if string(got) != "new" {
		t.Errorf("expected refreshed entry to survive, got %q", got)
	}
}
