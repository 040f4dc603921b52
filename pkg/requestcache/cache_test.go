package requestcache

import (
	"fmt"
	"testing"
	"time"

	"sundial-hq/aperture/pkg/upstream"
)

func testResponse(content string) *upstream.GenerationResponse {
	return &upstream.GenerationResponse{
		Model:        "gemini-2.0-flash",
		Content:      content,
		FinishReason: "stop",
	}
}

func TestLookupMissOnEmptyCache(t *testing.T) {
	cache := New(nil, Options{})

	if resp := cache.Lookup("absent"); resp != nil {
		t.Errorf("Expected nil for an absent fingerprint, got %v", resp)
	}
}

func TestStoreAndLookup(t *testing.T) {
	cache := New(nil, Options{})

	cache.Store("fp-1", testResponse("hello"))

	resp := cache.Lookup("fp-1")
	if resp == nil {
		t.Fatal("Expected a cached response")
	}
	if resp.Content != "hello" {
		t.Errorf("Expected content %q, got %q", "hello", resp.Content)
	}
}

func TestLookupExpiredEntry(t *testing.T) {
	cache := New(nil, Options{TTL: 20 * time.Millisecond})

	cache.Store("fp-1", testResponse("hello"))
	time.Sleep(30 * time.Millisecond)

	if resp := cache.Lookup("fp-1"); resp != nil {
		t.Error("Expected an expired entry to miss")
	}
	if cache.Len() != 0 {
		t.Errorf("Expected expired entry removed on lookup, got %d entries", cache.Len())
	}
}

func TestStoreRefreshRestartsTTL(t *testing.T) {
	cache := New(nil, Options{TTL: 50 * time.Millisecond})

	cache.Store("fp-1", testResponse("first"))
	time.Sleep(30 * time.Millisecond)
	cache.Store("fp-1", testResponse("second"))
	time.Sleep(30 * time.Millisecond)

	resp := cache.Lookup("fp-1")
	if resp == nil {
		t.Fatal("Expected refreshed entry to survive the original TTL")
	}
	if resp.Content != "second" {
		t.Errorf("Expected refreshed content, got %q", resp.Content)
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	cache := New(nil, Options{MaxEntries: 3})

	for i := 0; i < 3; i++ {
		cache.Store(fmt.Sprintf("fp-%d", i), testResponse("x"))
		time.Sleep(2 * time.Millisecond)
	}
	cache.Store("fp-3", testResponse("x"))

	if cache.Len() != 3 {
		t.Errorf("Expected capacity held at 3 entries, got %d", cache.Len())
	}
	if cache.Lookup("fp-0") != nil {
		t.Error("Expected the oldest entry evicted")
	}
	if cache.Lookup("fp-3") == nil {
		t.Error("Expected the newest entry retained")
	}
}

func TestSweepReclaimsExpired(t *testing.T) {
	cache := New(nil, Options{TTL: 20 * time.Millisecond})

	cache.Store("fp-old", testResponse("x"))
	time.Sleep(30 * time.Millisecond)
	cache.Store("fp-new", testResponse("x"))

	removed := cache.Sweep()
	if removed != 1 {
		t.Errorf("Expected 1 entry reclaimed, got %d", removed)
	}
	if cache.Len() != 1 {
		t.Errorf("Expected 1 entry remaining, got %d", cache.Len())
	}
}

func TestStatsCounters(t *testing.T) {
	cache := New(nil, Options{})

	cache.Store("fp-1", testResponse("x"))
	cache.Lookup("fp-1")
	cache.Lookup("fp-2")

	stats := cache.Stats()
	if stats.Hits != 1 {
		t.Errorf("Expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", stats.Misses)
	}
	if stats.Entries != 1 {
		t.Errorf("Expected 1 entry, got %d", stats.Entries)
	}
}
