package search

import (
	"testing"
	"time"

	"newsreel/discoveryservice/internal/catalog"
	"newsreel/discoveryservice/internal/domain"
)

func cacheTestService() *Service {
	return NewService([]catalog.Client{&fakeCatalog{name: "stock"}}, "stock", time.Second)
}

// ---------------------------------------------------------------------------
// Lookup lifecycle: fresh, stale, expired
// ---------------------------------------------------------------------------

func TestCacheLookupFreshHit(t *testing.T) {
	service := cacheTestService()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clips := []domain.Clip{{Identity: "c1", Title: "Clip one"}}

	service.cacheStore("key", clips, now)

	got, hit, needsRefresh := service.cacheLookup("key", now.Add(10*time.Minute))
	if !hit {
		t.Fatal("expected a cache hit inside the TTL")
	}
	if needsRefresh {
		t.Fatal("fresh entries must not request a refresh")
	}
	if len(got) != 1 || got[0].Identity != "c1" {
		t.Fatalf("unexpected cached clips: %#v", got)
	}
}

func TestCacheLookupStaleServesAndRefreshesOnce(t *testing.T) {
	service := cacheTestService()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service.cacheStore("key", []domain.Clip{{Identity: "c1"}}, now)

	// 31 minutes: past the 30m TTL, inside the 90m stale window.
	staleAt := now.Add(31 * time.Minute)

	got, hit, needsRefresh := service.cacheLookup("key", staleAt)
	if !hit || len(got) != 1 {
		t.Fatalf("stale entry should still serve, hit=%v clips=%d", hit, len(got))
	}
	if !needsRefresh {
		t.Fatal("first stale lookup should request a background refresh")
	}

	_, hit, needsRefresh = service.cacheLookup("key", staleAt)
	if !hit {
		t.Fatal("second stale lookup should still serve")
	}
	if needsRefresh {
		t.Fatal("refresh must be requested at most once per stale entry")
	}
}

func TestCacheLookupExpiredEvicts(t *testing.T) {
	service := cacheTestService()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service.cacheStore("key", []domain.Clip{{Identity: "c1"}}, now)

	_, hit, _ := service.cacheLookup("key", now.Add(91*time.Minute))
	if hit {
		t.Fatal("entries past the stale window must miss")
	}

	service.cacheMu.Lock()
	_, still := service.cache["key"]
	service.cacheMu.Unlock()
	if still {
		t.Fatal("expired entry should have been evicted")
	}
}

func TestCacheStoreClonesClips(t *testing.T) {
	service := cacheTestService()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	original := []domain.Clip{{Identity: "c1", Tags: []string{"city"}}}

	service.cacheStore("key", original, now)
	original[0].Identity = "mutated"
	original[0].Tags[0] = "mutated"

	got, _, _ := service.cacheLookup("key", now)
	if got[0].Identity != "c1" || got[0].Tags[0] != "city" {
		t.Fatalf("cache must not alias caller slices: %#v", got[0])
	}

	got[0].Identity = "mutated-again"
	again, _, _ := service.cacheLookup("key", now)
	if again[0].Identity != "c1" {
		t.Fatal("lookup results must not alias the cached copy")
	}
}

// ---------------------------------------------------------------------------
// Trimming and popularity
// ---------------------------------------------------------------------------

func TestTrimCacheEvictsOldestBeyondCapacity(t *testing.T) {
	service := cacheTestService()
	service.warmerCfg.cacheMaxEntries = 2
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	service.cacheStore("old", []domain.Clip{{Identity: "a"}}, base)
	service.cacheStore("mid", []domain.Clip{{Identity: "b"}}, base.Add(time.Minute))
	service.cacheStore("new", []domain.Clip{{Identity: "c"}}, base.Add(2*time.Minute))

	service.cacheMu.Lock()
	defer service.cacheMu.Unlock()
	if len(service.cache) != 2 {
		t.Fatalf("expected 2 entries after trim, got %d", len(service.cache))
	}
	if _, ok := service.cache["old"]; ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := service.cache["new"]; !ok {
		t.Fatal("newest entry should have survived")
	}
}

func TestMarkPopularAccumulatesHits(t *testing.T) {
	service := cacheTestService()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	service.markPopular("key", "berlin skyline", "stock", now)
	service.markPopular("key", "berlin skyline", "stock", now.Add(time.Minute))

	service.cacheMu.Lock()
	defer service.cacheMu.Unlock()
	pop := service.popular["key"]
	if pop == nil {
		t.Fatal("expected popularity entry")
	}
	if pop.hits != 2 {
		t.Fatalf("expected 2 hits, got %d", pop.hits)
	}
	if !pop.lastSeen.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected lastSeen to advance, got %v", pop.lastSeen)
	}
}

func TestCollectWarmSpecsSkipsFreshEntries(t *testing.T) {
	service := cacheTestService()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	service.cacheStore("fresh", []domain.Clip{{Identity: "a"}}, now)
	service.markPopular("fresh", "fresh query", "stock", now)

	service.cacheStore("expired", []domain.Clip{{Identity: "b"}}, now.Add(-40*time.Minute))
	service.markPopular("expired", "expired query", "stock", now)

	specs := service.collectWarmSpecs(now)
	if len(specs) != 1 {
		t.Fatalf("expected 1 warm spec, got %d", len(specs))
	}
	if specs[0].query != "expired query" {
		t.Fatalf("expected the expired entry to be warmed, got %q", specs[0].query)
	}
}

func TestCollectWarmSpecsThrottlesRepeatWarms(t *testing.T) {
	service := cacheTestService()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	service.cacheStore("key", []domain.Clip{{Identity: "a"}}, now.Add(-40*time.Minute))
	service.markPopular("key", "query", "stock", now)

	if specs := service.collectWarmSpecs(now); len(specs) != 1 {
		t.Fatalf("expected first collection to pick the entry, got %d", len(specs))
	}
	// Picked moments ago: the warmer must not hammer the catalog.
	if specs := service.collectWarmSpecs(now.Add(time.Minute)); len(specs) != 0 {
		t.Fatalf("expected repeat collection to be throttled, got %d", len(specs))
	}
}

// ---------------------------------------------------------------------------
// Cache keys
// ---------------------------------------------------------------------------

func TestBuildQueryCacheKey(t *testing.T) {
	tests := []struct {
		name  string
		left  [2]string
		right [2]string
		same  bool
	}{
		{"case and spacing", [2]string{"Stock", "Berlin  Skyline"}, [2]string{"stock", "berlin skyline"}, true},
		{"accents folded", [2]string{"stock", "São Paulo"}, [2]string{"stock", "sao paulo"}, true},
		{"different catalog", [2]string{"stock", "berlin"}, [2]string{"pexels", "berlin"}, false},
		{"different query", [2]string{"stock", "berlin"}, [2]string{"stock", "munich"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			left := buildQueryCacheKey(tc.left[0], tc.left[1])
			right := buildQueryCacheKey(tc.right[0], tc.right[1])
			if (left == right) != tc.same {
				t.Fatalf("keys %q vs %q, want same=%v", left, right, tc.same)
			}
		})
	}
}
