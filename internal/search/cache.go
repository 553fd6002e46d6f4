package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"newsreel/discoveryservice/internal/domain"
	"newsreel/discoveryservice/internal/metrics"
)

const (
	defaultCacheTTL            = 30 * time.Minute
	defaultStaleTTL            = 90 * time.Minute
	defaultWarmInterval        = 5 * time.Minute
	defaultWarmTopQueries      = 8
	defaultCacheMaxEntries     = 500
	defaultPopularMaxEntries   = 200
	maxConcurrentWarmRefreshes = 3
)

type queryWarmerConfig struct {
	cacheTTL          time.Duration
	staleTTL          time.Duration
	warmInterval      time.Duration
	warmTopQueries    int
	cacheMaxEntries   int
	popularMaxEntries int
}

type cachedQueryClips struct {
	clips       []domain.Clip
	updatedAt   time.Time
	expiresAt   time.Time
	staleUntil  time.Time
	refreshing  bool
	refreshOnce sync.Once // one refresh per stale period
}

type popularQuery struct {
	query    string
	catalog  string
	hits     int
	lastSeen time.Time
	lastWarm time.Time
}

type warmSpec struct {
	key     string
	query   string
	catalog string
}

func defaultQueryWarmerConfig() queryWarmerConfig {
	return queryWarmerConfig{
		cacheTTL:          defaultCacheTTL,
		staleTTL:          defaultStaleTTL,
		warmInterval:      defaultWarmInterval,
		warmTopQueries:    defaultWarmTopQueries,
		cacheMaxEntries:   defaultCacheMaxEntries,
		popularMaxEntries: defaultPopularMaxEntries,
	}
}

func (s *Service) runWarmer(ctx context.Context) {
	ticker := time.NewTicker(s.warmerCfg.warmInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runWarmCycle(ctx)
		}
	}
}

func (s *Service) runWarmCycle(ctx context.Context) {
	now := time.Now()
	specs := s.collectWarmSpecs(now)
	if len(specs) == 0 {
		return
	}

	// Bounded parallel refresh so a cold cycle does not monopolize the
	// catalog budget that live discover runs need.
	sem := semaphore.NewWeighted(maxConcurrentWarmRefreshes)
	var wg sync.WaitGroup

	for _, spec := range specs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		default:
		}

		wg.Add(1)
		go func(spec warmSpec) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				s.cacheClearRefreshing(spec.key)
				return
			}
			defer sem.Release(1)

			client, catalogKey, err := s.resolveCatalog(spec.catalog)
			if err != nil {
				s.cacheClearRefreshing(spec.key)
				return
			}

			refreshCtx, cancel := context.WithTimeout(ctx, s.timeout+2*time.Second)
			defer cancel()

			clips, err := s.searchCatalog(refreshCtx, client, catalogKey, spec.query, s.perQueryLimit)
			if err != nil {
				s.cacheClearRefreshing(spec.key)
				return
			}
			s.cacheStore(spec.key, clips, time.Now())
		}(spec)
	}

	wg.Wait()
}

func (s *Service) collectWarmSpecs(now time.Time) []warmSpec {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if len(s.popular) == 0 {
		return nil
	}

	keys := make([]string, 0, len(s.popular))
	for key := range s.popular {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		left := s.popular[keys[i]]
		right := s.popular[keys[j]]
		if left.hits != right.hits {
			return left.hits > right.hits
		}
		return left.lastSeen.After(right.lastSeen)
	})

	limit := s.warmerCfg.warmTopQueries
	if limit <= 0 {
		limit = defaultWarmTopQueries
	}
	if len(keys) < limit {
		limit = len(keys)
	}

	specs := make([]warmSpec, 0, limit)
	for _, key := range keys[:limit] {
		pop := s.popular[key]
		if pop == nil {
			continue
		}
		if !pop.lastWarm.IsZero() && now.Sub(pop.lastWarm) < s.warmerCfg.warmInterval/2 {
			continue
		}
		if entry, ok := s.cache[key]; ok && now.Before(entry.expiresAt) {
			continue
		}
		pop.lastWarm = now
		if entry := s.cache[key]; entry != nil {
			entry.refreshing = true
		}
		specs = append(specs, warmSpec{key: key, query: pop.query, catalog: pop.catalog})
	}
	return specs
}

// cacheLookup returns the cached clips for key plus a needsRefresh hint
// when the entry is stale but still serveable.
func (s *Service) cacheLookup(key string, now time.Time) ([]domain.Clip, bool, bool) {
	if s.redisCache != nil {
		clips, found, err := s.redisCache.Get(context.Background(), key)
		if err == nil && found {
			metrics.CacheHitsTotal.Inc()
			// Keep a local copy so the warmer can reason about freshness
			// without re-querying Redis.
			s.cacheStoreMemoryOnly(key, clips, now)
			return clips, true, false
		}
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	entry, ok := s.cache[key]
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return nil, false, false
	}

	if now.Before(entry.expiresAt) {
		metrics.CacheHitsTotal.Inc()
		return cloneClips(entry.clips), true, false
	}

	if now.Before(entry.staleUntil) {
		metrics.CacheHitsTotal.Inc()
		needsRefresh := false
		entry.refreshOnce.Do(func() {
			needsRefresh = true
			entry.refreshing = true
		})
		return cloneClips(entry.clips), true, needsRefresh
	}

	metrics.CacheMissesTotal.Inc()
	delete(s.cache, key)
	delete(s.popular, key)
	return nil, false, false
}

func (s *Service) cacheStore(key string, clips []domain.Clip, now time.Time) {
	cacheTTL := s.warmerCfg.cacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	staleTTL := s.warmerCfg.staleTTL
	if staleTTL <= cacheTTL {
		staleTTL = cacheTTL * 3
	}

	if s.redisCache != nil {
		_ = s.redisCache.Set(context.Background(), key, clips, cacheTTL)
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache[key] = &cachedQueryClips{
		clips:      cloneClips(clips),
		updatedAt:  now,
		expiresAt:  now.Add(cacheTTL),
		staleUntil: now.Add(staleTTL),
		refreshing: false,
	}
	s.trimCacheLocked(now)
}

func (s *Service) cacheStoreMemoryOnly(key string, clips []domain.Clip, now time.Time) {
	cacheTTL := s.warmerCfg.cacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	staleTTL := s.warmerCfg.staleTTL
	if staleTTL <= cacheTTL {
		staleTTL = cacheTTL * 3
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache[key] = &cachedQueryClips{
		clips:      cloneClips(clips),
		updatedAt:  now,
		expiresAt:  now.Add(cacheTTL),
		staleUntil: now.Add(staleTTL),
		refreshing: false,
	}
	s.trimCacheLocked(now)
}

func (s *Service) cacheClearRefreshing(key string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if entry := s.cache[key]; entry != nil {
		entry.refreshing = false
	}
}

func (s *Service) markPopular(key, query, catalogName string, now time.Time) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	pop, ok := s.popular[key]
	if !ok {
		s.popular[key] = &popularQuery{
			query:    query,
			catalog:  catalogName,
			hits:     1,
			lastSeen: now,
		}
	} else {
		pop.hits++
		pop.lastSeen = now
		pop.query = query
		pop.catalog = catalogName
	}

	limit := s.warmerCfg.popularMaxEntries
	if limit <= 0 {
		limit = defaultPopularMaxEntries
	}
	if len(s.popular) <= limit {
		return
	}

	// Drop least popular + oldest.
	type pair struct {
		key   string
		value *popularQuery
	}
	items := make([]pair, 0, len(s.popular))
	for popKey, value := range s.popular {
		items = append(items, pair{key: popKey, value: value})
	}
	sort.Slice(items, func(i, j int) bool {
		left := items[i].value
		right := items[j].value
		if left.hits != right.hits {
			return left.hits < right.hits
		}
		return left.lastSeen.Before(right.lastSeen)
	})
	for i := 0; i < len(items)-limit; i++ {
		delete(s.popular, items[i].key)
	}
}

func (s *Service) trimCacheLocked(now time.Time) {
	maxEntries := s.warmerCfg.cacheMaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultCacheMaxEntries
	}

	for key, entry := range s.cache {
		if now.After(entry.staleUntil) {
			delete(s.cache, key)
		}
	}

	if len(s.cache) <= maxEntries {
		return
	}

	type pair struct {
		key   string
		entry *cachedQueryClips
	}
	items := make([]pair, 0, len(s.cache))
	for key, entry := range s.cache {
		items = append(items, pair{key: key, entry: entry})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].entry.updatedAt.Before(items[j].entry.updatedAt)
	})
	for i := 0; i < len(items)-maxEntries; i++ {
		delete(s.cache, items[i].key)
	}
}

func cloneClips(clips []domain.Clip) []domain.Clip {
	if clips == nil {
		return nil
	}
	cloned := make([]domain.Clip, len(clips))
	for i, clip := range clips {
		copied := clip
		if clip.PublishedAt != nil {
			value := *clip.PublishedAt
			copied.PublishedAt = &value
		}
		copied.Tags = append([]string(nil), clip.Tags...)
		cloned[i] = copied
	}
	return cloned
}

// buildQueryCacheKey is catalog-qualified so two catalogs can answer the
// same text differently; the query part is the normalized form.
func buildQueryCacheKey(catalogName, queryText string) string {
	return strings.Join([]string{
		"c=" + strings.ToLower(strings.TrimSpace(catalogName)),
		"q=" + normalizeQueryText(queryText),
	}, "|")
}
