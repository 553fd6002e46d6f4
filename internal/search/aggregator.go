package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"newsreel/discoveryservice/internal/catalog"
	"newsreel/discoveryservice/internal/domain"
)

type preparedPlan struct {
	queries     []domain.Query
	target      domain.SemanticTarget
	exclude     map[string]struct{}
	tried       map[string]struct{}
	client      catalog.Client
	catalogKey  string
	maxPriority int
}

type fetchedQuery struct {
	status domain.QueryStatus
	clips  []domain.Clip
}

// Aggregate runs the planned queries against the active catalog in
// fixed-size batches, merges results by clip identity and tops up with
// deterministic expansion queries when the sweep comes back thin.
// Individual query failures are reported per status, never as an error.
func (s *Service) Aggregate(ctx context.Context, plan domain.QueryPlan, excludeIdentities []string) (domain.AggregateResult, error) {
	prepared, err := s.preparePlan(plan, excludeIdentities)
	if err != nil {
		return domain.AggregateResult{}, err
	}
	return s.executePlan(ctx, prepared)
}

func (s *Service) preparePlan(plan domain.QueryPlan, excludeIdentities []string) (preparedPlan, error) {
	client, catalogKey, err := s.resolveCatalog("")
	if err != nil {
		return preparedPlan{}, err
	}

	tried := make(map[string]struct{})
	queries := make([]domain.Query, 0, len(plan.Queries))
	maxPriority := 0
	for _, q := range plan.Queries {
		text := strings.TrimSpace(q.Text)
		if text == "" {
			continue
		}
		normalized := normalizeQueryText(text)
		if normalized == "" {
			continue
		}
		if _, seen := tried[normalized]; seen {
			continue
		}
		tried[normalized] = struct{}{}
		queries = append(queries, domain.Query{Text: text, Priority: q.Priority})
		if q.Priority > maxPriority {
			maxPriority = q.Priority
		}
	}
	if len(queries) == 0 {
		return preparedPlan{}, ErrNoQueries
	}
	sort.SliceStable(queries, func(i, j int) bool {
		return queries[i].Priority < queries[j].Priority
	})

	exclude := make(map[string]struct{}, len(excludeIdentities))
	for _, identity := range excludeIdentities {
		if id := strings.ToLower(strings.TrimSpace(identity)); id != "" {
			exclude[id] = struct{}{}
		}
	}

	return preparedPlan{
		queries:     queries,
		target:      plan.Target,
		exclude:     exclude,
		tried:       tried,
		client:      client,
		catalogKey:  catalogKey,
		maxPriority: maxPriority,
	}, nil
}

func (s *Service) executePlan(ctx context.Context, prepared preparedPlan) (domain.AggregateResult, error) {
	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		// Sweep budget: several batches of per-call time-boxed queries.
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, 4*s.timeout)
		defer cancel()
	}

	startedAt := time.Now()
	statuses := make([]domain.QueryStatus, 0, len(prepared.queries))
	byKey := make(map[string]domain.Candidate)
	orderedKeys := make([]string, 0, 32)
	discoveryOrder := 0

	merge := func(q domain.Query, clips []domain.Clip) {
		for _, clip := range clips {
			key := clipDedupeKey(clip)
			if key == "" {
				continue
			}
			if _, skip := prepared.exclude[strings.ToLower(strings.TrimSpace(clip.Identity))]; skip {
				continue
			}
			if existing, exists := byKey[key]; exists {
				byKey[key] = fillMissing(existing, clip)
				continue
			}
			byKey[key] = domain.Candidate{
				Clip:           clip,
				SourceQuery:    q.Text,
				Priority:       q.Priority,
				DiscoveryOrder: discoveryOrder,
			}
			orderedKeys = append(orderedKeys, key)
			discoveryOrder++
		}
	}

	runBatches := func(queries []domain.Query, stopAtTarget bool) {
		for start := 0; start < len(queries); start += s.concurrency {
			if stopAtTarget && len(byKey) >= s.targetUnique {
				return
			}
			end := start + s.concurrency
			if end > len(queries) {
				end = len(queries)
			}
			batch := queries[start:end]
			fetched := s.runBatch(runCtx, prepared.client, prepared.catalogKey, batch)
			// Merge in submission order once the whole batch is in, so
			// dedup winners never depend on goroutine timing.
			for i, f := range fetched {
				statuses = append(statuses, f.status)
				if f.status.OK {
					merge(batch[i], f.clips)
				}
			}
		}
	}

	runBatches(prepared.queries, false)

	expanded := false
	if len(byKey) < s.targetUnique {
		extra := expansionQueries(prepared.target, prepared.tried, prepared.maxPriority)
		if len(extra) > 0 {
			expanded = true
			slog.Info("search expansion engaged",
				slog.String("catalog", prepared.catalogKey),
				slog.Int("unique", len(byKey)),
				slog.Int("extraQueries", len(extra)),
			)
			runBatches(extra, true)
		}
	}

	candidates := make([]domain.Candidate, 0, len(byKey))
	for _, key := range orderedKeys {
		candidates = append(candidates, byKey[key])
	}
	sortCandidates(candidates)

	failed := 0
	for _, status := range statuses {
		if !status.OK {
			failed++
		}
	}
	slog.Info("catalog sweep completed",
		slog.String("catalog", prepared.catalogKey),
		slog.Int("queries", len(statuses)),
		slog.Int("failed", failed),
		slog.Int("unique", len(candidates)),
		slog.Bool("expanded", expanded),
		slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
	)

	return domain.AggregateResult{
		Candidates:  candidates,
		Queries:     statuses,
		Expanded:    expanded,
		TotalUnique: len(candidates),
		ElapsedMS:   time.Since(startedAt).Milliseconds(),
	}, nil
}

// runBatch fans one batch out and waits for every member: the batch is
// the synchronization barrier between passes.
func (s *Service) runBatch(ctx context.Context, client catalog.Client, catalogKey string, batch []domain.Query) []fetchedQuery {
	out := make([]fetchedQuery, len(batch))
	sem := semaphore.NewWeighted(int64(s.concurrency))
	var wg sync.WaitGroup

	for i, q := range batch {
		wg.Add(1)
		go func(index int, q domain.Query) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				out[index] = fetchedQuery{status: domain.QueryStatus{Query: q.Text, Error: "context cancelled"}}
				return
			}
			defer sem.Release(1)

			out[index] = s.fetchQuery(ctx, client, catalogKey, q)
		}(i, q)
	}
	wg.Wait()
	return out
}

func (s *Service) fetchQuery(ctx context.Context, client catalog.Client, catalogKey string, q domain.Query) fetchedQuery {
	now := time.Now()
	key := buildQueryCacheKey(catalogKey, q.Text)

	if !s.cacheDisabled {
		if clips, ok, needsRefresh := s.cacheLookup(key, now); ok {
			s.markPopular(key, q.Text, catalogKey, now)
			if needsRefresh {
				s.refreshQueryAsync(key, catalogKey, q.Text)
			}
			return fetchedQuery{
				status: domain.QueryStatus{Query: q.Text, OK: true, Count: len(clips), Cached: true},
				clips:  clips,
			}
		}
	}

	clips, err := s.searchCatalog(ctx, client, catalogKey, q.Text, s.perQueryLimit)
	if err != nil {
		return fetchedQuery{status: domain.QueryStatus{Query: q.Text, Error: err.Error()}}
	}
	if !s.cacheDisabled {
		s.cacheStore(key, clips, time.Now())
		s.markPopular(key, q.Text, catalogKey, time.Now())
	}
	return fetchedQuery{
		status: domain.QueryStatus{Query: q.Text, OK: true, Count: len(clips)},
		clips:  clips,
	}
}

// searchCatalog is the single network path for one query: circuit
// breaker check, rate limit, per-call time-box, retry, health record.
func (s *Service) searchCatalog(ctx context.Context, client catalog.Client, catalogKey, query string, limit int) ([]domain.Clip, error) {
	now := time.Now()
	if blocked, until, lastErr := s.isCatalogBlocked(catalogKey, now); blocked {
		return nil, fmt.Errorf("catalog temporarily unhealthy until %s: %s", until.UTC().Format(time.RFC3339), lastErr)
	}
	if err := s.waitCatalogRateLimit(ctx, catalogKey); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	startedAt := time.Now()
	var clips []domain.Clip
	err := RetryWithBackoff(callCtx, DefaultRetryConfig(), func() error {
		var searchErr error
		clips, searchErr = client.Search(callCtx, domain.CatalogSearchRequest{Query: query, Limit: limit})
		return searchErr
	})
	s.recordCatalogResult(catalogKey, query, err, time.Since(startedAt), time.Now())
	if err != nil {
		return nil, err
	}
	return clips, nil
}

func (s *Service) refreshQueryAsync(key, catalogName, queryText string) {
	go func() {
		client, catalogKey, err := s.resolveCatalog(catalogName)
		if err != nil {
			s.cacheClearRefreshing(key)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout+2*time.Second)
		defer cancel()

		clips, err := s.searchCatalog(ctx, client, catalogKey, queryText, s.perQueryLimit)
		if err != nil {
			s.cacheClearRefreshing(key)
			return
		}
		s.cacheStore(key, clips, time.Now())
	}()
}

// sortCandidates orders by plan priority, then by discovery order
// within the same priority.
func sortCandidates(items []domain.Candidate) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority < items[j].Priority
		}
		return items[i].DiscoveryOrder < items[j].DiscoveryOrder
	})
}
