package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"newsreel/discoveryservice/internal/catalog"
	"newsreel/discoveryservice/internal/domain"
)

var (
	ErrNoQueries      = errors.New("query plan is empty")
	ErrInvalidQuery   = errors.New("query is required")
	ErrNoCatalogs     = errors.New("no catalogs configured")
	ErrUnknownCatalog = errors.New("unknown catalog")
)

const (
	defaultQueryConcurrency = 5
	defaultPerQueryLimit    = 15
	defaultTargetUnique     = 12
)

// Service aggregates multi-query catalog sweeps: batching, per-query
// caching, dedup, health tracking and deterministic expansion.
type Service struct {
	catalogs      map[string]catalog.Client
	active        string
	timeout       time.Duration
	concurrency   int
	perQueryLimit int
	targetUnique  int

	cacheDisabled bool
	cacheMu       sync.RWMutex
	cache         map[string]*cachedQueryClips
	popular       map[string]*popularQuery
	warmerCfg     queryWarmerConfig
	warmerRun     atomic.Bool
	redisCache    *RedisCacheBackend

	healthMu sync.Mutex
	health   map[string]*catalogHealth

	limiterMu    sync.Mutex
	limiters     map[string]*rate.Limiter
	limiterRate  rate.Limit
	limiterBurst int
}

type ServiceOption func(*Service)

func WithRedisCache(backend *RedisCacheBackend) ServiceOption {
	return func(s *Service) {
		s.redisCache = backend
	}
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.warmerCfg.cacheTTL = ttl
			s.warmerCfg.staleTTL = ttl * 3
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) {
		s.cacheDisabled = disabled
	}
}

func WithConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithPerQueryLimit(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.perQueryLimit = n
		}
	}
}

func WithTargetUnique(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.targetUnique = n
		}
	}
}

func WithCatalogRateLimit(perSecond float64, burst int) ServiceOption {
	return func(s *Service) {
		if perSecond > 0 && burst > 0 {
			s.limiterRate = rate.Limit(perSecond)
			s.limiterBurst = burst
		}
	}
}

func NewService(clients []catalog.Client, activeCatalog string, timeout time.Duration, opts ...ServiceOption) *Service {
	registry := make(map[string]catalog.Client, len(clients))
	for _, client := range clients {
		if client == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(client.Name()))
		if name == "" {
			continue
		}
		registry[name] = client
	}

	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	svc := &Service{
		catalogs:      registry,
		active:        strings.ToLower(strings.TrimSpace(activeCatalog)),
		timeout:       timeout,
		concurrency:   defaultQueryConcurrency,
		perQueryLimit: defaultPerQueryLimit,
		targetUnique:  defaultTargetUnique,
		cache:         make(map[string]*cachedQueryClips),
		popular:       make(map[string]*popularQuery),
		warmerCfg:     defaultQueryWarmerConfig(),
		health:        make(map[string]*catalogHealth),
		limiters:      make(map[string]*rate.Limiter),
		limiterRate:   rate.Limit(5),
		limiterBurst:  5,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Service) StartBackground(ctx context.Context) {
	if s.warmerRun.CompareAndSwap(false, true) {
		go s.runWarmer(ctx)
	}
}

// resolveCatalog picks the client for name, falling back to the active
// catalog and then to a sole registered one.
func (s *Service) resolveCatalog(name string) (catalog.Client, string, error) {
	if len(s.catalogs) == 0 {
		return nil, "", ErrNoCatalogs
	}

	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = s.active
	}
	if key != "" {
		if client, ok := s.catalogs[key]; ok {
			return client, key, nil
		}
		if name != "" {
			return nil, "", fmt.Errorf("%w: %s", ErrUnknownCatalog, key)
		}
	}
	if len(s.catalogs) == 1 {
		for soleKey, client := range s.catalogs {
			return client, soleKey, nil
		}
	}
	return nil, "", fmt.Errorf("%w: %s", ErrUnknownCatalog, key)
}

// ActiveCatalog exposes the resolved client for callers that need
// per-clip operations (detail, acquire) on the same session.
func (s *Service) ActiveCatalog() (catalog.Client, error) {
	client, _, err := s.resolveCatalog("")
	return client, err
}

func (s *Service) Catalogs() []domain.CatalogInfo {
	if len(s.catalogs) == 0 {
		return nil
	}
	items := make([]domain.CatalogInfo, 0, len(s.catalogs))
	seen := make(map[string]struct{}, len(s.catalogs))
	for _, client := range s.catalogs {
		info := client.Info()
		if info.Name == "" {
			info.Name = strings.ToLower(strings.TrimSpace(client.Name()))
		}
		info.Name = strings.ToLower(strings.TrimSpace(info.Name))
		if info.Name == "" {
			continue
		}
		if _, exists := seen[info.Name]; exists {
			continue
		}
		seen[info.Name] = struct{}{}
		if info.Label == "" {
			info.Label = info.Name
		}
		items = append(items, info)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}
