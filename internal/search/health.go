package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"newsreel/discoveryservice/internal/domain"
	"newsreel/discoveryservice/internal/metrics"
)

const (
	catalogFailureThreshold = 3
	catalogBlockBase        = 2 * time.Minute
	catalogBlockMax         = 15 * time.Minute
)

type catalogHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	lastQuery           string
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

func (s *Service) isCatalogBlocked(catalogName string, now time.Time) (bool, time.Time, string) {
	if s == nil {
		return false, time.Time{}, ""
	}
	name := strings.ToLower(strings.TrimSpace(catalogName))
	if name == "" {
		return false, time.Time{}, ""
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	state := s.health[name]
	if state == nil {
		return false, time.Time{}, ""
	}
	if state.blockedUntil.IsZero() || now.After(state.blockedUntil) {
		return false, time.Time{}, ""
	}
	return true, state.blockedUntil, state.lastError
}

func (s *Service) recordCatalogResult(catalogName, query string, err error, latency time.Duration, now time.Time) {
	if s == nil {
		return
	}
	name := strings.ToLower(strings.TrimSpace(catalogName))
	if name == "" {
		return
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	state := s.health[name]
	if state == nil {
		state = &catalogHealth{}
		s.health[name] = state
	}
	state.totalRequests++
	state.lastQuery = strings.TrimSpace(query)
	if latency > 0 {
		state.lastLatency = latency
		metrics.CatalogRequestDuration.WithLabelValues(name).Observe(latency.Seconds())
	}
	state.lastTimeout = isTimeoutLikeError(err)
	if state.lastTimeout {
		state.timeoutCount++
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.blockedUntil = time.Time{}
		state.lastError = ""
		state.lastSuccessAt = now
		metrics.CatalogRequestsTotal.WithLabelValues(name, "ok").Inc()
		metrics.CatalogAvailable.WithLabelValues(name).Set(1)
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()

	status := "error"
	if state.lastTimeout {
		status = "timeout"
	}
	metrics.CatalogRequestsTotal.WithLabelValues(name, status).Inc()

	if state.consecutiveFailures >= catalogFailureThreshold {
		state.blockedUntil = now.Add(exponentialBlockDuration(state.consecutiveFailures))
		metrics.CatalogAvailable.WithLabelValues(name).Set(0)
	}
}

// exponentialBlockDuration grows the block window per extra consecutive
// failure: base × 2^(failures - threshold), capped at catalogBlockMax.
func exponentialBlockDuration(consecutiveFailures int) time.Duration {
	exponent := consecutiveFailures - catalogFailureThreshold
	if exponent < 0 {
		exponent = 0
	}
	d := catalogBlockBase
	for i := 0; i < exponent; i++ {
		d *= 2
		if d > catalogBlockMax {
			return catalogBlockMax
		}
	}
	return d
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}

// waitCatalogRateLimit spaces out requests per catalog so a batch of
// concurrent queries does not trip remote throttling.
func (s *Service) waitCatalogRateLimit(ctx context.Context, catalogName string) error {
	name := strings.ToLower(strings.TrimSpace(catalogName))
	if name == "" {
		return nil
	}

	s.limiterMu.Lock()
	limiter, ok := s.limiters[name]
	if !ok {
		limiter = rate.NewLimiter(s.limiterRate, s.limiterBurst)
		s.limiters[name] = limiter
	}
	s.limiterMu.Unlock()

	return limiter.Wait(ctx)
}

func (s *Service) CatalogDiagnostics() []domain.CatalogDiagnostics {
	infos := s.Catalogs()
	if len(infos) == 0 {
		return nil
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	items := make([]domain.CatalogDiagnostics, 0, len(infos))
	for _, info := range infos {
		name := strings.ToLower(strings.TrimSpace(info.Name))
		state := s.health[name]
		item := domain.CatalogDiagnostics{
			Name:    info.Name,
			Label:   info.Label,
			Kind:    info.Kind,
			Enabled: info.Enabled,
		}
		if state != nil {
			item.ConsecutiveFailures = state.consecutiveFailures
			if !state.blockedUntil.IsZero() {
				blockedUntil := state.blockedUntil
				item.BlockedUntil = &blockedUntil
			}
			item.LastError = state.lastError
			if !state.lastSuccessAt.IsZero() {
				lastSuccessAt := state.lastSuccessAt
				item.LastSuccessAt = &lastSuccessAt
			}
			if !state.lastFailureAt.IsZero() {
				lastFailureAt := state.lastFailureAt
				item.LastFailureAt = &lastFailureAt
			}
			item.LastLatencyMS = state.lastLatency.Milliseconds()
			item.LastTimeout = state.lastTimeout
			item.LastQuery = state.lastQuery
			item.TotalRequests = state.totalRequests
			item.TotalFailures = state.totalFailures
			item.TimeoutCount = state.timeoutCount
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items
}
