package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"newsreel/discoveryservice/internal/domain"
	"newsreel/discoveryservice/internal/metrics"
	"newsreel/discoveryservice/internal/vision"
)

// DetailFunc fetches deep catalog metadata for one candidate. The
// engine binds it to the right catalog client.
type DetailFunc func(ctx context.Context, candidate domain.Candidate) (domain.ClipDetail, error)

// EmitFunc receives best-effort stage progress during a run.
type EmitFunc func(stage domain.ProgressStage, percent int, message string)

type Config struct {
	PrefilterPool     int           // candidates screened by thumbnail
	Shortlist         int           // candidates kept for deep fetch
	FastTrackVisual   float64       // thumbnail relevance short-circuit
	FastTrackCombined float64       // 0.5*text+0.5*visual short-circuit
	FetchConcurrency  int           // thumbnail/detail pool width
	VisionConcurrency int           // classifier pool width
	FetchTimeout      time.Duration // per download/detail call
}

func DefaultConfig() Config {
	return Config{
		PrefilterPool:     12,
		Shortlist:         5,
		FastTrackVisual:   75,
		FastTrackCombined: 70,
		FetchConcurrency:  5,
		VisionConcurrency: 2,
		FetchTimeout:      15 * time.Second,
	}
}

// Outcome is what the enrichment pipeline hands to the ranker.
type Outcome struct {
	Candidates  []domain.Candidate
	FastTracked bool
	PoolSize    int
}

// Fetcher enriches text-ranked candidates in two stages: a cheap
// thumbnail screen over the widest pool, then deep metadata plus one
// screenshot verdict for a short list. A strong thumbnail verdict
// fast-tracks the run past the deep stage entirely.
type Fetcher struct {
	images     ImageSource
	classifier vision.Classifier
	detail     DetailFunc
	cfg        Config
	logger     *slog.Logger
}

func NewFetcher(images ImageSource, classifier vision.Classifier, detail DetailFunc, cfg Config, logger *slog.Logger) *Fetcher {
	def := DefaultConfig()
	if cfg.PrefilterPool <= 0 {
		cfg.PrefilterPool = def.PrefilterPool
	}
	if cfg.Shortlist <= 0 {
		cfg.Shortlist = def.Shortlist
	}
	if cfg.FastTrackVisual <= 0 {
		cfg.FastTrackVisual = def.FastTrackVisual
	}
	if cfg.FastTrackCombined <= 0 {
		cfg.FastTrackCombined = def.FastTrackCombined
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = def.FetchConcurrency
	}
	if cfg.VisionConcurrency <= 0 {
		cfg.VisionConcurrency = def.VisionConcurrency
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		images:     images,
		classifier: classifier,
		detail:     detail,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run screens the top text-ranked candidates by thumbnail, then either
// fast-tracks on a strong verdict or deep-fetches metadata and a
// screenshot verdict for the shortlist. Per-item failures are
// tolerated: a candidate that loses its image or detail simply keeps
// what it had. Only cancellation aborts the run.
func (f *Fetcher) Run(ctx context.Context, target domain.SemanticTarget, candidates []domain.Candidate, emit EmitFunc) (Outcome, error) {
	if len(candidates) == 0 {
		return Outcome{}, nil
	}

	poolSize := len(candidates)
	if poolSize > f.cfg.PrefilterPool {
		poolSize = f.cfg.PrefilterPool
	}
	pool := make([]domain.Candidate, poolSize)
	copy(pool, candidates[:poolSize])

	f.send(emit, domain.StagePrefilter, 10, fmt.Sprintf("screening %d thumbnails", len(pool)))

	thumbnails := f.downloadBatches(ctx, pool, "thumbnail", func(c domain.Candidate) string {
		return c.ThumbnailURL
	})
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	for i := range pool {
		pool[i].Thumbnail = thumbnails[i]
	}

	verdicts := f.classifyBatches(ctx, target, pool, func(c domain.Candidate) []byte {
		return c.Thumbnail
	})
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	for i := range pool {
		if verdicts[i] != nil {
			pool[i].Vision = verdicts[i]
		}
	}

	if identity, ok := f.fastTrack(pool); ok {
		metrics.FastTracksTotal.Inc()
		f.logger.Info("thumbnail fast-track engaged",
			slog.String("identity", identity),
			slog.Int("pool", len(pool)),
		)
		return Outcome{Candidates: pool, FastTracked: true, PoolSize: len(pool)}, nil
	}

	shortlist := trimByCombined(pool, f.cfg.Shortlist)
	f.send(emit, domain.StageFetching, 45, fmt.Sprintf("fetching metadata for %d clips", len(shortlist)))

	f.deepFetch(ctx, shortlist)
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	f.send(emit, domain.StageClassifying, 70, fmt.Sprintf("reviewing %d screenshots", len(shortlist)))
	screenVerdicts := f.classifyBatches(ctx, target, shortlist, func(c domain.Candidate) []byte {
		return c.Screenshot
	})
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	for i := range shortlist {
		// A screenshot verdict supersedes the thumbnail one; a failed
		// screenshot keeps the thumbnail verdict.
		if screenVerdicts[i] != nil {
			shortlist[i].Vision = screenVerdicts[i]
		}
	}

	return Outcome{Candidates: shortlist, FastTracked: false, PoolSize: len(pool)}, nil
}

// fastTrack reports the first candidate whose thumbnail verdict is
// strong enough to skip the deep stage.
func (f *Fetcher) fastTrack(pool []domain.Candidate) (string, bool) {
	for _, c := range pool {
		if c.Vision == nil {
			continue
		}
		if c.Vision.Relevance >= f.cfg.FastTrackVisual {
			return c.Identity, true
		}
		if 0.5*c.TextScore+0.5*c.Vision.Relevance >= f.cfg.FastTrackCombined {
			return c.Identity, true
		}
	}
	return "", false
}

// downloadBatches fetches one image per candidate in fixed-size
// batches, results indexed by submission order. Missing URLs and
// failed downloads leave nil bytes.
func (f *Fetcher) downloadBatches(ctx context.Context, pool []domain.Candidate, kind string, urlOf func(domain.Candidate) string) [][]byte {
	out := make([][]byte, len(pool))
	if f.images == nil {
		return out
	}

	for start := 0; start < len(pool); start += f.cfg.FetchConcurrency {
		end := start + f.cfg.FetchConcurrency
		if end > len(pool) {
			end = len(pool)
		}

		sem := semaphore.NewWeighted(int64(f.cfg.FetchConcurrency))
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(index int) {
				defer wg.Done()

				rawURL := urlOf(pool[index])
				if rawURL == "" {
					return
				}
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				defer sem.Release(1)

				callCtx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
				defer cancel()

				data, err := f.images.Fetch(callCtx, rawURL)
				if err != nil {
					metrics.MetadataFetchesTotal.WithLabelValues(kind, "error").Inc()
					f.logger.Debug("image fetch failed",
						slog.String("kind", kind),
						slog.String("identity", pool[index].Identity),
						slog.String("error", err.Error()),
					)
					return
				}
				metrics.MetadataFetchesTotal.WithLabelValues(kind, "ok").Inc()
				out[index] = data
			}(i)
		}
		wg.Wait()

		if ctx.Err() != nil {
			return out
		}
	}
	return out
}

// classifyBatches runs the vision classifier over candidates that have
// image bytes, in fixed-size batches, results indexed by submission
// order. A failed classification leaves a nil verdict.
func (f *Fetcher) classifyBatches(ctx context.Context, target domain.SemanticTarget, pool []domain.Candidate, imageOf func(domain.Candidate) []byte) []*domain.VisionVerdict {
	out := make([]*domain.VisionVerdict, len(pool))
	if f.classifier == nil {
		return out
	}

	for start := 0; start < len(pool); start += f.cfg.VisionConcurrency {
		end := start + f.cfg.VisionConcurrency
		if end > len(pool) {
			end = len(pool)
		}

		sem := semaphore.NewWeighted(int64(f.cfg.VisionConcurrency))
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(index int) {
				defer wg.Done()

				image := imageOf(pool[index])
				if len(image) == 0 {
					return
				}
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				defer sem.Release(1)

				verdict, err := f.classifier.Classify(ctx, image, target)
				if err != nil {
					f.logger.Debug("classification failed",
						slog.String("identity", pool[index].Identity),
						slog.String("error", err.Error()),
					)
					return
				}
				out[index] = &verdict
			}(i)
		}
		wg.Wait()

		if ctx.Err() != nil {
			return out
		}
	}
	return out
}

// deepFetch loads catalog detail and a screenshot for each shortlisted
// candidate, one pooled task per candidate. Failures leave the
// candidate with whatever it already had.
func (f *Fetcher) deepFetch(ctx context.Context, shortlist []domain.Candidate) {
	if f.detail == nil {
		return
	}

	sem := semaphore.NewWeighted(int64(f.cfg.FetchConcurrency))
	var wg sync.WaitGroup
	for i := range shortlist {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			callCtx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
			defer cancel()

			detail, err := f.detail(callCtx, shortlist[index])
			if err != nil {
				metrics.MetadataFetchesTotal.WithLabelValues("detail", "error").Inc()
				if !errors.Is(err, context.Canceled) {
					f.logger.Warn("detail fetch failed",
						slog.String("identity", shortlist[index].Identity),
						slog.String("error", err.Error()),
					)
				}
				return
			}
			metrics.MetadataFetchesTotal.WithLabelValues("detail", "ok").Inc()
			shortlist[index].Detail = &detail

			if detail.ScreenshotURL == "" || f.images == nil {
				return
			}
			shotCtx, cancelShot := context.WithTimeout(ctx, f.cfg.FetchTimeout)
			defer cancelShot()

			data, err := f.images.Fetch(shotCtx, detail.ScreenshotURL)
			if err != nil {
				metrics.MetadataFetchesTotal.WithLabelValues("screenshot", "error").Inc()
				f.logger.Debug("screenshot fetch failed",
					slog.String("identity", shortlist[index].Identity),
					slog.String("error", err.Error()),
				)
				return
			}
			metrics.MetadataFetchesTotal.WithLabelValues("screenshot", "ok").Inc()
			shortlist[index].Screenshot = data
		}(i)
	}
	wg.Wait()
}

// trimByCombined keeps the top n candidates by 0.5*text+0.5*visual,
// blending missing verdicts against the neutral relevance. The stable
// sort preserves text-rank order on ties.
func trimByCombined(pool []domain.Candidate, n int) []domain.Candidate {
	trimmed := make([]domain.Candidate, len(pool))
	copy(trimmed, pool)
	sort.SliceStable(trimmed, func(i, j int) bool {
		return combinedSignal(trimmed[i]) > combinedSignal(trimmed[j])
	})
	if len(trimmed) > n {
		trimmed = trimmed[:n]
	}
	return trimmed
}

func combinedSignal(c domain.Candidate) float64 {
	relevance := domain.NeutralReviewVerdict().Relevance
	if c.Vision != nil {
		relevance = c.Vision.Relevance
	}
	return 0.5*c.TextScore + 0.5*relevance
}

func (f *Fetcher) send(emit EmitFunc, stage domain.ProgressStage, percent int, message string) {
	if emit == nil {
		return
	}
	emit(stage, percent, message)
}
