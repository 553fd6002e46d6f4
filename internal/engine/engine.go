package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"newsreel/discoveryservice/internal/acquire"
	"newsreel/discoveryservice/internal/domain"
	"newsreel/discoveryservice/internal/metadata"
	"newsreel/discoveryservice/internal/planner"
	"newsreel/discoveryservice/internal/scoring"
)

var ErrEmptySegment = errors.New("headline or text is required")

const defaultRunMemory = 32

// Aggregator runs a query plan against the catalogs.
type Aggregator interface {
	Aggregate(ctx context.Context, plan domain.QueryPlan, excludeIdentities []string) (domain.AggregateResult, error)
}

// Enricher is the thumbnail/detail/vision pipeline.
type Enricher interface {
	Run(ctx context.Context, target domain.SemanticTarget, candidates []domain.Candidate, emit metadata.EmitFunc) (metadata.Outcome, error)
}

// Acquirer walks a ranked list until one acquisition succeeds.
type Acquirer interface {
	Run(ctx context.Context, ranked []domain.Candidate, cancel domain.CancelCheck, opts acquire.Options) (domain.AcquisitionResult, error)
}

// AssetStore persists acquired assets. Optional.
type AssetStore interface {
	Save(ctx context.Context, record domain.AssetRecord) error
}

// UsageStore persists clip placements for window seeding. Optional.
type UsageStore interface {
	Record(ctx context.Context, entry domain.UsageEntry) error
}

type Deps struct {
	Planner  planner.Planner
	Search   Aggregator
	Scorer   *scoring.TextScorer
	Fetcher  Enricher
	Acquirer Acquirer
	Assets   AssetStore
	Usage    UsageStore
	Logger   *slog.Logger

	// RunMemory bounds the in-memory index of recent discovery
	// results kept for acquisition by run id.
	RunMemory int
}

// Engine is one discovery session: plan, sweep, score, enrich, rank,
// acquire. Safe for concurrent runs; the run index and event fanout
// are mutex-guarded.
type Engine struct {
	planner  planner.Planner
	search   Aggregator
	scorer   *scoring.TextScorer
	fetcher  Enricher
	acquirer Acquirer
	assets   AssetStore
	usage    UsageStore
	events   *Broadcaster
	logger   *slog.Logger

	runMu  sync.Mutex
	runs   map[string]domain.DiscoverResult
	runIDs []string
	memory int
}

func New(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scorer := deps.Scorer
	if scorer == nil {
		scorer = scoring.NewTextScorer(scoring.DefaultConfig())
	}
	memory := deps.RunMemory
	if memory <= 0 {
		memory = defaultRunMemory
	}
	return &Engine{
		planner:  deps.Planner,
		search:   deps.Search,
		scorer:   scorer,
		fetcher:  deps.Fetcher,
		acquirer: deps.Acquirer,
		assets:   deps.Assets,
		usage:    deps.Usage,
		events:   NewBroadcaster(),
		logger:   logger,
		runs:     make(map[string]domain.DiscoverResult),
		memory:   memory,
	}
}

// Subscribe returns a progress event stream and its cancel func.
func (e *Engine) Subscribe() (<-chan domain.ProgressEvent, func()) {
	return e.events.Subscribe()
}

// Discover plans queries for the segment, sweeps the catalog, scores
// and enriches candidates, and returns them ranked. Read-only: nothing
// is acquired and no state beyond the run index changes.
func (e *Engine) Discover(ctx context.Context, req domain.DiscoverRequest) (domain.DiscoverResult, error) {
	headline := strings.TrimSpace(req.Headline)
	body := strings.TrimSpace(req.Text)
	if headline == "" && body == "" {
		return domain.DiscoverResult{}, ErrEmptySegment
	}

	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	startedAt := time.Now()
	emit := e.emitter(runID)

	emit(domain.StagePlanning, 0, "planning catalog queries")
	plan := e.plan(ctx, headline, body)

	emit(domain.StageSearching, 5, fmt.Sprintf("sweeping catalog with %d queries", len(plan.Queries)))
	agg, err := e.search.Aggregate(ctx, plan, req.ExcludeIdentities)
	if err != nil {
		emit(domain.StageFailed, 100, "catalog sweep failed")
		return domain.DiscoverResult{}, fmt.Errorf("aggregate: %w", err)
	}

	candidates := agg.Candidates
	for i := range candidates {
		score, flags := e.scorer.Score(candidates[i], plan.Target)
		candidates[i].TextScore = score
		candidates[i].TextFlags = flags
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].TextScore > candidates[j].TextScore
	})

	outcome, err := e.fetcher.Run(ctx, plan.Target, candidates, emit)
	if err != nil {
		emit(domain.StageFailed, 100, "enrichment aborted")
		return domain.DiscoverResult{}, fmt.Errorf("enrich: %w", err)
	}
	ranked := outcome.Candidates

	emit(domain.StageRanking, 85, fmt.Sprintf("ranking %d candidates", len(ranked)))
	for i := range ranked {
		// Deep metadata changes the text signal; score it once more
		// before the blend.
		if ranked[i].Detail != nil {
			score, flags := e.scorer.Score(ranked[i], plan.Target)
			ranked[i].TextScore = score
			ranked[i].TextFlags = flags
		}
	}
	scoring.Finalize(ranked, plan.Target.Mode)

	result := domain.DiscoverResult{
		RunID:      runID,
		Plan:       plan,
		Candidates: ranked,
		Diagnostics: domain.DiscoverDiagnostics{
			PlanSource:  plan.Source,
			Queries:     agg.Queries,
			Expanded:    agg.Expanded,
			FastTracked: outcome.FastTracked,
			TotalUnique: agg.TotalUnique,
			ElapsedMS:   time.Since(startedAt).Milliseconds(),
		},
	}
	e.rememberRun(result)

	emit(domain.StageDone, 100, fmt.Sprintf("%d candidates ranked", len(ranked)))
	e.logger.Info("discovery run completed",
		slog.String("runId", runID),
		slog.String("planSource", string(plan.Source)),
		slog.Int("unique", agg.TotalUnique),
		slog.Int("ranked", len(ranked)),
		slog.Bool("fastTracked", outcome.FastTracked),
		slog.Int64("elapsedMs", result.Diagnostics.ElapsedMS),
	)
	return result, nil
}

// plan asks the model planner and falls back to the deterministic plan
// on any failure. Discovery never dies on planner trouble.
func (e *Engine) plan(ctx context.Context, headline, body string) domain.QueryPlan {
	if e.planner != nil {
		plan, err := e.planner.Plan(ctx, headline, body)
		if err == nil {
			return plan
		}
		e.logger.Warn("query planner failed, using fallback",
			slog.String("error", err.Error()),
		)
	}
	return planner.FallbackPlan(headline, body)
}

type AcquireOptions struct {
	WaitForBest   bool
	SequenceIndex int
	// RunID ties the acquisition to a discovery run; a fresh id is
	// assigned when empty.
	RunID string
}

// AcquireBest walks the ranked candidates and acquires the first one
// that works, then records the asset and its placement.
func (e *Engine) AcquireBest(ctx context.Context, ranked []domain.Candidate, cancel domain.CancelCheck, opts AcquireOptions) (domain.AcquisitionResult, error) {
	runID := strings.TrimSpace(opts.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	emit := e.emitter(runID)

	result, err := e.acquirer.Run(ctx, ranked, cancel, acquire.Options{
		WaitForBest:   opts.WaitForBest,
		SequenceIndex: opts.SequenceIndex,
		Progress:      emit,
	})
	if err != nil {
		return domain.AcquisitionResult{}, err
	}

	e.persistAcquisition(runID, opts.SequenceIndex, result)
	e.logger.Info("acquisition completed",
		slog.String("runId", runID),
		slog.String("identity", result.Asset.Identity),
		slog.Int("rank", result.CandidateRank),
		slog.Bool("repeat", result.RepeatUsed),
	)
	return result, nil
}

// Run returns a recent discovery result by id.
func (e *Engine) Run(runID string) (domain.DiscoverResult, bool) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	result, ok := e.runs[runID]
	return result, ok
}

// persistAcquisition is bookkeeping after a successful run; a detached
// context keeps it alive past request cancellation, and failures are
// logged, never surfaced.
func (e *Engine) persistAcquisition(runID string, sequenceIndex int, result domain.AcquisitionResult) {
	if e.assets == nil && e.usage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if e.assets != nil {
		record := domain.AssetRecord{
			RunID:         runID,
			SequenceIndex: sequenceIndex,
			CandidateRank: result.CandidateRank,
			RepeatUsed:    result.RepeatUsed,
			Asset:         result.Asset,
		}
		if err := e.assets.Save(ctx, record); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			e.logger.Warn("asset save failed",
				slog.String("runId", runID),
				slog.String("error", err.Error()),
			)
		}
	}
	if e.usage != nil {
		entry := domain.UsageEntry{
			Identity:      result.Asset.Identity,
			SequenceIndex: sequenceIndex,
			RunID:         runID,
			UsedAt:        result.Asset.AcquiredAt,
		}
		if err := e.usage.Record(ctx, entry); err != nil {
			e.logger.Warn("usage record failed",
				slog.String("runId", runID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (e *Engine) rememberRun(result domain.DiscoverResult) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if _, exists := e.runs[result.RunID]; !exists {
		e.runIDs = append(e.runIDs, result.RunID)
	}
	e.runs[result.RunID] = result
	for len(e.runIDs) > e.memory {
		oldest := e.runIDs[0]
		e.runIDs = e.runIDs[1:]
		delete(e.runs, oldest)
	}
}

func (e *Engine) emitter(runID string) func(stage domain.ProgressStage, percent int, message string) {
	return func(stage domain.ProgressStage, percent int, message string) {
		e.events.Publish(domain.ProgressEvent{
			RunID:   runID,
			Stage:   stage,
			Percent: percent,
			Message: message,
			At:      time.Now().UTC(),
		})
	}
}
