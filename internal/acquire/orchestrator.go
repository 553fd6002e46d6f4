package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"newsreel/discoveryservice/internal/domain"
	"newsreel/discoveryservice/internal/metrics"
	"newsreel/discoveryservice/internal/rotation"
)

// AttemptState is the per-candidate acquisition FSM state.
type AttemptState int

const (
	StateAttempting AttemptState = iota
	StateWaiting                 // Deferred asset, polling readiness
	StateSuccess                 // Terminal: asset acquired
	StateDeferred                // Terminal: skipped per deferred policy
	StateFailed                  // Terminal: recorded reason, advance
	StateCancelled               // Terminal: caller abandoned the run
)

var attemptStateNames = [...]string{
	"attempting", "waiting", "success", "deferred", "failed", "cancelled",
}

func (s AttemptState) String() string {
	if int(s) < len(attemptStateNames) {
		return attemptStateNames[s]
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// AcquireFunc performs the catalog acquisition call for one candidate.
// The engine binds it to the right catalog client.
type AcquireFunc func(ctx context.Context, candidate domain.Candidate) (domain.AcquireReceipt, error)

// ProgressFunc receives best-effort run progress for UI display.
type ProgressFunc func(stage domain.ProgressStage, percent int, message string)

type Config struct {
	MinScore       float64       // skip candidates scoring below this
	EmergencyFloor float64       // relaxed floor for the fallback pass
	WaitInterval   time.Duration // readiness poll interval in wait mode
	WaitTimeout    time.Duration // wall-clock budget for wait mode
	WaitSubChunks  int           // cancellation checks per interval
}

func DefaultConfig() Config {
	return Config{
		MinScore:       15,
		EmergencyFloor: 10,
		WaitInterval:   5 * time.Second,
		WaitTimeout:    4 * time.Minute,
		WaitSubChunks:  5,
	}
}

// Options are per-run knobs for Run.
type Options struct {
	// WaitForBest enables the bounded wait-for-preparation mode for the
	// first attempted candidate only.
	WaitForBest bool
	// SequenceIndex is the segment position, used for anti-repeat
	// selection and window aging.
	SequenceIndex int
	// Progress, when set, receives stage events during the run.
	Progress ProgressFunc
}

// Orchestrator walks a ranked candidate list and acquires the first one
// that works. Deferred assets are blacklisted and skipped by default;
// only the best candidate may wait for preparation, and only when the
// caller asks for it.
type Orchestrator struct {
	acquire   AcquireFunc
	window    *rotation.Window
	blacklist *Blacklist
	cfg       Config
	logger    *slog.Logger
}

func NewOrchestrator(acquireFn AcquireFunc, window *rotation.Window, blacklist *Blacklist, cfg Config, logger *slog.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.MinScore <= 0 {
		cfg.MinScore = def.MinScore
	}
	if cfg.EmergencyFloor <= 0 {
		cfg.EmergencyFloor = def.EmergencyFloor
	}
	if cfg.WaitInterval <= 0 {
		cfg.WaitInterval = def.WaitInterval
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = def.WaitTimeout
	}
	if cfg.WaitSubChunks <= 0 {
		cfg.WaitSubChunks = def.WaitSubChunks
	}
	if window == nil {
		window = rotation.NewWindow(0)
	}
	if blacklist == nil {
		blacklist = NewBlacklist()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		acquire:   acquireFn,
		window:    window,
		blacklist: blacklist,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run attempts the ranked candidates until one acquisition succeeds.
// The anti-repeat window picks the starting candidate; the rest follow
// in rank order with wait mode disabled. Candidates scoring below the
// minimum are skipped without a catalog call; if everything is skipped
// or fails, one emergency pass relaxes the floor before reporting total
// exhaustion. The cancellation predicate is polled before every
// candidate and within every wait sub-interval; cancellation aborts
// immediately without marking the remaining candidates failed.
func (o *Orchestrator) Run(ctx context.Context, ranked []domain.Candidate, cancel domain.CancelCheck, opts Options) (domain.AcquisitionResult, error) {
	if len(ranked) == 0 {
		return domain.AcquisitionResult{}, &domain.ExhaustionError{}
	}

	start, repeatAllowed := o.window.Select(ranked, opts.SequenceIndex)
	order := attemptOrder(ranked, start.Identity)
	rankOf := make(map[string]int, len(ranked))
	for i, candidate := range ranked {
		rankOf[candidate.Identity] = i + 1
	}

	var skipped []domain.SkippedCandidate
	skipScore := make(map[string]struct{})

	for i, candidate := range order {
		if runCancelled(ctx, cancel) {
			return domain.AcquisitionResult{}, cancelErr(ctx)
		}

		rank := rankOf[candidate.Identity]
		if reason, listed := o.blacklist.Reason(candidate.Identity); listed {
			skipped = append(skipped, skip(candidate, rank, "blacklisted: "+reason))
			continue
		}
		if candidate.FinalScore < o.cfg.MinScore {
			skipped = append(skipped, skip(candidate, rank,
				fmt.Sprintf("score %.0f below minimum %.0f", candidate.FinalScore, o.cfg.MinScore)))
			skipScore[candidate.Identity] = struct{}{}
			continue
		}

		waitEnabled := i == 0 && opts.WaitForBest
		o.emit(opts, domain.StageAcquiring, percentOf(i, len(order)),
			fmt.Sprintf("attempting %q (rank %d)", candidate.Title, rank))

		job := o.runAttempt(ctx, candidate, cancel, waitEnabled, opts)
		switch job.currentState() {
		case StateSuccess:
			return o.succeed(candidate, rank, job.receipt, repeatAllowed && candidate.Identity == start.Identity, skipped, opts), nil
		case StateCancelled:
			return domain.AcquisitionResult{}, cancelErr(ctx)
		case StateDeferred:
			o.blacklist.Add(candidate.Identity, "deferred for server-side preparation")
			skipped = append(skipped, skip(candidate, rank, "deferred for server-side preparation"))
		case StateFailed:
			skipped = append(skipped, skip(candidate, rank, failReason(job.err)))
		}
	}

	// Emergency pass: relax the floor for candidates that were skipped
	// on score alone and never attempted.
	for i, candidate := range order {
		if _, scoreSkipped := skipScore[candidate.Identity]; !scoreSkipped {
			continue
		}
		if candidate.FinalScore < o.cfg.EmergencyFloor {
			continue
		}
		if runCancelled(ctx, cancel) {
			return domain.AcquisitionResult{}, cancelErr(ctx)
		}

		rank := rankOf[candidate.Identity]
		o.logger.Warn("emergency acquisition pass",
			slog.String("identity", candidate.Identity),
			slog.Float64("score", candidate.FinalScore),
		)
		o.emit(opts, domain.StageAcquiring, percentOf(i, len(order)),
			fmt.Sprintf("emergency attempt %q (rank %d)", candidate.Title, rank))

		job := o.runAttempt(ctx, candidate, cancel, false, opts)
		switch job.currentState() {
		case StateSuccess:
			return o.succeed(candidate, rank, job.receipt, false, skipped, opts), nil
		case StateCancelled:
			return domain.AcquisitionResult{}, cancelErr(ctx)
		case StateDeferred:
			o.blacklist.Add(candidate.Identity, "deferred for server-side preparation")
			skipped = append(skipped, skip(candidate, rank, "deferred for server-side preparation"))
		case StateFailed:
			skipped = append(skipped, skip(candidate, rank, failReason(job.err)))
		}
	}

	o.emit(opts, domain.StageFailed, 100, "all candidates exhausted")
	return domain.AcquisitionResult{}, &domain.ExhaustionError{Skipped: skipped}
}

func (o *Orchestrator) succeed(candidate domain.Candidate, rank int, receipt domain.AcquireReceipt, repeat bool, skipped []domain.SkippedCandidate, opts Options) domain.AcquisitionResult {
	o.window.MarkUsed(candidate.Identity, opts.SequenceIndex)
	o.emit(opts, domain.StageDone, 100, fmt.Sprintf("acquired %q", candidate.Title))

	return domain.AcquisitionResult{
		Asset: domain.AcquiredAsset{
			Identity:    candidate.Identity,
			Title:       candidate.Title,
			AssetURL:    receipt.AssetURL,
			Attribution: receipt.Attribution,
			Catalog:     candidate.Catalog,
			AcquiredAt:  time.Now().UTC(),
		},
		AttributionText: receipt.Attribution,
		CandidateRank:   rank,
		Skipped:         skipped,
		RepeatUsed:      repeat,
	}
}

// ---------------------------------------------------------------------------
// Per-candidate FSM
// ---------------------------------------------------------------------------

type attemptJob struct {
	mu        sync.Mutex
	state     AttemptState
	candidate domain.Candidate
	receipt   domain.AcquireReceipt
	err       error
	logger    *slog.Logger
}

func (j *attemptJob) currentState() AttemptState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *attemptJob) transitionTo(next AttemptState) {
	j.mu.Lock()
	from := j.state
	j.state = next
	j.mu.Unlock()
	metrics.AcquisitionTransitionsTotal.WithLabelValues(from.String(), next.String()).Inc()
	j.logger.Info("acquisition state transition",
		slog.String("identity", j.candidate.Identity),
		slog.String("from", from.String()),
		slog.String("to", next.String()),
	)
}

func (j *attemptJob) fail(err error) {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
	j.transitionTo(StateFailed)
}

func (j *attemptJob) succeedWith(receipt domain.AcquireReceipt) {
	j.mu.Lock()
	j.receipt = receipt
	j.mu.Unlock()
	j.transitionTo(StateSuccess)
}

func (o *Orchestrator) runAttempt(ctx context.Context, candidate domain.Candidate, cancel domain.CancelCheck, wait bool, opts Options) *attemptJob {
	job := &attemptJob{state: StateAttempting, candidate: candidate, logger: o.logger}

	for {
		switch job.currentState() {
		case StateAttempting:
			o.doAttempt(ctx, job, cancel, wait)
		case StateWaiting:
			o.doWait(ctx, job, cancel, opts)
		default:
			return job
		}
	}
}

// doAttempt issues one direct acquisition call.
func (o *Orchestrator) doAttempt(ctx context.Context, job *attemptJob, cancel domain.CancelCheck, wait bool) {
	receipt, err := o.acquire(ctx, job.candidate)
	if err != nil {
		if runCancelled(ctx, cancel) || errors.Is(err, context.Canceled) {
			job.transitionTo(StateCancelled)
			return
		}
		job.fail(err)
		return
	}

	switch receipt.Status {
	case domain.AcquireReady:
		job.succeedWith(receipt)
	case domain.AcquireDeferred:
		if wait {
			job.transitionTo(StateWaiting)
			return
		}
		job.transitionTo(StateDeferred)
	default:
		job.fail(fmt.Errorf("unexpected acquire status %q", receipt.Status))
	}
}

// doWait polls readiness for a deferred asset on a fixed interval up to
// the wall-clock timeout, slicing each interval into sub-chunks so the
// cancellation predicate is honored within about a second.
func (o *Orchestrator) doWait(ctx context.Context, job *attemptJob, cancel domain.CancelCheck, opts Options) {
	started := time.Now()
	deadline := started.Add(o.cfg.WaitTimeout)
	subChunk := o.cfg.WaitInterval / time.Duration(o.cfg.WaitSubChunks)
	defer func() {
		metrics.AcquisitionWaitDuration.Observe(time.Since(started).Seconds())
	}()

	o.emit(opts, domain.StageWaiting, 0,
		fmt.Sprintf("waiting for %q to be prepared", job.candidate.Title))

	for {
		for i := 0; i < o.cfg.WaitSubChunks; i++ {
			if runCancelled(ctx, cancel) {
				job.transitionTo(StateCancelled)
				return
			}
			if !time.Now().Before(deadline) {
				job.fail(fmt.Errorf("preparation timed out after %s", o.cfg.WaitTimeout))
				return
			}
			select {
			case <-time.After(subChunk):
			case <-ctx.Done():
				job.transitionTo(StateCancelled)
				return
			}
		}

		receipt, err := o.acquire(ctx, job.candidate)
		if err != nil {
			if runCancelled(ctx, cancel) || errors.Is(err, context.Canceled) {
				job.transitionTo(StateCancelled)
				return
			}
			// Preparation polls ride out transient errors; the deadline
			// bounds the whole wait.
			o.logger.Debug("readiness poll failed",
				slog.String("identity", job.candidate.Identity),
				slog.String("error", err.Error()),
			)
			continue
		}
		if receipt.Status == domain.AcquireReady {
			job.succeedWith(receipt)
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// attemptOrder puts the window-selected candidate first, the rest in
// rank order.
func attemptOrder(ranked []domain.Candidate, startIdentity string) []domain.Candidate {
	order := make([]domain.Candidate, 0, len(ranked))
	for _, candidate := range ranked {
		if candidate.Identity == startIdentity {
			order = append(order, candidate)
			break
		}
	}
	for _, candidate := range ranked {
		if candidate.Identity == startIdentity {
			continue
		}
		order = append(order, candidate)
	}
	return order
}

func runCancelled(ctx context.Context, cancel domain.CancelCheck) bool {
	if ctx.Err() != nil {
		return true
	}
	return cancel != nil && cancel()
}

func cancelErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrCancelled, err)
	}
	return domain.ErrCancelled
}

func skip(candidate domain.Candidate, rank int, reason string) domain.SkippedCandidate {
	return domain.SkippedCandidate{
		Identity: candidate.Identity,
		Title:    candidate.Title,
		Rank:     rank,
		Reason:   reason,
	}
}

func failReason(err error) string {
	if err == nil {
		return "acquisition failed"
	}
	return "acquisition failed: " + err.Error()
}

func percentOf(index, total int) int {
	if total <= 0 {
		return 0
	}
	return index * 100 / total
}

func (o *Orchestrator) emit(opts Options, stage domain.ProgressStage, percent int, message string) {
	if opts.Progress == nil {
		return
	}
	opts.Progress(stage, percent, message)
}
