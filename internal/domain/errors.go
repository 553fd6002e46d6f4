package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPlannerFailure    = errors.New("query planner failed")
	ErrCatalogTransient  = errors.New("catalog temporarily unavailable")
	ErrMetadataFetch     = errors.New("metadata fetch failed")
	ErrVisionFailure     = errors.New("vision classification failed")
	ErrAssetDeferred     = errors.New("asset deferred for preparation")
	ErrAcquisitionFailed = errors.New("acquisition failed")
	ErrCancelled         = errors.New("cancelled by caller")

	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// ExhaustionError is returned once when every candidate in a ranked list
// has been tried or skipped, carrying the per-candidate reasons.
type ExhaustionError struct {
	Skipped []SkippedCandidate
}

func (e *ExhaustionError) Error() string {
	if len(e.Skipped) == 0 {
		return "no candidates left to acquire"
	}
	reasons := make([]string, 0, len(e.Skipped))
	for _, s := range e.Skipped {
		reasons = append(reasons, fmt.Sprintf("#%d %s: %s", s.Rank, s.Identity, s.Reason))
	}
	return "all candidates exhausted: " + strings.Join(reasons, "; ")
}
