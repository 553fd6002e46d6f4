package domain

import "strings"

type SegmentMode string

const (
	ModePerson  SegmentMode = "PERSON"
	ModeFootage SegmentMode = "FOOTAGE"
)

func NormalizeSegmentMode(raw string) SegmentMode {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(ModePerson):
		return ModePerson
	default:
		return ModeFootage
	}
}

type PlanSource string

const (
	PlanSourceModel    PlanSource = "planner"
	PlanSourceFallback PlanSource = "fallback"
)

// Query is a single catalog search string with its rank in the plan.
// Lower priority values run earlier and win ties during ranking.
type Query struct {
	Text     string `json:"text"`
	Priority int    `json:"priority"`
}

type SemanticTarget struct {
	Mode       SegmentMode `json:"mode"`
	PersonName string      `json:"personName,omitempty"`
	Country    string      `json:"country,omitempty"`
	MustShow   []string    `json:"mustShow,omitempty"`
	KeyVisuals []string    `json:"keyVisuals,omitempty"`
	Avoid      []string    `json:"avoid,omitempty"`
}

type QueryPlan struct {
	Target  SemanticTarget `json:"target"`
	Queries []Query        `json:"queries"`
	Source  PlanSource     `json:"source"`
}

type DiscoverRequest struct {
	Headline          string   `json:"headline"`
	Text              string   `json:"text"`
	SequenceIndex     int      `json:"sequenceIndex"`
	ExcludeIdentities []string `json:"excludeIdentities,omitempty"`

	// RunID pre-assigns the run identifier so callers can follow the
	// progress stream from the first event; assigned when empty.
	RunID string `json:"-"`
}

type DiscoverDiagnostics struct {
	PlanSource  PlanSource    `json:"planSource"`
	Queries     []QueryStatus `json:"queries"`
	Expanded    bool          `json:"expanded"`
	FastTracked bool          `json:"fastTracked"`
	TotalUnique int           `json:"totalUnique"`
	ElapsedMS   int64         `json:"elapsedMs"`
}

type DiscoverResult struct {
	RunID       string              `json:"runId"`
	Plan        QueryPlan           `json:"plan"`
	Candidates  []Candidate         `json:"candidates"`
	Diagnostics DiscoverDiagnostics `json:"diagnostics"`
}

// AggregateResult is the merged outcome of one multi-query catalog sweep.
type AggregateResult struct {
	Candidates  []Candidate   `json:"candidates"`
	Queries     []QueryStatus `json:"queries"`
	Expanded    bool          `json:"expanded"`
	TotalUnique int           `json:"totalUnique"`
	ElapsedMS   int64         `json:"elapsedMs"`
}
