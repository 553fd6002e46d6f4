package domain

import "time"

type AcquiredAsset struct {
	Identity    string    `json:"identity"`
	Title       string    `json:"title"`
	AssetURL    string    `json:"assetUrl"`
	Attribution string    `json:"attribution,omitempty"`
	Catalog     string    `json:"catalog,omitempty"`
	AcquiredAt  time.Time `json:"acquiredAt"`
}

type SkippedCandidate struct {
	Identity string `json:"identity"`
	Title    string `json:"title,omitempty"`
	Rank     int    `json:"rank"`
	Reason   string `json:"reason"`
}

type AcquisitionResult struct {
	Asset           AcquiredAsset      `json:"asset"`
	AttributionText string             `json:"attributionText,omitempty"`
	CandidateRank   int                `json:"candidateRank"`
	Skipped         []SkippedCandidate `json:"skipped,omitempty"`
	RepeatUsed      bool               `json:"repeatUsed,omitempty"`
}

// AssetRecord is one persisted acquisition with its run context.
type AssetRecord struct {
	RunID         string        `json:"runId"`
	SequenceIndex int           `json:"sequenceIndex"`
	CandidateRank int           `json:"candidateRank"`
	RepeatUsed    bool          `json:"repeatUsed,omitempty"`
	Asset         AcquiredAsset `json:"asset"`
}

// UsageEntry records one clip placement, persisted so the anti-repeat
// window survives restarts.
type UsageEntry struct {
	Identity      string    `json:"identity"`
	SequenceIndex int       `json:"sequenceIndex"`
	RunID         string    `json:"runId,omitempty"`
	UsedAt        time.Time `json:"usedAt"`
}

// CancelCheck reports whether the caller wants the current operation
// abandoned. Implementations must be cheap; it is polled frequently.
type CancelCheck func() bool
