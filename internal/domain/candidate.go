package domain

import "strings"

type VerdictKind string

const (
	VerdictConfirmed VerdictKind = "CONFIRMED"
	VerdictPossible  VerdictKind = "POSSIBLE"
	VerdictNoMatch   VerdictKind = "NO_MATCH"
	VerdictReview    VerdictKind = "REVIEW"
)

func NormalizeVerdictKind(raw string) VerdictKind {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(VerdictConfirmed):
		return VerdictConfirmed
	case string(VerdictPossible):
		return VerdictPossible
	case string(VerdictNoMatch):
		return VerdictNoMatch
	default:
		return VerdictReview
	}
}

type VisionVerdict struct {
	Relevance     float64     `json:"relevance"`
	Kind          VerdictKind `json:"kind"`
	WrongLocation bool        `json:"wrongLocation,omitempty"`
	StrongReject  bool        `json:"strongReject,omitempty"`
	Notes         string      `json:"notes,omitempty"`
}

// NeutralReviewVerdict stands in when the classifier is unavailable or
// answers below the confidence floor. It neither boosts nor buries.
func NeutralReviewVerdict() VisionVerdict {
	return VisionVerdict{Relevance: 50, Kind: VerdictReview}
}

type Candidate struct {
	Clip

	SourceQuery    string `json:"sourceQuery"`
	Priority       int    `json:"priority"`
	DiscoveryOrder int    `json:"discoveryOrder"`

	Detail     *ClipDetail `json:"detail,omitempty"`
	Thumbnail  []byte      `json:"-"`
	Screenshot []byte      `json:"-"`

	TextScore  float64        `json:"textScore"`
	TextFlags  []string       `json:"textFlags,omitempty"`
	Vision     *VisionVerdict `json:"vision,omitempty"`
	FinalScore float64        `json:"finalScore"`
	RankFlags  []string       `json:"rankFlags,omitempty"`
}

func (c Candidate) HasFlag(flag string) bool {
	for _, f := range c.RankFlags {
		if f == flag {
			return true
		}
	}
	return false
}
