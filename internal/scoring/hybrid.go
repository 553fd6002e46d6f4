package scoring

import (
	"sort"
	"strings"

	"newsreel/discoveryservice/internal/domain"
)

// Blend weights and overlay deltas. PERSON runs lean on the classifier,
// FOOTAGE runs lean on text metadata.
const (
	personTextWeight    = 0.30
	personVisionWeight  = 0.70
	footageTextWeight   = 0.60
	footageVisionWeight = 0.40

	confirmedBonus      = 30.0
	possibleBonus       = 5.0
	noMatchPenalty      = 50.0
	strongRejectPenalty = 20.0
	nameTextBonus       = 15.0

	wrongLocationPenalty = 60.0
	strongVisualBonus    = 20.0
	decentVisualBonus    = 10.0
	weakVisualPenalty    = 30.0

	strongVisualFloor = 80.0
	decentVisualFloor = 65.0
	weakVisualCeiling = 40.0
)

// BlendScore folds the vision verdict into the text score for one
// candidate: mode-weighted average, then overlay deltas, then clamp.
// Candidates that were never classified blend against the neutral
// REVIEW verdict.
func BlendScore(c domain.Candidate, mode domain.SegmentMode) (float64, []string) {
	verdict := verdictOf(c)

	var score float64
	var flags []string
	add := func(name string, points float64) {
		score += points
		flags = append(flags, scoreFlag(name, points))
	}

	if mode == domain.ModePerson {
		score = personTextWeight*c.TextScore + personVisionWeight*verdict.Relevance
		switch verdict.Kind {
		case domain.VerdictConfirmed:
			add("vision-confirmed", confirmedBonus)
		case domain.VerdictPossible:
			add("vision-possible", possibleBonus)
		case domain.VerdictNoMatch:
			add("vision-no-match", -noMatchPenalty)
			if verdict.StrongReject {
				add("vision-strong-reject", -strongRejectPenalty)
			}
		}
		if hasNameHit(c.TextFlags) {
			add("name-text", nameTextBonus)
		}
		return clampScore(score), flags
	}

	score = footageTextWeight*c.TextScore + footageVisionWeight*verdict.Relevance
	if verdict.WrongLocation {
		add("wrong-location", -wrongLocationPenalty)
	}
	switch {
	case verdict.Relevance >= strongVisualFloor:
		add("vision-strong", strongVisualBonus)
	case verdict.Relevance >= decentVisualFloor:
		add("vision-decent", decentVisualBonus)
	case verdict.Relevance < weakVisualCeiling:
		add("vision-weak", -weakVisualPenalty)
	}
	return clampScore(score), flags
}

// Rank orders candidates in place. PERSON: confirmed > possible > the
// rest, score inside each tier. FOOTAGE: every wrong-location candidate
// sinks below every unflagged one regardless of score. Ties keep the
// aggregation order (priority, discovery) via the stable sort.
func Rank(candidates []domain.Candidate, mode domain.SegmentMode) {
	if mode == domain.ModePerson {
		sort.SliceStable(candidates, func(i, j int) bool {
			ti, tj := personTier(candidates[i]), personTier(candidates[j])
			if ti != tj {
				return ti < tj
			}
			return candidates[i].FinalScore > candidates[j].FinalScore
		})
		return
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		wi, wj := wrongLocation(candidates[i]), wrongLocation(candidates[j])
		if wi != wj {
			return !wi
		}
		return candidates[i].FinalScore > candidates[j].FinalScore
	})
}

// Finalize blends every candidate and sorts the slice.
func Finalize(candidates []domain.Candidate, mode domain.SegmentMode) {
	for i := range candidates {
		score, flags := BlendScore(candidates[i], mode)
		candidates[i].FinalScore = score
		candidates[i].RankFlags = flags
	}
	Rank(candidates, mode)
}

func verdictOf(c domain.Candidate) domain.VisionVerdict {
	if c.Vision != nil {
		return *c.Vision
	}
	return domain.NeutralReviewVerdict()
}

func personTier(c domain.Candidate) int {
	switch verdictOf(c).Kind {
	case domain.VerdictConfirmed:
		return 0
	case domain.VerdictPossible:
		return 1
	default:
		return 2
	}
}

func wrongLocation(c domain.Candidate) bool {
	return c.Vision != nil && c.Vision.WrongLocation
}

// hasNameHit reports a positive person-name text rule, never the
// absence penalty.
func hasNameHit(flags []string) bool {
	for _, flag := range flags {
		if strings.HasPrefix(flag, "person-name+") {
			return true
		}
	}
	return false
}
