package scoring

import (
	"testing"

	"newsreel/discoveryservice/internal/domain"
)

func rankedCandidate(identity string, text float64, vision *domain.VisionVerdict) domain.Candidate {
	return domain.Candidate{
		Clip:      domain.Clip{Identity: identity, Title: identity},
		TextScore: text,
		Vision:    vision,
	}
}

// ---------------------------------------------------------------------------
// Blend
// ---------------------------------------------------------------------------

func TestBlendScorePersonConfirmed(t *testing.T) {
	c := rankedCandidate("a", 80, &domain.VisionVerdict{Relevance: 90, Kind: domain.VerdictConfirmed})
	c.TextFlags = []string{"person-name+60"}

	score, flags := BlendScore(c, domain.ModePerson)
	// 0.3*80 + 0.7*90 = 87, +30 confirmed, +15 textual name, clamped.
	if score != 100 {
		t.Fatalf("score = %v, want 100", score)
	}
	if score < 90 {
		t.Fatalf("confirmed person match must clear 90, got %v", score)
	}
	if len(flags) != 2 || flags[0] != "vision-confirmed+30" || flags[1] != "name-text+15" {
		t.Fatalf("flags = %v", flags)
	}
}

func TestBlendScorePersonPossible(t *testing.T) {
	c := rankedCandidate("a", 50, &domain.VisionVerdict{Relevance: 60, Kind: domain.VerdictPossible})

	score, flags := BlendScore(c, domain.ModePerson)
	// 0.3*50 + 0.7*60 = 57, +5 possible.
	if !approxEqual(score, 62) {
		t.Fatalf("score = %v, want 62", score)
	}
	if len(flags) != 1 || flags[0] != "vision-possible+5" {
		t.Fatalf("flags = %v", flags)
	}
}

func TestBlendScorePersonStrongReject(t *testing.T) {
	c := rankedCandidate("a", 80, &domain.VisionVerdict{
		Relevance:    20,
		Kind:         domain.VerdictNoMatch,
		StrongReject: true,
	})

	score, flags := BlendScore(c, domain.ModePerson)
	// 0.3*80 + 0.7*20 = 38, -50 no-match, -20 strong reject, floored.
	if score != 0 {
		t.Fatalf("score = %v, want 0", score)
	}
	if len(flags) != 2 || flags[0] != "vision-no-match-50" || flags[1] != "vision-strong-reject-20" {
		t.Fatalf("flags = %v", flags)
	}
}

func TestBlendScorePersonIgnoresAbsencePenaltyFlag(t *testing.T) {
	c := rankedCandidate("a", 30, &domain.VisionVerdict{Relevance: 50, Kind: domain.VerdictReview})
	c.TextFlags = []string{"person-name-20"}

	_, flags := BlendScore(c, domain.ModePerson)
	for _, flag := range flags {
		if flag == "name-text+15" {
			t.Fatalf("absence penalty counted as a name hit: %v", flags)
		}
	}
}

func TestBlendScoreFootageOverlays(t *testing.T) {
	tests := []struct {
		name      string
		text      float64
		verdict   *domain.VisionVerdict
		wantScore float64
		wantFlags []string
	}{
		{
			name:      "strong visual",
			text:      70,
			verdict:   &domain.VisionVerdict{Relevance: 82, Kind: domain.VerdictConfirmed},
			wantScore: 0.6*70 + 0.4*82 + 20,
			wantFlags: []string{"vision-strong+20"},
		},
		{
			name:      "decent visual",
			text:      50,
			verdict:   &domain.VisionVerdict{Relevance: 70, Kind: domain.VerdictPossible},
			wantScore: 0.6*50 + 0.4*70 + 10,
			wantFlags: []string{"vision-decent+10"},
		},
		{
			name:      "weak visual",
			text:      50,
			verdict:   &domain.VisionVerdict{Relevance: 20, Kind: domain.VerdictNoMatch},
			wantScore: 0.6*50 + 0.4*20 - 30,
			wantFlags: []string{"vision-weak-30"},
		},
		{
			name:      "neutral band",
			text:      50,
			verdict:   &domain.VisionVerdict{Relevance: 50, Kind: domain.VerdictReview},
			wantScore: 50,
			wantFlags: nil,
		},
		{
			name:      "wrong location",
			text:      90,
			verdict:   &domain.VisionVerdict{Relevance: 85, Kind: domain.VerdictConfirmed, WrongLocation: true},
			wantScore: 0.6*90 + 0.4*85 - 60 + 20,
			wantFlags: []string{"wrong-location-60", "vision-strong+20"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, flags := BlendScore(rankedCandidate("a", tt.text, tt.verdict), domain.ModeFootage)
			if !approxEqual(score, tt.wantScore) {
				t.Fatalf("score = %v, want %v", score, tt.wantScore)
			}
			if len(flags) != len(tt.wantFlags) {
				t.Fatalf("flags = %v, want %v", flags, tt.wantFlags)
			}
			for i := range flags {
				if flags[i] != tt.wantFlags[i] {
					t.Fatalf("flags = %v, want %v", flags, tt.wantFlags)
				}
			}
		})
	}
}

func TestBlendScoreWithoutVerdictUsesNeutral(t *testing.T) {
	score, flags := BlendScore(rankedCandidate("a", 50, nil), domain.ModeFootage)
	if !approxEqual(score, 50) {
		t.Fatalf("score = %v, want 50 via neutral relevance", score)
	}
	if len(flags) != 0 {
		t.Fatalf("flags = %v, want none", flags)
	}
}

// ---------------------------------------------------------------------------
// Ordering
// ---------------------------------------------------------------------------

func TestRankPersonTiersBeforeScore(t *testing.T) {
	candidates := []domain.Candidate{
		rankedCandidate("review-high", 0, &domain.VisionVerdict{Relevance: 50, Kind: domain.VerdictReview}),
		rankedCandidate("possible", 0, &domain.VisionVerdict{Relevance: 50, Kind: domain.VerdictPossible}),
		rankedCandidate("confirmed-low", 0, &domain.VisionVerdict{Relevance: 50, Kind: domain.VerdictConfirmed}),
		rankedCandidate("confirmed-high", 0, &domain.VisionVerdict{Relevance: 50, Kind: domain.VerdictConfirmed}),
	}
	candidates[0].FinalScore = 99
	candidates[1].FinalScore = 95
	candidates[2].FinalScore = 40
	candidates[3].FinalScore = 70

	Rank(candidates, domain.ModePerson)

	want := []string{"confirmed-high", "confirmed-low", "possible", "review-high"}
	for i, id := range want {
		if candidates[i].Identity != id {
			t.Fatalf("position %d = %s, want %s (order %v)", i, candidates[i].Identity, id, candidates)
		}
	}
}

func TestRankFootageDemotesWrongLocation(t *testing.T) {
	candidates := []domain.Candidate{
		rankedCandidate("flagged", 0, &domain.VisionVerdict{Relevance: 90, WrongLocation: true}),
		rankedCandidate("low", 0, &domain.VisionVerdict{Relevance: 50}),
		rankedCandidate("high", 0, &domain.VisionVerdict{Relevance: 60}),
	}
	candidates[0].FinalScore = 90
	candidates[1].FinalScore = 20
	candidates[2].FinalScore = 50

	Rank(candidates, domain.ModeFootage)

	want := []string{"high", "low", "flagged"}
	for i, id := range want {
		if candidates[i].Identity != id {
			t.Fatalf("position %d = %s, want %s", i, candidates[i].Identity, id)
		}
	}
}

func TestRankKeepsAggregationOrderOnTies(t *testing.T) {
	candidates := []domain.Candidate{
		rankedCandidate("first", 0, nil),
		rankedCandidate("second", 0, nil),
	}
	candidates[0].FinalScore = 50
	candidates[1].FinalScore = 50

	Rank(candidates, domain.ModeFootage)

	if candidates[0].Identity != "first" || candidates[1].Identity != "second" {
		t.Fatalf("tie broke aggregation order: %s, %s", candidates[0].Identity, candidates[1].Identity)
	}
}

func TestFinalizeBlendsAndSorts(t *testing.T) {
	candidates := []domain.Candidate{
		rankedCandidate("flagged", 90, &domain.VisionVerdict{Relevance: 90, Kind: domain.VerdictConfirmed, WrongLocation: true}),
		rankedCandidate("clean", 20, &domain.VisionVerdict{Relevance: 50, Kind: domain.VerdictReview}),
	}

	Finalize(candidates, domain.ModeFootage)

	if candidates[0].Identity != "clean" {
		t.Fatalf("wrong-location candidate not demoted: %s first", candidates[0].Identity)
	}
	// 0.6*20 + 0.4*50 = 32 for the clean one.
	if !approxEqual(candidates[0].FinalScore, 32) {
		t.Fatalf("clean FinalScore = %v, want 32", candidates[0].FinalScore)
	}
	// 0.6*90 + 0.4*90 = 90, -60 wrong location, +20 strong visual.
	if !approxEqual(candidates[1].FinalScore, 50) {
		t.Fatalf("flagged FinalScore = %v, want 50", candidates[1].FinalScore)
	}
	if len(candidates[1].RankFlags) == 0 || candidates[1].RankFlags[0] != "wrong-location-60" {
		t.Fatalf("flagged RankFlags = %v", candidates[1].RankFlags)
	}
}
