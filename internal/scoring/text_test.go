package scoring

import (
	"math"
	"reflect"
	"testing"

	"newsreel/discoveryservice/internal/domain"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}

func footageCandidate(title string, tags ...string) domain.Candidate {
	return domain.Candidate{Clip: domain.Clip{Identity: "c1", Title: title, Tags: tags}}
}

// ---------------------------------------------------------------------------
// Full rule stack
// ---------------------------------------------------------------------------

func TestScoreFootageFullMatchClampsAtHundred(t *testing.T) {
	scorer := NewTextScorer(Config{})
	target := domain.SemanticTarget{
		Mode:       domain.ModeFootage,
		Country:    "Germany",
		MustShow:   []string{"flooded streets"},
		KeyVisuals: []string{"rescue boats"},
	}
	candidate := footageCandidate("Flooded streets in Germany", "rescue", "boats", "flood")

	score, flags := scorer.Score(candidate, target)
	if score != 100 {
		t.Fatalf("score = %v, want 100 (clamped)", score)
	}
	want := []string{"subject-overlap+40", "location+30", "key-visuals+20", "must-show+30"}
	if !reflect.DeepEqual(flags, want) {
		t.Fatalf("flags = %v, want %v", flags, want)
	}
}

func TestScoreUsesDetailMetadata(t *testing.T) {
	scorer := NewTextScorer(Config{})
	target := domain.SemanticTarget{
		Mode:       domain.ModeFootage,
		Country:    "Germany",
		MustShow:   []string{"flooded streets"},
		KeyVisuals: []string{"rescue boats"},
	}
	candidate := footageCandidate("City aerial")
	candidate.Detail = &domain.ClipDetail{
		Description: "flooded streets after storm",
		Location:    "Hamburg, Germany",
		Keywords:    []string{"rescue"},
	}

	score, flags := scorer.Score(candidate, target)
	// +40 subject overlap, +20 location (not in title), +30 must-show.
	if score != 90 {
		t.Fatalf("score = %v, want 90", score)
	}
	want := []string{"subject-overlap+40", "location+20", "must-show+30"}
	if !reflect.DeepEqual(flags, want) {
		t.Fatalf("flags = %v, want %v", flags, want)
	}
}

// ---------------------------------------------------------------------------
// Individual rules
// ---------------------------------------------------------------------------

func TestScoreSubjectOverlapScalesBelowThreeWords(t *testing.T) {
	scorer := NewTextScorer(Config{})
	target := domain.SemanticTarget{
		Mode:     domain.ModeFootage,
		MustShow: []string{"flooded village streets"},
	}
	candidate := footageCandidate("Village aerial view")

	score, _ := scorer.Score(candidate, target)
	// One of three subject words: 40/3 overlap + 30/3 must-show credit.
	if want := 40.0/3 + 10; !approxEqual(score, want) {
		t.Fatalf("score = %v, want %v", score, want)
	}
}

func TestScorePersonNameMatches(t *testing.T) {
	scorer := NewTextScorer(Config{})
	target := domain.SemanticTarget{Mode: domain.ModePerson, PersonName: "Olaf Scholz"}

	tests := []struct {
		name      string
		title     string
		wantScore float64
		wantFlag  string
	}{
		{"full name", "Olaf Scholz press conference", 60, "person-name+60"},
		{"surname only", "Chancellor Scholz in Berlin", 50, "person-name+50"},
		{"any token", "Olaf visits factory", 40, "person-name+40"},
		{"absent", "Berlin skyline at dusk", 0, "person-name-20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, flags := scorer.Score(footageCandidate(tt.title), target)
			if score != tt.wantScore {
				t.Fatalf("score = %v, want %v", score, tt.wantScore)
			}
			if len(flags) != 1 || flags[0] != tt.wantFlag {
				t.Fatalf("flags = %v, want [%s]", flags, tt.wantFlag)
			}
		})
	}
}

func TestScorePersonNameFoldsAccents(t *testing.T) {
	scorer := NewTextScorer(Config{})
	target := domain.SemanticTarget{Mode: domain.ModePerson, PersonName: "Recep Tayyip Erdoğan"}

	score, flags := scorer.Score(footageCandidate("Erdogan press conference"), target)
	if score != 50 {
		t.Fatalf("score = %v, want 50 (surname match through folding)", score)
	}
	if len(flags) != 1 || flags[0] != "person-name+50" {
		t.Fatalf("flags = %v", flags)
	}
}

func TestScoreClusterBonus(t *testing.T) {
	scorer := NewTextScorer(Config{})
	target := domain.SemanticTarget{Mode: domain.ModeFootage, KeyVisuals: []string{"flood"}}

	score, flags := scorer.Score(footageCandidate("Flooded road after heavy rain"), target)
	// "flood" triggers the weather cluster; four vocabulary hits cap the bonus.
	if score != 25 {
		t.Fatalf("score = %v, want 25", score)
	}
	want := []string{"cluster+25"}
	if !reflect.DeepEqual(flags, want) {
		t.Fatalf("flags = %v, want %v", flags, want)
	}
}

func TestScoreClusterNotAlignedWithoutTrigger(t *testing.T) {
	scorer := NewTextScorer(Config{})
	target := domain.SemanticTarget{Mode: domain.ModeFootage, KeyVisuals: []string{"knitting"}}

	score, flags := scorer.Score(footageCandidate("Flooded road after heavy rain"), target)
	if score != 0 || len(flags) != 0 {
		t.Fatalf("score = %v flags = %v, want no cluster credit", score, flags)
	}
}

func TestScoreMarqueePenalty(t *testing.T) {
	scorer := NewTextScorer(Config{})
	target := domain.SemanticTarget{Mode: domain.ModeFootage, KeyVisuals: []string{"storm"}}

	score, flags := scorer.Score(footageCandidate("SHOCKING storm compilation"), target)
	if score != 0 {
		t.Fatalf("score = %v, want 0 (two marquee hits sink it)", score)
	}
	found := false
	for _, flag := range flags {
		if flag == "marquee-50" {
			found = true
		}
	}
	if !found {
		t.Fatalf("flags = %v, want marquee-50", flags)
	}
}

func TestScoreMarqueeSkippedWhenSubjectAsksForIt(t *testing.T) {
	scorer := NewTextScorer(Config{})
	target := domain.SemanticTarget{Mode: domain.ModeFootage, MustShow: []string{"crowd reaction"}}

	score, flags := scorer.Score(footageCandidate("Crowd reaction at stadium"), target)
	for _, flag := range flags {
		if flag == "marquee-25" || flag == "marquee-50" {
			t.Fatalf("marquee fired for an on-subject keyword: %v", flags)
		}
	}
	// 40*2/3 subject overlap + 30 must-show.
	if want := 80.0/3 + 30; !approxEqual(score, want) {
		t.Fatalf("score = %v, want %v", score, want)
	}
}

// ---------------------------------------------------------------------------
// Construction and helpers
// ---------------------------------------------------------------------------

func TestNewTextScorerDefaults(t *testing.T) {
	scorer := NewTextScorer(Config{})
	if scorer.cfg != DefaultConfig() {
		t.Fatalf("cfg = %+v, want defaults", scorer.cfg)
	}

	custom := NewTextScorer(Config{KeyVisualBonus: 5})
	if custom.cfg.KeyVisualBonus != 5 {
		t.Fatalf("KeyVisualBonus = %v, want 5", custom.cfg.KeyVisualBonus)
	}
	if custom.cfg.MustShowBonus != DefaultConfig().MustShowBonus {
		t.Fatalf("MustShowBonus = %v, want default", custom.cfg.MustShowBonus)
	}
}

func TestTokenizeFoldsAndLowercases(t *testing.T) {
	got := tokenize("São Paulo, Top 10!")
	want := []string{"sao", "paulo", "top", "10"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tokenize = %v, want %v", got, want)
	}
}

func TestSignificantTokensDropsNoise(t *testing.T) {
	got := significantTokens("The flood in Germany after EU vote")
	want := []string{"flood", "germany", "vote"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("significantTokens = %v, want %v", got, want)
	}
}
