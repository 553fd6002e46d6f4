package search

import (
	"reflect"
	"strings"
	"testing"

	"newsreel/discoveryservice/internal/domain"
)

// ---------------------------------------------------------------------------
// Expansion query derivation
// ---------------------------------------------------------------------------

func TestExpansionQueriesPersonMode(t *testing.T) {
	target := domain.SemanticTarget{
		Mode:       domain.ModePerson,
		PersonName: "Olaf Scholz",
		Country:    "Germany",
	}

	queries := expansionQueries(target, map[string]struct{}{}, 6)
	if len(queries) == 0 {
		t.Fatal("expected expansion queries for a named person")
	}
	if queries[0].Text != "Olaf Scholz press conference" {
		t.Fatalf("expected the most specific angle first, got %q", queries[0].Text)
	}
	for _, query := range queries {
		if !strings.Contains(query.Text, "Olaf Scholz") {
			t.Fatalf("person queries must carry the name: %q", query.Text)
		}
	}
	// Priorities continue after the planned queries.
	if queries[0].Priority != 7 {
		t.Fatalf("expected priority 7, got %d", queries[0].Priority)
	}
	for i := 1; i < len(queries); i++ {
		if queries[i].Priority != queries[i-1].Priority+1 {
			t.Fatalf("priorities must be consecutive: %+v", queries)
		}
	}
}

func TestExpansionQueriesFootageMode(t *testing.T) {
	target := domain.SemanticTarget{
		Mode:       domain.ModeFootage,
		Country:    "Germany",
		KeyVisuals: []string{"flood"},
		MustShow:   []string{"rescue boats"},
	}

	queries := expansionQueries(target, map[string]struct{}{}, 6)
	if len(queries) == 0 {
		t.Fatal("expected expansion queries for footage targets")
	}
	if queries[0].Text != "flood Germany" {
		t.Fatalf("expected visual+country first, got %q", queries[0].Text)
	}
	if queries[1].Text != "flood" {
		t.Fatalf("expected bare visual second, got %q", queries[1].Text)
	}

	var sawMustShow, sawClusterVisual bool
	for _, query := range queries {
		if query.Text == "rescue boats" {
			sawMustShow = true
		}
		if query.Text == "flooded road" {
			sawClusterVisual = true
		}
	}
	if !sawMustShow {
		t.Fatalf("must-show items should become queries: %+v", queries)
	}
	if !sawClusterVisual {
		t.Fatalf("weather cluster visuals should be pulled in by %q: %+v", "flood", queries)
	}
}

func TestExpansionQueriesDeterministic(t *testing.T) {
	target := domain.SemanticTarget{
		Mode:       domain.ModeFootage,
		Country:    "France",
		KeyVisuals: []string{"protest", "strike"},
	}

	first := expansionQueries(target, map[string]struct{}{}, 8)
	second := expansionQueries(target, map[string]struct{}{}, 8)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expansion must be deterministic:\n%+v\n%+v", first, second)
	}
}

func TestExpansionQueriesCapped(t *testing.T) {
	target := domain.SemanticTarget{
		Mode:       domain.ModeFootage,
		Country:    "Germany",
		KeyVisuals: []string{"flood", "storm", "evacuation"},
		MustShow:   []string{"rescue boats", "sandbags", "emergency workers"},
	}

	queries := expansionQueries(target, map[string]struct{}{}, 0)
	if len(queries) > maxExpansionQueries {
		t.Fatalf("expected at most %d queries, got %d", maxExpansionQueries, len(queries))
	}
}

func TestExpansionQueriesSkipTried(t *testing.T) {
	target := domain.SemanticTarget{
		Mode:       domain.ModeFootage,
		Country:    "Germany",
		KeyVisuals: []string{"flood"},
	}

	tried := map[string]struct{}{
		normalizeQueryText("flood Germany"): {},
		normalizeQueryText("flood"):         {},
	}
	queries := expansionQueries(target, tried, 0)
	for _, query := range queries {
		normalized := normalizeQueryText(query.Text)
		if normalized == "flood germany" || normalized == "flood" {
			t.Fatalf("already-tried query reappeared: %q", query.Text)
		}
	}
}

func TestExpansionQueriesEmptyTarget(t *testing.T) {
	queries := expansionQueries(domain.SemanticTarget{Mode: domain.ModePerson}, map[string]struct{}{}, 0)
	if len(queries) != 0 {
		t.Fatalf("a person target without a name has nothing to expand, got %+v", queries)
	}
}

// ---------------------------------------------------------------------------
// Cluster vocabulary
// ---------------------------------------------------------------------------

func TestClusterVisualsMatchesTriggers(t *testing.T) {
	target := domain.SemanticTarget{
		Mode:       domain.ModeFootage,
		KeyVisuals: []string{"flood aftermath"},
	}
	visuals := clusterVisuals(target)
	if len(visuals) == 0 {
		t.Fatal("expected weather visuals for a flood target")
	}
	found := false
	for _, visual := range visuals {
		if visual == "flooded road" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %q in %v", "flooded road", visuals)
	}
}

func TestClusterVisualsNoMatch(t *testing.T) {
	target := domain.SemanticTarget{
		Mode:       domain.ModeFootage,
		KeyVisuals: []string{"knitting circle"},
	}
	if visuals := clusterVisuals(target); len(visuals) != 0 {
		t.Fatalf("expected no cluster match, got %v", visuals)
	}
}

func TestClusterVisualsMultipleClustersKeepOrder(t *testing.T) {
	target := domain.SemanticTarget{
		Mode:     domain.ModeFootage,
		MustShow: []string{"flood damage near the parliament"},
	}
	visuals := clusterVisuals(target)

	var politicsAt, weatherAt = -1, -1
	for i, visual := range visuals {
		if visual == "government building" {
			politicsAt = i
		}
		if visual == "flooded road" {
			weatherAt = i
		}
	}
	if politicsAt == -1 || weatherAt == -1 {
		t.Fatalf("expected visuals from both clusters, got %v", visuals)
	}
	if politicsAt > weatherAt {
		t.Fatalf("cluster order must be stable (politics before weather), got %v", visuals)
	}
}
