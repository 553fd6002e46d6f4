package search

import (
	"reflect"
	"testing"
	"time"

	"newsreel/discoveryservice/internal/domain"
)

// ---------------------------------------------------------------------------
// Query normalization
// ---------------------------------------------------------------------------

func TestNormalizeQueryText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "Berlin Skyline", "berlin skyline"},
		{"whitespace collapsed", "  berlin    skyline  ", "berlin skyline"},
		{"accents folded", "São Paulo élections", "sao paulo elections"},
		{"punctuation stripped", "flood, Germany: aftermath!", "flood germany aftermath"},
		{"digits kept", "Top 10 storms 2024", "top 10 storms 2024"},
		{"empty", "   ", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeQueryText(tc.in); got != tc.want {
				t.Fatalf("normalizeQueryText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseQueryMetaDropsStopwords(t *testing.T) {
	meta := parseQueryMeta("The flood in Germany after the storm")
	want := []string{"flood", "germany", "storm"}
	if !reflect.DeepEqual(meta.tokens, want) {
		t.Fatalf("tokens = %v, want %v", meta.tokens, want)
	}
	if meta.normalized != "flood germany storm" {
		t.Fatalf("normalized = %q", meta.normalized)
	}
	for _, token := range want {
		if _, ok := meta.tokenSet[token]; !ok {
			t.Fatalf("token set missing %q", token)
		}
	}
}

func TestParseQueryMetaDedupesTokens(t *testing.T) {
	meta := parseQueryMeta("berlin berlin BERLIN")
	if len(meta.tokens) != 1 || meta.tokens[0] != "berlin" {
		t.Fatalf("expected single deduped token, got %v", meta.tokens)
	}
}

func TestFoldAccents(t *testing.T) {
	if got := foldAccents("Zürich café"); got != "Zurich cafe" {
		t.Fatalf("foldAccents = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Dedupe keys
// ---------------------------------------------------------------------------

func TestClipDedupeKey(t *testing.T) {
	tests := []struct {
		name string
		clip domain.Clip
		want string
	}{
		{
			"identity wins",
			domain.Clip{Identity: " ABC-123 ", Title: "Anything"},
			"id:abc-123",
		},
		{
			"title fallback",
			domain.Clip{Title: "The Flood in Germany"},
			"title:flood germany",
		},
		{
			"title with duration",
			domain.Clip{Title: "Flood Germany", DurationSec: 12.7},
			"title:flood germany|d:12",
		},
		{
			"preview url fallback",
			domain.Clip{PreviewURL: "https://CDN.test/v.mp4"},
			"url:https://cdn.test/v.mp4",
		},
		{
			"nothing usable",
			domain.Clip{},
			"",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := clipDedupeKey(tc.clip); got != tc.want {
				t.Fatalf("clipDedupeKey = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClipDedupeKeyMatchesAcrossQueries(t *testing.T) {
	left := domain.Clip{Title: "Flood in Germany", DurationSec: 30}
	right := domain.Clip{Title: "flood  GERMANY", DurationSec: 30.4}
	if clipDedupeKey(left) != clipDedupeKey(right) {
		t.Fatalf("expected equal keys: %q vs %q", clipDedupeKey(left), clipDedupeKey(right))
	}
}

// ---------------------------------------------------------------------------
// Merge helpers
// ---------------------------------------------------------------------------

func TestFillMissing(t *testing.T) {
	published := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	existing := domain.Candidate{
		Clip:        domain.Clip{Identity: "x", Title: "Kept title", ThumbnailURL: "keep.jpg"},
		SourceQuery: "first",
		Priority:    1,
	}
	later := domain.Clip{
		Identity:     "x",
		Title:        "Other title",
		ThumbnailURL: "ignored.jpg",
		PreviewURL:   "preview.mp4",
		DurationSec:  44,
		Width:        1920,
		Height:       1080,
		Tags:         []string{"city"},
		PublishedAt:  &published,
	}

	merged := fillMissing(existing, later)

	if merged.Title != "Kept title" || merged.ThumbnailURL != "keep.jpg" {
		t.Fatalf("existing fields must win: %+v", merged.Clip)
	}
	if merged.SourceQuery != "first" || merged.Priority != 1 {
		t.Fatalf("attribution must survive the merge: %+v", merged)
	}
	if merged.PreviewURL != "preview.mp4" || merged.DurationSec != 44 {
		t.Fatalf("missing fields should be filled: %+v", merged.Clip)
	}
	if merged.Width != 1920 || merged.Height != 1080 {
		t.Fatalf("dimensions should be filled together: %dx%d", merged.Width, merged.Height)
	}
	if len(merged.Tags) != 1 || merged.Tags[0] != "city" {
		t.Fatalf("tags should be filled: %v", merged.Tags)
	}
	if merged.PublishedAt == nil || !merged.PublishedAt.Equal(published) {
		t.Fatalf("published date should be copied, got %v", merged.PublishedAt)
	}

	// The copied pointer must not alias the source clip.
	*later.PublishedAt = published.AddDate(1, 0, 0)
	if !merged.PublishedAt.Equal(published) {
		t.Fatal("published date must be a detached copy")
	}
}

func TestUniqueStrings(t *testing.T) {
	got := uniqueStrings([]string{" Flood ", "flood", "", "Storm", "FLOOD", "storm"})
	want := []string{"Flood", "Storm"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("uniqueStrings = %v, want %v", got, want)
	}
	if uniqueStrings(nil) != nil {
		t.Fatal("nil input should return nil")
	}
}
