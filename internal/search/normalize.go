package search

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"newsreel/discoveryservice/internal/domain"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// queryStopwords are glue words that carry no retrieval signal and are
// dropped before token comparison.
var queryStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "in": {}, "on": {}, "at": {},
	"for": {}, "and": {}, "or": {}, "to": {}, "with": {}, "from": {},
	"by": {}, "is": {}, "are": {}, "was": {}, "were": {}, "as": {},
	"its": {}, "his": {}, "her": {}, "their": {}, "over": {}, "after": {},
	"into": {}, "amid": {}, "new": {},
}

var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldAccents(input string) string {
	folded, _, err := transform.String(accentFolder, input)
	if err != nil {
		return input
	}
	return folded
}

// normalizeQueryText is the canonical cache-key form of a query:
// lowercase, accent-folded, tokens joined by single spaces. "São Paulo
// skyline" and "sao   paulo SKYLINE" map to the same entry.
func normalizeQueryText(raw string) string {
	input := foldAccents(strings.ToLower(strings.TrimSpace(raw)))
	if input == "" {
		return ""
	}
	return strings.Join(tokenPattern.FindAllString(input, -1), " ")
}

type queryMeta struct {
	normalized string
	tokens     []string
	tokenSet   map[string]struct{}
}

func parseQueryMeta(raw string) queryMeta {
	input := foldAccents(strings.ToLower(strings.TrimSpace(raw)))
	if input == "" {
		return queryMeta{tokenSet: map[string]struct{}{}}
	}

	meta := queryMeta{tokenSet: make(map[string]struct{})}
	for _, match := range tokenPattern.FindAllString(input, -1) {
		token := strings.TrimSpace(match)
		if token == "" {
			continue
		}
		if _, ok := queryStopwords[token]; ok {
			continue
		}
		if _, exists := meta.tokenSet[token]; !exists {
			meta.tokens = append(meta.tokens, token)
			meta.tokenSet[token] = struct{}{}
		}
	}
	meta.normalized = strings.Join(meta.tokens, " ")
	return meta
}

// clipDedupeKey identifies a clip across queries. Catalog identity wins;
// clips without one fall back to normalized title plus rounded duration.
func clipDedupeKey(clip domain.Clip) string {
	if id := strings.ToLower(strings.TrimSpace(clip.Identity)); id != "" {
		return "id:" + id
	}
	meta := parseQueryMeta(clip.Title)
	if meta.normalized != "" {
		key := "title:" + meta.normalized
		if clip.DurationSec > 0 {
			key += fmt.Sprintf("|d:%d", int(clip.DurationSec))
		}
		return key
	}
	if preview := strings.ToLower(strings.TrimSpace(clip.PreviewURL)); preview != "" {
		return "url:" + preview
	}
	return ""
}

// fillMissing keeps the first-discovered candidate but lets later
// duplicates contribute fields the first sighting lacked.
func fillMissing(existing domain.Candidate, clip domain.Clip) domain.Candidate {
	if existing.ThumbnailURL == "" {
		existing.ThumbnailURL = clip.ThumbnailURL
	}
	if existing.PreviewURL == "" {
		existing.PreviewURL = clip.PreviewURL
	}
	if existing.DurationSec == 0 {
		existing.DurationSec = clip.DurationSec
	}
	if existing.Width == 0 {
		existing.Width = clip.Width
		existing.Height = clip.Height
	}
	if len(existing.Tags) == 0 {
		existing.Tags = append([]string(nil), clip.Tags...)
	}
	if existing.PublishedAt == nil && clip.PublishedAt != nil {
		value := *clip.PublishedAt
		existing.PublishedAt = &value
	}
	return existing
}

func uniqueStrings(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
