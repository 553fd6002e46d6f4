package planner

import (
	"regexp"
	"strings"

	"newsreel/discoveryservice/internal/domain"
)

var fallbackWordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

var fallbackStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"has": true, "have": true, "had": true, "will": true, "would": true,
	"its": true, "his": true, "her": true, "their": true, "this": true,
	"that": true, "after": true, "over": true, "into": true, "amid": true,
	"new": true, "says": true, "said": true, "as": true, "not": true,
}

// FallbackPlan derives a query plan from the segment text alone, with no
// model in the loop. Same input, same plan. The headline drives keyword
// order; the body only tops up when the headline is too thin.
func FallbackPlan(headline, body string) domain.QueryPlan {
	keywords := extractKeywords(headline, 8)
	if len(keywords) < 4 {
		for _, extra := range extractKeywords(body, 8) {
			if len(keywords) >= 8 {
				break
			}
			if !containsKeyword(keywords, extra) {
				keywords = append(keywords, extra)
			}
		}
	}

	texts := make([]string, 0, maxPlanQueries)
	if len(keywords) >= 4 {
		texts = append(texts, strings.Join(keywords[:4], " "))
	}
	if len(keywords) >= 3 {
		texts = append(texts, strings.Join(keywords[:3], " "))
	}
	if len(keywords) >= 2 {
		texts = append(texts, strings.Join(keywords[:2], " "))
	}
	for _, visual := range fallbackClusterVisuals(keywords) {
		texts = append(texts, visual)
	}
	for _, keyword := range keywords {
		texts = append(texts, keyword)
	}

	queries := make([]domain.Query, 0, maxPlanQueries)
	seen := make(map[string]struct{}, len(texts))
	for _, text := range texts {
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		queries = append(queries, domain.Query{Text: text, Priority: len(queries) + 1})
		if len(queries) >= maxPlanQueries {
			break
		}
	}

	visuals := keywords
	if len(visuals) > 4 {
		visuals = visuals[:4]
	}
	return domain.QueryPlan{
		Target: domain.SemanticTarget{
			Mode:       domain.ModeFootage,
			KeyVisuals: append([]string(nil), visuals...),
		},
		Queries: queries,
		Source:  domain.PlanSourceFallback,
	}
}

// extractKeywords returns up to limit lowercase tokens longer than two
// characters, stopwords removed, in order of first appearance.
func extractKeywords(text string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	words := fallbackWordPattern.FindAllString(strings.ToLower(text), -1)

	keywords := make([]string, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, word := range words {
		if fallbackStopWords[word] || len(word) <= 2 {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
		if len(keywords) >= limit {
			break
		}
	}
	return keywords
}

// fallbackClusterVisuals brings in up to two stock visuals per news beat
// the keywords activate, in the fixed cluster order.
func fallbackClusterVisuals(keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(keywords))
	for _, keyword := range keywords {
		set[keyword] = struct{}{}
	}

	visuals := make([]string, 0, 4)
	for _, cluster := range domain.DomainClusters {
		for _, trigger := range cluster.Triggers {
			if _, ok := set[trigger]; !ok {
				continue
			}
			limit := 2
			if limit > len(cluster.Visuals) {
				limit = len(cluster.Visuals)
			}
			visuals = append(visuals, cluster.Visuals[:limit]...)
			break
		}
	}
	return visuals
}

func containsKeyword(keywords []string, keyword string) bool {
	for _, existing := range keywords {
		if existing == keyword {
			return true
		}
	}
	return false
}
