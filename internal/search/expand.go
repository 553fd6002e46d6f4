package search

import (
	"strings"

	"newsreel/discoveryservice/internal/domain"
)

const maxExpansionQueries = 10

// personAngles are generic follow-up framings for a named person when
// the planned queries come back empty.
var personAngles = []string{
	"press conference",
	"speech",
	"interview",
	"official meeting",
	"portrait",
}

// footageAngles are generic establishing-shot framings combined with
// the target country.
var footageAngles = []string{
	"city skyline",
	"street scene",
	"aerial view",
	"crowd walking",
	"landmark",
}

// expansionQueries derives deterministic fallback queries from the
// semantic target. No model call is involved: the same target and the
// same already-tried set always produce the same list, ordered from
// most to least specific. Priorities continue after basePriority so
// expansion hits rank behind planned-query hits.
func expansionQueries(target domain.SemanticTarget, tried map[string]struct{}, basePriority int) []domain.Query {
	texts := make([]string, 0, maxExpansionQueries*2)

	switch target.Mode {
	case domain.ModePerson:
		person := strings.TrimSpace(target.PersonName)
		if person != "" {
			for _, angle := range personAngles {
				texts = append(texts, person+" "+angle)
			}
			if country := strings.TrimSpace(target.Country); country != "" {
				texts = append(texts, person+" "+country)
			}
			texts = append(texts, person)
		}
	default:
		country := strings.TrimSpace(target.Country)
		for _, visual := range target.KeyVisuals {
			visual = strings.TrimSpace(visual)
			if visual == "" {
				continue
			}
			if country != "" {
				texts = append(texts, visual+" "+country)
			}
			texts = append(texts, visual)
		}
		for _, item := range target.MustShow {
			if item = strings.TrimSpace(item); item != "" {
				texts = append(texts, item)
			}
		}
		for _, visual := range clusterVisuals(target) {
			texts = append(texts, visual)
		}
		if country != "" {
			for _, angle := range footageAngles {
				texts = append(texts, country+" "+angle)
			}
		}
	}

	queries := make([]domain.Query, 0, maxExpansionQueries)
	for _, text := range texts {
		normalized := normalizeQueryText(text)
		if normalized == "" {
			continue
		}
		if _, seen := tried[normalized]; seen {
			continue
		}
		tried[normalized] = struct{}{}
		queries = append(queries, domain.Query{Text: text, Priority: basePriority + len(queries) + 1})
		if len(queries) >= maxExpansionQueries {
			break
		}
	}
	return queries
}

// clusterVisuals returns the stock vocabulary of every domain cluster
// the target's own wording activates, in the fixed cluster order.
func clusterVisuals(target domain.SemanticTarget) []string {
	haystack := strings.ToLower(strings.Join(append(append([]string{}, target.MustShow...), target.KeyVisuals...), " "))
	if haystack == "" {
		return nil
	}
	tokens := make(map[string]struct{})
	for _, token := range tokenPattern.FindAllString(haystack, -1) {
		tokens[token] = struct{}{}
	}

	visuals := make([]string, 0, 8)
	for _, cluster := range domain.DomainClusters {
		for _, trigger := range cluster.Triggers {
			if _, ok := tokens[trigger]; ok {
				visuals = append(visuals, cluster.Visuals...)
				break
			}
		}
	}
	return visuals
}
