package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"newsreel/discoveryservice/internal/domain"
	"newsreel/discoveryservice/internal/metrics"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 20 * time.Second
	maxPlanQueries = 8
)

// Planner turns a news segment into a prioritized catalog query plan.
type Planner interface {
	Plan(ctx context.Context, headline, body string) (domain.QueryPlan, error)
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ModelPlanner asks a chat model for the plan. Callers are expected to
// fall back to FallbackPlan when Plan returns an error.
type ModelPlanner struct {
	client  openai.Client
	model   string
	timeout time.Duration
	enabled bool
}

type planResponse struct {
	Mode       string   `json:"mode"`
	PersonName string   `json:"person_name"`
	Country    string   `json:"country"`
	MustShow   []string `json:"must_show"`
	KeyVisuals []string `json:"key_visuals"`
	Avoid      []string `json:"avoid"`
	Queries    []struct {
		Text     string `json:"text"`
		Priority int    `json:"priority"`
	} `json:"queries"`
}

func NewModelPlanner(cfg Config) *ModelPlanner {
	apiKey := strings.TrimSpace(cfg.APIKey)
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ModelPlanner{
		client:  openai.NewClient(clientOpts...),
		model:   model,
		timeout: timeout,
		enabled: apiKey != "",
	}
}

func (p *ModelPlanner) Plan(ctx context.Context, headline, body string) (domain.QueryPlan, error) {
	if !p.enabled {
		metrics.PlannerRequestsTotal.WithLabelValues("planner", "disabled").Inc()
		return domain.QueryPlan{}, fmt.Errorf("%w: api key not configured", domain.ErrPlannerFailure)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	systemPrompt := "You are a broadcast footage researcher. Given a news segment, " +
		"decide whether it needs footage of a specific PERSON or generic FOOTAGE, " +
		"extract the semantic target, and write stock-catalog search queries. " +
		"Queries must be short noun phrases a stock archive understands, most " +
		"specific first. Output JSON only."
	userPrompt := "Produce between 6 and 8 search queries with priorities " +
		"(1 = most specific).\n\nHeadline: " + strings.TrimSpace(headline) +
		"\n\nSegment text:\n" + strings.TrimSpace(body)

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Model:       p.model,
		Temperature: openai.Float(0.2),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "footage_query_plan",
					Description: openai.String("Semantic target and prioritized catalog queries for a news segment"),
					Strict:      openai.Bool(true),
					Schema:      planSchema(),
				},
			},
		},
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil && shouldFallbackJSONMode(err) {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		}
		resp, err = p.client.Chat.Completions.New(ctx, params)
	}
	if err != nil {
		metrics.PlannerRequestsTotal.WithLabelValues("planner", "error").Inc()
		return domain.QueryPlan{}, fmt.Errorf("%w: %s", domain.ErrPlannerFailure, err)
	}
	if len(resp.Choices) == 0 {
		metrics.PlannerRequestsTotal.WithLabelValues("planner", "error").Inc()
		return domain.QueryPlan{}, fmt.Errorf("%w: model returned no choices", domain.ErrPlannerFailure)
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	plan, err := parsePlan(raw)
	if err != nil {
		metrics.PlannerRequestsTotal.WithLabelValues("planner", "error").Inc()
		return domain.QueryPlan{}, fmt.Errorf("%w: %s", domain.ErrPlannerFailure, err)
	}

	metrics.PlannerRequestsTotal.WithLabelValues("planner", "ok").Inc()
	return plan, nil
}

func shouldFallbackJSONMode(err error) bool {
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if msg == "" {
		return false
	}
	if strings.Contains(msg, "json_schema") || strings.Contains(msg, "response_format") {
		return true
	}
	return strings.Contains(msg, "unsupported") && strings.Contains(msg, "schema")
}

func planSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"mode", "person_name", "country", "must_show", "key_visuals", "avoid", "queries"},
		"properties": map[string]interface{}{
			"mode": map[string]interface{}{
				"type": "string",
				"enum": []string{"PERSON", "FOOTAGE"},
			},
			"person_name": map[string]interface{}{"type": "string"},
			"country":     map[string]interface{}{"type": "string"},
			"must_show": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"key_visuals": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"avoid": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"queries": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"text", "priority"},
					"properties": map[string]interface{}{
						"text":     map[string]interface{}{"type": "string"},
						"priority": map[string]interface{}{"type": "integer", "minimum": 1},
					},
				},
			},
		},
	}
}

func parsePlan(raw string) (domain.QueryPlan, error) {
	if raw == "" {
		return domain.QueryPlan{}, errors.New("empty model response")
	}
	normalized := raw
	if !strings.HasPrefix(normalized, "{") {
		if fixed := extractFirstJSONObject(normalized); fixed != "" {
			normalized = fixed
		}
	}

	var parsed planResponse
	if err := json.Unmarshal([]byte(normalized), &parsed); err != nil {
		return domain.QueryPlan{}, fmt.Errorf("malformed plan JSON: %w", err)
	}
	return buildPlan(parsed)
}

func buildPlan(parsed planResponse) (domain.QueryPlan, error) {
	queries := make([]domain.Query, 0, len(parsed.Queries))
	seen := make(map[string]struct{}, len(parsed.Queries))
	for i, query := range parsed.Queries {
		text := strings.Join(strings.Fields(query.Text), " ")
		if text == "" {
			continue
		}
		key := strings.ToLower(text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		priority := query.Priority
		if priority <= 0 {
			priority = i + 1
		}
		queries = append(queries, domain.Query{Text: text, Priority: priority})
	}
	if len(queries) == 0 {
		return domain.QueryPlan{}, errors.New("plan contains no usable queries")
	}

	sort.SliceStable(queries, func(i, j int) bool {
		return queries[i].Priority < queries[j].Priority
	})
	if len(queries) > maxPlanQueries {
		queries = queries[:maxPlanQueries]
	}
	// Dense 1..n priorities regardless of what the model produced.
	for i := range queries {
		queries[i].Priority = i + 1
	}

	target := domain.SemanticTarget{
		Mode:       domain.NormalizeSegmentMode(parsed.Mode),
		PersonName: strings.TrimSpace(parsed.PersonName),
		Country:    strings.TrimSpace(parsed.Country),
		MustShow:   cleanList(parsed.MustShow),
		KeyVisuals: cleanList(parsed.KeyVisuals),
		Avoid:      cleanList(parsed.Avoid),
	}
	if target.Mode == domain.ModePerson && target.PersonName == "" {
		target.Mode = domain.ModeFootage
	}

	return domain.QueryPlan{Target: target, Queries: queries, Source: domain.PlanSourceModel}, nil
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func extractFirstJSONObject(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
