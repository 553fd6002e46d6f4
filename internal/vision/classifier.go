package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
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
	defaultTimeout = 30 * time.Second
)

const systemPrompt = "You are a news footage reviewer. You are shown one frame " +
	"from a stock clip and a description of what the editor needs. Judge the " +
	"frame only by what is visible in it, never by what might be elsewhere in " +
	"the clip. Output JSON only."

// Classifier judges whether a single frame shows the semantic target.
type Classifier interface {
	Classify(ctx context.Context, image []byte, target domain.SemanticTarget) (domain.VisionVerdict, error)
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ModelClassifier asks a multimodal chat model for the verdict. Classify
// always returns a usable verdict: on any failure it hands back
// domain.NeutralReviewVerdict() together with the error, so a broken
// classifier degrades ranking instead of aborting a run.
type ModelClassifier struct {
	client  openai.Client
	model   string
	timeout time.Duration
	enabled bool
}

type verdictResponse struct {
	Relevance     float64 `json:"relevance"`
	Verdict       string  `json:"verdict"`
	WrongLocation bool    `json:"wrong_location"`
	StrongReject  bool    `json:"strong_reject"`
	Notes         string  `json:"notes"`
}

func NewModelClassifier(cfg Config) *ModelClassifier {
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
	return &ModelClassifier{
		client:  openai.NewClient(clientOpts...),
		model:   model,
		timeout: timeout,
		enabled: apiKey != "",
	}
}

func (c *ModelClassifier) Classify(ctx context.Context, image []byte, target domain.SemanticTarget) (domain.VisionVerdict, error) {
	if !c.enabled {
		metrics.VisionRequestsTotal.WithLabelValues("disabled").Inc()
		return domain.NeutralReviewVerdict(), fmt.Errorf("%w: api key not configured", domain.ErrVisionFailure)
	}
	if len(image) == 0 {
		metrics.VisionRequestsTotal.WithLabelValues("skipped").Inc()
		return domain.NeutralReviewVerdict(), fmt.Errorf("%w: no frame to classify", domain.ErrVisionFailure)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(describeTarget(target)),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    imageDataURL(image),
					Detail: "low",
				}),
			}),
		},
		Model:       c.model,
		Temperature: openai.Float(0.1),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "frame_relevance_verdict",
					Description: openai.String("Relevance verdict for one clip frame against the editorial target"),
					Strict:      openai.Bool(true),
					Schema:      verdictSchema(),
				},
			},
		},
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil && shouldFallbackJSONMode(err) {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		}
		resp, err = c.client.Chat.Completions.New(ctx, params)
	}
	if err != nil {
		metrics.VisionRequestsTotal.WithLabelValues("error").Inc()
		return domain.NeutralReviewVerdict(), fmt.Errorf("%w: %s", domain.ErrVisionFailure, err)
	}
	if len(resp.Choices) == 0 {
		metrics.VisionRequestsTotal.WithLabelValues("error").Inc()
		return domain.NeutralReviewVerdict(), fmt.Errorf("%w: model returned no choices", domain.ErrVisionFailure)
	}

	verdict, err := parseVerdict(strings.TrimSpace(resp.Choices[0].Message.Content))
	if err != nil {
		metrics.VisionRequestsTotal.WithLabelValues("error").Inc()
		return domain.NeutralReviewVerdict(), fmt.Errorf("%w: %s", domain.ErrVisionFailure, err)
	}

	metrics.VisionRequestsTotal.WithLabelValues("ok").Inc()
	return verdict, nil
}

// describeTarget renders the semantic target as the text half of the
// multimodal prompt. PERSON targets ask for identity, FOOTAGE targets for
// scene content and location.
func describeTarget(target domain.SemanticTarget) string {
	var b strings.Builder
	switch target.Mode {
	case domain.ModePerson:
		name := strings.TrimSpace(target.PersonName)
		if name == "" {
			name = "the person described"
		}
		fmt.Fprintf(&b, "Target: footage of %s.\n", name)
		b.WriteString("Verdict CONFIRMED only if this exact person is recognizable in the frame, ")
		b.WriteString("NO_MATCH if the frame clearly shows someone or something else, ")
		b.WriteString("POSSIBLE if it could be them but the frame is too small or partial to be sure.\n")
	default:
		b.WriteString("Target: news footage matching the description below.\n")
		if country := strings.TrimSpace(target.Country); country != "" {
			fmt.Fprintf(&b, "Expected location: %s. Set wrong_location to true only when the frame visibly contradicts it.\n", country)
		}
		if len(target.MustShow) > 0 {
			fmt.Fprintf(&b, "Must show: %s.\n", strings.Join(target.MustShow, ", "))
		}
		if len(target.KeyVisuals) > 0 {
			fmt.Fprintf(&b, "Key visuals: %s.\n", strings.Join(target.KeyVisuals, ", "))
		}
	}
	if len(target.Avoid) > 0 {
		fmt.Fprintf(&b, "Reject frames showing: %s. Set strong_reject to true when one is present.\n", strings.Join(target.Avoid, ", "))
	}
	b.WriteString("Rate relevance 0-100 for how well the frame matches the target.")
	return b.String()
}

func imageDataURL(image []byte) string {
	mime := http.DetectContentType(image)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
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

func verdictSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"relevance", "verdict", "wrong_location", "strong_reject", "notes"},
		"properties": map[string]interface{}{
			"relevance": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 100},
			"verdict": map[string]interface{}{
				"type": "string",
				"enum": []string{"CONFIRMED", "POSSIBLE", "NO_MATCH", "REVIEW"},
			},
			"wrong_location": map[string]interface{}{"type": "boolean"},
			"strong_reject":  map[string]interface{}{"type": "boolean"},
			"notes":          map[string]interface{}{"type": "string"},
		},
	}
}

func parseVerdict(raw string) (domain.VisionVerdict, error) {
	if raw == "" {
		return domain.VisionVerdict{}, errors.New("empty model response")
	}
	normalized := raw
	if !strings.HasPrefix(normalized, "{") {
		if fixed := extractFirstJSONObject(normalized); fixed != "" {
			normalized = fixed
		}
	}

	var parsed verdictResponse
	if err := json.Unmarshal([]byte(normalized), &parsed); err != nil {
		return domain.VisionVerdict{}, fmt.Errorf("malformed verdict JSON: %w", err)
	}

	return domain.VisionVerdict{
		Relevance:     clampRelevance(parsed.Relevance),
		Kind:          domain.NormalizeVerdictKind(parsed.Verdict),
		WrongLocation: parsed.WrongLocation,
		StrongReject:  parsed.StrongReject,
		Notes:         strings.TrimSpace(parsed.Notes),
	}, nil
}

func clampRelevance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
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
