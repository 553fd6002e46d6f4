package vision

import (
	"context"
	"errors"
	"strings"
	"testing"

	"newsreel/discoveryservice/internal/domain"
)

// ---------------------------------------------------------------------------
// Verdict parsing
// ---------------------------------------------------------------------------

func TestParseVerdict(t *testing.T) {
	raw := `{
		"relevance": 82,
		"verdict": "CONFIRMED",
		"wrong_location": false,
		"strong_reject": false,
		"notes": " clear frontal shot "
	}`

	verdict, err := parseVerdict(raw)
	if err != nil {
		t.Fatalf("parseVerdict: %v", err)
	}
	if verdict.Relevance != 82 {
		t.Fatalf("relevance = %v, want 82", verdict.Relevance)
	}
	if verdict.Kind != domain.VerdictConfirmed {
		t.Fatalf("kind = %q, want CONFIRMED", verdict.Kind)
	}
	if verdict.WrongLocation || verdict.StrongReject {
		t.Fatalf("unexpected flags: %+v", verdict)
	}
	if verdict.Notes != "clear frontal shot" {
		t.Fatalf("notes = %q, want trimmed", verdict.Notes)
	}
}

func TestParseVerdictWrappedInProse(t *testing.T) {
	raw := "Here is my assessment:\n```json\n" +
		`{"relevance": 15, "verdict": "NO_MATCH", "wrong_location": true, "strong_reject": true, "notes": "desert, not coastline"}` +
		"\n```"

	verdict, err := parseVerdict(raw)
	if err != nil {
		t.Fatalf("parseVerdict: %v", err)
	}
	if verdict.Kind != domain.VerdictNoMatch {
		t.Fatalf("kind = %q, want NO_MATCH", verdict.Kind)
	}
	if !verdict.WrongLocation || !verdict.StrongReject {
		t.Fatalf("flags not carried through: %+v", verdict)
	}
}

func TestParseVerdictClampsRelevance(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"negative", `{"relevance": -5, "verdict": "NO_MATCH"}`, 0},
		{"overflow", `{"relevance": 250, "verdict": "CONFIRMED"}`, 100},
		{"fractional", `{"relevance": 62.5, "verdict": "POSSIBLE"}`, 62.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := parseVerdict(tt.raw)
			if err != nil {
				t.Fatalf("parseVerdict: %v", err)
			}
			if verdict.Relevance != tt.want {
				t.Fatalf("relevance = %v, want %v", verdict.Relevance, tt.want)
			}
		})
	}
}

func TestParseVerdictUnknownKindBecomesReview(t *testing.T) {
	verdict, err := parseVerdict(`{"relevance": 40, "verdict": "MAYBE"}`)
	if err != nil {
		t.Fatalf("parseVerdict: %v", err)
	}
	if verdict.Kind != domain.VerdictReview {
		t.Fatalf("kind = %q, want REVIEW for unknown verdict", verdict.Kind)
	}
}

func TestParseVerdictGarbage(t *testing.T) {
	if _, err := parseVerdict("<html>rate limited</html>"); err == nil {
		t.Fatal("expected error for non-JSON response")
	}
	if _, err := parseVerdict(""); err == nil {
		t.Fatal("expected error for empty response")
	}
}

// ---------------------------------------------------------------------------
// Classify guard paths
// ---------------------------------------------------------------------------

func TestClassifyWithoutAPIKey(t *testing.T) {
	classifier := NewModelClassifier(Config{})

	verdict, err := classifier.Classify(context.Background(), []byte{0xFF, 0xD8, 0xFF}, domain.SemanticTarget{Mode: domain.ModeFootage})
	if err == nil {
		t.Fatal("expected error when api key is missing")
	}
	if !errors.Is(err, domain.ErrVisionFailure) {
		t.Fatalf("error = %v, want ErrVisionFailure", err)
	}
	if verdict != domain.NeutralReviewVerdict() {
		t.Fatalf("verdict = %+v, want neutral review", verdict)
	}
}

func TestClassifyEmptyImage(t *testing.T) {
	classifier := NewModelClassifier(Config{APIKey: "test-key"})

	verdict, err := classifier.Classify(context.Background(), nil, domain.SemanticTarget{Mode: domain.ModeFootage})
	if err == nil {
		t.Fatal("expected error for empty image")
	}
	if !errors.Is(err, domain.ErrVisionFailure) {
		t.Fatalf("error = %v, want ErrVisionFailure", err)
	}
	if verdict != domain.NeutralReviewVerdict() {
		t.Fatalf("verdict = %+v, want neutral review", verdict)
	}
}

// ---------------------------------------------------------------------------
// Prompt and payload construction
// ---------------------------------------------------------------------------

func TestDescribeTargetPersonMode(t *testing.T) {
	prompt := describeTarget(domain.SemanticTarget{
		Mode:       domain.ModePerson,
		PersonName: "Olaf Scholz",
	})

	if !strings.Contains(prompt, "Olaf Scholz") {
		t.Fatalf("prompt missing person name: %q", prompt)
	}
	if !strings.Contains(prompt, "CONFIRMED") || !strings.Contains(prompt, "NO_MATCH") {
		t.Fatalf("prompt missing verdict guidance: %q", prompt)
	}
}

func TestDescribeTargetFootageMode(t *testing.T) {
	prompt := describeTarget(domain.SemanticTarget{
		Mode:       domain.ModeFootage,
		Country:    "Germany",
		MustShow:   []string{"flooded streets"},
		KeyVisuals: []string{"rescue boats", "sandbags"},
		Avoid:      []string{"animated maps"},
	})

	for _, want := range []string{"Germany", "flooded streets", "rescue boats", "sandbags", "animated maps", "wrong_location", "strong_reject"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q: %q", want, prompt)
		}
	}
}

func TestImageDataURL(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46}
	if got := imageDataURL(jpeg); !strings.HasPrefix(got, "data:image/jpeg;base64,") {
		t.Fatalf("jpeg data URL = %q", got)
	}

	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n', 0, 0, 0, 0}
	if got := imageDataURL(png); !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Fatalf("png data URL = %q", got)
	}

	// Unsniffable bytes still ship as jpeg rather than octet-stream.
	if got := imageDataURL([]byte("not an image")); !strings.HasPrefix(got, "data:image/jpeg;base64,") {
		t.Fatalf("fallback data URL = %q", got)
	}
}

func TestNewModelClassifierDefaults(t *testing.T) {
	classifier := NewModelClassifier(Config{APIKey: "k"})

	if classifier.model != defaultModel {
		t.Fatalf("model = %q, want %q", classifier.model, defaultModel)
	}
	if classifier.timeout != defaultTimeout {
		t.Fatalf("timeout = %v, want %v", classifier.timeout, defaultTimeout)
	}
	if !classifier.enabled {
		t.Fatal("classifier with api key should be enabled")
	}
}
