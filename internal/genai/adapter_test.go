package genai

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type stubGenerator struct {
	response string
	err      error
	prompt   string
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.response, s.err
}

func prefs() Preferences {
	return Preferences{
		Destination: "Kyoto",
		Budget:      "mid-range",
		Style:       "Minimalist",
		Duration:    "5 days",
		Companions:  "partner",
		Mood:        "calm",
		Interests:   []string{"temples", "tea", "gardens"},
	}
}

const goodResponse = `Here is your board concept:
{"title": "Kyoto Calm", "colorPalette": ["#111111", "#222222", "#333333", "#444444", "#555555"],
 "themes": ["zen"], "activities": ["tea ceremony"], "accommodations": ["ryokan"],
 "dining": ["kaiseki"], "description": "Quiet days in Kyoto.", "vibe": "serene"}
Enjoy!`

func TestBuildPromptEmbedsEveryField(t *testing.T) {
	prompt := BuildPrompt(prefs())
	for _, want := range []string{"Kyoto", "mid-range", "Minimalist", "5 days", "partner", "calm", "temples, tea, gardens"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	for _, key := range []string{"title", "colorPalette", "themes", "activities", "accommodations", "dining", "description", "vibe"} {
		if !strings.Contains(prompt, key) {
			t.Errorf("prompt does not request key %q", key)
		}
	}
}

func TestParseExtractsEmbeddedJSON(t *testing.T) {
	payload := ParseOrFallback(goodResponse, prefs())
	if payload.Title != "Kyoto Calm" {
		t.Errorf("expected parsed title, got %q", payload.Title)
	}
	if len(payload.ColorPalette) != 5 || payload.Vibe != "serene" {
		t.Errorf("payload not parsed fully: %+v", payload)
	}
}

func TestParseFallsBackOnGarbage(t *testing.T) {
	got := ParseOrFallback("sorry, I can't do that", prefs())
	want := Fallback(prefs())
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unparseable text must yield the deterministic fallback\ngot  %+v\nwant %+v", got, want)
	}
}

func TestParseFallsBackOnUnbalancedBraces(t *testing.T) {
	got := ParseOrFallback(`{"title": "never closed`, prefs())
	if !reflect.DeepEqual(got, Fallback(prefs())) {
		t.Error("unbalanced JSON span must yield the fallback")
	}
}

func TestParseFallsBackOnMissingKey(t *testing.T) {
	// Valid JSON, but the vibe key is absent: partial AI output is discarded
	// wholesale rather than merged.
	partial := `{"title": "Kyoto", "colorPalette": [], "themes": [], "activities": [],
		"accommodations": [], "dining": [], "description": "x"}`
	got := ParseOrFallback(partial, prefs())
	if got.Title == "Kyoto" {
		t.Error("partial payload leaked through; expected fallback")
	}
}

func TestFallbackIsDeterministic(t *testing.T) {
	a := Fallback(prefs())
	b := Fallback(prefs())
	if !reflect.DeepEqual(a, b) {
		t.Error("fallback must be idempotent for identical preferences")
	}
	if a.Title != "Minimalist Kyoto Mood Board" {
		t.Errorf("unexpected fallback title %q", a.Title)
	}
	if len(a.ColorPalette) != 5 {
		t.Errorf("fallback palette must have 5 colors, got %d", len(a.ColorPalette))
	}
	if len(a.Themes) != 3 || len(a.Activities) != 3 || len(a.Accommodations) != 3 || len(a.Dining) != 3 {
		t.Error("fallback lists must each carry three entries")
	}
}

func TestFallbackHandlesEmptyPreferences(t *testing.T) {
	got := Fallback(Preferences{})
	if got.Title == " Mood Board" || got.Title == "" {
		t.Errorf("empty preferences should still title the board, got %q", got.Title)
	}
}

func TestGenerateTransportFailureAborts(t *testing.T) {
	adapter := NewAdapter(&stubGenerator{err: ErrGenerationFailed})
	_, err := adapter.Generate(context.Background(), prefs())
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestGenerateWrapsPayloadIntoBoard(t *testing.T) {
	adapter := NewAdapter(&stubGenerator{response: goodResponse})
	b, err := adapter.Generate(context.Background(), prefs())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if b.ID == "" {
		t.Error("board needs a fresh id")
	}
	if b.Title != "Kyoto Calm" {
		t.Errorf("expected parsed title, got %q", b.Title)
	}
	if len(b.Elements) != 0 || len(b.Collaborators) != 0 || len(b.Messages) != 0 {
		t.Error("generated board must start with empty element, collaborator, and message lists")
	}
	if !b.Metadata.AIGenerated {
		t.Error("AI origin marker not set")
	}
	if b.Metadata.LastModified.IsZero() {
		t.Error("lastModified not set")
	}
	if err := b.Validate(); err != nil {
		t.Errorf("generated board invalid: %v", err)
	}
}

func TestGenerateParseFailureUsesFallback(t *testing.T) {
	adapter := NewAdapter(&stubGenerator{response: "no json here"})
	b, err := adapter.Generate(context.Background(), prefs())
	if err != nil {
		t.Fatalf("parse failure must not surface as an error: %v", err)
	}
	if b.Title != "Minimalist Kyoto Mood Board" {
		t.Errorf("expected deterministic fallback board, got %q", b.Title)
	}
}

func TestExtractJSONFirstBalancedSpan(t *testing.T) {
	text := `noise {"a": {"b": 1}} trailing {"c": 2}`
	span, ok := extractJSON(text)
	if !ok {
		t.Fatal("expected a span")
	}
	if span != `{"a": {"b": 1}}` {
		t.Errorf("expected the first balanced span, got %q", span)
	}
}
