package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wanderboard/api/internal/board"
	"wanderboard/api/internal/util"
)

// Preferences is the traveller input the prompt is built from.
type Preferences struct {
	Destination string   `json:"destination"`
	Budget      string   `json:"budget"`
	Style       string   `json:"style"`
	Duration    string   `json:"duration"`
	Companions  string   `json:"companions"`
	Mood        string   `json:"mood"`
	Interests   []string `json:"interests"`
}

// Payload is the structured shape requested from the generative service.
type Payload struct {
	Title          string   `json:"title"`
	ColorPalette   []string `json:"colorPalette"`
	Themes         []string `json:"themes"`
	Activities     []string `json:"activities"`
	Accommodations []string `json:"accommodations"`
	Dining         []string `json:"dining"`
	Description    string   `json:"description"`
	Vibe           string   `json:"vibe"`
}

// Adapter builds prompts, invokes the generator, and turns the result into a
// board payload.
type Adapter struct {
	generator Generator
}

func NewAdapter(generator Generator) *Adapter {
	return &Adapter{generator: generator}
}

const promptTemplate = `You are a travel mood-board designer. Create a mood board concept for this trip:
- Destination: %s
- Budget: %s
- Style: %s
- Duration: %s
- Companions: %s
- Mood: %s
- Interests: %s

Respond with a strict JSON object and nothing else, using exactly these keys:
{"title": string, "colorPalette": [5 hex colors], "themes": [strings], "activities": [strings], "accommodations": [strings], "dining": [strings], "description": string, "vibe": string}`

// BuildPrompt renders the fixed natural-language template embedding every
// preference field.
func BuildPrompt(p Preferences) string {
	return fmt.Sprintf(promptTemplate,
		p.Destination, p.Budget, p.Style, p.Duration, p.Companions, p.Mood,
		strings.Join(p.Interests, ", "))
}

// extractJSON returns the first balanced {...} span in the text, if any.
func extractJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseOrFallback scans the service response for the requested JSON shape.
// If parsing fails or any required key is absent, it substitutes the
// deterministic fallback derived only from the preferences — predictable
// behavior is preferred over partially-correct AI output.
func ParseOrFallback(responseText string, p Preferences) Payload {
	span, ok := extractJSON(responseText)
	if !ok {
		return Fallback(p)
	}

	// Pointer fields distinguish "absent" from "empty".
	var raw struct {
		Title          *string   `json:"title"`
		ColorPalette   *[]string `json:"colorPalette"`
		Themes         *[]string `json:"themes"`
		Activities     *[]string `json:"activities"`
		Accommodations *[]string `json:"accommodations"`
		Dining         *[]string `json:"dining"`
		Description    *string   `json:"description"`
		Vibe           *string   `json:"vibe"`
	}
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return Fallback(p)
	}
	if raw.Title == nil || raw.ColorPalette == nil || raw.Themes == nil ||
		raw.Activities == nil || raw.Accommodations == nil || raw.Dining == nil ||
		raw.Description == nil || raw.Vibe == nil {
		return Fallback(p)
	}
	return Payload{
		Title:          *raw.Title,
		ColorPalette:   *raw.ColorPalette,
		Themes:         *raw.Themes,
		Activities:     *raw.Activities,
		Accommodations: *raw.Accommodations,
		Dining:         *raw.Dining,
		Description:    *raw.Description,
		Vibe:           *raw.Vibe,
	}
}

// fallbackPalette is the fixed five-color palette used whenever the AI
// response cannot be trusted.
var fallbackPalette = []string{"#2d6a4f", "#d8f3dc", "#f4a261", "#264653", "#e9c46a"}

// Fallback synthesizes a deterministic board payload from the preferences
// alone. Same input, same output; nothing from partial AI output leaks in.
func Fallback(p Preferences) Payload {
	destination := p.Destination
	if destination == "" {
		destination = "Somewhere new"
	}
	style := p.Style
	if style == "" {
		style = "Classic"
	}
	mood := p.Mood
	if mood == "" {
		mood = "relaxed"
	}
	return Payload{
		Title:        fmt.Sprintf("%s %s Mood Board", style, destination),
		ColorPalette: append([]string(nil), fallbackPalette...),
		Themes: []string{
			strings.ToLower(style) + " aesthetics",
			"local culture",
			"scenic views",
		},
		Activities: []string{
			"Explore the old town",
			"Sample regional food",
			"Day trip to nearby sights",
		},
		Accommodations: []string{
			"Boutique hotel",
			"Guesthouse with character",
			"Central apartment",
		},
		Dining: []string{
			"Neighborhood cafes",
			"Traditional restaurants",
			"Local markets",
		},
		Description: fmt.Sprintf("A %s trip to %s for %s travellers.", mood, destination, strings.ToLower(style)),
		Vibe:        mood,
	}
}

// Generate builds the prompt, makes the single service call, and wraps the
// parsed (or fallback) payload into a fresh board. A transport failure
// aborts with ErrGenerationFailed; the result is handed to the board store
// exactly like any other new-board creation.
func (a *Adapter) Generate(ctx context.Context, p Preferences) (board.Board, error) {
	text, err := a.generator.Generate(ctx, BuildPrompt(p))
	if err != nil {
		return board.Board{}, err
	}
	payload := ParseOrFallback(text, p)
	return WrapPayload(payload), nil
}

// WrapPayload turns a payload into a full board with a fresh id and empty
// element, collaborator, and message lists.
func WrapPayload(payload Payload) board.Board {
	now := time.Now().UTC()
	return board.Board{
		ID:            util.NewID("brd"),
		Title:         payload.Title,
		Description:   payload.Description,
		Themes:        payload.Themes,
		Activities:    payload.Activities,
		ColorPalette:  payload.ColorPalette,
		Elements:      []board.Element{},
		Settings:      board.DefaultSettings(),
		Collaborators: []board.Collaborator{},
		Messages:      []board.Message{},
		Metadata: board.Metadata{
			CreatedAt:    now,
			LastModified: now,
			AIGenerated:  true,
		},
	}
}
