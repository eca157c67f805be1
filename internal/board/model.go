// Package board holds the mood-board data model and the pure canvas
// operations that manipulate it. Nothing in this package performs I/O.
package board

import (
	"errors"
	"fmt"
	"time"
)

// Canvas is a fixed logical coordinate space; the presentation layer scales
// it to the viewport.
const (
	CanvasWidth  = 1200.0
	CanvasHeight = 800.0

	MinElementSize = 50.0
	MaxElementSize = 800.0

	MinOpacity = 0.1
	MaxOpacity = 1.0
)

type ElementType string

const (
	ElementImage ElementType = "image"
	ElementText  ElementType = "text"
	ElementShape ElementType = "shape"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

var (
	ErrInvalidBoard   = errors.New("invalid board")
	ErrUnknownElement = errors.New("unknown element")
)

type Settings struct {
	GridEnabled bool `json:"gridEnabled"`
	SnapToGrid  bool `json:"snapToGrid"`
	GridSize    int  `json:"gridSize"`
}

func DefaultSettings() Settings {
	return Settings{GridEnabled: true, SnapToGrid: false, GridSize: 20}
}

type Metadata struct {
	CreatedAt    time.Time `json:"createdAt"`
	LastModified time.Time `json:"lastModified"`
	AIGenerated  bool      `json:"aiGenerated"`
}

// Element is a single positioned visual item. X/Y are the top-left corner in
// canvas coordinates. Type-specific fields are only meaningful for their type
// and left zero otherwise.
type Element struct {
	ID       string      `json:"id"`
	Type     ElementType `json:"type"`
	X        float64     `json:"x"`
	Y        float64     `json:"y"`
	Width    float64     `json:"width"`
	Height   float64     `json:"height"`
	Rotation int         `json:"rotation"`
	ZIndex   int         `json:"zIndex"`
	Opacity  float64     `json:"opacity"`
	Visible  bool        `json:"visible"`

	ImageURL string `json:"imageUrl,omitempty"`

	Content    string `json:"content,omitempty"`
	FontSize   int    `json:"fontSize,omitempty"`
	FontFamily string `json:"fontFamily,omitempty"`
	FontWeight string `json:"fontWeight,omitempty"`
	Color      string `json:"color,omitempty"`

	ShapeType string `json:"shapeType,omitempty"`
}

type Collaborator struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Email  string         `json:"email"`
	Avatar string         `json:"avatar,omitempty"`
	Role   Role           `json:"role"`
	Status PresenceStatus `json:"status"`
}

// Message entries are append-only; this subsystem never edits or deletes them.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
}

// Board is the top-level document for one editing session. Elements are
// ordered by ZIndex, not by slice position.
type Board struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Themes        []string       `json:"themes"`
	Activities    []string       `json:"activities"`
	ColorPalette  []string       `json:"colorPalette"`
	Elements      []Element      `json:"elements"`
	Settings      Settings       `json:"settings"`
	Collaborators []Collaborator `json:"collaborators"`
	Messages      []Message      `json:"messages"`
	Metadata      Metadata       `json:"metadata"`
}

// Validate rejects (never coerces) a board that violates the model
// invariants. Components constructing or merging state call this before
// accepting a board.
func (b Board) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidBoard)
	}
	if b.Settings.GridSize <= 0 {
		return fmt.Errorf("%w: grid size must be positive", ErrInvalidBoard)
	}
	seen := make(map[string]struct{}, len(b.Elements))
	for _, el := range b.Elements {
		if _, dup := seen[el.ID]; dup {
			return fmt.Errorf("%w: duplicate element id %s", ErrInvalidBoard, el.ID)
		}
		seen[el.ID] = struct{}{}
		if err := el.validate(); err != nil {
			return err
		}
	}
	owners := 0
	for _, c := range b.Collaborators {
		switch c.Role {
		case RoleOwner:
			owners++
		case RoleEditor, RoleViewer:
		default:
			return fmt.Errorf("%w: collaborator %s has unknown role %q", ErrInvalidBoard, c.ID, c.Role)
		}
	}
	// A freshly created board has no collaborators; once the server-confirmed
	// list is present it carries exactly one owner, assigned at creation.
	if len(b.Collaborators) > 0 && owners != 1 {
		return fmt.Errorf("%w: expected exactly one owner, found %d", ErrInvalidBoard, owners)
	}
	return nil
}

func (e Element) validate() error {
	switch e.Type {
	case ElementImage, ElementText, ElementShape:
	default:
		return fmt.Errorf("%w: element %s has unknown type %q", ErrInvalidBoard, e.ID, e.Type)
	}
	if e.Width < MinElementSize || e.Width > MaxElementSize ||
		e.Height < MinElementSize || e.Height > MaxElementSize {
		return fmt.Errorf("%w: element %s size %gx%g out of range", ErrInvalidBoard, e.ID, e.Width, e.Height)
	}
	if e.X < 0 || e.Y < 0 || e.X+e.Width > CanvasWidth || e.Y+e.Height > CanvasHeight {
		return fmt.Errorf("%w: element %s out of canvas bounds", ErrInvalidBoard, e.ID)
	}
	if e.Rotation < 0 || e.Rotation >= 360 {
		return fmt.Errorf("%w: element %s rotation %d not normalized", ErrInvalidBoard, e.ID, e.Rotation)
	}
	if e.Opacity < MinOpacity || e.Opacity > MaxOpacity {
		return fmt.Errorf("%w: element %s opacity %g out of range", ErrInvalidBoard, e.ID, e.Opacity)
	}
	return nil
}

// FindElement returns the index of the element with the given id, or -1.
func (b Board) FindElement(id string) int {
	for i, el := range b.Elements {
		if el.ID == id {
			return i
		}
	}
	return -1
}

// Collaborator returns the collaborator entry for userID, if any.
func (b Board) Collaborator(userID string) (Collaborator, bool) {
	for _, c := range b.Collaborators {
		if c.ID == userID {
			return c, true
		}
	}
	return Collaborator{}, false
}

// Clone returns a board whose slices are independent of the receiver's.
// Elements and messages are value types, so a slice copy is a full copy.
func (b Board) Clone() Board {
	out := b
	out.Themes = append([]string(nil), b.Themes...)
	out.Activities = append([]string(nil), b.Activities...)
	out.ColorPalette = append([]string(nil), b.ColorPalette...)
	out.Elements = append([]Element(nil), b.Elements...)
	out.Collaborators = append([]Collaborator(nil), b.Collaborators...)
	out.Messages = append([]Message(nil), b.Messages...)
	return out
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampSize constrains one dimension to the allowed element size range.
func ClampSize(v float64) float64 {
	return clampFloat(v, MinElementSize, MaxElementSize)
}

// ClampOpacity constrains opacity to [0.1, 1].
func ClampOpacity(v float64) float64 {
	return clampFloat(v, MinOpacity, MaxOpacity)
}

// NormalizeRotation maps any degree value into [0, 360).
func NormalizeRotation(degrees int) int {
	return ((degrees % 360) + 360) % 360
}

// ClampPosition keeps an element's bounding box inside the canvas on one
// axis: max(0, min(pos, canvasDim - elementDim)).
func ClampPosition(pos, elementDim, canvasDim float64) float64 {
	limit := canvasDim - elementDim
	if limit < 0 {
		limit = 0
	}
	return clampFloat(pos, 0, limit)
}
