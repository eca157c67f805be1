package board

import (
	"math"
	"math/rand"

	"wanderboard/api/internal/util"
)

// Canvas operations are pure: each takes a board by value and returns the
// mutated copy, leaving the input untouched. Capability checks happen in the
// caller; these functions assume edit rights were already granted.

// interiorMargin keeps freshly created elements away from the canvas edges.
const interiorMargin = 40.0

const duplicateOffset = 20.0

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ElementPatch carries a partial element update. Nil fields are left alone;
// set fields are merged and then re-clamped, so a caller cannot bypass the
// model invariants with a partial write.
type ElementPatch struct {
	X          *float64 `json:"x,omitempty"`
	Y          *float64 `json:"y,omitempty"`
	Width      *float64 `json:"width,omitempty"`
	Height     *float64 `json:"height,omitempty"`
	Rotation   *int     `json:"rotation,omitempty"`
	ZIndex     *int     `json:"zIndex,omitempty"`
	Opacity    *float64 `json:"opacity,omitempty"`
	Visible    *bool    `json:"visible,omitempty"`
	ImageURL   *string  `json:"imageUrl,omitempty"`
	Content    *string  `json:"content,omitempty"`
	FontSize   *int     `json:"fontSize,omitempty"`
	FontFamily *string  `json:"fontFamily,omitempty"`
	FontWeight *string  `json:"fontWeight,omitempty"`
	Color      *string  `json:"color,omitempty"`
	ShapeType  *string  `json:"shapeType,omitempty"`
}

func (p ElementPatch) apply(el *Element) {
	if p.X != nil {
		el.X = *p.X
	}
	if p.Y != nil {
		el.Y = *p.Y
	}
	if p.Width != nil {
		el.Width = *p.Width
	}
	if p.Height != nil {
		el.Height = *p.Height
	}
	if p.Rotation != nil {
		el.Rotation = *p.Rotation
	}
	if p.ZIndex != nil {
		el.ZIndex = *p.ZIndex
	}
	if p.Opacity != nil {
		el.Opacity = *p.Opacity
	}
	if p.Visible != nil {
		el.Visible = *p.Visible
	}
	if p.ImageURL != nil {
		el.ImageURL = *p.ImageURL
	}
	if p.Content != nil {
		el.Content = *p.Content
	}
	if p.FontSize != nil {
		el.FontSize = *p.FontSize
	}
	if p.FontFamily != nil {
		el.FontFamily = *p.FontFamily
	}
	if p.FontWeight != nil {
		el.FontWeight = *p.FontWeight
	}
	if p.Color != nil {
		el.Color = *p.Color
	}
	if p.ShapeType != nil {
		el.ShapeType = *p.ShapeType
	}
}

// clampElement re-applies every model clamp. Clamping is always the last
// step of an operation: size first, then position against the final size.
func clampElement(el *Element) {
	el.Width = ClampSize(el.Width)
	el.Height = ClampSize(el.Height)
	el.Rotation = NormalizeRotation(el.Rotation)
	el.Opacity = ClampOpacity(el.Opacity)
	el.X = ClampPosition(el.X, el.Width, CanvasWidth)
	el.Y = ClampPosition(el.Y, el.Height, CanvasHeight)
}

// nextZIndex returns a z-index strictly above every existing element.
// Z-index values are not contiguous after deletes, so the element count
// alone is not enough.
func nextZIndex(b Board) int {
	next := len(b.Elements)
	for _, el := range b.Elements {
		if el.ZIndex+1 > next {
			next = el.ZIndex + 1
		}
	}
	return next
}

func defaultElement(typ ElementType) Element {
	el := Element{
		Type:    typ,
		Width:   200,
		Height:  150,
		Opacity: 1,
		Visible: true,
	}
	switch typ {
	case ElementText:
		el.Width = 150
		el.Height = 100
		el.Content = "Add a note"
		el.FontSize = 16
		el.FontFamily = "Inter"
		el.FontWeight = "normal"
		el.Color = "#1f2937"
	case ElementShape:
		el.ShapeType = "rectangle"
		el.Color = "#f59e0b"
	}
	return el
}

// AddElement creates an element of the given type at a random position
// within the interior margin of the canvas, applies the overrides, and
// appends it on top. The new element is returned for selection.
func AddElement(b Board, typ ElementType, overrides ElementPatch) (Board, Element, error) {
	el := defaultElement(typ)
	switch typ {
	case ElementImage, ElementText, ElementShape:
	default:
		return b, Element{}, ErrInvalidBoard
	}
	el.ID = util.NewID("el")
	el.X = interiorMargin + rand.Float64()*(CanvasWidth-2*interiorMargin-el.Width)
	el.Y = interiorMargin + rand.Float64()*(CanvasHeight-2*interiorMargin-el.Height)
	el.ZIndex = nextZIndex(b)
	overrides.apply(&el)
	clampElement(&el)

	out := b.Clone()
	out.Elements = append(out.Elements, el)
	return out, el, nil
}

// UpdateElement merges a partial update into the element and re-clamps.
func UpdateElement(b Board, id string, patch ElementPatch) (Board, error) {
	i := b.FindElement(id)
	if i < 0 {
		return b, ErrUnknownElement
	}
	out := b.Clone()
	patch.apply(&out.Elements[i])
	clampElement(&out.Elements[i])
	return out, nil
}

// MoveElement offsets an element. With snap-to-grid enabled each axis of the
// offset is rounded to the nearest grid multiple before the bounds clamp;
// clamping first would re-introduce off-grid positions.
func MoveElement(b Board, id string, dx, dy float64) (Board, error) {
	i := b.FindElement(id)
	if i < 0 {
		return b, ErrUnknownElement
	}
	if b.Settings.SnapToGrid && b.Settings.GridSize > 0 {
		grid := float64(b.Settings.GridSize)
		dx = math.Round(dx/grid) * grid
		dy = math.Round(dy/grid) * grid
	}
	out := b.Clone()
	el := &out.Elements[i]
	el.X = ClampPosition(el.X+dx, el.Width, CanvasWidth)
	el.Y = ClampPosition(el.Y+dy, el.Height, CanvasHeight)
	return out, nil
}

// ResizeElement clamps each dimension independently, then keeps the bounding
// box on canvas.
func ResizeElement(b Board, id string, width, height float64) (Board, error) {
	i := b.FindElement(id)
	if i < 0 {
		return b, ErrUnknownElement
	}
	out := b.Clone()
	el := &out.Elements[i]
	el.Width = ClampSize(width)
	el.Height = ClampSize(height)
	el.X = ClampPosition(el.X, el.Width, CanvasWidth)
	el.Y = ClampPosition(el.Y, el.Height, CanvasHeight)
	return out, nil
}

// RotateElement stores the rotation normalized into [0, 360).
func RotateElement(b Board, id string, degrees int) (Board, error) {
	i := b.FindElement(id)
	if i < 0 {
		return b, ErrUnknownElement
	}
	out := b.Clone()
	out.Elements[i].Rotation = NormalizeRotation(degrees)
	return out, nil
}

// DuplicateElement clones an element with a fresh id, nudged down-right and
// placed above everything else.
func DuplicateElement(b Board, id string) (Board, Element, error) {
	i := b.FindElement(id)
	if i < 0 {
		return b, Element{}, ErrUnknownElement
	}
	clone := b.Elements[i]
	clone.ID = util.NewID("el")
	clone.X = ClampPosition(clone.X+duplicateOffset, clone.Width, CanvasWidth)
	clone.Y = ClampPosition(clone.Y+duplicateOffset, clone.Height, CanvasHeight)
	clone.ZIndex = nextZIndex(b)

	out := b.Clone()
	out.Elements = append(out.Elements, clone)
	return out, clone, nil
}

// DeleteElement removes the element. Remaining z-index values are not
// renumbered; only their relative order matters.
func DeleteElement(b Board, id string) (Board, error) {
	i := b.FindElement(id)
	if i < 0 {
		return b, ErrUnknownElement
	}
	out := b.Clone()
	out.Elements = append(out.Elements[:i], out.Elements[i+1:]...)
	return out, nil
}

// ReorderAdjacent swaps the element's z-index with its immediate neighbor in
// stacking order. At the top or bottom boundary it is a no-op.
func ReorderAdjacent(b Board, id string, dir Direction) (Board, error) {
	if dir != DirectionUp && dir != DirectionDown {
		return b, ErrInvalidBoard
	}
	i := b.FindElement(id)
	if i < 0 {
		return b, ErrUnknownElement
	}
	neighbor := -1
	for j, el := range b.Elements {
		if j == i {
			continue
		}
		if dir == DirectionUp {
			if el.ZIndex > b.Elements[i].ZIndex &&
				(neighbor < 0 || el.ZIndex < b.Elements[neighbor].ZIndex) {
				neighbor = j
			}
		} else {
			if el.ZIndex < b.Elements[i].ZIndex &&
				(neighbor < 0 || el.ZIndex > b.Elements[neighbor].ZIndex) {
				neighbor = j
			}
		}
	}
	if neighbor < 0 {
		return b, nil
	}
	out := b.Clone()
	out.Elements[i].ZIndex, out.Elements[neighbor].ZIndex =
		out.Elements[neighbor].ZIndex, out.Elements[i].ZIndex
	return out, nil
}

// SetVisibility toggles rendering without touching geometry.
func SetVisibility(b Board, id string, visible bool) (Board, error) {
	i := b.FindElement(id)
	if i < 0 {
		return b, ErrUnknownElement
	}
	out := b.Clone()
	out.Elements[i].Visible = visible
	return out, nil
}
