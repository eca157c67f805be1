package board

import (
	"errors"
	"testing"
	"time"
)

func validBoard() Board {
	return Board{
		ID:       "brd_test",
		Title:    "Kyoto in autumn",
		Settings: DefaultSettings(),
		Elements: []Element{
			{ID: "el_1", Type: ElementImage, X: 100, Y: 100, Width: 200, Height: 150, Opacity: 1, Visible: true, ImageURL: "https://img.example/kyoto.jpg"},
			{ID: "el_2", Type: ElementText, X: 400, Y: 200, Width: 150, Height: 100, ZIndex: 1, Opacity: 0.8, Visible: true, Content: "Momiji season"},
		},
		Collaborators: []Collaborator{
			{ID: "usr_owner", Name: "Mira", Email: "mira@example.com", Role: RoleOwner, Status: StatusOnline},
			{ID: "usr_viewer", Name: "Theo", Email: "theo@example.com", Role: RoleViewer, Status: StatusOffline},
		},
		Metadata: Metadata{CreatedAt: time.Now(), LastModified: time.Now()},
	}
}

func TestValidateAcceptsWellFormedBoard(t *testing.T) {
	if err := validBoard().Validate(); err != nil {
		t.Fatalf("expected valid board, got %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Board)
	}{
		{"missing id", func(b *Board) { b.ID = "" }},
		{"zero grid size", func(b *Board) { b.Settings.GridSize = 0 }},
		{"duplicate element id", func(b *Board) { b.Elements[1].ID = b.Elements[0].ID }},
		{"unknown element type", func(b *Board) { b.Elements[0].Type = "video" }},
		{"width below minimum", func(b *Board) { b.Elements[0].Width = 10 }},
		{"height above maximum", func(b *Board) { b.Elements[0].Height = 900 }},
		{"negative position", func(b *Board) { b.Elements[0].X = -5 }},
		{"box past right edge", func(b *Board) { b.Elements[0].X = CanvasWidth - 100 }},
		{"box past bottom edge", func(b *Board) { b.Elements[0].Y = CanvasHeight - 100 }},
		{"rotation not normalized", func(b *Board) { b.Elements[0].Rotation = 360 }},
		{"negative rotation", func(b *Board) { b.Elements[0].Rotation = -10 }},
		{"opacity below floor", func(b *Board) { b.Elements[0].Opacity = 0.05 }},
		{"opacity above one", func(b *Board) { b.Elements[0].Opacity = 1.5 }},
		{"two owners", func(b *Board) { b.Collaborators[1].Role = RoleOwner }},
		{"no owner with collaborators present", func(b *Board) { b.Collaborators[0].Role = RoleEditor }},
		{"unknown role", func(b *Board) { b.Collaborators[1].Role = "admin" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := validBoard()
			tc.mutate(&b)
			err := b.Validate()
			if !errors.Is(err, ErrInvalidBoard) {
				t.Fatalf("expected ErrInvalidBoard, got %v", err)
			}
		})
	}
}

func TestValidateAllowsEmptyCollaborators(t *testing.T) {
	b := validBoard()
	b.Collaborators = nil
	if err := b.Validate(); err != nil {
		t.Fatalf("a freshly created board has no collaborators yet: %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	b := validBoard()
	clone := b.Clone()
	clone.Elements[0].X = 999
	clone.Themes = append(clone.Themes, "temples")
	if b.Elements[0].X == 999 {
		t.Fatal("clone shares element backing array with original")
	}
	if len(b.Themes) != 0 {
		t.Fatal("clone shares themes with original")
	}
}

func TestNormalizeRotation(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 0}, {359, 359}, {360, 0}, {450, 90}, {-90, 270}, {-360, 0}, {725, 5},
	}
	for _, tc := range cases {
		if got := NormalizeRotation(tc.in); got != tc.want {
			t.Errorf("NormalizeRotation(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestClampPosition(t *testing.T) {
	if got := ClampPosition(-10, 100, CanvasWidth); got != 0 {
		t.Errorf("negative position should clamp to 0, got %g", got)
	}
	if got := ClampPosition(1190, 50, CanvasWidth); got != 1150 {
		t.Errorf("expected 1150, got %g", got)
	}
	// Oversize element pins to the origin rather than going negative.
	if got := ClampPosition(100, 900, 800); got != 0 {
		t.Errorf("oversize element should pin to 0, got %g", got)
	}
}
