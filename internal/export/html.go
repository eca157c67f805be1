package export

import (
	"fmt"
	"html/template"
	"sort"
	"strings"

	"wanderboard/api/internal/board"
)

// boardTemplate lays the canvas out at its logical size with absolutely
// positioned elements, lowest z-index first so stacking matches the editor.
var boardTemplate = template.Must(template.New("board").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { margin: 0; background: #f3f4f6; font-family: Inter, sans-serif; }
  .canvas { position: relative; width: {{.CanvasWidth}}px; height: {{.CanvasHeight}}px; background: #ffffff; overflow: hidden; }
  .element { position: absolute; }
  .element img { width: 100%; height: 100%; object-fit: cover; }
  .element .shape { width: 100%; height: 100%; }
  .element .text { width: 100%; height: 100%; overflow: hidden; }
</style>
</head>
<body>
<div class="canvas">
{{range .Elements}}<div class="element" style="{{.Style}}">{{if .ImageURL}}<img src="{{.ImageURL}}" alt="">{{else if .IsText}}<div class="text" style="{{.InnerStyle}}">{{.Content}}</div>{{else}}<div class="shape" style="{{.InnerStyle}}"></div>{{end}}</div>
{{end}}</div>
</body>
</html>`))

type templateElement struct {
	Style      template.CSS
	InnerStyle template.CSS
	ImageURL   string
	IsText     bool
	Content    string
}

type templateData struct {
	CanvasWidth  int
	CanvasHeight int
	Elements     []templateElement
}

// RenderBoardHTML produces the standalone HTML document Chrome captures.
// Hidden elements are skipped entirely.
func RenderBoardHTML(b board.Board) (string, error) {
	elements := append([]board.Element(nil), b.Elements...)
	sort.SliceStable(elements, func(i, j int) bool {
		return elements[i].ZIndex < elements[j].ZIndex
	})

	data := templateData{
		CanvasWidth:  int(board.CanvasWidth),
		CanvasHeight: int(board.CanvasHeight),
	}
	for _, el := range elements {
		if !el.Visible {
			continue
		}
		style := fmt.Sprintf("left:%.1fpx;top:%.1fpx;width:%.1fpx;height:%.1fpx;opacity:%.2f;",
			el.X, el.Y, el.Width, el.Height, el.Opacity)
		if el.Rotation != 0 {
			style += fmt.Sprintf("transform:rotate(%ddeg);", el.Rotation)
		}

		item := templateElement{Style: template.CSS(style)}
		switch el.Type {
		case board.ElementImage:
			item.ImageURL = el.ImageURL
		case board.ElementText:
			item.IsText = true
			item.Content = el.Content
			inner := fmt.Sprintf("font-size:%dpx;", el.FontSize)
			if el.FontFamily != "" {
				inner += fmt.Sprintf("font-family:%s;", sanitizeCSSValue(el.FontFamily))
			}
			if el.FontWeight != "" {
				inner += fmt.Sprintf("font-weight:%s;", sanitizeCSSValue(el.FontWeight))
			}
			if el.Color != "" {
				inner += fmt.Sprintf("color:%s;", sanitizeCSSValue(el.Color))
			}
			item.InnerStyle = template.CSS(inner)
		case board.ElementShape:
			inner := ""
			if el.Color != "" {
				inner = fmt.Sprintf("background:%s;", sanitizeCSSValue(el.Color))
			}
			if el.ShapeType == "circle" {
				inner += "border-radius:50%;"
			}
			item.InnerStyle = template.CSS(inner)
		}
		data.Elements = append(data.Elements, item)
	}

	var sb strings.Builder
	if err := boardTemplate.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render board html: %w", err)
	}
	return sb.String(), nil
}

// sanitizeCSSValue strips characters that could break out of a CSS
// declaration; element fields are user-controlled.
func sanitizeCSSValue(value string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ';', '{', '}', '<', '>', '"', '\'', '\\':
			return -1
		}
		return r
	}, value)
}
