package media

import (
	"bytes"
	"image"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestProbeDimensions(t *testing.T) {
	data := encodePNG(t, 640, 480)
	dims, err := ProbeDimensions(data)
	if err != nil {
		t.Fatalf("ProbeDimensions: %v", err)
	}
	if dims.Width != 640 || dims.Height != 480 {
		t.Errorf("expected 640x480, got %dx%d", dims.Width, dims.Height)
	}
}

func TestProbeDimensionsRejectsGarbage(t *testing.T) {
	if _, err := ProbeDimensions([]byte("not an image")); err == nil {
		t.Fatal("expected an error for non-image bytes")
	}
}
