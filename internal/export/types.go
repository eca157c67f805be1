// Package export renders a board to an image or PDF at the editor boundary,
// using headless Chrome as the drawing engine.
package export

import "errors"

type Format string

const (
	FormatPNG Format = "png"
	FormatPDF Format = "pdf"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrChromiumMissing   = errors.New("chromium not installed")
	ErrSnapshotFailed    = errors.New("board snapshot failed")
)

// Request describes one export invocation.
type Request struct {
	Format  Format
	Quality int // 1-100, PNG only; 0 means default
}

// Result carries the rendered artifact.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}
