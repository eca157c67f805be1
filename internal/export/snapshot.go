package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"wanderboard/api/internal/board"
)

// Snapshot renders the board and captures it in the requested format.
func Snapshot(b board.Board, req Request) (*Result, error) {
	switch req.Format {
	case FormatPNG, FormatPDF:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	html, err := RenderBoardHTML(b)
	if err != nil {
		return nil, err
	}
	return capture(html, b.Title, req)
}

// capture drives headless Chrome over a data URL so no files are written.
func capture(html, title string, req Request) (*Result, error) {
	if _, err := exec.LookPath("chromium-browser"); err != nil {
		if _, fallbackErr := exec.LookPath("chromium"); fallbackErr != nil {
			return nil, ErrChromiumMissing
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(int(board.CanvasWidth), int(board.CanvasHeight)),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()
	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	dataURL := "data:text/html;charset=utf-8," + percentEncodeForDataURL(html)

	var data []byte
	var actions []chromedp.Action
	actions = append(actions, chromedp.Navigate(dataURL), chromedp.WaitReady("body"))

	switch req.Format {
	case FormatPNG:
		quality := req.Quality
		if quality <= 0 || quality > 100 {
			quality = 90
		}
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			data, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithQuality(int64(quality)).
				Do(ctx)
			return err
		}))
	case FormatPDF:
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			data, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithLandscape(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}))
	}

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}

	result := &Result{Data: data, Filename: sanitizeFilename(title) + "." + string(req.Format)}
	if req.Format == FormatPNG {
		result.MimeType = "image/png"
	} else {
		result.MimeType = "application/pdf"
	}
	return result, nil
}

// percentEncodeForDataURL encodes HTML for a data URL. url.QueryEscape is
// unsuitable because it encodes spaces as +.
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			result.WriteRune(r)
		case r == ' ':
			result.WriteString("%20")
		default:
			for _, b := range []byte(string(r)) {
				result.WriteString(fmt.Sprintf("%%%02X", b))
			}
		}
	}
	return result.String()
}

func sanitizeFilename(title string) string {
	var sb strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		case r == ' ':
			sb.WriteByte('-')
		}
	}
	name := sb.String()
	if len(name) > 50 {
		name = name[:50]
	}
	if name == "" {
		name = "board"
	}
	return name
}
