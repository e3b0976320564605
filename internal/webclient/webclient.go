package webclient

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// WebClient abstracts page retrieval so callers do not care whether a page
// was fetched with plain HTTP or rendered in a headless browser.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	// Get is a convenience method for simple GET requests.
	Get(ctx context.Context, url string) (*Response, error)

	// Screenshot captures a full-page screenshot of url and returns PNG
	// bytes. Backends that cannot render return ErrScreenshotUnsupported.
	Screenshot(ctx context.Context, url string, opts ScreenshotOptions) ([]byte, error)

	Close() error
}

// ErrScreenshotUnsupported is returned by backends without rendering support.
var ErrScreenshotUnsupported = errors.New("webclient: backend does not support screenshots")

// CanScreenshot reports whether wc can produce screenshots, so callers can
// reject screenshot-dependent work before starting it. Backends declare the
// capability through a SupportsScreenshots method; clients without one are
// assumed capable and fail at call time instead.
func CanScreenshot(wc WebClient) bool {
	if s, ok := wc.(interface{ SupportsScreenshots() bool }); ok {
		return s.SupportsScreenshots()
	}
	return true
}

type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
	// Options contains backend-specific options like "render": "true" for chromedp
	Options map[string]string
}

type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	FetchedAt  time.Time
}

// ScreenshotOptions controls viewport and capture quality.
type ScreenshotOptions struct {
	Width   int64
	Height  int64
	Quality int // 1-100, PNG when 100
}

// DefaultScreenshotOptions matches a desktop viewport.
func DefaultScreenshotOptions() ScreenshotOptions {
	return ScreenshotOptions{Width: 1440, Height: 900, Quality: 90}
}
