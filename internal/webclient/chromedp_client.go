package webclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/shelfscan/shelfscan/internal/logging"
)

// ChromeDPClient renders pages in headless Chrome. Product grids on modern
// storefronts are mostly assembled client-side, so the rendered DOM is what
// the text extraction and the screenshot flow both need.
type ChromeDPClient struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	idleAfter   time.Duration
	logger      logging.Logger
}

func NewChromeDPClient(cfg Config, logger logging.Logger) (*ChromeDPClient, error) {
	opts := chromedp.DefaultExecAllocatorOptions[:]
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	idleAfter := cfg.IdleAfter
	if idleAfter <= 0 {
		idleAfter = 2 * time.Second
	}

	return &ChromeDPClient{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		idleAfter:   idleAfter,
		logger:      logger.With(logging.Field{Key: "component", Value: "webclient.chromedp"}),
	}, nil
}

// waitNetworkIdle signals once no request has been in flight for idleAfter.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) chan struct{} {
	idleChan := make(chan struct{})
	var activeReqs int32
	var timer *time.Timer
	var timerMutex sync.Mutex
	var once sync.Once

	startTimer := func() {
		timerMutex.Lock()
		defer timerMutex.Unlock()

		if timer != nil {
			timer.Stop()
		}

		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&activeReqs) == 0 {
				once.Do(func() { close(idleChan) })
			}
		})
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&activeReqs, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&activeReqs, -1) <= 0 {
				startTimer()
			}
		}
	})

	// Pages with zero subresources never decrement, so arm the timer once
	// up front as well.
	startTimer()

	return idleChan
}

func (cdc *ChromeDPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}

	tabCtx, cancel := chromedp.NewContext(cdc.allocCtx)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		tabCtx, dcancel = context.WithDeadline(tabCtx, deadline)
		defer dcancel()
	}

	idleChan := waitNetworkIdle(tabCtx, cdc.idleAfter)

	// Track the document response for the status code.
	var statusCode int64 = http.StatusOK
	chromedp.ListenTarget(tabCtx, func(ev any) {
		if resp, ok := ev.(*network.EventResponseReceived); ok && resp.Type == network.ResourceTypeDocument {
			statusCode = resp.Response.Status
		}
	})

	if err := chromedp.Run(tabCtx, chromedp.Navigate(req.URL)); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", req.URL, err)
	}

	select {
	case <-idleChan:
	case <-tabCtx.Done():
		return nil, tabCtx.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return nil, fmt.Errorf("extract html from %s: %w", req.URL, err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "text/html; charset=utf-8")

	return &Response{
		Request:    req,
		Body:       []byte(html),
		Headers:    headers,
		StatusCode: int(statusCode),
		FetchedAt:  time.Now(),
	}, nil
}

// Get is a convenience method for simple GET requests.
func (cdc *ChromeDPClient) Get(ctx context.Context, url string) (*Response, error) {
	return cdc.Do(ctx, &Request{Method: http.MethodGet, URL: url})
}

// SupportsScreenshots reports that this backend renders pages.
func (cdc *ChromeDPClient) SupportsScreenshots() bool { return true }

// Screenshot captures the full scrollable page, not just the viewport.
func (cdc *ChromeDPClient) Screenshot(ctx context.Context, url string, opts ScreenshotOptions) ([]byte, error) {
	tabCtx, cancel := chromedp.NewContext(cdc.allocCtx)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		tabCtx, dcancel = context.WithDeadline(tabCtx, deadline)
		defer dcancel()
	}

	if opts.Width <= 0 || opts.Height <= 0 {
		opts = DefaultScreenshotOptions()
	}
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = 90
	}

	idleChan := waitNetworkIdle(tabCtx, cdc.idleAfter)

	if err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(opts.Width, opts.Height),
		chromedp.Navigate(url),
	); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}

	select {
	case <-idleChan:
	case <-tabCtx.Done():
		return nil, tabCtx.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var buf []byte
	if err := chromedp.Run(tabCtx, chromedp.FullScreenshot(&buf, quality)); err != nil {
		return nil, fmt.Errorf("screenshot %s: %w", url, err)
	}

	cdc.logger.Debug("captured screenshot",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "bytes", Value: len(buf)})

	return buf, nil
}

func (cdc *ChromeDPClient) Close() error {
	cdc.allocCancel()
	return nil
}
