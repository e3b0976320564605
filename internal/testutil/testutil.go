// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or model calls.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/shelfscan/shelfscan/internal/logging"
	"github.com/shelfscan/shelfscan/internal/model"
	"github.com/shelfscan/shelfscan/internal/scrape"
	"github.com/shelfscan/shelfscan/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient.
// Bodies maps URL -> HTML returned with status 200; unknown URLs return 404.
// Set FailURLs[url] = true to force an error for a specific URL.
type DummyWebClient struct {
	Bodies        map[string]string
	FailURLs      map[string]bool
	Shot          []byte // returned by Screenshot for every URL
	ShotErr       error
	ResponseDelay time.Duration

	mu       sync.Mutex
	Requests []*webclient.Request
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.FailURLs != nil && d.FailURLs[req.URL] {
		return nil, &errString{"dummy fetch fail for " + req.URL}
	}

	body, ok := d.Bodies[req.URL]
	status := 200
	if !ok {
		status = 404
	}
	return &webclient.Response{
		Request:    req,
		Body:       []byte(body),
		StatusCode: status,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	return d.Do(ctx, &webclient.Request{Method: "GET", URL: url})
}

func (d *DummyWebClient) Screenshot(_ context.Context, _ string, _ webclient.ScreenshotOptions) ([]byte, error) {
	if d.ShotErr != nil {
		return nil, d.ShotErr
	}
	if d.Shot != nil {
		return d.Shot, nil
	}
	return nil, webclient.ErrScreenshotUnsupported
}

func (d *DummyWebClient) Close() error { return nil }

// RequestCount returns how many requests the client has served.
func (d *DummyWebClient) RequestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}

// ─── PageSource ────────────────────────────────────────────────────────

// DummyPageSource implements analyzer.PageSource with canned page content.
type DummyPageSource struct {
	Pages    map[string]*scrape.PageContent
	FailURLs map[string]bool
	Shot     []byte
	ShotErr  error
}

func (d *DummyPageSource) Page(_ context.Context, url string) (*scrape.PageContent, error) {
	if d.FailURLs != nil && d.FailURLs[url] {
		return nil, &errString{"dummy page fail for " + url}
	}
	if pc, ok := d.Pages[url]; ok {
		return pc, nil
	}
	return nil, &errString{"dummy page missing for " + url}
}

func (d *DummyPageSource) Screenshot(_ context.Context, _ string) ([]byte, error) {
	if d.ShotErr != nil {
		return nil, d.ShotErr
	}
	return d.Shot, nil
}

// ─── Discoverer ────────────────────────────────────────────────────────

// DummyDiscoverer implements analyzer.Discoverer with a fixed URL list. When
// URLs is nil it degrades to just the base URL, like the real discoverer.
type DummyDiscoverer struct {
	URLs []string
}

func (d *DummyDiscoverer) Discover(_ context.Context, baseURL string) []string {
	if d.URLs == nil {
		return []string{baseURL}
	}
	return append([]string(nil), d.URLs...)
}

// ─── Estimator ─────────────────────────────────────────────────────────

// DummyEstimator implements genai.Estimator with scripted answers per URL.
type DummyEstimator struct {
	Estimates map[string]*model.PageEstimate
	Visuals   map[string]*model.VisualEstimate
	FailURLs  map[string]bool

	mu        sync.Mutex
	PageCalls []string
	ShotCalls []string
}

func (d *DummyEstimator) EstimatePage(_ context.Context, url, _, _ string) (*model.PageEstimate, error) {
	d.mu.Lock()
	d.PageCalls = append(d.PageCalls, url)
	d.mu.Unlock()

	if d.FailURLs != nil && d.FailURLs[url] {
		return nil, &errString{"dummy estimate fail for " + url}
	}
	if est, ok := d.Estimates[url]; ok {
		return est, nil
	}
	return &model.PageEstimate{ProductCount: 1, PageType: "other", Confidence: 50}, nil
}

func (d *DummyEstimator) EstimateScreenshot(_ context.Context, url string, _ []byte) (*model.VisualEstimate, error) {
	d.mu.Lock()
	d.ShotCalls = append(d.ShotCalls, url)
	d.mu.Unlock()

	if d.FailURLs != nil && d.FailURLs[url] {
		return nil, &errString{"dummy visual fail for " + url}
	}
	if est, ok := d.Visuals[url]; ok {
		return est, nil
	}
	return &model.VisualEstimate{VisibleCount: 0, Confidence: 50}, nil
}

func (d *DummyEstimator) Close() error { return nil }

// ─── Pacer ─────────────────────────────────────────────────────────────

// CountingPacer implements analyzer.Pacer and records how often it was asked
// to wait, without actually sleeping.
type CountingPacer struct {
	mu    sync.Mutex
	Waits int
}

func (p *CountingPacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.Waits++
	p.mu.Unlock()
	return nil
}

// ─── helpers ───────────────────────────────────────────────────────────

type errString struct{ s string }

func (e *errString) Error() string { return e.s }
