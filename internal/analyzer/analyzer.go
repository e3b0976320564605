// Package analyzer runs the two product-count estimation flows: multi-page
// (discover pages, estimate each from text, aggregate) and single-page
// (combined text + screenshot estimate of one URL).
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shelfscan/shelfscan/internal/genai"
	"github.com/shelfscan/shelfscan/internal/logging"
	"github.com/shelfscan/shelfscan/internal/metrics"
	"github.com/shelfscan/shelfscan/internal/model"
	"github.com/shelfscan/shelfscan/internal/scrape"
)

// ErrContentTooShort marks pages whose extracted text is below the minimum
// threshold; such pages get a failed PageResult, never a model call.
var ErrContentTooShort = errors.New("page content too short to analyze")

// Config exposes the estimation policy constants.
type Config struct {
	// MinContentLength is the minimum extracted text length for a page to be
	// worth a model call.
	MinContentLength int

	// ExcerptLimitMulti / ExcerptLimitSingle cap the characters of page text
	// embedded in the prompt for the respective flows.
	ExcerptLimitMulti  int
	ExcerptLimitSingle int

	// PageInterval is the minimum spacing between page requests in the
	// multi-page flow.
	PageInterval time.Duration

	// ScrapeTimeout / ModelTimeout bound the individual external calls.
	ScrapeTimeout time.Duration
	ModelTimeout  time.Duration
}

// DefaultConfig returns the stock estimation policy.
func DefaultConfig() Config {
	return Config{
		MinContentLength:   100,
		ExcerptLimitMulti:  20000,
		ExcerptLimitSingle: 25000,
		PageInterval:       time.Second,
		ScrapeTimeout:      45 * time.Second,
		ModelTimeout:       60 * time.Second,
	}
}

// PageSource is the slice of the scraper the analyzer needs.
type PageSource interface {
	Page(ctx context.Context, url string) (*scrape.PageContent, error)
	Screenshot(ctx context.Context, url string) ([]byte, error)
}

// Discoverer yields the candidate URLs for a multi-page run.
type Discoverer interface {
	Discover(ctx context.Context, baseURL string) []string
}

// Progress is invoked after every analyzed page in the multi-page flow.
type Progress func(processed, total int)

// Analyzer drives both flows against injected collaborators.
type Analyzer struct {
	cfg        Config
	pages      PageSource
	discoverer Discoverer
	estimator  genai.Estimator
	pacer      Pacer
	logger     logging.Logger
}

func New(cfg Config, pages PageSource, discoverer Discoverer, estimator genai.Estimator, pacer Pacer, logger logging.Logger) *Analyzer {
	if pacer == nil {
		pacer = NewIntervalPacer(cfg.PageInterval)
	}
	return &Analyzer{
		cfg:        cfg,
		pages:      pages,
		discoverer: discoverer,
		estimator:  estimator,
		pacer:      pacer,
		logger:     logger.With(logging.Field{Key: "component", Value: "analyzer"}),
	}
}

// AnalyzeSite runs the multi-page flow. Pages are processed strictly
// sequentially with the pacer between them; per-page failures become failed
// PageResults and the run continues. The returned error is non-nil only for
// cancellation, in which case the partial result computed so far is still
// returned.
func (a *Analyzer) AnalyzeSite(ctx context.Context, baseURL string, progress Progress) (*model.AnalysisResult, error) {
	urls := a.discoverer.Discover(ctx, baseURL)

	results := make([]model.PageResult, 0, len(urls))
	var runErr error

	for i, u := range urls {
		if i > 0 {
			if err := a.pacer.Wait(ctx); err != nil {
				runErr = err
				break
			}
		}
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}

		pr := a.analyzePage(ctx, u)
		results = append(results, pr)
		metrics.PagesAnalyzed.WithLabelValues(string(pr.Status)).Inc()

		if progress != nil {
			progress(i+1, len(urls))
		}
	}

	res := Aggregate(results, urls, model.MethodMultiPage)
	return res, runErr
}

// analyzePage scrapes one URL and asks the model for an estimate. Every
// failure mode maps to a failed PageResult carrying the error message.
func (a *Analyzer) analyzePage(ctx context.Context, url string) model.PageResult {
	scrapeCtx, cancel := context.WithTimeout(ctx, a.cfg.ScrapeTimeout)
	pc, err := a.pages.Page(scrapeCtx, url)
	cancel()
	if err != nil {
		a.logger.Warn("page fetch failed",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()})
		return failedPage(url, "", err)
	}

	if pc.Length() < a.cfg.MinContentLength {
		return failedPage(url, pc.Title, ErrContentTooShort)
	}

	excerpt := scrape.Truncate(pc.Text, a.cfg.ExcerptLimitMulti)

	modelCtx, cancel := context.WithTimeout(ctx, a.cfg.ModelTimeout)
	est, err := a.estimator.EstimatePage(modelCtx, url, pc.Title, excerpt)
	cancel()
	metrics.ModelCalls.WithLabelValues("page", callStatus(err)).Inc()
	if err != nil {
		a.logger.Warn("page estimate failed",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()})
		return failedPage(url, pc.Title, err)
	}

	return model.PageResult{
		URL:          url,
		Title:        pc.Title,
		ProductCount: est.ProductCount,
		Categories:   est.Categories,
		Confidence:   est.Confidence,
		Evidence:     est.Evidence,
		PageType:     est.PageType,
		Status:       model.PageCompleted,
	}
}

// AnalyzePage runs the single-page combined flow: a text estimate and a
// screenshot estimate, reconciled into one count. Unlike the multi-page
// flow, any failure aborts the whole run. The screenshot bytes are returned
// so the caller can persist a reference.
func (a *Analyzer) AnalyzePage(ctx context.Context, url string) (*model.AnalysisResult, []byte, error) {
	var (
		textEst   *model.PageEstimate
		visualEst *model.VisualEstimate
		title     string
		shot      []byte
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scrapeCtx, cancel := context.WithTimeout(gctx, a.cfg.ScrapeTimeout)
		pc, err := a.pages.Page(scrapeCtx, url)
		cancel()
		if err != nil {
			return err
		}
		if pc.Length() < a.cfg.MinContentLength {
			return ErrContentTooShort
		}
		title = pc.Title

		excerpt := scrape.Truncate(pc.Text, a.cfg.ExcerptLimitSingle)
		modelCtx, cancel := context.WithTimeout(gctx, a.cfg.ModelTimeout)
		est, err := a.estimator.EstimatePage(modelCtx, url, pc.Title, excerpt)
		cancel()
		metrics.ModelCalls.WithLabelValues("page", callStatus(err)).Inc()
		if err != nil {
			return err
		}
		textEst = est
		return nil
	})

	g.Go(func() error {
		shotCtx, cancel := context.WithTimeout(gctx, a.cfg.ScrapeTimeout)
		png, err := a.pages.Screenshot(shotCtx, url)
		cancel()
		if err != nil {
			return err
		}
		shot = png

		modelCtx, cancel := context.WithTimeout(gctx, a.cfg.ModelTimeout)
		est, err := a.estimator.EstimateScreenshot(modelCtx, url, png)
		cancel()
		metrics.ModelCalls.WithLabelValues("screenshot", callStatus(err)).Inc()
		if err != nil {
			return err
		}
		visualEst = est
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("combined analysis of %s: %w", url, err)
	}

	count, confidence := Reconcile(textEst, visualEst)

	page := model.PageResult{
		URL:          url,
		Title:        title,
		ProductCount: count,
		Categories:   textEst.Categories,
		Confidence:   confidence,
		Evidence:     append(append([]string{}, textEst.Evidence...), visualEst.Evidence...),
		PageType:     textEst.PageType,
		Status:       model.PageCompleted,
	}

	res := Aggregate([]model.PageResult{page}, []string{url}, model.MethodSinglePage)
	return res, shot, nil
}

// Reconcile merges the text and visual estimates of the single-page flow:
// start from the text-derived count; a larger pagination-derived estimate
// replaces it; a visual on-page count above the text on-page count adds the
// difference. Confidence is the mean of the two calls.
func Reconcile(text *model.PageEstimate, visual *model.VisualEstimate) (count int, confidence float64) {
	count = text.ProductCount
	if text.PaginationTotal > count {
		count = text.PaginationTotal
	}
	if visual.VisibleCount > text.ProductCount {
		count += visual.VisibleCount - text.ProductCount
	}
	confidence = (text.Confidence + visual.Confidence) / 2
	return count, confidence
}

func failedPage(url, title string, err error) model.PageResult {
	return model.PageResult{
		URL:    url,
		Title:  title,
		Status: model.PageFailed,
		Error:  err.Error(),
	}
}

func callStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
