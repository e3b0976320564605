package scrape

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/shelfscan/shelfscan/internal/logging"
	"github.com/shelfscan/shelfscan/internal/urlutil"
	"github.com/shelfscan/shelfscan/internal/webclient"
)

// PageContent is the text view of a fetched page handed to the estimator.
type PageContent struct {
	URL   string
	Title string
	Text  string
	Links []string
}

// Length returns the extracted text length; the analyzer rejects pages whose
// content is below its minimum threshold.
func (pc *PageContent) Length() int { return len(pc.Text) }

// Scraper fetches pages through a WebClient and reduces them to PageContent.
// A small LRU keyed by URL avoids refetching the same page within a run (the
// base page is fetched by discovery and again as the first analyzed page).
type Scraper struct {
	wc     webclient.WebClient
	cache  *lru.Cache[string, *PageContent]
	logger logging.Logger
}

// NewScraper builds a Scraper. cacheSize <= 0 disables caching.
func NewScraper(wc webclient.WebClient, cacheSize int, logger logging.Logger) (*Scraper, error) {
	s := &Scraper{
		wc:     wc,
		logger: logger.With(logging.Field{Key: "component", Value: "scrape"}),
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, *PageContent](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("scrape: create cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Page fetches url and extracts its title, visible text and outbound links.
func (s *Scraper) Page(ctx context.Context, url string) (*PageContent, error) {
	if s.cache != nil {
		if pc, ok := s.cache.Get(url); ok {
			s.logger.Debug("page cache hit", logging.Field{Key: "url", Value: url})
			return pc, nil
		}
	}

	resp, err := s.wc.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	pc, err := Extract(url, resp.Body)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Add(url, pc)
	}
	return pc, nil
}

// Screenshot captures a full-page screenshot through the underlying client.
func (s *Scraper) Screenshot(ctx context.Context, url string) ([]byte, error) {
	return s.wc.Screenshot(ctx, url, webclient.DefaultScreenshotOptions())
}

// Raw exposes the underlying client for callers (sitemap fetches) that need
// the body untouched.
func (s *Scraper) Raw(ctx context.Context, url string) (*webclient.Response, error) {
	return s.wc.Get(ctx, url)
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Extract reduces an HTML document to PageContent. Script, style and other
// non-content subtrees are dropped before text extraction; links are
// absolutized against pageURL.
func Extract(pageURL string, body []byte) (*PageContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	base, err := urlutil.NewURLTools(pageURL)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript, svg, iframe").Remove()

	text := doc.Find("body").Text()
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))

	var links []string
	seen := map[string]struct{}{}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		resolved, err := base.Resolve(href)
		if err != nil {
			return
		}
		if _, ok := seen[resolved]; ok {
			return
		}
		seen[resolved] = struct{}{}
		links = append(links, resolved)
	})

	return &PageContent{
		URL:   pageURL,
		Title: title,
		Text:  text,
		Links: links,
	}, nil
}

// Truncate returns at most limit bytes of text, cutting on a rune boundary.
func Truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := text[:limit]
	// Back off a partial rune at the boundary.
	for len(cut) > 0 {
		r, size := utf8.DecodeLastRuneInString(cut)
		if r == utf8.RuneError && size == 1 {
			cut = cut[:len(cut)-1]
			continue
		}
		break
	}
	return cut
}
