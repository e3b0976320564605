// Package discovery finds candidate product/category pages to analyze from a
// single start URL: outbound links on the base page plus a fixed set of
// conventional sitemap locations. It is a heuristic filter, not a crawler:
// one level deep, no retries, no robots.txt.
package discovery

import (
	"context"
	"regexp"
	"strings"

	"github.com/shelfscan/shelfscan/internal/logging"
	"github.com/shelfscan/shelfscan/internal/scrape"
	"github.com/shelfscan/shelfscan/internal/urlutil"
)

// Config exposes every policy constant of the discovery heuristic. The caps
// and keyword lists are product policy, not derived values, so they are
// configurable rather than literals.
type Config struct {
	// Per-bucket caps and the overall cap on returned URLs.
	MaxProductURLs  int
	MaxCategoryURLs int
	MaxOtherURLs    int
	MaxTotalURLs    int

	// MinPathLength admits paths with no recognized keyword when they are
	// longer than this many characters.
	MinPathLength int

	// SitemapPaths are probed relative to the site root.
	SitemapPaths []string

	// Keyword allowlists matched against lower-cased path segments.
	ProductKeywords  []string
	CategoryKeywords []string
}

// DefaultConfig returns the stock discovery policy.
func DefaultConfig() Config {
	return Config{
		MaxProductURLs:  15,
		MaxCategoryURLs: 10,
		MaxOtherURLs:    5,
		MaxTotalURLs:    30,
		MinPathLength:   10,
		SitemapPaths: []string{
			"/sitemap.xml",
			"/sitemap_index.xml",
			"/sitemap_products_1.xml",
		},
		ProductKeywords: []string{
			"product", "products", "item", "items", "p", "shop", "store",
			"catalog", "buy", "detail", "details", "sku",
		},
		CategoryKeywords: []string{
			"category", "categories", "collection", "collections", "c",
			"department", "brand", "brands", "tag",
		},
	}
}

// Discoverer buckets candidate URLs for one analysis run.
type Discoverer struct {
	cfg     Config
	scraper *scrape.Scraper
	logger  logging.Logger
}

func New(cfg Config, scraper *scrape.Scraper, logger logging.Logger) *Discoverer {
	return &Discoverer{
		cfg:     cfg,
		scraper: scraper,
		logger:  logger.With(logging.Field{Key: "component", Value: "discovery"}),
	}
}

type bucket int

const (
	bucketNone bucket = iota
	bucketProduct
	bucketCategory
	bucketOther
)

var (
	locRe       = regexp.MustCompile(`(?s)<loc>\s*(.*?)\s*</loc>`)
	numericIDRe = regexp.MustCompile(`/\d{3,}(?:[/?]|$)`)
	assetExtRe  = regexp.MustCompile(`\.(?:css|js|png|jpe?g|gif|svg|webp|ico|pdf|zip|woff2?)$`)
)

// Discover returns candidate URLs for baseURL, base URL always first, capped
// per bucket and overall. Any failure degrades to returning just the base
// URL, since an analysis of only the start page is still useful.
func (d *Discoverer) Discover(ctx context.Context, baseURL string) []string {
	base, err := urlutil.NewURLTools(baseURL)
	if err != nil {
		d.logger.Warn("unparseable base url, using it as-is",
			logging.Field{Key: "url", Value: baseURL},
			logging.Field{Key: "error", Value: err.Error()})
		return []string{baseURL}
	}

	candidates := d.pageLinks(ctx, baseURL)
	candidates = append(candidates, d.sitemapLinks(ctx, base)...)

	products := make([]string, 0, d.cfg.MaxProductURLs)
	categories := make([]string, 0, d.cfg.MaxCategoryURLs)
	others := make([]string, 0, d.cfg.MaxOtherURLs)

	seen := map[string]struct{}{baseURL: {}}
	for _, raw := range candidates {
		canon, err := urlutil.Canonicalize(raw, urlutil.CanonicalizeOptions{
			StripTrailingSlash: true,
			DropTrackingParams: true,
		})
		if err != nil {
			continue
		}
		if _, ok := seen[canon]; ok {
			continue
		}
		seen[canon] = struct{}{}

		target, err := urlutil.NewURLTools(canon)
		if err != nil || !base.SameHost(target) {
			continue
		}
		if assetExtRe.MatchString(strings.ToLower(target.URL.Path)) {
			continue
		}

		switch d.classify(target) {
		case bucketProduct:
			if len(products) < d.cfg.MaxProductURLs {
				products = append(products, canon)
			}
		case bucketCategory:
			if len(categories) < d.cfg.MaxCategoryURLs {
				categories = append(categories, canon)
			}
		case bucketOther:
			if len(others) < d.cfg.MaxOtherURLs {
				others = append(others, canon)
			}
		}
	}

	out := make([]string, 0, d.cfg.MaxTotalURLs)
	out = append(out, baseURL)
	for _, group := range [][]string{products, categories, others} {
		for _, u := range group {
			if len(out) >= d.cfg.MaxTotalURLs {
				break
			}
			out = append(out, u)
		}
	}

	d.logger.Info("discovery finished",
		logging.Field{Key: "base", Value: baseURL},
		logging.Field{Key: "products", Value: len(products)},
		logging.Field{Key: "categories", Value: len(categories)},
		logging.Field{Key: "other", Value: len(others)},
		logging.Field{Key: "total", Value: len(out)})

	return out
}

// pageLinks extracts outbound links from the base page.
func (d *Discoverer) pageLinks(ctx context.Context, baseURL string) []string {
	pc, err := d.scraper.Page(ctx, baseURL)
	if err != nil {
		d.logger.Warn("base page fetch failed",
			logging.Field{Key: "url", Value: baseURL},
			logging.Field{Key: "error", Value: err.Error()})
		return nil
	}
	return pc.Links
}

// sitemapLinks probes the conventional sitemap paths and pulls <loc> values
// with a plain tag-text regex; sitemaps in the wild are too messy for strict
// XML decoding to be worth it here.
func (d *Discoverer) sitemapLinks(ctx context.Context, base *urlutil.URLTools) []string {
	root := *base.URL
	root.Path = ""
	root.RawQuery = ""

	var out []string
	for _, p := range d.cfg.SitemapPaths {
		resp, err := d.scraper.Raw(ctx, root.String()+p)
		if err != nil || resp.StatusCode >= 400 {
			continue
		}
		for _, m := range locRe.FindAllStringSubmatch(string(resp.Body), -1) {
			loc := strings.TrimSpace(m[1])
			if loc != "" && !strings.HasSuffix(loc, ".xml") {
				out = append(out, loc)
			}
		}
	}
	return out
}

func (d *Discoverer) classify(u *urlutil.URLTools) bucket {
	path := strings.ToLower(u.URL.Path)
	query := u.URL.Query()

	segments := strings.Split(strings.Trim(path, "/"), "/")
	for _, seg := range segments {
		for _, kw := range d.cfg.ProductKeywords {
			if seg == kw {
				return bucketProduct
			}
		}
	}
	if numericIDRe.MatchString(path) {
		return bucketProduct
	}

	for _, seg := range segments {
		for _, kw := range d.cfg.CategoryKeywords {
			if seg == kw {
				return bucketCategory
			}
		}
	}
	// Pagination markers group with category listings.
	if query.Has("page") || strings.Contains(path, "/page/") {
		return bucketCategory
	}

	if len(path) > d.cfg.MinPathLength {
		return bucketOther
	}
	return bucketNone
}
