package urlutil

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

// URLTools wraps a parsed URL with the normalization helpers the discovery
// and scrape packages share.
type URLTools struct {
	URL *url.URL
}

func NewURLTools(raw string) (*URLTools, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse url %s: %w", raw, err)
	}

	urlTools := &URLTools{URL: u}
	urlTools.normalize()

	return urlTools, nil
}

func (u *URLTools) normalize() {
	u.URL.Fragment = ""
	u.URL.Scheme = strings.ToLower(u.URL.Scheme)
	u.URL.Host = strings.ToLower(u.URL.Host)

	if (u.URL.Scheme == "http" && strings.HasSuffix(u.URL.Host, ":80")) ||
		(u.URL.Scheme == "https" && strings.HasSuffix(u.URL.Host, ":443")) {
		u.URL.Host, _, _ = strings.Cut(u.URL.Host, ":")
	}

	u.URL.Path = strings.TrimRight(u.URL.Path, "/")
}

// SameHost reports whether target points at the same hostname.
func (u *URLTools) SameHost(target *URLTools) bool {
	return u.URL.Hostname() == target.URL.Hostname()
}

// Resolve resolves target against u.URL and returns an absolute URL string.
// Relative references ("../x", "/static", "detail?id=3") are resolved the way
// a browser would.
func (u *URLTools) Resolve(target string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return "", fmt.Errorf("couldn't parse url %s: %w", target, err)
	}
	return u.URL.ResolveReference(parsed).String(), nil
}

// CanonicalizeOptions controls optional canonicalization policies.
type CanonicalizeOptions struct {
	DropTrackingParams bool   // remove common tracking params (utm_*, gclid, fbclid, ...)
	StripTrailingSlash bool   // treat /a and /a/ the same by removing trailing slash (except for root "/")
	DefaultScheme      string // if empty, require scheme in input; otherwise assume this scheme for schemeless URLs
}

// Common tracking params to strip when DropTrackingParams is true.
var defaultTrackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {},
	"gclid": {}, "fbclid": {}, "mc_cid": {}, "mc_eid": {},
}

// Canonicalize returns a deterministic canonical URL string or an error.
// It uses net/url plus path.Clean and sorts query params for determinism.
func Canonicalize(raw string, opts CanonicalizeOptions) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &url.Error{Op: "canonicalize", URL: raw, Err: ErrEmptyURL}
	}

	// If the input has no scheme and a default is configured, prepend it.
	if opts.DefaultScheme != "" && !strings.Contains(raw, "://") {
		raw = opts.DefaultScheme + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if u.Host == "" {
		return "", &url.Error{Op: "canonicalize", URL: raw, Err: ErrMissingHost}
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &url.Error{Op: "canonicalize", URL: raw, Err: ErrBadScheme}
	}

	// Lowercase host and convert IDN -> punycode
	host := strings.ToLower(u.Hostname())
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}

	// Preserve non-default port only
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") || port == "" {
		u.Host = host
	} else {
		u.Host = net.JoinHostPort(host, port)
	}

	// Drop userinfo (credentials)
	u.User = nil

	cleanPath := path.Clean(u.Path)
	if cleanPath == "." {
		cleanPath = "/"
	}
	if opts.StripTrailingSlash && len(cleanPath) > 1 {
		cleanPath = strings.TrimRight(cleanPath, "/")
		if cleanPath == "" {
			cleanPath = "/"
		}
	}
	u.Path = cleanPath
	u.Fragment = ""

	q := u.Query()
	if opts.DropTrackingParams {
		for k := range q {
			if _, ok := defaultTrackingParams[strings.ToLower(k)]; ok {
				q.Del(k)
			}
		}
	}

	// Sort keys and values for deterministic encoding
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := url.Values{}
	for _, k := range keys {
		values := q[k]
		sort.Strings(values)
		for _, v := range values {
			ordered.Add(k, v)
		}
	}
	u.RawQuery = ordered.Encode()

	return u.String(), nil
}

// ValidateInput canonicalizes a user-supplied website URL, assuming https
// for schemeless input. It is the single entry-point validation for starting
// an analysis: anything it rejects never starts a run.
func ValidateInput(raw string) (string, error) {
	canon, err := Canonicalize(raw, CanonicalizeOptions{
		DefaultScheme:      "https",
		StripTrailingSlash: true,
		DropTrackingParams: true,
	})
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}

	// Hostnames without a dot are almost always typos ("examplecom"); reject
	// them rather than crawling something that cannot resolve publicly.
	u, _ := url.Parse(canon)
	host := u.Hostname()
	if !strings.Contains(host, ".") && host != "localhost" && net.ParseIP(host) == nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, ErrMissingHost)
	}

	return canon, nil
}

// Errors
var (
	ErrEmptyURL    = &errStr{"empty url"}
	ErrMissingHost = &errStr{"missing host"}
	ErrBadScheme   = &errStr{"unsupported scheme"}
)

type errStr struct{ s string }

func (e *errStr) Error() string { return e.s }
