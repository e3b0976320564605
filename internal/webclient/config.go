package webclient

import "time"

// Backend names accepted by Config.Backend.
const (
	BackendNetHTTP  = "nethttp"
	BackendChromeDP = "chromedp"
)

// Config selects and tunes a webclient backend.
type Config struct {
	// Backend is the registered backend name; empty means nethttp.
	Backend string

	// Timeout bounds a single request, nethttp backend only.
	Timeout time.Duration

	// IdleAfter is how long the network must stay quiet before the chromedp
	// backend considers a page settled.
	IdleAfter time.Duration

	// Headless disables the visible browser window; only ever false when
	// debugging locally.
	Headless bool

	// UserAgent overrides the default UA when non-empty.
	UserAgent string
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Backend:   BackendNetHTTP,
		Timeout:   30 * time.Second,
		IdleAfter: 2 * time.Second,
		Headless:  true,
	}
}
