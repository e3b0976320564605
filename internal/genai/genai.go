// Package genai holds the generative-model invocation used for per-page
// product estimation. The default implementation speaks the OpenAI chat API
// (or any compatible endpoint via BaseURL); tests use a scripted fake.
package genai

import (
	"context"
	"time"

	"github.com/shelfscan/shelfscan/internal/model"
)

// Estimator is the contract the analyzer depends on. Implementations must be
// safe for concurrent use.
type Estimator interface {
	// EstimatePage asks the model for a product-count estimate from an
	// already-truncated text excerpt of the page.
	EstimatePage(ctx context.Context, url, title, excerpt string) (*model.PageEstimate, error)

	// EstimateScreenshot asks the model for a count of products visible in a
	// full-page screenshot (PNG or JPEG bytes).
	EstimateScreenshot(ctx context.Context, url string, image []byte) (*model.VisualEstimate, error)

	Close() error
}

// Config for the OpenAI-compatible client.
type Config struct {
	APIKey  string
	BaseURL string // empty means api.openai.com

	// Model handles the text calls, VisionModel the screenshot call. They
	// may name the same multimodal model.
	Model       string
	VisionModel string

	Temperature float32

	// Timeout bounds one completion call.
	Timeout time.Duration
}

// DefaultConfig returns the stock model settings.
func DefaultConfig() Config {
	return Config{
		Model:       "gpt-4o-mini",
		VisionModel: "gpt-4o-mini",
		Temperature: 0.1,
		Timeout:     60 * time.Second,
	}
}
