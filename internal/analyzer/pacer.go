package analyzer

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out page requests in the multi-page flow. It replaces the
// fixed sleep the original design used, so tests can substitute a no-op and
// cancellation is honored while waiting.
type Pacer interface {
	Wait(ctx context.Context) error
}

type ratePacer struct {
	limiter *rate.Limiter
}

// NewIntervalPacer allows one page per interval with no burst beyond the
// first request.
func NewIntervalPacer(interval time.Duration) Pacer {
	if interval <= 0 {
		return NopPacer{}
	}
	return &ratePacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (p *ratePacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// NopPacer never waits.
type NopPacer struct{}

func (NopPacer) Wait(ctx context.Context) error { return nil }
