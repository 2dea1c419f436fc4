// Package ratelimit implements the token bucket that spaces out outgoing
// notifications.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/stockwatch-monitor/internal/metrics"
)

// Limiter implements monitor.Pacer.
type Limiter struct {
	limiter *rate.Limiter
}

// New returns a Limiter that allows one notification per pause, or nil when
// pause is not positive so callers can skip pacing entirely.
func New(pause time.Duration) *Limiter {
	if pause <= 0 {
		return nil
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Every(pause), 1)}
}

// Wait blocks until the next notification may be sent.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// An immediately available token is not a delay worth recording.
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObservePacingDelay(d)
	}
	return nil
}
