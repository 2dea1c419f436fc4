// Package promote wraps a plain fetcher with a headless fallback that is used
// only when the plain response looks like an unrendered shell.
package promote

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch-monitor/internal/monitor"
)

// Detector decides whether a response needs a headless re-fetch.
type Detector interface {
	ShouldPromote(resp monitor.FetchResponse) bool
}

// Fetcher tries primary first and promotes to headless on demand.
type Fetcher struct {
	primary  monitor.Fetcher
	headless monitor.Fetcher
	detector Detector
	logger   *zap.Logger
}

// New returns a promoting fetcher.
func New(primary, headless monitor.Fetcher, detector Detector, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{primary: primary, headless: headless, detector: detector, logger: logger}
}

// Fetch implements monitor.Fetcher. A failed promotion falls back to the
// primary response so extraction still sees whatever the page served.
func (f *Fetcher) Fetch(ctx context.Context, req monitor.FetchRequest) (monitor.FetchResponse, error) {
	resp, err := f.primary.Fetch(ctx, req)
	if err != nil {
		return resp, err
	}
	if f.headless == nil || f.detector == nil || !f.detector.ShouldPromote(resp) {
		return resp, nil
	}

	promoted, err := f.headless.Fetch(ctx, req)
	if err != nil {
		f.logger.Warn("headless promotion failed", zap.String("url", req.URL), zap.Error(err))
		return resp, nil
	}
	f.logger.Info("headless promotion applied", zap.String("url", req.URL))
	promoted.UsedHeadless = true
	return promoted, nil
}
