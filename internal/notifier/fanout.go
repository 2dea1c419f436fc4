// Package notifier combines delivery channels behind the monitor.Notifier
// interface.
package notifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch-monitor/internal/monitor"
)

// Fanout delivers each record to a primary notifier and then to any number of
// mirrors. Only the primary's result counts as delivery; mirrors are best
// effort and their failures are logged.
type Fanout struct {
	primary monitor.Notifier
	mirrors []monitor.Notifier
	logger  *zap.Logger
}

// NewFanout builds a Fanout. Nil mirrors are dropped.
func NewFanout(primary monitor.Notifier, logger *zap.Logger, mirrors ...monitor.Notifier) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]monitor.Notifier, 0, len(mirrors))
	for _, m := range mirrors {
		if m != nil {
			kept = append(kept, m)
		}
	}
	return &Fanout{primary: primary, mirrors: kept, logger: logger}
}

// Notify implements monitor.Notifier.
func (f *Fanout) Notify(ctx context.Context, rec monitor.Record) bool {
	delivered := false
	if f.primary != nil {
		delivered = f.primary.Notify(ctx, rec)
	}
	for i, m := range f.mirrors {
		if !m.Notify(ctx, rec) {
			f.logger.Warn("mirror delivery failed", zap.Int("mirror", i), zap.String("news_id", rec.ID))
		}
	}
	return delivered
}
