package monitor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch-monitor/internal/metrics"
)

// ControllerConfig controls a poll cycle.
type ControllerConfig struct {
	SourceURL    string
	Headers      http.Header
	FetchTimeout time.Duration
	// CommitFailed marks IDs as seen even when delivery failed, so an outage
	// never turns into a burst of repeats later. When false, failed IDs stay
	// unseen and are retried on the next cycle.
	CommitFailed bool
}

// Controller runs one fetch, extract, diff, notify, persist pass at a time.
// It is not safe for concurrent use; the Scheduler drives it sequentially.
type Controller struct {
	fetcher   Fetcher
	extractor Extractor
	notifier  Notifier
	store     SeenStore
	pacer     Pacer
	clock     Clock
	idGen     IDGenerator
	cfg       ControllerConfig
	logger    *zap.Logger

	iteration int
}

// NewController constructs a Controller. pacer and idGen may be nil.
func NewController(
	fetcher Fetcher,
	extractor Extractor,
	notifier Notifier,
	store SeenStore,
	pacer Pacer,
	clock Clock,
	idGen IDGenerator,
	cfg ControllerConfig,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	return &Controller{
		fetcher:   fetcher,
		extractor: extractor,
		notifier:  notifier,
		store:     store,
		pacer:     pacer,
		clock:     clock,
		idGen:     idGen,
		cfg:       cfg,
		logger:    logger,
	}
}

// Check fetches the source page and extracts its records without touching
// the seen set or the notifier.
func (c *Controller) Check(ctx context.Context) ([]Record, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	resp, err := c.fetcher.Fetch(fetchCtx, FetchRequest{
		URL:     c.cfg.SourceURL,
		Headers: c.cfg.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch source page: %w", err)
	}
	if resp.StatusCode != 0 && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return nil, fmt.Errorf("fetch source page: unexpected status %d", resp.StatusCode)
	}
	metrics.ObserveFetch(len(resp.Body))
	c.logger.Debug("source page fetched",
		zap.String("url", resp.URL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("duration", resp.Duration),
		zap.Bool("headless", resp.UsedHeadless),
	)
	return c.extractor.Extract(resp.Body), nil
}

// RunCycle performs one poll cycle against seen, mutating it in place when
// new records were handled. It never fails: collaborator errors are logged
// and degrade to fewer records for this cycle.
func (c *Controller) RunCycle(ctx context.Context, seen *SeenSet) CycleOutcome {
	c.iteration++
	out := CycleOutcome{
		CycleID:   c.nextCycleID(),
		Iteration: c.iteration,
		StartedAt: c.clock.Now(),
	}
	logger := c.logger.With(zap.String("cycle_id", out.CycleID), zap.Int("iteration", out.Iteration))
	defer func() {
		metrics.ObserveCycle(out.Result(), out.Extracted, out.New, out.Duration)
	}()

	logger.Info("check started", zap.String("url", c.cfg.SourceURL))
	records, err := c.Check(ctx)
	if err != nil {
		out.FetchFailed = true
		out.Duration = c.clock.Now().Sub(out.StartedAt)
		logger.Error("failed to scrape updates", zap.Error(err))
		return out
	}
	out.Extracted = len(records)
	if len(records) == 0 {
		out.Duration = c.clock.Now().Sub(out.StartedAt)
		logger.Warn("no updates found on page")
		return out
	}
	logger.Info("updates found on page", zap.Int("total", len(records)))

	fresh := Fresh(records, seen)
	out.New = len(fresh)
	if len(fresh) == 0 {
		out.Duration = c.clock.Now().Sub(out.StartedAt)
		logger.Info("no new updates found")
		return out
	}
	logger.Info("new updates found", zap.Int("new", len(fresh)))

	batch := c.deliver(ctx, DeliveryOrder(fresh), &out, logger)
	if added := seen.Union(batch); added > 0 {
		out.Committed = c.commit(ctx, seen, logger)
	}
	out.Duration = c.clock.Now().Sub(out.StartedAt)
	logger.Info("check finished",
		zap.Int("notified", out.Notified),
		zap.Int("failures", out.Failures),
		zap.Bool("committed", out.Committed),
		zap.Int("seen", seen.Len()),
		zap.Duration("duration", out.Duration),
	)
	return out
}

// deliver notifies each record in order and returns the IDs to commit.
// Delivery stops early when ctx is canceled; IDs never attempted are left
// out of the batch so they are picked up again after a restart.
func (c *Controller) deliver(ctx context.Context, ordered []Record, out *CycleOutcome, logger *zap.Logger) []string {
	batch := make([]string, 0, len(ordered))
	for i, rec := range ordered {
		if c.pacer != nil {
			if err := c.pacer.Wait(ctx); err != nil {
				logger.Warn("notification pacing interrupted", zap.Error(err))
				break
			}
		}
		if ctx.Err() != nil {
			logger.Warn("delivery interrupted", zap.Int("remaining", len(ordered)-i))
			break
		}

		recLogger := logger.With(zap.String("news_id", rec.ID), zap.String("company", rec.Entity))
		recLogger.Info("new update",
			zap.Int("position", i+1),
			zap.String("title", truncate(rec.Title, 80)),
			zap.String("timestamp", rec.TimestampDisplay),
		)
		delivered := c.notifier.Notify(ctx, rec)
		metrics.ObserveNotification(delivered)
		if delivered {
			out.Notified++
			recLogger.Info("notification sent")
		} else {
			out.Failures++
			recLogger.Warn("notification skipped")
		}
		if delivered || c.cfg.CommitFailed {
			batch = append(batch, rec.ID)
		}
	}
	return batch
}

func (c *Controller) commit(ctx context.Context, seen *SeenSet, logger *zap.Logger) bool {
	// The commit must land even if shutdown began during delivery.
	err := c.store.Save(context.WithoutCancel(ctx), seen)
	metrics.ObserveSeenWrite(seen.Len(), err)
	if err != nil {
		logger.Error("could not save seen updates", zap.Int("seen", seen.Len()), zap.Error(err))
		return false
	}
	logger.Info("saved seen updates", zap.Int("seen", seen.Len()))
	return true
}

func (c *Controller) nextCycleID() string {
	if c.idGen == nil {
		return fmt.Sprintf("cycle-%d", c.iteration)
	}
	id, err := c.idGen.NewID()
	if err != nil {
		c.logger.Warn("cycle id generation failed", zap.Error(err))
		return fmt.Sprintf("cycle-%d", c.iteration)
	}
	return id
}

// Fresh returns the records whose ID is not in seen, in extraction order.
// A repeated ID within the same page is kept only at its first position.
func Fresh(records []Record, seen *SeenSet) []Record {
	fresh := make([]Record, 0, len(records))
	taken := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if rec.ID == "" || seen.Has(rec.ID) {
			continue
		}
		if _, dup := taken[rec.ID]; dup {
			continue
		}
		taken[rec.ID] = struct{}{}
		fresh = append(fresh, rec)
	}
	return fresh
}

// DeliveryOrder reverses newest-first extraction order so the oldest record
// is sent first and the latest ends up at the bottom of the chat.
func DeliveryOrder(records []Record) []Record {
	ordered := make([]Record, len(records))
	for i, rec := range records {
		ordered[len(records)-1-i] = rec
	}
	return ordered
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
