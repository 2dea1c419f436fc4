// Package headless renders the dashboard in headless Chrome for deployments
// where the announcement list is built client-side.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/stockwatch-monitor/internal/monitor"
)

const (
	defaultTimeout = 45 * time.Second
	defaultSettle  = 500 * time.Millisecond

	// DefaultReadySelector matches the first rendered announcement link.
	DefaultReadySelector = `a[href*="newsId="]`
)

// Config controls rendering.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// ReadySelector must match before the DOM is captured.
	ReadySelector string
	// Settle is the pause after ReadySelector matches, so the rest of the
	// list can render.
	Settle time.Duration
}

// Fetcher implements monitor.Fetcher with chromedp. Renders are serialized
// so the monitor holds at most one tab open.
type Fetcher struct {
	cfg         Config
	mu          sync.Mutex
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New starts a Chrome allocator. The browser itself is launched lazily on the
// first Fetch.
func New(cfg Config) (*Fetcher, error) {
	if cfg.Timeout < 0 {
		return nil, errors.New("headless timeout must be >= 0")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ReadySelector == "" {
		cfg.ReadySelector = DefaultReadySelector
	}
	if cfg.Settle == 0 {
		cfg.Settle = defaultSettle
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Fetcher{cfg: cfg, allocator: allocCtx, allocCancel: allocCancel}, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch loads the dashboard, waits for announcement links to appear and
// returns the rendered markup. A page that never renders a link within the
// timeout is an error.
func (f *Fetcher) Fetch(ctx context.Context, request monitor.FetchRequest) (monitor.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return monitor.FetchResponse{}, fmt.Errorf("render canceled: %w", err)
	}

	tabCtx, closeTab := chromedp.NewContext(f.allocator)
	defer closeTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, f.cfg.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var status atomic.Int64
	chromedp.ListenTarget(tabCtx, func(ev any) {
		if resp, ok := ev.(*network.EventResponseReceived); ok && resp.Type == network.ResourceTypeDocument && resp.Response != nil {
			status.CompareAndSwap(0, resp.Response.Status)
		}
	})

	start := time.Now()
	var html string
	err := chromedp.Run(tabCtx,
		f.prepareTab(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady(f.cfg.ReadySelector, chromedp.ByQuery),
		chromedp.Sleep(f.cfg.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return monitor.FetchResponse{}, fmt.Errorf("render canceled: %w", ctx.Err())
	case errors.Is(tabCtx.Err(), context.DeadlineExceeded):
		return monitor.FetchResponse{}, fmt.Errorf("no %s rendered within %s: %w", f.cfg.ReadySelector, f.cfg.Timeout, err)
	default:
		return monitor.FetchResponse{}, fmt.Errorf("render %s: %w", request.URL, err)
	}

	return monitor.FetchResponse{
		URL:          request.URL,
		StatusCode:   int(status.Load()),
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

// prepareTab applies the configured user agent and the source request
// headers to the tab before navigation.
func (f *Fetcher) prepareTab(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user agent: %w", err)
			}
		}
		if extra := tabHeaders(headers); len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
				return fmt.Errorf("set request headers: %w", err)
			}
		}
		return nil
	})
}

// tabHeaders folds repeated header values into one comma-separated value,
// which is how Chrome expects them.
func tabHeaders(h http.Header) network.Headers {
	out := network.Headers{}
	for key, values := range h {
		if len(values) > 0 {
			out[key] = strings.Join(values, ", ")
		}
	}
	return out
}
