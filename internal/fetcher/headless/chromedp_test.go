package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stockwatch-monitor/internal/monitor"
)

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Timeout: -time.Second})
	require.Error(t, err)

	fetcher, err := New(Config{})
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)

	require.Equal(t, 45*time.Second, fetcher.cfg.Timeout)
	require.Equal(t, `a[href*="newsId="]`, fetcher.cfg.ReadySelector)
	require.Equal(t, 500*time.Millisecond, fetcher.cfg.Settle)
}

func TestNewKeepsOverrides(t *testing.T) {
	t.Parallel()

	fetcher, err := New(Config{Timeout: time.Second, ReadySelector: "#news", Settle: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)

	require.Equal(t, time.Second, fetcher.cfg.Timeout)
	require.Equal(t, "#news", fetcher.cfg.ReadySelector)
	require.Equal(t, time.Millisecond, fetcher.cfg.Settle)
}

func TestFetchCanceledBeforeStart(t *testing.T) {
	t.Parallel()

	fetcher, err := New(Config{})
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fetcher.Fetch(ctx, monitor.FetchRequest{URL: "https://www.stockwatch.live/"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestTabHeaders(t *testing.T) {
	t.Parallel()

	got := tabHeaders(http.Header{
		"Accept":          {"text/html", "application/xhtml+xml"},
		"Accept-Language": {"en"},
		"X-Empty":         {},
	})
	require.Equal(t, "text/html, application/xhtml+xml", got["Accept"])
	require.Equal(t, "en", got["Accept-Language"])
	require.NotContains(t, got, "X-Empty")
	require.Empty(t, tabHeaders(nil))
}
