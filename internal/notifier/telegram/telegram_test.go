package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch-monitor/internal/monitor"
)

type capturedRequest struct {
	method string
	path   string
	ctype  string
	form   url.Values
}

type botServer struct {
	mu       sync.Mutex
	status   int
	body     string
	requests []capturedRequest
}

func newBotServer(t *testing.T, status int) (*botServer, *httptest.Server) {
	t.Helper()
	bs := &botServer{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		bs.mu.Lock()
		bs.requests = append(bs.requests, capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			ctype:  r.Header.Get("Content-Type"),
			form:   r.PostForm,
		})
		body := bs.body
		bs.mu.Unlock()
		if body == "" {
			body = `{"ok":true,"result":{"message_id":1}}`
			if bs.status < 200 || bs.status > 299 {
				body = `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(bs.status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return bs, srv
}

func testRecord() monitor.Record {
	return monitor.Record{
		ID:    "4471",
		Title: "Drill Results <Zone A> & B",
		URL:   "https://www.stockwatch.live/dashboard?newsId=4471&name=Acme",
	}
}

func TestNotifySendsSendMessage(t *testing.T) {
	t.Parallel()

	bs, srv := newBotServer(t, http.StatusOK)
	n := New(Config{APIBase: srv.URL + "/", Token: "123:abc", ChatID: "-100200"}, nil, zap.NewNop())

	require.True(t, n.Notify(context.Background(), testRecord()))

	require.Len(t, bs.requests, 1)
	got := bs.requests[0]
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/bot123:abc/sendMessage", got.path)
	assert.Equal(t, "application/x-www-form-urlencoded", got.ctype)
	assert.Equal(t, "-100200", got.form.Get("chat_id"))
	assert.Equal(t, "HTML", got.form.Get("parse_mode"))
	assert.Empty(t, got.form.Get("disable_web_page_preview"), "previews stay enabled unless configured")
	assert.Equal(t, FormatMessage(testRecord()), got.form.Get("text"))
}

func TestNotifyDisablePreviewAndChannelUsername(t *testing.T) {
	t.Parallel()

	bs, srv := newBotServer(t, http.StatusOK)
	n := New(Config{APIBase: srv.URL, Token: "123:abc", ChatID: "@stockwatch_alerts", DisablePreview: true}, nil, nil)

	require.True(t, n.Notify(context.Background(), testRecord()))
	require.Len(t, bs.requests, 1)
	assert.Equal(t, "@stockwatch_alerts", bs.requests[0].form.Get("chat_id"))
	assert.Equal(t, "true", bs.requests[0].form.Get("disable_web_page_preview"))
}

func TestNotifyAcceptsAnySuccessStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusAccepted} {
		_, srv := newBotServer(t, status)
		n := New(Config{APIBase: srv.URL, Token: "123:abc", ChatID: "-1"}, nil, nil)
		require.True(t, n.Notify(context.Background(), testRecord()), "status %d", status)
	}
}

func TestSendReportsAPIRejectionOnSuccessStatus(t *testing.T) {
	t.Parallel()

	bs, srv := newBotServer(t, http.StatusOK)
	bs.body = `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`
	n := New(Config{APIBase: srv.URL, Token: "123:abc", ChatID: "-1"}, nil, nil)

	err := n.Send(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "bot was blocked")
}

func TestNotifyNonOKIsFailure(t *testing.T) {
	t.Parallel()

	_, srv := newBotServer(t, http.StatusBadRequest)
	n := New(Config{APIBase: srv.URL, Token: "123:abc", ChatID: "c"}, nil, nil)

	require.False(t, n.Notify(context.Background(), testRecord()))

	err := n.Send(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
	require.Contains(t, err.Error(), "chat not found")
}

func TestNotifyWithoutCredentialsMakesNoRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no token", cfg: Config{ChatID: "c"}},
		{name: "no chat", cfg: Config{Token: "t"}},
		{name: "neither", cfg: Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bs, srv := newBotServer(t, http.StatusOK)
			tt.cfg.APIBase = srv.URL
			n := New(tt.cfg, nil, nil)

			require.False(t, n.Enabled())
			require.False(t, n.Notify(context.Background(), testRecord()))
			require.ErrorIs(t, n.Send(context.Background(), "x"), monitor.ErrNotConfigured)
			require.Empty(t, bs.requests)
		})
	}
}

func TestSendRedactsTokenFromTransportErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	base := srv.URL
	srv.Close()

	n := New(Config{APIBase: base, Token: "999:secret-token", ChatID: "c", Timeout: time.Second}, nil, nil)
	err := n.Send(context.Background(), "x")
	require.Error(t, err)
	require.NotContains(t, err.Error(), "secret-token")
	require.Contains(t, err.Error(), "<redacted>")

	var urlErr *url.Error
	require.True(t, errors.As(err, &urlErr), "underlying error stays inspectable")
}

func TestSendHonorsContext(t *testing.T) {
	t.Parallel()

	_, srv := newBotServer(t, http.StatusOK)
	n := New(Config{APIBase: srv.URL, Token: "42:ctx-token", ChatID: "c"}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, n.Send(ctx, "x"), context.Canceled)
}

func TestFormatMessage(t *testing.T) {
	t.Parallel()

	msg := FormatMessage(testRecord())
	require.Equal(t,
		"<b>Drill Results &lt;Zone A&gt; &amp; B</b>\n\n"+
			`<a href="https://www.stockwatch.live/dashboard?newsId=4471&amp;name=Acme">Read More</a>`,
		msg,
	)
	require.False(t, strings.Contains(msg, "<Zone"))
}

func TestChatTarget(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(-100200), chatTarget("-100200").ChatID)
	assert.Equal(t, "@alerts", chatTarget("@alerts").ChannelUsername)
	assert.Equal(t, "0", chatTarget("0").ChannelUsername)
}
