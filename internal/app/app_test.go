package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch-monitor/internal/config"
	filestore "github.com/JakeFAU/stockwatch-monitor/internal/seenstore/file"
)

const sourcePage = `<html><body>
<a href="/dashboard?newsId=200&name=Acme%20Mining&title=Drill%20Results"><h6 style="color:#999">10:42 AM</h6></a>
<a href="/dashboard?newsId=100&name=Beta%20Corp"><h2>Private Placement</h2></a>
<a href="/about">About</a>
</body></html>`

type telegramRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *telegramRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	_ = req.ParseForm()
	r.mu.Lock()
	r.texts = append(r.texts, req.PostForm.Get("text"))
	r.mu.Unlock()
	_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
}

func (r *telegramRecorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func testConfig(t *testing.T, sourceURL, telegramURL string) *config.Config {
	t.Helper()
	u, err := url.Parse(sourceURL)
	require.NoError(t, err)
	return &config.Config{
		Source: config.SourceConfig{
			URL:       sourceURL + "/dashboard",
			BaseURL:   u.Scheme + "://" + u.Host + "/",
			UserAgent: "test-agent",
			Accept:    "text/html",
			Timeout:   5 * time.Second,
		},
		Monitor: config.MonitorConfig{
			Interval:     time.Hour,
			NotifyPause:  time.Millisecond,
			TestPreview:  5,
			CommitFailed: true,
		},
		Store: config.StoreConfig{
			Backend: config.BackendFile,
			Path:    filepath.Join(t.TempDir(), "seen_updates.json"),
		},
		Telegram: config.TelegramConfig{
			APIBase: telegramURL,
			Token:   "123:abc",
			ChatID:  "-100",
			Timeout: 5 * time.Second,
		},
		Server: config.ServerConfig{RefreshSeconds: 30, PublicURL: "https://status.example.com"},
	}
}

func newSourceServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(sourcePage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunNotifiesOldestFirstAndPersists(t *testing.T) {
	source := newSourceServer(t)
	tg := &telegramRecorder{}
	tgSrv := httptest.NewServer(tg)
	t.Cleanup(tgSrv.Close)

	cfg := testConfig(t, source.URL, tgSrv.URL)
	a, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	store, err := filestore.New(cfg.Store.Path, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return store.Count(context.Background()) == 2
	}, 10*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	texts := tg.Texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Private Placement", "oldest record is delivered first")
	assert.Contains(t, texts[1], "Drill Results")
	assert.Equal(t, []string{"100", "200"}, store.Load(context.Background()).IDs())
}

func TestRunOncePrintsPreviewWithoutSideEffects(t *testing.T) {
	t.Parallel()

	source := newSourceServer(t)
	tg := &telegramRecorder{}
	tgSrv := httptest.NewServer(tg)
	t.Cleanup(tgSrv.Close)

	cfg := testConfig(t, source.URL, tgSrv.URL)
	a, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, a.RunOnce(context.Background(), &out))

	assert.Contains(t, out.String(), "[SUCCESS] Found 2 updates")
	assert.Contains(t, out.String(), "Company: Acme Mining")
	assert.Contains(t, out.String(), "Title: Private Placement")
	assert.Contains(t, out.String(), "Test completed!")
	assert.Empty(t, tg.Texts())
	_, statErr := os.Stat(cfg.Store.Path)
	assert.True(t, os.IsNotExist(statErr), "single check must not write the seen file")
}

func TestRunOnceFetchFailure(t *testing.T) {
	t.Parallel()

	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(source.Close)

	cfg := testConfig(t, source.URL, "http://127.0.0.1:1")
	a, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, a.RunOnce(context.Background(), &out))
	assert.Contains(t, out.String(), "[ERROR] No updates found")
}

func TestHandlerServesStatus(t *testing.T) {
	t.Parallel()

	source := newSourceServer(t)
	cfg := testConfig(t, source.URL, "http://127.0.0.1:1")
	cfg.Telegram.Token = ""

	a, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"telegram_enabled":false`)
	assert.Contains(t, rec.Body.String(), `"total_updates_seen":0`)
}

func TestBuildRejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://127.0.0.1:1", "http://127.0.0.1:1")
	cfg.Source.BaseURL = "relative/"
	_, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestSetupPacer(t *testing.T) {
	t.Parallel()

	require.Nil(t, setupPacer(0))
	require.NotNil(t, setupPacer(time.Second))
}

func TestFetchTimeoutCoversPromotion(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Source: config.SourceConfig{Timeout: 30 * time.Second, HeadlessTimeout: 45 * time.Second}}
	require.Equal(t, 30*time.Second, fetchTimeout(cfg))

	cfg.Source.HeadlessFallback = true
	require.Equal(t, 75*time.Second, fetchTimeout(cfg))

	cfg.Source.Headless = true
	require.Equal(t, 45*time.Second, fetchTimeout(cfg))
}
