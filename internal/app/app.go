// Package app builds the monitor's dependencies from configuration and runs
// the poll loop alongside the status server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch-monitor/internal/api"
	"github.com/JakeFAU/stockwatch-monitor/internal/clock/system"
	"github.com/JakeFAU/stockwatch-monitor/internal/config"
	"github.com/JakeFAU/stockwatch-monitor/internal/extractor"
	collyfetcher "github.com/JakeFAU/stockwatch-monitor/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/stockwatch-monitor/internal/fetcher/headless"
	"github.com/JakeFAU/stockwatch-monitor/internal/fetcher/promote"
	"github.com/JakeFAU/stockwatch-monitor/internal/headless/detector"
	"github.com/JakeFAU/stockwatch-monitor/internal/id/uuid"
	"github.com/JakeFAU/stockwatch-monitor/internal/logging"
	"github.com/JakeFAU/stockwatch-monitor/internal/monitor"
	"github.com/JakeFAU/stockwatch-monitor/internal/notifier"
	pubsubnotifier "github.com/JakeFAU/stockwatch-monitor/internal/notifier/pubsub"
	"github.com/JakeFAU/stockwatch-monitor/internal/notifier/telegram"
	"github.com/JakeFAU/stockwatch-monitor/internal/policy/ratelimit"
	filestore "github.com/JakeFAU/stockwatch-monitor/internal/seenstore/file"
	gcsstore "github.com/JakeFAU/stockwatch-monitor/internal/seenstore/gcs"
	pgstore "github.com/JakeFAU/stockwatch-monitor/internal/seenstore/postgres"
)

// seenStore is what every backend offers: the monitor contract plus a count
// for the dashboard.
type seenStore interface {
	monitor.SeenStore
	api.CountSource
}

// App contains the application's dependencies.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	controller *monitor.Controller
	scheduler  *monitor.Scheduler
	store      seenStore
	apiServer  *api.Server

	headless        *headlessfetcher.Fetcher
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsubnotifier.Publisher
	storage         *storage.Client
	pgStore         *pgstore.Store
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
		}
	}()

	app.logger.Info("building application dependencies",
		zap.String("source", cfg.Source.URL),
		zap.Duration("interval", cfg.Monitor.Interval),
		zap.String("store", cfg.Store.Backend),
		zap.Bool("telegram_enabled", cfg.Telegram.Enabled()),
		zap.Bool("pubsub_enabled", cfg.PubSub.Enabled()),
	)

	clock := system.New()
	idGen := uuid.New()

	fetcher, err := setupFetcher(app)
	if err != nil {
		return nil, err
	}
	ext, err := extractor.New(cfg.Source.BaseURL, clock, logger.Named("extractor"))
	if err != nil {
		return nil, fmt.Errorf("extractor init failed: %w", err)
	}
	if app.store, err = setupStore(ctx, app); err != nil {
		return nil, err
	}
	notify, err := setupNotifier(ctx, app)
	if err != nil {
		return nil, err
	}

	app.controller = monitor.NewController(
		fetcher,
		ext,
		notify,
		app.store,
		setupPacer(cfg.Monitor.NotifyPause),
		clock,
		idGen,
		monitor.ControllerConfig{
			SourceURL:    cfg.Source.URL,
			Headers:      cfg.SourceHeaders(),
			FetchTimeout: fetchTimeout(cfg),
			CommitFailed: cfg.Monitor.CommitFailed,
		},
		logger.Named("controller"),
	)
	app.scheduler = monitor.NewScheduler(
		app.controller,
		app.store,
		cfg.Monitor.Interval,
		clock,
		logger.Named("scheduler"),
	)
	app.apiServer = api.NewServer(
		app.store,
		system.NewIn(time.Local),
		idGen,
		api.Options{
			SourceURL:       cfg.Source.URL,
			PublicURL:       cfg.Server.PublicURL,
			Interval:        cfg.Monitor.Interval,
			RefreshSeconds:  cfg.Server.RefreshSeconds,
			TelegramEnabled: cfg.Telegram.Enabled(),
		},
		logger.Named("api"),
	)
	return app, nil
}

// Handler exposes the status server's router.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the status server and the poll loop, and blocks until ctx is
// canceled or the process receives SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("monitor starting",
		zap.String("target", a.cfg.Source.URL),
		zap.Duration("interval", a.cfg.Monitor.Interval),
		zap.Bool("telegram_enabled", a.cfg.Telegram.Enabled()),
	)
	if !a.cfg.Telegram.Enabled() {
		a.logger.Warn("telegram credentials not set, updates will be recorded without notifications")
	}

	var srv *http.Server
	if a.cfg.Server.Enabled {
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:           a.apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("http server started",
				zap.Int("port", a.cfg.Server.Port),
				zap.String("health_url", a.cfg.Server.PublicURL+"/health"),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http server error", zap.Error(err))
				stop()
			}
		}()
	}

	runErr := a.scheduler.Run(ctx)

	a.logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
	}
	if err := a.Close(shutdownCtx); err != nil {
		return err
	}
	return runErr
}

// RunOnce performs a single fetch and extract and writes a preview of the
// latest records to w. It neither notifies nor touches the seen set.
func (a *App) RunOnce(ctx context.Context, w io.Writer) error {
	a.logger.Info("single check", zap.String("target", a.cfg.Source.URL))
	records, err := a.controller.Check(ctx)
	if err != nil {
		a.logger.Error("failed to scrape updates", zap.Error(err))
		records = nil
	}
	if err := monitor.WritePreview(w, records, a.cfg.Monitor.TestPreview); err != nil {
		return err
	}
	return a.Close(ctx)
}

// Close releases clients held by the application. It is safe to call more
// than once.
func (a *App) Close(_ context.Context) error {
	if a.headless != nil {
		a.headless.Close()
		a.headless = nil
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
		a.pubsubPublisher = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsubClient = nil
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.storage = nil
	}
	if a.pgStore != nil {
		a.pgStore.Close()
		a.pgStore = nil
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	return nil
}

func setupFetcher(app *App) (monitor.Fetcher, error) {
	cfg := app.cfg.Source
	plain := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeout,
	})
	if !cfg.Headless && !cfg.HeadlessFallback {
		return plain, nil
	}

	f, err := headlessfetcher.New(headlessfetcher.Config{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.HeadlessTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	app.headless = f
	if cfg.Headless {
		app.logger.Info("using headless fetcher")
		return f, nil
	}
	app.logger.Info("using plain fetcher with headless fallback")
	return promote.New(plain, f, detector.NewHeuristic(0, "newsId="), app.logger.Named("fetcher")), nil
}

func fetchTimeout(cfg *config.Config) time.Duration {
	switch {
	case cfg.Source.Headless:
		return cfg.Source.HeadlessTimeout
	case cfg.Source.HeadlessFallback:
		return cfg.Source.Timeout + cfg.Source.HeadlessTimeout
	default:
		return cfg.Source.Timeout
	}
}

func setupStore(ctx context.Context, app *App) (seenStore, error) {
	cfg := app.cfg.Store
	logger := app.logger.Named("store")
	switch cfg.Backend {
	case config.BackendPostgres:
		store, err := pgstore.New(ctx, pgstore.Config{DSN: cfg.DSN, Table: cfg.Table}, logger)
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		app.pgStore = store
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema init failed: %w", err)
		}
		app.logger.Info("using postgres seen store", zap.String("table", cfg.Table))
		return store, nil
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		store, err := gcsstore.New(client, gcsstore.Config{Bucket: cfg.Bucket, Object: cfg.Object}, logger)
		if err != nil {
			return nil, fmt.Errorf("gcs store init failed: %w", err)
		}
		app.logger.Info("using gcs seen store", zap.String("uri", store.URI()))
		return store, nil
	default:
		store, err := filestore.New(cfg.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("file store init failed: %w", err)
		}
		app.logger.Info("using file seen store", zap.String("path", store.Path()))
		return store, nil
	}
}

func setupNotifier(ctx context.Context, app *App) (monitor.Notifier, error) {
	tg := telegram.New(telegram.Config{
		APIBase:        app.cfg.Telegram.APIBase,
		Token:          app.cfg.Telegram.Token,
		ChatID:         app.cfg.Telegram.ChatID,
		Timeout:        app.cfg.Telegram.Timeout,
		DisablePreview: app.cfg.Telegram.DisablePreview,
	}, nil, app.logger.Named("telegram"))

	if !app.cfg.PubSub.Enabled() {
		return tg, nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = pubsubnotifier.New(
		app.pubsubClient.Topic(app.cfg.PubSub.Topic),
		app.logger.Named("pubsub"),
	)
	app.logger.Info("Pub/Sub mirror initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.Topic),
	)
	return notifier.NewFanout(tg, app.logger.Named("notifier"), app.pubsubPublisher), nil
}

// setupPacer returns nil when no pause is configured.
func setupPacer(pause time.Duration) monitor.Pacer {
	limiter := ratelimit.New(pause)
	if limiter == nil {
		return nil
	}
	return limiter
}
