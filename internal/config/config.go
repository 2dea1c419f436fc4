// Package config loads and validates monitor configuration via Viper.
package config

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendGCS      = "gcs"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Store    StoreConfig    `mapstructure:"store"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SourceConfig describes the page being polled.
type SourceConfig struct {
	URL             string        `mapstructure:"url"`
	BaseURL         string        `mapstructure:"base_url"`
	UserAgent       string        `mapstructure:"user_agent"`
	Accept          string        `mapstructure:"accept"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Headless        bool          `mapstructure:"headless"`
	HeadlessTimeout time.Duration `mapstructure:"headless_timeout"`
	// HeadlessFallback re-fetches with chromedp only when the plain response
	// looks like an unrendered script shell. Ignored when Headless is set.
	HeadlessFallback bool `mapstructure:"headless_fallback"`
}

// MonitorConfig governs the poll loop.
type MonitorConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	NotifyPause time.Duration `mapstructure:"notify_pause"`
	TestPreview int           `mapstructure:"test_preview"`
	// CommitFailed marks ids as seen even when their notification failed.
	CommitFailed bool `mapstructure:"commit_failed"`
}

// StoreConfig selects and configures the seen-id store.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	Table   string `mapstructure:"table"`
	DSN     string `mapstructure:"dsn"`
	Bucket  string `mapstructure:"bucket"`
	Object  string `mapstructure:"object"`
}

// TelegramConfig holds bot credentials. Both token and chat id must be set for
// notifications to be sent.
type TelegramConfig struct {
	APIBase        string        `mapstructure:"api_base"`
	Token          string        `mapstructure:"token"`
	ChatID         string        `mapstructure:"chat_id"`
	Timeout        time.Duration `mapstructure:"timeout"`
	DisablePreview bool          `mapstructure:"disable_preview"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.Token != "" && t.ChatID != ""
}

// PubSubConfig configures the optional record mirror.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether the mirror should be wired.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Topic != ""
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Port           int    `mapstructure:"port"`
	RefreshSeconds int    `mapstructure:"refresh_seconds"`
	PublicURL      string `mapstructure:"public_url"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STOCKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Server.PublicURL = ResolvePublicURL(cfg.Server.PublicURL, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.url", "https://www.stockwatch.live/dashboard")
	v.SetDefault("source.base_url", "https://www.stockwatch.live/")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("source.accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	v.SetDefault("source.timeout", 30*time.Second)
	v.SetDefault("source.headless", false)
	v.SetDefault("source.headless_timeout", 45*time.Second)
	v.SetDefault("source.headless_fallback", false)
	v.SetDefault("monitor.interval", 300*time.Second)
	v.SetDefault("monitor.notify_pause", time.Second)
	v.SetDefault("monitor.test_preview", 5)
	v.SetDefault("monitor.commit_failed", true)
	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.path", "seen_updates.json")
	v.SetDefault("store.table", "seen_updates")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.bucket", "")
	v.SetDefault("store.object", "seen_updates.json")
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.timeout", 10*time.Second)
	v.SetDefault("telegram.disable_preview", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.refresh_seconds", 30)
	v.SetDefault("server.public_url", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// bindEnv maps the conventional unprefixed variables used by hosting
// platforms and the Telegram setup guides onto config keys. Prefixed
// variables take precedence.
func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"telegram.token":   {"STOCKWATCH_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN"},
		"telegram.chat_id": {"STOCKWATCH_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID"},
		"server.port":      {"STOCKWATCH_SERVER_PORT", "PORT"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := absoluteURL(c.Source.URL); err != nil {
		return fmt.Errorf("source.url: %w", err)
	}
	if _, err := absoluteURL(c.Source.BaseURL); err != nil {
		return fmt.Errorf("source.base_url: %w", err)
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be > 0")
	}
	if (c.Source.Headless || c.Source.HeadlessFallback) && c.Source.HeadlessTimeout <= 0 {
		return fmt.Errorf("source.headless_timeout must be > 0 when headless is enabled")
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be > 0")
	}
	if c.Monitor.NotifyPause < 0 {
		return fmt.Errorf("monitor.notify_pause must be >= 0")
	}
	if c.Telegram.Timeout <= 0 {
		return fmt.Errorf("telegram.timeout must be > 0")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.RefreshSeconds < 0 {
		return fmt.Errorf("server.refresh_seconds must be >= 0")
	}
	switch c.Store.Backend {
	case BackendFile:
		if strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("store.path is required for the file backend")
		}
	case BackendPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
		if !validTableName.MatchString(c.Store.Table) {
			return fmt.Errorf("store.table %q is not a valid table name", c.Store.Table)
		}
	case BackendGCS:
		if c.Store.Bucket == "" {
			return fmt.Errorf("store.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not one of file, postgres, gcs", c.Store.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set together")
	}
	return nil
}

// SourceHeaders returns the request headers sent with every page fetch.
// The user agent is applied by the fetcher itself.
func (c Config) SourceHeaders() http.Header {
	h := http.Header{}
	if c.Source.Accept != "" {
		h.Set("Accept", c.Source.Accept)
	}
	return h
}

// ResolvePublicURL picks the externally reachable base URL shown on the
// dashboard. An explicit value wins; otherwise the Replit hosting variables
// are consulted, falling back to the conventional replit.app address.
func ResolvePublicURL(explicit string, getenv func(string) string) string {
	if explicit != "" {
		return strings.TrimRight(explicit, "/")
	}
	if domains := getenv("REPLIT_DOMAINS"); domains != "" {
		first, _, _ := strings.Cut(domains, ",")
		if first = strings.TrimSpace(first); first != "" {
			return "https://" + first
		}
	}
	slug := getenv("REPL_SLUG")
	if slug == "" {
		slug = "your-repl"
	}
	owner := getenv("REPL_OWNER")
	if owner == "" {
		owner = "username"
	}
	return fmt.Sprintf("https://%s-%s.replit.app", slug, owner)
}

func absoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%q must be an absolute url", raw)
	}
	return u, nil
}
