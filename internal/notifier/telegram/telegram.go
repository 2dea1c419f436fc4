// Package telegram delivers records through the Telegram Bot API sendMessage
// method using telegram-bot-api.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch-monitor/internal/monitor"
)

// DefaultAPIBase is the public Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// Config holds the bot credentials and request options.
type Config struct {
	APIBase        string
	Token          string
	ChatID         string
	Timeout        time.Duration
	DisablePreview bool
}

// Notifier implements monitor.Notifier. Without a token and chat id it is
// disabled and every Notify reports non-delivery.
type Notifier struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Notifier. A nil client gets one with cfg.Timeout.
func New(cfg Config, client *http.Client, logger *zap.Logger) *Notifier {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{cfg: cfg, client: client, logger: logger}
}

// Enabled reports whether both credentials are present.
func (n *Notifier) Enabled() bool {
	return n.cfg.Token != "" && n.cfg.ChatID != ""
}

// Notify sends one record and reports whether Telegram accepted it.
func (n *Notifier) Notify(ctx context.Context, rec monitor.Record) bool {
	err := n.Send(ctx, FormatMessage(rec))
	switch {
	case err == nil:
		n.logger.Info("telegram notification sent",
			zap.String("news_id", rec.ID),
			zap.String("title", rec.Title),
		)
		return true
	case errors.Is(err, monitor.ErrNotConfigured):
		n.logger.Info("telegram not configured, skipping notification", zap.String("news_id", rec.ID))
	default:
		n.logger.Error("telegram notification failed", zap.String("news_id", rec.ID), zap.Error(err))
	}
	return false
}

// Send posts text to the configured chat with HTML parse mode.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if !n.Enabled() {
		return monitor.ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	msg := tgbotapi.MessageConfig{
		BaseChat:              chatTarget(n.cfg.ChatID),
		Text:                  text,
		ParseMode:             tgbotapi.ModeHTML,
		DisableWebPagePreview: n.cfg.DisablePreview,
	}
	if _, err := n.botFor(ctx).Request(msg); err != nil {
		return fmt.Errorf("send message: %w", n.redact(err))
	}
	return nil
}

// botFor returns a Bot API handle whose requests carry ctx. The handle is
// built directly so no getMe round trip happens on every send.
func (n *Notifier) botFor(ctx context.Context) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  n.cfg.Token,
		Client: &contextClient{ctx: ctx, client: n.client},
	}
	bot.SetAPIEndpoint(n.cfg.APIBase + "/bot%s/%s")
	return bot
}

// chatTarget maps a numeric chat id or an @channel username onto the
// library's chat fields.
func chatTarget(chatID string) tgbotapi.BaseChat {
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil && id != 0 {
		return tgbotapi.BaseChat{ChatID: id}
	}
	return tgbotapi.BaseChat{ChannelUsername: chatID}
}

// contextClient attaches the caller's context to each request and turns any
// non-2xx status into an error before the library decodes the body.
type contextClient struct {
	ctx    context.Context
	client *http.Client
}

func (c *contextClient) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req.WithContext(c.ctx))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() {
			_ = resp.Body.Close()
		}()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("sendMessage returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// redact strips the bot token from errors that embed the request URL.
func (n *Notifier) redact(err error) error {
	if n.cfg.Token == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, n.cfg.Token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(msg, n.cfg.Token, "<redacted>"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }

// FormatMessage renders the notification body: the bold title, a blank line,
// then a "Read More" link to the announcement.
func FormatMessage(rec monitor.Record) string {
	return fmt.Sprintf("<b>%s</b>\n\n<a href=\"%s\">Read More</a>",
		html.EscapeString(rec.Title),
		html.EscapeString(rec.URL),
	)
}
