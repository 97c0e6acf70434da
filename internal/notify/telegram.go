// Package notify delivers operator notifications to a Telegram chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"
)

// DefaultTelegramBaseURL is the Telegram Bot API base URL.
const DefaultTelegramBaseURL = "https://api.telegram.org"

// Telegram allows roughly one message per second per chat.
const (
	telegramRate  = rate.Limit(1)
	telegramBurst = 1
)

// Option configures a Telegram notifier.
type Option func(*telegramConfig)

type telegramConfig struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// WithBaseURL overrides the Bot API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *telegramConfig) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client used for Bot API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *telegramConfig) {
		c.httpClient = client
	}
}

// WithLimiter replaces the default per-chat rate limiter.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *telegramConfig) {
		c.limiter = limiter
	}
}

// Telegram sends text messages through a bot to a single chat.
type Telegram struct {
	bot     *bot.Bot
	chatID  string
	limiter *rate.Limiter
}

// NewTelegram creates a notifier for the given bot token and destination chat.
// The bot identity is not checked, so construction performs no network I/O.
func NewTelegram(botToken, chatID string, opts ...Option) (*Telegram, error) {
	if botToken == "" {
		return nil, errors.New("telegram bot token cannot be empty")
	}
	if chatID == "" {
		return nil, errors.New("telegram chat id cannot be empty")
	}

	cfg := &telegramConfig{
		baseURL: DefaultTelegramBaseURL,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.limiter == nil {
		cfg.limiter = rate.NewLimiter(telegramRate, telegramBurst)
	}

	b, err := bot.New(botToken,
		bot.WithSkipGetMe(),
		bot.WithServerURL(strings.TrimSuffix(cfg.baseURL, "/")),
		// poll timeout only applies to getUpdates, which is never called
		bot.WithHTTPClient(cfg.httpClient.Timeout, cfg.httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	return &Telegram{
		bot:     b,
		chatID:  chatID,
		limiter: cfg.limiter,
	}, nil
}

// Notify sends text to the configured chat. The Bot API must answer with ok=true.
// Transport errors keep their *url.Error with the bot token masked.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for telegram rate limit: %w", err)
	}

	if _, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   text,
	}); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	return nil
}
