package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/config"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier sends messages to a Telegram chat via the Bot API.
type Notifier struct {
	enabled bool
	token   string
	chatID  string
	base    string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a Notifier. It is disabled when the config says so or when
// credentials are missing, and then drops every message.
func New(cfg config.TelegramConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}

	enabled := cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != ""
	if cfg.Enabled && !enabled {
		logger.Warn("telegram notifications disabled, missing bot_token or chat_id")
	}

	return &Notifier{
		enabled: enabled,
		token:   cfg.BotToken,
		chatID:  cfg.ChatID,
		base:    defaultAPIBase,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// Enabled reports whether messages will actually be sent.
func (n *Notifier) Enabled() bool {
	return n.enabled
}

// Send delivers one message. Returns true on success; failures are
// logged and swallowed.
func (n *Notifier) Send(ctx context.Context, text string) bool {
	if !n.enabled {
		return false
	}

	body, err := json.Marshal(map[string]string{
		"chat_id":    n.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		n.logger.Warn("telegram message encode failed", "error", err)
		return false
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.base, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("telegram request build failed", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("telegram send failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		n.logger.Warn("telegram send rejected", "status", resp.StatusCode, "body", string(detail))
		return false
	}
	return true
}

// Startup announces a successful login and subscription.
func (n *Notifier) Startup(ctx context.Context, underlyings []string, instruments int) {
	n.Send(ctx, fmt.Sprintf(
		"✅ <b>Login successful</b>\nSubscribed to <b>%d</b> instruments for %s",
		instruments, strings.Join(underlyings, ", ")))
}

// HourlyUpdate reports progress during the trading session.
func (n *Notifier) HourlyUpdate(ctx context.Context, totalTicks uint64, hours int) {
	n.Send(ctx, fmt.Sprintf(
		"\U0001F4C8 <b>Hourly update</b> (%dh elapsed)\nTotal ticks so far: <b>%d</b>",
		hours, totalTicks))
}

// SessionEnd reports the final tally at shutdown.
func (n *Notifier) SessionEnd(ctx context.Context, totalTicks uint64, symbols int) {
	n.Send(ctx, fmt.Sprintf(
		"\U0001F3C1 <b>Session ended</b>\nTotal: <b>%d</b> ticks saved across %d symbols",
		totalTicks, symbols))
}

// Failure reports a fatal pipeline error.
func (n *Notifier) Failure(ctx context.Context, detail string) {
	n.Send(ctx, fmt.Sprintf("❌ <b>Error</b>: %s", detail))
}
