// Package notify delivers customer-facing notifications through the
// Telegram Bot API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/retailware/bonusgate/internal/config"
	"github.com/retailware/bonusgate/internal/events"
	"github.com/retailware/bonusgate/internal/observability/tracing"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier sends Telegram messages on behalf of the loyalty bot.
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Telegram is the Bot API backed Notifier. It also acts as the outbox relay
// sink, turning loyalty events into customer messages.
type Telegram struct {
	token   string
	apiBase string
	client  *http.Client
	log     *zap.Logger
}

func NewTelegram(cfg config.Config, log *zap.Logger) *Telegram {
	return &Telegram{
		token:   cfg.BotToken,
		apiBase: defaultAPIBase,
		client:  tracing.WrapHTTPClient(&http.Client{Timeout: 10 * time.Second}),
		log:     log.Named("notify.telegram"),
	}
}

// Enabled reports whether a bot token is configured.
func (t *Telegram) Enabled() bool { return t.token != "" }

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// SendMessage posts one message to the given chat.
func (t *Telegram) SendMessage(ctx context.Context, chatID int64, text string) error {
	if !t.Enabled() {
		return fmt.Errorf("telegram: bot token not configured")
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("telegram: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("telegram: read response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("telegram: decode response (status %d): %w", resp.StatusCode, err)
	}
	if !parsed.OK {
		return fmt.Errorf("telegram: api error %d: %s", parsed.ErrorCode, parsed.Description)
	}

	t.log.Debug("message sent", zap.Int64("chat_id", chatID))
	return nil
}

// Deliver converts an outbox event into a customer notification. Events
// without a reachable chat are acknowledged without a send so the relay can
// mark them published.
func (t *Telegram) Deliver(ctx context.Context, event events.LoyaltyEvent) error {
	if !t.Enabled() {
		return nil
	}

	switch event.EventType {
	case events.EventReceiptIngested:
		chatID, ok := asInt64(event.Payload["telegram_id"])
		if !ok {
			return nil
		}
		earned, _ := asFloat(event.Payload["bonus_earned"])
		text := fmt.Sprintf("Спасибо за покупку! Начислено бонусов: %.2f", earned)
		return t.SendMessage(ctx, chatID, text)
	case events.EventPurchaseRecorded:
		chatID, ok := asInt64(event.Payload["telegram_id"])
		if !ok {
			return nil
		}
		earned, _ := asFloat(event.Payload["bonus_earned"])
		text := fmt.Sprintf("Покупка учтена. Начислено бонусов: %.2f", earned)
		return t.SendMessage(ctx, chatID, text)
	default:
		return nil
	}
}

// asInt64 reads a numeric payload field. JSONB round-trips numbers as
// float64.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
