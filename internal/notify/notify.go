package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fisaks/smarthome/internal/logging"
)

// GasAlert is the text sent when the gas sensor crosses its threshold.
const GasAlert = "GAS detection!"

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type TelegramConfig struct {
	BaseURL string // default https://api.telegram.org
	Token   string
	ChatID  string
	Client  *http.Client
}

type Telegram struct {
	endpoint string
	chatID   string
	client   *http.Client
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Telegram{
		endpoint: base + "/bot" + cfg.Token + "/sendMessage",
		chatID:   cfg.ChatID,
		client:   client,
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Notify(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: t.chatID, Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram request: %w", stripURL(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", stripURL(err))
	}
	defer resp.Body.Close()

	var out sendMessageResponse
	// Telegram answers JSON on errors too; a decode failure only matters
	// when the status code was not already conclusive.
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram sendMessage: status %d: %s", resp.StatusCode, out.Description)
	}
	if decodeErr != nil {
		return fmt.Errorf("telegram sendMessage: decode response: %w", decodeErr)
	}
	if !out.OK {
		return fmt.Errorf("telegram sendMessage: %s", out.Description)
	}
	return nil
}

// stripURL drops the request URL from transport errors; it carries the
// bot token.
func stripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}

// LogNotifier only logs alerts. Used when no bot token is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, text string) error {
	logging.Warn("alert (no notifier configured)", "text", text)
	return nil
}
