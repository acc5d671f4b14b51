package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram delivers messages through the Bot API sendMessage method.
type Telegram struct {
	apiBase string
	client  *http.Client
}

// NewTelegram creates a Telegram sender. baseURL overrides the Bot API host
// for tests; empty means the public endpoint.
func NewTelegram(baseURL string) *Telegram {
	if baseURL == "" {
		baseURL = telegramAPIBase
	}
	return &Telegram{
		apiBase: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID          string `json:"chat_id"`
	Text            string `json:"text"`
	ParseMode       string `json:"parse_mode"`
	MessageThreadID int    `json:"message_thread_id,omitempty"`
}

// Send posts one sendMessage call. No retries; delivery is at-most-once.
func (t *Telegram) Send(ctx context.Context, token, chatID string, threadID int, text string) error {
	payload, err := json.Marshal(telegramMessage{
		ChatID:          chatID,
		Text:            text,
		ParseMode:       "Markdown",
		MessageThreadID: threadID,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram API status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
