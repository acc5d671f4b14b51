package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WhatsApp delivers messages through a WhatsApp-compatible HTTP bridge
// exposing POST /send/message with {phone, message}.
type WhatsApp struct {
	client *http.Client
}

// NewWhatsApp creates a bridge sender.
func NewWhatsApp() *WhatsApp {
	return &WhatsApp{client: &http.Client{Timeout: 10 * time.Second}}
}

type whatsappMessage struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// NormalizeTarget appends the JID suffix the bridge expects: hyphenated ids
// are group chats, everything else is a personal number.
func NormalizeTarget(target string) string {
	if strings.Contains(target, "@") {
		return target
	}
	if strings.Contains(target, "-") {
		return target + "@g.us"
	}
	return target + "@s.whatsapp.net"
}

// Send posts one message. No retries; delivery is at-most-once.
func (w *WhatsApp) Send(ctx context.Context, endpoint, token, target, text string) error {
	payload, err := json.Marshal(whatsappMessage{
		Phone:   NormalizeTarget(target),
		Message: text,
	})
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := strings.TrimSuffix(endpoint, "/") + "/send/message"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp bridge status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
