// Package notify posts chat messages to the messaging gateway.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stockflow/pkg/logger"
)

var tracer = otel.Tracer("stockflow/notify")

// DefaultTimeout bounds one delivery.
const DefaultTimeout = 10 * time.Second

// Chat aliases known to the gateway.
const (
	ChatTransfers = "traspasos"
	ChatOrders    = "pedidos"
	ChatTest      = "pruebas"
)

// Config configures the webhook. Chat, when set, overrides every alias.
type Config struct {
	URL     string
	Chat    string
	Timeout time.Duration
}

// Webhook sends {chat, message} to <URL>whatsapp/send-text.
type Webhook struct {
	endpoint string
	chat     string
	http     *http.Client
}

// NewWebhook creates a Webhook, or returns nil when no URL is configured.
func NewWebhook(cfg Config, httpClient *http.Client) *Webhook {
	base := strings.TrimSpace(cfg.URL)
	if base == "" {
		return nil
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Webhook{endpoint: base + "whatsapp/send-text", chat: cfg.Chat, http: httpClient}
}

type payload struct {
	Chat    string `json:"chat"`
	Message string `json:"message"`
}

// Send delivers message to chat.
func (w *Webhook) Send(ctx context.Context, chat, message string) error {
	if w.chat != "" {
		chat = w.chat
	}
	if chat == "" {
		return fmt.Errorf("notify: chat is required")
	}
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("notify: empty message")
	}

	ctx, span := tracer.Start(ctx, "notify.send", trace.WithAttributes(attribute.String("notify.chat", chat)))
	defer span.End()

	body, err := json.Marshal(payload{Chat: chat, Message: message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("notify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		var detail struct {
			Detail string `json:"detail"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &detail) == nil && detail.Detail != "" {
			msg = detail.Detail
		}
		return fmt.Errorf("notify: gateway returned %d: %s", resp.StatusCode, msg)
	}
	logger.Debug(ctx, "notification sent", "chat", chat, "length", len(message))
	return nil
}
