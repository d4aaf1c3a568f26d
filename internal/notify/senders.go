package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sitework/internal/config"
	"sitework/internal/domain"
)

const defaultWebhookTimeout = 5 * time.Second

// LogSender writes notifications to the log. It is used when no webhook is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (LogSender) Name() string { return "log" }

func (s LogSender) Send(ctx context.Context, n domain.Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification", "id", n.ID, "recipient", n.RecipientID, "title", n.Title,
		"message", n.Message, "triggered_by", n.TriggeredBy)
	return nil
}

// WebhookSender POSTs each notification as JSON to every enabled hook that accepts
// its recipient. Delivery fails if any matching hook fails, and the retry posts to
// every matching hook again, so hooks see a notification at least once. Receivers
// dedupe on the X-Sitework-Delivery header, which carries the notification id.
type WebhookSender struct {
	Hooks  []config.Webhook
	Client *http.Client
}

func (WebhookSender) Name() string { return "webhook" }

type webhookBody struct {
	ID          int64  `json:"id"`
	RecipientID string `json:"recipient_id"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	TriggeredBy string `json:"triggered_by"`
	Attempt     int    `json:"attempt"`
	CreatedAt   string `json:"created_at"`
}

func (s WebhookSender) Send(ctx context.Context, n domain.Notification) error {
	data, err := json.Marshal(webhookBody{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Title:       n.Title,
		Message:     n.Message,
		TriggeredBy: n.TriggeredBy,
		Attempt:     n.Attempts + 1,
		CreatedAt:   n.CreatedAt,
	})
	if err != nil {
		return err
	}
	var errs []error
	for _, hook := range s.Hooks {
		if !hook.Enabled || strings.TrimSpace(hook.URL) == "" || !acceptsRecipient(hook, n.RecipientID) {
			continue
		}
		if err := s.post(ctx, hook, n, data); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", hook.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s WebhookSender) post(ctx context.Context, hook config.Webhook, n domain.Notification, data []byte) error {
	timeout := hook.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	client := s.Client
	if client == nil {
		client = &http.Client{}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Sitework-Notification", n.Title)
	req.Header.Set("X-Sitework-Delivery", fmt.Sprintf("%d", n.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Sitework-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func acceptsRecipient(hook config.Webhook, recipient string) bool {
	if len(hook.Recipients) == 0 {
		return true
	}
	for _, r := range hook.Recipients {
		if strings.TrimSpace(r) == recipient {
			return true
		}
	}
	return false
}

// SenderFor picks the webhook sender when any hook is enabled, else the log sender.
func SenderFor(cfg config.Notifications, logger *slog.Logger) Sender {
	for _, hook := range cfg.Webhooks {
		if hook.Enabled {
			return WebhookSender{Hooks: cfg.Webhooks, Client: &http.Client{}}
		}
	}
	return LogSender{Logger: logger}
}
