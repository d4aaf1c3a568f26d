// Package notify delivers notifications through an outbox. Producers enqueue rows
// after their change has committed; a Dispatcher polls due rows and hands them to a
// Sender, backing off exponentially on failure.
package notify

import (
	"context"
	"log/slog"
	"time"

	"sitework/internal/domain"
	"sitework/internal/metrics"
)

// Titles used by the coordinator.
const (
	TitleTaskAssigned  = "New Construction Task Assigned"
	TitleTaskSubmitted = "Task Submitted"
	TitleTaskVerified  = "Task Verified"
	TitleLeadUpdated   = "Lead Updated"
)

// Store is the outbox persistence. repo.Repo satisfies it.
type Store interface {
	InsertNotification(ctx context.Context, n domain.Notification) (int64, error)
	DueNotifications(ctx context.Context, now string, maxAttempts, limit int) ([]domain.Notification, error)
	MarkNotificationDelivered(ctx context.Context, id int64, at string) error
	MarkNotificationFailed(ctx context.Context, id int64, nextAttemptAt, lastError string) error
}

// Sender delivers one notification.
type Sender interface {
	Name() string
	Send(ctx context.Context, n domain.Notification) error
}

// Queue writes notifications to the outbox. Enqueue never fails the caller.
type Queue struct {
	Store  Store
	Logger *slog.Logger
	Now    func() time.Time
}

func (q Queue) now() time.Time {
	if q.Now != nil {
		return q.Now()
	}
	return time.Now()
}

func (q Queue) logger() *slog.Logger {
	if q.Logger != nil {
		return q.Logger
	}
	return slog.Default()
}

// Enqueue records a notification for recipientID. Errors are logged and counted only.
func (q Queue) Enqueue(ctx context.Context, recipientID, title, message, triggeredBy string) {
	if q.Store == nil || recipientID == "" {
		return
	}
	now := q.now().UTC().Format(time.RFC3339)
	id, err := q.Store.InsertNotification(ctx, domain.Notification{
		RecipientID:   recipientID,
		Title:         title,
		Message:       message,
		TriggeredBy:   triggeredBy,
		NextAttemptAt: now,
		CreatedAt:     now,
	})
	if err != nil {
		metrics.NotificationsEnqueued.WithLabelValues("error").Inc()
		q.logger().Warn("notification enqueue failed", "recipient", recipientID, "title", title, "err", err)
		return
	}
	metrics.NotificationsEnqueued.WithLabelValues("ok").Inc()
	q.logger().Debug("notification enqueued", "id", id, "recipient", recipientID, "title", title)
}
