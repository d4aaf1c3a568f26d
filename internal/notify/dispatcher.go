package notify

import (
	"context"
	"log/slog"
	"time"

	"sitework/internal/config"
	"sitework/internal/metrics"
)

type Dispatcher struct {
	Store       Store
	Sender      Sender
	Logger      *slog.Logger
	Now         func() time.Time
	Interval    time.Duration
	Batch       int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func NewDispatcher(store Store, sender Sender, cfg config.Notifications, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		Store:       store,
		Sender:      sender,
		Logger:      logger,
		Now:         time.Now,
		Interval:    cfg.Interval,
		Batch:       cfg.Batch,
		MaxAttempts: cfg.MaxAttempts,
		BaseBackoff: cfg.BaseBackoff,
		MaxBackoff:  cfg.MaxBackoff,
	}
}

// Backoff returns base*2^(attempt-1) capped at max. attempt counts from 1.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	interval := d.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger().Warn("notification poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce sends every due notification once and reports how many were
// delivered and how many failed.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (delivered, failed int, err error) {
	maxAttempts := d.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	now := d.now().UTC()
	due, err := d.Store.DueNotifications(ctx, now.Format(time.RFC3339), maxAttempts, d.Batch)
	if err != nil {
		return 0, 0, err
	}
	metrics.NotificationsPending.Set(float64(len(due)))
	sender := d.Sender.Name()
	for _, n := range due {
		if ctx.Err() != nil {
			return delivered, failed, ctx.Err()
		}
		sendErr := d.Sender.Send(ctx, n)
		if sendErr == nil {
			if err := d.Store.MarkNotificationDelivered(ctx, n.ID, d.now().UTC().Format(time.RFC3339)); err != nil {
				return delivered, failed, err
			}
			metrics.NotificationDeliveries.WithLabelValues(sender, "delivered").Inc()
			delivered++
			continue
		}
		failed++
		attempt := n.Attempts + 1
		next := now.Add(Backoff(d.BaseBackoff, d.MaxBackoff, attempt))
		result := "retry"
		if attempt >= maxAttempts {
			result = "exhausted"
		}
		metrics.NotificationDeliveries.WithLabelValues(sender, result).Inc()
		d.logger().Warn("notification delivery failed",
			"id", n.ID, "recipient", n.RecipientID, "attempt", attempt, "result", result, "err", sendErr)
		if err := d.Store.MarkNotificationFailed(ctx, n.ID, next.Format(time.RFC3339), sendErr.Error()); err != nil {
			return delivered, failed, err
		}
	}
	return delivered, failed, nil
}
