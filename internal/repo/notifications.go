package repo

import (
	"context"
	"database/sql"

	"sitework/internal/domain"
)

const notificationColumns = `id,recipient_id,title,message,triggered_by,attempts,next_attempt_at,delivered_at,COALESCE(last_error,''),created_at`

func scanNotification(row scanner) (domain.Notification, error) {
	var n domain.Notification
	var delivered sql.NullString
	err := row.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &n.TriggeredBy, &n.Attempts, &n.NextAttemptAt, &delivered, &n.LastError, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	n.DeliveredAt = optionalString(delivered)
	return n, err
}

// InsertNotification enqueues n for delivery and returns its id.
func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(recipient_id,title,message,triggered_by,attempts,next_attempt_at,created_at) VALUES (?,?,?,?,0,?,?)`,
		n.RecipientID, n.Title, n.Message, n.TriggeredBy, n.NextAttemptAt, n.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DueNotifications returns undelivered rows whose next attempt is at or before now.
func (r Repo) DueNotifications(ctx context.Context, now string, maxAttempts, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+notificationColumns+` FROM notifications
WHERE delivered_at IS NULL AND next_attempt_at<=? AND attempts<? ORDER BY next_attempt_at, id LIMIT ?`, now, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) MarkNotificationDelivered(ctx context.Context, id int64, at string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notifications SET delivered_at=?, attempts=attempts+1, last_error=NULL WHERE id=?`, at, id)
	return err
}

func (r Repo) MarkNotificationFailed(ctx context.Context, id int64, nextAttemptAt, lastError string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notifications SET attempts=attempts+1, next_attempt_at=?, last_error=? WHERE id=?`, nextAttemptAt, lastError, id)
	return err
}

type NotificationFilters struct {
	RecipientID string
	PendingOnly bool
	Limit       int
}

// ListNotifications returns the newest notifications first.
func (r Repo) ListNotifications(ctx context.Context, f NotificationFilters) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE 1=1`
	var args []any
	if f.RecipientID != "" {
		query += ` AND recipient_id=?`
		args = append(args, f.RecipientID)
	}
	if f.PendingOnly {
		query += ` AND delivered_at IS NULL`
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
