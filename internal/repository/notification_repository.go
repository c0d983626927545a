package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/akashi1113/student-system-sub001/internal/models"
)

// NotificationRepository persists emitted notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, user_id, booking_id, type, title, content, priority,
scheduled_at, send_status, sent_at, read_at, created_at`

// Insert stores a new notification row.
func (r *NotificationRepository) Insert(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO notifications (id, user_id, booking_id, type, title, content, priority,
scheduled_at, send_status, sent_at, read_at, created_at)
VALUES (:id, :user_id, :booking_id, :type, :title, :content, :priority,
:scheduled_at, :send_status, :sent_at, :read_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// FindByID returns a single notification.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE id = $1`, notificationColumns)
	var n models.Notification
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

// ListByUser returns the user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, int, error) {
	const countQuery = `SELECT COUNT(*) FROM notifications WHERE user_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, userID); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, notificationColumns)
	var items []models.Notification
	if err := r.db.SelectContext(ctx, &items, query, userID, pageSize, (page-1)*pageSize); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return items, total, nil
}

// MarkSent updates dispatch status after the delivery attempt.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, status models.SendStatus, at time.Time) error {
	const query = `UPDATE notifications SET send_status = $1, sent_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, status, at, id); err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

// MarkRead records when the user read the notification.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	const query = `UPDATE notifications SET read_at = $1 WHERE id = $2 AND user_id = $3 AND read_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, at, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read rows: %w", err)
	}
	return affected > 0, nil
}

// PruneBefore deletes delivered or read notifications older than the cutoff
// and returns how many rows were removed.
func (r *NotificationRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const query = `DELETE FROM notifications
WHERE created_at < $1 AND (send_status = 'SENT' OR read_at IS NOT NULL)`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune notifications: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune notifications rows: %w", err)
	}
	return int(affected), nil
}
