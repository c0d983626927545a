package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/akashi1113/student-system-sub001/internal/models"
	"github.com/akashi1113/student-system-sub001/pkg/clock"
	appErrors "github.com/akashi1113/student-system-sub001/pkg/errors"
	"github.com/akashi1113/student-system-sub001/pkg/jobs"
)

type notificationStore interface {
	Insert(ctx context.Context, n *models.Notification) error
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, int, error)
	MarkSent(ctx context.Context, id string, status models.SendStatus, at time.Time) error
	MarkRead(ctx context.Context, id, userID string, at time.Time) (bool, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type notificationQueue interface {
	Enqueue(job jobs.Job) error
}

// NotificationService records notification intent and hands dispatch to the
// background queue. A failed enqueue leaves the row PENDING so a later sweep
// can retry it.
type NotificationService struct {
	store   notificationStore
	queue   notificationQueue
	metrics *MetricsService
	clk     clock.Clock
	logger  *zap.Logger
}

// NewNotificationService constructs NotificationService.
func NewNotificationService(store notificationStore, queue notificationQueue, metrics *MetricsService, clk clock.Clock, logger *zap.Logger) *NotificationService {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{store: store, queue: queue, metrics: metrics, clk: clk, logger: logger}
}

// Emit persists a notification and queues it for dispatch. Emission never
// fails the caller; delivery problems are logged and retried asynchronously.
func (s *NotificationService) Emit(ctx context.Context, userID string, typ models.NotificationType, title, content string, priority models.NotificationPriority, bookingID string) {
	n := &models.Notification{
		UserID:     userID,
		Type:       typ,
		Title:      title,
		Content:    content,
		Priority:   priority,
		SendStatus: models.SendStatusPending,
		CreatedAt:  s.clk.Now(),
	}
	if bookingID != "" {
		n.BookingID = &bookingID
	}
	if err := s.store.Insert(ctx, n); err != nil {
		s.logger.Error("failed to persist notification",
			zap.String("user_id", userID),
			zap.String("type", string(typ)),
			zap.Error(err))
		return
	}
	s.metrics.RecordNotification()

	if s.queue != nil {
		if err := s.queue.Enqueue(jobs.Job{ID: n.ID, Type: "notification.dispatch", Payload: n.ID}); err != nil {
			s.logger.Warn("failed to enqueue notification dispatch",
				zap.String("notification_id", n.ID),
				zap.Error(err))
		}
	}
}

// Dispatch is the queue handler. It marks the notification SENT; the actual
// transport (mail, push) sits outside this core and consumes SENT rows.
func (s *NotificationService) Dispatch(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok || id == "" {
		s.logger.Warn("dispatch job without notification id", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.store.MarkSent(ctx, id, models.SendStatusSent, s.clk.Now()); err != nil {
		return err
	}
	s.logger.Debug("notification dispatched", zap.String("notification_id", id))
	return nil
}

// ListByUser returns the user's notifications.
func (s *NotificationService) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, *models.Pagination, error) {
	items, total, err := s.store.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return items, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// MarkRead records a read receipt. Marking an already read notification is a
// no-op.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	updated, err := s.store.MarkRead(ctx, id, userID, s.clk.Now())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if !updated {
		if _, err := s.store.FindByID(ctx, id); err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notification")
		}
	}
	return nil
}

// Prune removes delivered or read notifications older than the retention
// period and returns the number removed.
func (s *NotificationService) Prune(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := s.clk.Now().Add(-retention)
	pruned, err := s.store.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to prune notifications")
	}
	return pruned, nil
}
