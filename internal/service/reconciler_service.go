package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/akashi1113/student-system-sub001/internal/dto"
	"github.com/akashi1113/student-system-sub001/internal/models"
	"github.com/akashi1113/student-system-sub001/pkg/clock"
)

const reconcilerLockKey = "reconciler:sweep"

type lifecycleResolver interface {
	ForceExpire(ctx context.Context, bookingID string) (bool, error)
	ResolveOutcome(ctx context.Context, bookingID string, checkIn models.CheckInStatus) (models.BookingStatus, bool, error)
}

type sweepBookingStore interface {
	ListExpiredPending(ctx context.Context, now time.Time) ([]models.ExpiredBooking, error)
	ListFinishedConfirmed(ctx context.Context, now time.Time) ([]models.FinishedBooking, error)
}

type sweepSlotStore interface {
	ListEndedActive(ctx context.Context, now time.Time) ([]models.TimeSlot, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SlotStatus) error
}

type sweepLocker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
}

type notificationPruner interface {
	Prune(ctx context.Context, retention time.Duration) (int, error)
	Emit(ctx context.Context, userID string, typ models.NotificationType, title, content string, priority models.NotificationPriority, bookingID string)
}

// ReconcilerPolicy tunes sweep behaviour.
type ReconcilerPolicy struct {
	LockTTL            time.Duration
	Retention          time.Duration
	HighPriorityAlerts bool
}

// ReconcilerService periodically resolves bookings the user never finalized:
// unconfirmed bookings past the window expire, confirmed bookings past the
// exam end resolve to COMPLETED or NO_SHOW, and ended slots close out.
//
// A Redis mutex keeps overlapping sweeps out; every mutation re-reads state
// under the row lock, so a lost mutex degrades to wasted work, not damage.
type ReconcilerService struct {
	lifecycle lifecycleResolver
	bookings  sweepBookingStore
	slots     sweepSlotStore
	locker    sweepLocker
	notifier  notificationPruner
	metrics   *MetricsService
	clk       clock.Clock
	policy    ReconcilerPolicy
	logger    *zap.Logger
}

// NewReconcilerService constructs ReconcilerService.
func NewReconcilerService(lifecycle lifecycleResolver, bookings sweepBookingStore, slots sweepSlotStore, locker sweepLocker, notifier notificationPruner, metrics *MetricsService, clk clock.Clock, policy ReconcilerPolicy, logger *zap.Logger) *ReconcilerService {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.LockTTL <= 0 {
		policy.LockTTL = 4 * time.Minute
	}
	return &ReconcilerService{
		lifecycle: lifecycle,
		bookings:  bookings,
		slots:     slots,
		locker:    locker,
		notifier:  notifier,
		metrics:   metrics,
		clk:       clk,
		policy:    policy,
		logger:    logger,
	}
}

// Run executes sweeps on the given interval until the context is cancelled.
func (s *ReconcilerService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Reconcile(ctx); err != nil {
				s.logger.Error("reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}

// Reconcile performs one sweep and reports what it resolved. When another
// instance holds the sweep mutex the call returns an empty report.
func (s *ReconcilerService) Reconcile(ctx context.Context) (*dto.ReconcileReport, error) {
	report := &dto.ReconcileReport{}

	if s.locker != nil {
		acquired, err := s.locker.AcquireLock(ctx, reconcilerLockKey, s.policy.LockTTL)
		if err != nil {
			s.logger.Warn("reconciler lock unavailable, proceeding without it", zap.Error(err))
		} else if !acquired {
			s.logger.Debug("reconciler sweep skipped, lock held elsewhere")
			return report, nil
		} else {
			defer func() {
				if err := s.locker.ReleaseLock(ctx, reconcilerLockKey); err != nil {
					s.logger.Warn("failed to release reconciler lock", zap.Error(err))
				}
			}()
		}
	}

	start := time.Now()
	defer func() {
		s.metrics.ObserveSweep(time.Since(start))
	}()

	now := s.clk.Now()
	s.expireUnconfirmed(ctx, now, report)
	s.resolveFinished(ctx, now, report)
	s.closeEndedSlots(ctx, now, report)
	s.pruneNotifications(ctx, report)

	s.metrics.RecordSweepResolution("cancelled", report.Cancelled)
	s.metrics.RecordSweepResolution("completed", report.Completed)
	s.metrics.RecordSweepResolution("no_show", report.NoShow)

	s.logger.Info("reconciliation sweep finished",
		zap.Int("cancelled", report.Cancelled),
		zap.Int("completed", report.Completed),
		zap.Int("no_show", report.NoShow),
		zap.Int("pruned", report.Pruned),
		zap.Duration("elapsed", time.Since(start)))
	return report, nil
}

func (s *ReconcilerService) expireUnconfirmed(ctx context.Context, now time.Time, report *dto.ReconcileReport) {
	expired, err := s.bookings.ListExpiredPending(ctx, now)
	if err != nil {
		s.logger.Error("failed to list expired bookings", zap.Error(err))
		return
	}
	for _, b := range expired {
		resolved, err := s.lifecycle.ForceExpire(ctx, b.BookingID)
		if err != nil {
			s.logger.Error("failed to expire booking",
				zap.String("booking_id", b.BookingID),
				zap.Error(err))
			continue
		}
		if resolved {
			report.Cancelled++
		}
	}
}

func (s *ReconcilerService) resolveFinished(ctx context.Context, now time.Time, report *dto.ReconcileReport) {
	finished, err := s.bookings.ListFinishedConfirmed(ctx, now)
	if err != nil {
		s.logger.Error("failed to list finished bookings", zap.Error(err))
		return
	}
	for _, b := range finished {
		outcome, resolved, err := s.lifecycle.ResolveOutcome(ctx, b.BookingID, b.CheckInStatus)
		if err != nil {
			s.logger.Error("failed to resolve booking outcome",
				zap.String("booking_id", b.BookingID),
				zap.Error(err))
			continue
		}
		if !resolved {
			continue
		}
		switch outcome {
		case models.BookingStatusCompleted:
			report.Completed++
		case models.BookingStatusNoShow:
			report.NoShow++
			if s.policy.HighPriorityAlerts && s.notifier != nil {
				s.notifier.Emit(ctx, b.UserID, models.NotificationSystemNotice,
					"Missed exam", "You were marked absent for a booked exam.",
					models.PriorityHigh, b.BookingID)
			}
		}
	}
}

func (s *ReconcilerService) closeEndedSlots(ctx context.Context, now time.Time, report *dto.ReconcileReport) {
	slots, err := s.slots.ListEndedActive(ctx, now)
	if err != nil {
		s.logger.Error("failed to list ended slots", zap.Error(err))
		return
	}
	for i := range slots {
		slot := &slots[i]
		if err := s.slots.UpdateStatus(ctx, nil, slot.ID, models.SlotStatusCompleted); err != nil {
			s.logger.Error("failed to close ended slot",
				zap.String("slot_id", slot.ID),
				zap.Error(err))
			continue
		}
		report.SlotsClosed++
	}
}

func (s *ReconcilerService) pruneNotifications(ctx context.Context, report *dto.ReconcileReport) {
	if s.notifier == nil || s.policy.Retention <= 0 {
		return
	}
	pruned, err := s.notifier.Prune(ctx, s.policy.Retention)
	if err != nil {
		s.logger.Error("failed to prune notifications", zap.Error(err))
		return
	}
	report.Pruned = pruned
}
