package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/akashi1113/student-system-sub001/internal/dto"
	"github.com/akashi1113/student-system-sub001/internal/models"
	"github.com/akashi1113/student-system-sub001/pkg/clock"
	appErrors "github.com/akashi1113/student-system-sub001/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type slotStore interface {
	FindByID(ctx context.Context, id string) (*models.TimeSlot, error)
	LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error)
	UpdateOccupancy(ctx context.Context, tx *sqlx.Tx, id string, bookings int, status models.SlotStatus, version int) error
}

type bookingStore interface {
	Insert(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error)
	ExistsActive(ctx context.Context, exec sqlx.ExtContext, slotID, userID string) (bool, error)
	MarkConfirmed(ctx context.Context, id string, at time.Time) (bool, error)
	MarkCancelled(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time, reason string, actor models.CancelActor) error
	MarkCheckedIn(ctx context.Context, id string, status models.CheckInStatus, at time.Time) (bool, error)
	MarkOutcome(ctx context.Context, exec sqlx.ExtContext, id string, status models.BookingStatus, checkIn models.CheckInStatus) (bool, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error)
}

type notificationEmitter interface {
	Emit(ctx context.Context, userID string, typ models.NotificationType, title, content string, priority models.NotificationPriority, bookingID string)
}

// BookingPolicy holds timing rules applied to reservations and check-ins.
type BookingPolicy struct {
	CheckInEarlyWindow time.Duration
	CheckInGrace       time.Duration
	NumberPrefix       string
}

// BookingService is the reservation engine: it admits bookings against slot
// capacity and drives the booking lifecycle. The slot occupancy counter is
// mutated only here, always inside one transaction together with the booking
// row change.
type BookingService struct {
	tx        txProvider
	slots     slotStore
	bookings  bookingStore
	notifier  notificationEmitter
	cache     *CacheService
	metrics   *MetricsService
	clk       clock.Clock
	policy    BookingPolicy
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBookingService constructs BookingService.
func NewBookingService(tx txProvider, slots slotStore, bookings bookingStore, notifier notificationEmitter, cache *CacheService, metrics *MetricsService, clk clock.Clock, policy BookingPolicy, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System()
	}
	if policy.CheckInEarlyWindow <= 0 {
		policy.CheckInEarlyWindow = time.Hour
	}
	if policy.CheckInGrace <= 0 {
		policy.CheckInGrace = 30 * time.Minute
	}
	if policy.NumberPrefix == "" {
		policy.NumberPrefix = "EX"
	}
	return &BookingService{tx: tx, slots: slots, bookings: bookings, notifier: notifier, cache: cache, metrics: metrics, clk: clk, policy: policy, validator: validate, logger: logger}
}

// Reserve admits a new booking against the slot's capacity. All guards are
// evaluated against the slot row held under lock, and the counter increment
// commits atomically with the booking insert.
func (s *BookingService) Reserve(ctx context.Context, claims *models.JWTClaims, req dto.ReserveRequest) (booking *models.Booking, err error) {
	if claims == nil || claims.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reservation payload")
	}

	now := s.clk.Now()

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin reservation")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	slot, err := s.slots.LockByID(ctx, tx, req.SlotID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		if appErrors.Is(err, appErrors.ErrBusy) {
			s.metrics.RecordLockContention()
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}

	switch slot.Status {
	case models.SlotStatusAvailable:
	case models.SlotStatusFull:
		s.metrics.RecordReservation("capacity_exceeded")
		return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "slot is full")
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "slot not open for booking")
	}
	if !slot.BookingWindowOpen(now) {
		return nil, appErrors.Clone(appErrors.ErrWindowViolation, "outside booking window")
	}
	if slot.CurrentBookings >= slot.MaxCapacity {
		s.metrics.RecordReservation("capacity_exceeded")
		return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "slot is full")
	}

	exists, err := s.bookings.ExistsActive(ctx, tx, slot.ID, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate reservation")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user already holds an active booking for this slot")
	}

	newCount := slot.CurrentBookings + 1
	newStatus := models.SlotStatusAvailable
	if newCount == slot.MaxCapacity {
		newStatus = models.SlotStatusFull
	}
	if err = s.slots.UpdateOccupancy(ctx, tx, slot.ID, newCount, newStatus, slot.Version); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update slot occupancy")
	}

	booking = &models.Booking{
		BookingNumber: s.bookingNumber(now),
		SlotID:        slot.ID,
		UserID:        claims.UserID,
		ContactInfo:   req.ContactInfo,
		Status:        models.BookingStatusBooked,
		CheckInStatus: models.CheckInNotChecked,
		BookedAt:      now,
	}
	if err = s.bookings.Insert(ctx, tx, booking); err != nil {
		if appErrors.Is(err, appErrors.ErrConflict) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create booking")
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit reservation")
	}

	s.metrics.RecordReservation("accepted")
	s.invalidateSlot(ctx, slot.ID)
	s.logger.Info("booking reserved",
		zap.String("booking_id", booking.ID),
		zap.String("slot_id", slot.ID),
		zap.String("user_id", claims.UserID),
		zap.Int("occupancy", newCount))
	return booking, nil
}

// Confirm promotes a BOOKED booking to CONFIRMED. Capacity is untouched:
// confirmation only separates "reserved" from "verified". Students may only
// confirm their own bookings.
func (s *BookingService) Confirm(ctx context.Context, bookingID string, claims *models.JWTClaims) (*models.Booking, error) {
	if claims == nil || claims.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}

	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if claims.Role != models.RoleAdmin && booking.UserID != claims.UserID {
		return nil, appErrors.ErrForbidden
	}
	if booking.Status != models.BookingStatusBooked {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot confirm booking in status %s", booking.Status))
	}

	now := s.clk.Now()
	ok, err := s.bookings.MarkConfirmed(ctx, bookingID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm booking")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "booking no longer confirmable")
	}

	s.emit(ctx, booking.UserID, models.NotificationBookingConfirmed,
		"Exam booking confirmed",
		fmt.Sprintf("Booking %s has been confirmed.", booking.BookingNumber),
		models.PriorityNormal, booking.ID)

	return s.loadBooking(ctx, bookingID)
}

// Cancel transitions a booking to CANCELLED and releases its seat in the
// same transaction. Self-service cancellations honour the slot's policy and
// deadline; administrators bypass the deadline but must give a reason.
func (s *BookingService) Cancel(ctx context.Context, bookingID string, claims *models.JWTClaims, reason string) (*models.Booking, error) {
	if claims == nil || claims.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}

	actor := models.CancelActorSelf
	if claims.Role == models.RoleAdmin {
		actor = models.CancelActorAdmin
	}
	if actor == models.CancelActorAdmin && strings.TrimSpace(reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cancellation reason is required")
	}
	if reason == "" {
		reason = "cancelled by student"
	}

	booking, err := s.cancelTx(ctx, bookingID, actor, claims.UserID, reason)
	if err != nil {
		return nil, err
	}

	priority := models.PriorityNormal
	if actor == models.CancelActorAdmin {
		priority = models.PriorityHigh
	}
	s.emit(ctx, booking.UserID, models.NotificationBookingCancelled,
		"Exam booking cancelled",
		fmt.Sprintf("Booking %s has been cancelled: %s", booking.BookingNumber, reason),
		priority, booking.ID)

	return booking, nil
}

// ForceExpire cancels a stale BOOKED booking on behalf of the reconciler.
// It reports false without error when the booking left BOOKED in the
// meantime, whether confirmed by the user or already cancelled, which makes
// racing with user actions harmless.
func (s *BookingService) ForceExpire(ctx context.Context, bookingID string) (bool, error) {
	booking, err := s.cancelTx(ctx, bookingID, models.CancelActorSystem, "", "booking window closed without confirmation")
	if err != nil {
		if appErrors.Is(err, appErrors.ErrInvalidState) {
			return false, nil
		}
		return false, err
	}

	s.emit(ctx, booking.UserID, models.NotificationBookingCancelled,
		"Exam booking expired",
		fmt.Sprintf("Booking %s expired because it was not confirmed before the booking window closed.", booking.BookingNumber),
		models.PriorityNormal, booking.ID)
	return true, nil
}

// ResolveOutcome moves a confirmed booking whose slot has ended to COMPLETED
// or NO_SHOW depending on its check-in sub-state. It reports false when the
// booking is no longer CONFIRMED, making reconciler re-runs no-ops.
func (s *BookingService) ResolveOutcome(ctx context.Context, bookingID string, checkIn models.CheckInStatus) (models.BookingStatus, bool, error) {
	outcome := models.BookingStatusNoShow
	final := models.CheckInAbsent
	if checkIn == models.CheckInCheckedIn || checkIn == models.CheckInLate {
		outcome = models.BookingStatusCompleted
		final = checkIn
	}

	ok, err := s.bookings.MarkOutcome(ctx, nil, bookingID, outcome, final)
	if err != nil {
		return "", false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve booking outcome")
	}
	return outcome, ok, nil
}

// CheckIn records attendance for a confirmed booking around slot start.
func (s *BookingService) CheckIn(ctx context.Context, bookingID string, claims *models.JWTClaims, observed *time.Time) (*models.Booking, error) {
	if claims == nil || claims.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}

	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if claims.Role != models.RoleAdmin && booking.UserID != claims.UserID {
		return nil, appErrors.ErrForbidden
	}
	if booking.Status != models.BookingStatusConfirmed {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot check in booking in status %s", booking.Status))
	}
	if booking.CheckInStatus != models.CheckInNotChecked {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "booking already checked in")
	}

	slot, err := s.slots.FindByID(ctx, booking.SlotID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}

	at := s.clk.Now()
	if observed != nil {
		at = observed.UTC()
	}
	if at.Before(slot.StartTime.Add(-s.policy.CheckInEarlyWindow)) {
		return nil, appErrors.Clone(appErrors.ErrWindowViolation, "check-in not open yet")
	}
	if at.After(slot.EndTime) {
		return nil, appErrors.Clone(appErrors.ErrWindowViolation, "slot already ended")
	}

	status := models.CheckInCheckedIn
	if at.After(slot.StartTime.Add(s.policy.CheckInGrace)) {
		status = models.CheckInLate
	}

	ok, err := s.bookings.MarkCheckedIn(ctx, bookingID, status, at)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record check-in")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "booking no longer checkable")
	}

	return s.loadBooking(ctx, bookingID)
}

// Get returns a booking; students may only read their own.
func (s *BookingService) Get(ctx context.Context, bookingID string, claims *models.JWTClaims) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if claims != nil && claims.Role != models.RoleAdmin && booking.UserID != claims.UserID {
		return nil, appErrors.ErrForbidden
	}
	return booking, nil
}

// List returns bookings with pagination metadata.
func (s *BookingService) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, *models.Pagination, error) {
	bookings, total, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return bookings, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// cancelTx performs the cancel transition plus seat release inside one
// transaction: slot locked first, booking re-read under lock, both writes
// committed together.
func (s *BookingService) cancelTx(ctx context.Context, bookingID string, actor models.CancelActor, actorUserID, reason string) (result *models.Booking, err error) {
	now := s.clk.Now()

	current, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin cancellation")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	slot, err := s.slots.LockByID(ctx, tx, current.SlotID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		if appErrors.Is(err, appErrors.ErrBusy) {
			s.metrics.RecordLockContention()
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}

	booking, err := s.bookings.LockByID(ctx, tx, bookingID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}

	if booking.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("booking already %s", booking.Status))
	}

	// The expiry sweep may only cancel bookings still awaiting confirmation.
	// A booking confirmed between the sweep's listing and this lock is left
	// alone.
	if actor == models.CancelActorSystem && booking.Status != models.BookingStatusBooked {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("booking is %s, not pending confirmation", booking.Status))
	}

	if actor == models.CancelActorSelf {
		if booking.UserID != actorUserID {
			return nil, appErrors.ErrForbidden
		}
		if !slot.AllowCancel {
			return nil, appErrors.Clone(appErrors.ErrWindowViolation, "slot does not allow cancellation")
		}
		if !now.Before(slot.CancelDeadlineAt()) {
			return nil, appErrors.Clone(appErrors.ErrWindowViolation,
				fmt.Sprintf("cancellation closed %d hours before slot start", slot.CancelDeadline))
		}
	}

	if err = s.bookings.MarkCancelled(ctx, tx, bookingID, now, reason, actor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel booking")
	}

	newCount := slot.CurrentBookings - 1
	if newCount < 0 {
		newCount = 0
	}
	newStatus := slot.Status
	if slot.Status == models.SlotStatusFull && slot.BookingWindowOpen(now) {
		newStatus = models.SlotStatusAvailable
	}
	if err = s.slots.UpdateOccupancy(ctx, tx, slot.ID, newCount, newStatus, slot.Version); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release slot seat")
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit cancellation")
	}

	s.metrics.RecordRelease()
	s.invalidateSlot(ctx, slot.ID)
	s.logger.Info("booking cancelled",
		zap.String("booking_id", bookingID),
		zap.String("slot_id", slot.ID),
		zap.String("actor", string(actor)),
		zap.Int("occupancy", newCount))

	cancelled := *booking
	cancelled.Status = models.BookingStatusCancelled
	cancelled.CancelledAt = &now
	cancelled.CancelReason = &reason
	cancelled.CancelledBy = &actor
	return &cancelled, nil
}

func (s *BookingService) loadBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	return booking, nil
}

func (s *BookingService) emit(ctx context.Context, userID string, typ models.NotificationType, title, content string, priority models.NotificationPriority, bookingID string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Emit(ctx, userID, typ, title, content, priority, bookingID)
}

func (s *BookingService) invalidateSlot(ctx context.Context, slotID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSlot(ctx, slotID); err != nil {
		s.logger.Warn("slot cache invalidation failed", zap.String("slot_id", slotID), zap.Error(err))
	}
}

func (s *BookingService) bookingNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("%s%s%s", s.policy.NumberPrefix, now.Format("20060102150405"), suffix)
}
