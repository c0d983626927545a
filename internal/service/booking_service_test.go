package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akashi1113/student-system-sub001/internal/dto"
	"github.com/akashi1113/student-system-sub001/internal/models"
	"github.com/akashi1113/student-system-sub001/pkg/clock"
	appErrors "github.com/akashi1113/student-system-sub001/pkg/errors"
)

type slotStoreMock struct {
	findByIDFn        func(ctx context.Context, id string) (*models.TimeSlot, error)
	lockByIDFn        func(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error)
	updateOccupancyFn func(ctx context.Context, tx *sqlx.Tx, id string, bookings int, status models.SlotStatus, version int) error
}

func (m *slotStoreMock) FindByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	return m.findByIDFn(ctx, id)
}

func (m *slotStoreMock) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error) {
	return m.lockByIDFn(ctx, tx, id)
}

func (m *slotStoreMock) UpdateOccupancy(ctx context.Context, tx *sqlx.Tx, id string, bookings int, status models.SlotStatus, version int) error {
	return m.updateOccupancyFn(ctx, tx, id, bookings, status, version)
}

type bookingStoreMock struct {
	insertFn        func(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error
	findByIDFn      func(ctx context.Context, id string) (*models.Booking, error)
	lockByIDFn      func(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error)
	existsActiveFn  func(ctx context.Context, exec sqlx.ExtContext, slotID, userID string) (bool, error)
	markConfirmedFn func(ctx context.Context, id string, at time.Time) (bool, error)
	markCancelledFn func(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time, reason string, actor models.CancelActor) error
	markCheckedInFn func(ctx context.Context, id string, status models.CheckInStatus, at time.Time) (bool, error)
	markOutcomeFn   func(ctx context.Context, exec sqlx.ExtContext, id string, status models.BookingStatus, checkIn models.CheckInStatus) (bool, error)
	listFn          func(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error)
}

func (m *bookingStoreMock) Insert(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
	return m.insertFn(ctx, exec, booking)
}

func (m *bookingStoreMock) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	return m.findByIDFn(ctx, id)
}

func (m *bookingStoreMock) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error) {
	return m.lockByIDFn(ctx, tx, id)
}

func (m *bookingStoreMock) ExistsActive(ctx context.Context, exec sqlx.ExtContext, slotID, userID string) (bool, error) {
	return m.existsActiveFn(ctx, exec, slotID, userID)
}

func (m *bookingStoreMock) MarkConfirmed(ctx context.Context, id string, at time.Time) (bool, error) {
	return m.markConfirmedFn(ctx, id, at)
}

func (m *bookingStoreMock) MarkCancelled(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time, reason string, actor models.CancelActor) error {
	return m.markCancelledFn(ctx, exec, id, at, reason, actor)
}

func (m *bookingStoreMock) MarkCheckedIn(ctx context.Context, id string, status models.CheckInStatus, at time.Time) (bool, error) {
	return m.markCheckedInFn(ctx, id, status, at)
}

func (m *bookingStoreMock) MarkOutcome(ctx context.Context, exec sqlx.ExtContext, id string, status models.BookingStatus, checkIn models.CheckInStatus) (bool, error) {
	return m.markOutcomeFn(ctx, exec, id, status, checkIn)
}

func (m *bookingStoreMock) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	return m.listFn(ctx, filter)
}

type emittedNotification struct {
	userID   string
	typ      models.NotificationType
	priority models.NotificationPriority
}

type notifierMock struct {
	emitted []emittedNotification
}

func (m *notifierMock) Emit(ctx context.Context, userID string, typ models.NotificationType, title, content string, priority models.NotificationPriority, bookingID string) {
	m.emitted = append(m.emitted, emittedNotification{userID: userID, typ: typ, priority: priority})
}

func newTxProviderMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var (
	slotStart = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	slotEnd   = slotStart.Add(2 * time.Hour)
)

func openSlot() *models.TimeSlot {
	return &models.TimeSlot{
		ID:               "slot-1",
		ExamID:           "exam-1",
		StartTime:        slotStart,
		EndTime:          slotEnd,
		MaxCapacity:      2,
		CurrentBookings:  0,
		Status:           models.SlotStatusAvailable,
		BookingStartTime: slotStart.Add(-7 * 24 * time.Hour),
		BookingEndTime:   slotStart.Add(-time.Hour),
		AllowCancel:      true,
		CancelDeadline:   24,
		Version:          3,
	}
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}
}

func newBookingService(db *sqlx.DB, slots *slotStoreMock, bookings *bookingStoreMock, notifier *notifierMock, now time.Time) *BookingService {
	return NewBookingService(db, slots, bookings, notifier, nil, nil, clock.Fixed(now), BookingPolicy{}, nil, zap.NewNop())
}

func TestReserveAcceptsAndIncrementsOccupancy(t *testing.T) {
	db, mock, cleanup := newTxProviderMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectCommit()

	slot := openSlot()
	var gotCount int
	var gotStatus models.SlotStatus
	slots := &slotStoreMock{
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error) {
			return slot, nil
		},
		updateOccupancyFn: func(ctx context.Context, tx *sqlx.Tx, id string, bookings int, status models.SlotStatus, version int) error {
			gotCount = bookings
			gotStatus = status
			assert.Equal(t, slot.Version, version)
			return nil
		},
	}
	bookings := &bookingStoreMock{
		existsActiveFn: func(ctx context.Context, exec sqlx.ExtContext, slotID, userID string) (bool, error) {
			return false, nil
		},
		insertFn: func(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
			booking.ID = "booking-1"
			return nil
		},
	}

	now := slotStart.Add(-48 * time.Hour)
	svc := newBookingService(db, slots, bookings, &notifierMock{}, now)

	booking, err := svc.Reserve(context.Background(), studentClaims(), dto.ReserveRequest{SlotID: "slot-1", ContactInfo: "user@example.com"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusBooked, booking.Status)
	assert.Equal(t, models.CheckInNotChecked, booking.CheckInStatus)
	assert.Contains(t, booking.BookingNumber, "EX")
	assert.Equal(t, 1, gotCount)
	assert.Equal(t, models.SlotStatusAvailable, gotStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveLastSeatFlipsSlotFull(t *testing.T) {
	db, mock, cleanup := newTxProviderMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectCommit()

	slot := openSlot()
	slot.CurrentBookings = 1
	var gotStatus models.SlotStatus
	slots := &slotStoreMock{
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error) {
			return slot, nil
		},
		updateOccupancyFn: func(ctx context.Context, tx *sqlx.Tx, id string, bookings int, status models.SlotStatus, version int) error {
			gotStatus = status
			assert.Equal(t, 2, bookings)
			return nil
		},
	}
	bookings := &bookingStoreMock{
		existsActiveFn: func(ctx context.Context, exec sqlx.ExtContext, slotID, userID string) (bool, error) {
			return false, nil
		},
		insertFn: func(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
			return nil
		},
	}

	svc := newBookingService(db, slots, bookings, &notifierMock{}, slotStart.Add(-48*time.Hour))
	_, err := svc.Reserve(context.Background(), studentClaims(), dto.ReserveRequest{SlotID: "slot-1", ContactInfo: "user@example.com"})
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusFull, gotStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveRejectsFullSlot(t *testing.T) {
	db, mock, cleanup := newTxProviderMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectRollback()

	slot := openSlot()
	slot.CurrentBookings = 2
	slot.Status = models.SlotStatusFull
	slots := &slotStoreMock{
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error) {
			return slot, nil
		},
	}

	svc := newBookingService(db, slots, &bookingStoreMock{}, &notifierMock{}, slotStart.Add(-48*time.Hour))
	_, err := svc.Reserve(context.Background(), studentClaims(), dto.ReserveRequest{SlotID: "slot-1", ContactInfo: "user@example.com"})
	assert.True(t, appErrors.Is(err, appErrors.ErrCapacityExceeded))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveRejectsClosedWindow(t *testing.T) {
	db, mock, cleanup := newTxProviderMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectRollback()

	slots := &slotStoreMock{
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error) {
			return openSlot(), nil
		},
	}

	// Window closed one hour before slot start.
	svc := newBookingService(db, slots, &bookingStoreMock{}, &notifierMock{}, slotStart.Add(-30*time.Minute))
	_, err := svc.Reserve(context.Background(), studentClaims(), dto.ReserveRequest{SlotID: "slot-1", ContactInfo: "user@example.com"})
	assert.True(t, appErrors.Is(err, appErrors.ErrWindowViolation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveRejectsDuplicateActiveBooking(t *testing.T) {
	db, mock, cleanup := newTxProviderMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectRollback()

	slots := &slotStoreMock{
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error) {
			return openSlot(), nil
		},
	}
	bookings := &bookingStoreMock{
		existsActiveFn: func(ctx context.Context, exec sqlx.ExtContext, slotID, userID string) (bool, error) {
			return true, nil
		},
	}

	svc := newBookingService(db, slots, bookings, &notifierMock{}, slotStart.Add(-48*time.Hour))
	_, err := svc.Reserve(context.Background(), studentClaims(), dto.ReserveRequest{SlotID: "slot-1", ContactInfo: "user@example.com"})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveMapsBusyOnLockContention(t *testing.T) {
	db, mock, cleanup := newTxProviderMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectRollback()

	slots := &slotStoreMock{
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error) {
			return nil, appErrors.Clone(appErrors.ErrBusy, "slot row is locked")
		},
	}

	svc := newBookingService(db, slots, &bookingStoreMock{}, &notifierMock{}, slotStart.Add(-48*time.Hour))
	_, err := svc.Reserve(context.Background(), studentClaims(), dto.ReserveRequest{SlotID: "slot-1", ContactInfo: "user@example.com"})
	assert.True(t, appErrors.Is(err, appErrors.ErrBusy))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmEmitsNotification(t *testing.T) {
	now := slotStart.Add(-48 * time.Hour)
	confirmed := now.Add(time.Minute)
	stored := &models.Booking{ID: "booking-1", BookingNumber: "EX1", SlotID: "slot-1", UserID: "user-1", Status: models.BookingStatusBooked}

	bookings := &bookingStoreMock{
		findByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
			return stored, nil
		},
		markConfirmedFn: func(ctx context.Context, id string, at time.Time) (bool, error) {
			stored.Status = models.BookingStatusConfirmed
			stored.ConfirmedAt = &confirmed
			return true, nil
		},
	}
	notifier := &notifierMock{}
	svc := newBookingService(nil, &slotStoreMock{}, bookings, notifier, now)

	booking, err := svc.Confirm(context.Background(), "booking-1", studentClaims())
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
	require.Len(t, notifier.emitted, 1)
	assert.Equal(t, models.NotificationBookingConfirmed, notifier.emitted[0].typ)
}

func TestConfirmRejectsForeignBooking(t *testing.T) {
	bookings := &bookingStoreMock{
		findByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
			return &models.Booking{ID: id, UserID: "other-user", Status: models.BookingStatusBooked}, nil
		},
		markConfirmedFn: func(ctx context.Context, id string, at time.Time) (bool, error) {
			return true, nil
		},
	}
	svc := newBookingService(nil, &slotStoreMock{}, bookings, &notifierMock{}, slotStart)

	_, err := svc.Confirm(context.Background(), "booking-1", studentClaims())
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	booking, err := svc.Confirm(context.Background(), "booking-1", admin)
	require.NoError(t, err)
	assert.Equal(t, "other-user", booking.UserID)
}

func TestConfirmRejectsNonBooked(t *testing.T) {
	bookings := &bookingStoreMock{
		findByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
			return &models.Booking{ID: id, UserID: "user-1", Status: models.BookingStatusCancelled}, nil
		},
	}
	svc := newBookingService(nil, &slotStoreMock{}, bookings, &notifierMock{}, slotStart)

	_, err := svc.Confirm(context.Background(), "booking-1", studentClaims())
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
}

func TestCancelReleasesSeatAndReopensSlot(t *testing.T) {
	db, mock, cleanup := newTxProviderMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectCommit()

	slot := openSlot()
	slot.CurrentBookings = 2
	slot.Status = models.SlotStatusFull
	stored := &models.Booking{ID: "booking-1", BookingNumber: "EX1", SlotID: "slot-1", UserID: "user-1", Status: models.BookingStatusConfirmed}

	var gotCount int
	var gotStatus models.SlotStatus
	slots := &slotStoreMock{
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error) {
			return slot, nil
		},
		updateOccupancyFn: func(ctx context.Context, tx *sqlx.Tx, id string, bookings int, status models.SlotStatus, version int) error {
			gotCount = bookings
			gotStatus = status
			return nil
		},
	}
	var gotActor models.CancelActor
	bookings := &bookingStoreMock{
		findByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
			return stored, nil
		},
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error) {
			return stored, nil
		},
		markCancelledFn: func(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time, reason string, actor models.CancelActor) error {
			gotActor = actor
			return nil
		},
	}
	notifier := &notifierMock{}

	// Two days before start: inside the 24h cancellation deadline.
	svc := newBookingService(db, slots, bookings, notifier, slotStart.Add(-48*time.Hour))
	booking, err := svc.Cancel(context.Background(), "booking-1", studentClaims(), "")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, booking.Status)
	assert.Equal(t, models.CancelActorSelf, gotActor)
	assert.Equal(t, 1, gotCount)
	assert.Equal(t, models.SlotStatusAvailable, gotStatus)
	require.Len(t, notifier.emitted, 1)
	assert.Equal(t, models.NotificationBookingCancelled, notifier.emitted[0].typ)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelRejectsPastDeadline(t *testing.T) {
	db, mock, cleanup := newTxProviderMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectRollback()

	stored := &models.Booking{ID: "booking-1", SlotID: "slot-1", UserID: "user-1", Status: models.BookingStatusConfirmed}
	slots := &slotStoreMock{
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error) {
			return openSlot(), nil
		},
	}
	bookings := &bookingStoreMock{
		findByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
			return stored, nil
		},
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error) {
			return stored, nil
		},
	}

	// 23 hours before start: past the 24h deadline.
	svc := newBookingService(db, slots, bookings, &notifierMock{}, slotStart.Add(-23*time.Hour))
	_, err := svc.Cancel(context.Background(), "booking-1", studentClaims(), "")
	assert.True(t, appErrors.Is(err, appErrors.ErrWindowViolation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelAdminBypassesDeadlineButRequiresReason(t *testing.T) {
	db, mock, cleanup := newTxProviderMock(t)
	defer cleanup()

	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	svc := newBookingService(db, &slotStoreMock{}, &bookingStoreMock{}, &notifierMock{}, slotStart.Add(-23*time.Hour))
	_, err := svc.Cancel(context.Background(), "booking-1", admin, "  ")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	mock.ExpectBegin()
	mock.ExpectCommit()

	slot := openSlot()
	slot.CurrentBookings = 1
	stored := &models.Booking{ID: "booking-1", BookingNumber: "EX1", SlotID: "slot-1", UserID: "user-1", Status: models.BookingStatusConfirmed}
	slots := &slotStoreMock{
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error) {
			return slot, nil
		},
		updateOccupancyFn: func(ctx context.Context, tx *sqlx.Tx, id string, bookings int, status models.SlotStatus, version int) error {
			return nil
		},
	}
	bookings := &bookingStoreMock{
		findByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
			return stored, nil
		},
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error) {
			return stored, nil
		},
		markCancelledFn: func(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time, reason string, actor models.CancelActor) error {
			assert.Equal(t, models.CancelActorAdmin, actor)
			assert.Equal(t, "room unavailable", reason)
			return nil
		},
	}
	notifier := &notifierMock{}

	svc = newBookingService(db, slots, bookings, notifier, slotStart.Add(-23*time.Hour))
	booking, err := svc.Cancel(context.Background(), "booking-1", admin, "room unavailable")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, booking.Status)
	require.Len(t, notifier.emitted, 1)
	assert.Equal(t, models.PriorityHigh, notifier.emitted[0].priority)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelRejectsForeignBooking(t *testing.T) {
	db, mock, cleanup := newTxProviderMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectRollback()

	stored := &models.Booking{ID: "booking-1", SlotID: "slot-1", UserID: "other-user", Status: models.BookingStatusBooked}
	slots := &slotStoreMock{
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error) {
			return openSlot(), nil
		},
	}
	bookings := &bookingStoreMock{
		findByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
			return stored, nil
		},
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error) {
			return stored, nil
		},
	}

	svc := newBookingService(db, slots, bookings, &notifierMock{}, slotStart.Add(-48*time.Hour))
	_, err := svc.Cancel(context.Background(), "booking-1", studentClaims(), "")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForceExpireSkipsTerminalBooking(t *testing.T) {
	db, mock, cleanup := newTxProviderMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectRollback()

	stored := &models.Booking{ID: "booking-1", SlotID: "slot-1", UserID: "user-1", Status: models.BookingStatusCancelled}
	slots := &slotStoreMock{
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error) {
			return openSlot(), nil
		},
	}
	bookings := &bookingStoreMock{
		findByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
			return stored, nil
		},
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error) {
			return stored, nil
		},
	}
	notifier := &notifierMock{}

	svc := newBookingService(db, slots, bookings, notifier, slotStart)
	expired, err := svc.ForceExpire(context.Background(), "booking-1")
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Empty(t, notifier.emitted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForceExpireSparesBookingConfirmedMidSweep(t *testing.T) {
	db, mock, cleanup := newTxProviderMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectRollback()

	// Listed as BOOKED by the sweep, confirmed by the user before the row
	// lock was taken.
	listed := &models.Booking{ID: "booking-1", SlotID: "slot-1", UserID: "user-1", Status: models.BookingStatusBooked}
	confirmed := &models.Booking{ID: "booking-1", SlotID: "slot-1", UserID: "user-1", Status: models.BookingStatusConfirmed}
	slots := &slotStoreMock{
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error) {
			return openSlot(), nil
		},
	}
	cancelled := false
	bookings := &bookingStoreMock{
		findByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
			return listed, nil
		},
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error) {
			return confirmed, nil
		},
		markCancelledFn: func(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time, reason string, actor models.CancelActor) error {
			cancelled = true
			return nil
		},
	}
	notifier := &notifierMock{}

	svc := newBookingService(db, slots, bookings, notifier, slotStart)
	expired, err := svc.ForceExpire(context.Background(), "booking-1")
	require.NoError(t, err)
	assert.False(t, expired)
	assert.False(t, cancelled)
	assert.Empty(t, notifier.emitted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForceExpireCancelsPendingBooking(t *testing.T) {
	db, mock, cleanup := newTxProviderMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectCommit()

	slot := openSlot()
	slot.CurrentBookings = 1
	stored := &models.Booking{ID: "booking-1", BookingNumber: "EX1", SlotID: "slot-1", UserID: "user-1", Status: models.BookingStatusBooked}
	slots := &slotStoreMock{
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error) {
			return slot, nil
		},
		updateOccupancyFn: func(ctx context.Context, tx *sqlx.Tx, id string, bookings int, status models.SlotStatus, version int) error {
			assert.Equal(t, 0, bookings)
			return nil
		},
	}
	bookings := &bookingStoreMock{
		findByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
			return stored, nil
		},
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error) {
			return stored, nil
		},
		markCancelledFn: func(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time, reason string, actor models.CancelActor) error {
			assert.Equal(t, models.CancelActorSystem, actor)
			return nil
		},
	}
	notifier := &notifierMock{}

	svc := newBookingService(db, slots, bookings, notifier, slotStart)
	expired, err := svc.ForceExpire(context.Background(), "booking-1")
	require.NoError(t, err)
	assert.True(t, expired)
	require.Len(t, notifier.emitted, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveOutcome(t *testing.T) {
	cases := []struct {
		name    string
		checkIn models.CheckInStatus
		want    models.BookingStatus
		final   models.CheckInStatus
	}{
		{"checked in completes", models.CheckInCheckedIn, models.BookingStatusCompleted, models.CheckInCheckedIn},
		{"late completes", models.CheckInLate, models.BookingStatusCompleted, models.CheckInLate},
		{"not checked marks no-show", models.CheckInNotChecked, models.BookingStatusNoShow, models.CheckInAbsent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bookings := &bookingStoreMock{
				markOutcomeFn: func(ctx context.Context, exec sqlx.ExtContext, id string, status models.BookingStatus, checkIn models.CheckInStatus) (bool, error) {
					assert.Equal(t, tc.want, status)
					assert.Equal(t, tc.final, checkIn)
					return true, nil
				},
			}
			svc := newBookingService(nil, &slotStoreMock{}, bookings, &notifierMock{}, slotEnd)
			outcome, resolved, err := svc.ResolveOutcome(context.Background(), "booking-1", tc.checkIn)
			require.NoError(t, err)
			assert.True(t, resolved)
			assert.Equal(t, tc.want, outcome)
		})
	}
}

func TestResolveOutcomeLeavesOccupancyAlone(t *testing.T) {
	occupancyTouched := false
	slots := &slotStoreMock{
		updateOccupancyFn: func(ctx context.Context, tx *sqlx.Tx, id string, bookings int, status models.SlotStatus, version int) error {
			occupancyTouched = true
			return nil
		},
	}
	bookings := &bookingStoreMock{
		markOutcomeFn: func(ctx context.Context, exec sqlx.ExtContext, id string, status models.BookingStatus, checkIn models.CheckInStatus) (bool, error) {
			return true, nil
		},
	}
	svc := newBookingService(nil, slots, bookings, &notifierMock{}, slotEnd)

	_, resolved, err := svc.ResolveOutcome(context.Background(), "booking-1", models.CheckInNotChecked)
	require.NoError(t, err)
	assert.True(t, resolved)
	assert.False(t, occupancyTouched)
}

func TestResolveOutcomeIdempotent(t *testing.T) {
	bookings := &bookingStoreMock{
		markOutcomeFn: func(ctx context.Context, exec sqlx.ExtContext, id string, status models.BookingStatus, checkIn models.CheckInStatus) (bool, error) {
			return false, nil
		},
	}
	svc := newBookingService(nil, &slotStoreMock{}, bookings, &notifierMock{}, slotEnd)
	_, resolved, err := svc.ResolveOutcome(context.Background(), "booking-1", models.CheckInNotChecked)
	require.NoError(t, err)
	assert.False(t, resolved)
}

func TestCheckInOnTimeAndLate(t *testing.T) {
	stored := &models.Booking{ID: "booking-1", SlotID: "slot-1", UserID: "user-1", Status: models.BookingStatusConfirmed, CheckInStatus: models.CheckInNotChecked}
	var gotStatus models.CheckInStatus
	slots := &slotStoreMock{
		findByIDFn: func(ctx context.Context, id string) (*models.TimeSlot, error) {
			return openSlot(), nil
		},
	}
	bookings := &bookingStoreMock{
		findByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
			return stored, nil
		},
		markCheckedInFn: func(ctx context.Context, id string, status models.CheckInStatus, at time.Time) (bool, error) {
			gotStatus = status
			return true, nil
		},
	}

	svc := newBookingService(nil, slots, bookings, &notifierMock{}, slotStart.Add(-10*time.Minute))
	_, err := svc.CheckIn(context.Background(), "booking-1", studentClaims(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.CheckInCheckedIn, gotStatus)

	// Past the 30 minute grace the check-in records LATE.
	late := slotStart.Add(45 * time.Minute)
	svc = newBookingService(nil, slots, bookings, &notifierMock{}, late)
	_, err = svc.CheckIn(context.Background(), "booking-1", studentClaims(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.CheckInLate, gotStatus)
}

func TestCheckInRejectsOutsideWindow(t *testing.T) {
	stored := &models.Booking{ID: "booking-1", SlotID: "slot-1", UserID: "user-1", Status: models.BookingStatusConfirmed, CheckInStatus: models.CheckInNotChecked}
	slots := &slotStoreMock{
		findByIDFn: func(ctx context.Context, id string) (*models.TimeSlot, error) {
			return openSlot(), nil
		},
	}
	bookings := &bookingStoreMock{
		findByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
			return stored, nil
		},
	}

	svc := newBookingService(nil, slots, bookings, &notifierMock{}, slotStart.Add(-2*time.Hour))
	_, err := svc.CheckIn(context.Background(), "booking-1", studentClaims(), nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrWindowViolation))

	svc = newBookingService(nil, slots, bookings, &notifierMock{}, slotEnd.Add(time.Minute))
	_, err = svc.CheckIn(context.Background(), "booking-1", studentClaims(), nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrWindowViolation))
}

func TestCheckInRejectsUnconfirmedBooking(t *testing.T) {
	bookings := &bookingStoreMock{
		findByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
			return &models.Booking{ID: id, UserID: "user-1", Status: models.BookingStatusBooked}, nil
		},
	}
	svc := newBookingService(nil, &slotStoreMock{}, bookings, &notifierMock{}, slotStart)
	_, err := svc.CheckIn(context.Background(), "booking-1", studentClaims(), nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
}

func TestGetEnforcesOwnership(t *testing.T) {
	bookings := &bookingStoreMock{
		findByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
			return &models.Booking{ID: id, UserID: "other-user", Status: models.BookingStatusBooked}, nil
		},
	}
	svc := newBookingService(nil, &slotStoreMock{}, bookings, &notifierMock{}, slotStart)

	_, err := svc.Get(context.Background(), "booking-1", studentClaims())
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	booking, err := svc.Get(context.Background(), "booking-1", admin)
	require.NoError(t, err)
	assert.Equal(t, "other-user", booking.UserID)
}

// memorySlotStore backs the contention test with real mutual exclusion: the
// mutex taken in LockByID is held until UpdateOccupancy writes the counter,
// matching the lifetime of the database row lock. A slot with no seats left
// is returned unlocked because the caller rejects without writing.
type memorySlotStore struct {
	mu   sync.Mutex
	slot models.TimeSlot
	peak int
}

func (m *memorySlotStore) FindByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.slot
	return &snapshot, nil
}

func (m *memorySlotStore) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error) {
	m.mu.Lock()
	snapshot := m.slot
	if snapshot.Status == models.SlotStatusFull || snapshot.CurrentBookings >= snapshot.MaxCapacity {
		m.mu.Unlock()
	}
	return &snapshot, nil
}

func (m *memorySlotStore) UpdateOccupancy(ctx context.Context, tx *sqlx.Tx, id string, bookings int, status models.SlotStatus, version int) error {
	defer m.mu.Unlock()
	if version != m.slot.Version {
		return fmt.Errorf("slot %s version %d stale", id, version)
	}
	m.slot.CurrentBookings = bookings
	m.slot.Status = status
	m.slot.Version++
	if bookings > m.peak {
		m.peak = bookings
	}
	return nil
}

func TestReserveUnderContentionAdmitsExactlyCapacity(t *testing.T) {
	const seats = 3
	const attempts = 8

	slot := openSlot()
	slot.MaxCapacity = seats
	store := &memorySlotStore{slot: *slot}

	var insertMu sync.Mutex
	inserted := 0
	bookings := &bookingStoreMock{
		existsActiveFn: func(ctx context.Context, exec sqlx.ExtContext, slotID, userID string) (bool, error) {
			return false, nil
		},
		insertFn: func(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
			insertMu.Lock()
			inserted++
			insertMu.Unlock()
			return nil
		},
	}

	now := slotStart.Add(-48 * time.Hour)
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		db, mock, cleanup := newTxProviderMock(t)
		defer cleanup()
		mock.MatchExpectationsInOrder(false)
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()

		svc := NewBookingService(db, store, bookings, &notifierMock{}, nil, nil, clock.Fixed(now), BookingPolicy{}, nil, zap.NewNop())
		claims := &models.JWTClaims{UserID: fmt.Sprintf("user-%d", i), Role: models.RoleStudent}

		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), claims, dto.ReserveRequest{SlotID: "slot-1", ContactInfo: claims.UserID + "@example.com"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	admitted, rejected := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			admitted++
		case appErrors.Is(err, appErrors.ErrCapacityExceeded):
			rejected++
		default:
			t.Fatalf("unexpected reservation error: %v", err)
		}
	}
	assert.Equal(t, seats, admitted)
	assert.Equal(t, attempts-seats, rejected)
	assert.Equal(t, seats, inserted)
	assert.Equal(t, seats, store.slot.CurrentBookings)
	assert.Equal(t, seats, store.peak)
	assert.Equal(t, models.SlotStatusFull, store.slot.Status)
}

func TestReserveUnknownSlot(t *testing.T) {
	db, mock, cleanup := newTxProviderMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectRollback()

	slots := &slotStoreMock{
		lockByIDFn: func(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error) {
			return nil, sql.ErrNoRows
		},
	}
	svc := newBookingService(db, slots, &bookingStoreMock{}, &notifierMock{}, slotStart.Add(-48*time.Hour))
	_, err := svc.Reserve(context.Background(), studentClaims(), dto.ReserveRequest{SlotID: "missing", ContactInfo: "user@example.com"})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
