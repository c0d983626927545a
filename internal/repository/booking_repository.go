package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/akashi1113/student-system-sub001/internal/models"
	appErrors "github.com/akashi1113/student-system-sub001/pkg/errors"
)

// pq error code for unique constraint violations. A partial unique index on
// (slot_id, user_id) WHERE status IN ('BOOKED','CONFIRMED') backs up the
// in-transaction duplicate check.
const pqUniqueViolation = "23505"

// BookingRepository manages booking rows. Bookings are never deleted; every
// terminal state is retained for audit.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository builds repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const bookingColumns = `id, booking_number, slot_id, user_id, contact_info, status, check_in_status,
booked_at, confirmed_at, cancelled_at, checked_in_at, cancel_reason, cancelled_by, created_at, updated_at`

// Insert creates a booking row inside the reservation transaction.
func (r *BookingRepository) Insert(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
	target := r.exec(exec)
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now

	const query = `
INSERT INTO exam_bookings (id, booking_number, slot_id, user_id, contact_info, status, check_in_status,
booked_at, confirmed_at, cancelled_at, checked_in_at, cancel_reason, cancelled_by, created_at, updated_at)
VALUES (:id, :booking_number, :slot_id, :user_id, :contact_info, :status, :check_in_status,
:booked_at, :confirmed_at, :cancelled_at, :checked_in_at, :cancel_reason, :cancelled_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, query, booking); err != nil {
		var pqErr *pq.Error
		if isPQError(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return appErrors.Clone(appErrors.ErrConflict, "user already holds an active booking for this slot")
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// FindByID returns a booking without locking it.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM exam_bookings WHERE id = $1`, bookingColumns)
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return &booking, nil
}

// LockByID re-reads a booking under FOR UPDATE inside a transaction. Lock
// order is always slot first, then booking.
func (r *BookingRepository) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM exam_bookings WHERE id = $1 FOR UPDATE`, bookingColumns)
	var booking models.Booking
	if err := tx.GetContext(ctx, &booking, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock booking: %w", err)
	}
	return &booking, nil
}

// ExistsActive reports whether the user holds a BOOKED/CONFIRMED booking for
// the slot.
func (r *BookingRepository) ExistsActive(ctx context.Context, exec sqlx.ExtContext, slotID, userID string) (bool, error) {
	target := r.exec(exec)
	const query = `SELECT EXISTS (
SELECT 1 FROM exam_bookings WHERE slot_id = $1 AND user_id = $2 AND status IN ('BOOKED', 'CONFIRMED'))`
	var exists bool
	if err := sqlx.GetContext(ctx, target, &exists, query, slotID, userID); err != nil {
		return false, fmt.Errorf("check active booking: %w", err)
	}
	return exists, nil
}

// MarkConfirmed promotes a BOOKED booking to CONFIRMED. Returns false when
// the booking was not in BOOKED state.
func (r *BookingRepository) MarkConfirmed(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE exam_bookings
SET status = 'CONFIRMED', confirmed_at = $1, updated_at = $2
WHERE id = $3 AND status = 'BOOKED'`
	res, err := r.db.ExecContext(ctx, query, at, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("confirm booking: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("confirm booking rows: %w", err)
	}
	return affected > 0, nil
}

// MarkCancelled records the cancellation in the reservation transaction.
func (r *BookingRepository) MarkCancelled(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time, reason string, actor models.CancelActor) error {
	target := r.exec(exec)
	const query = `UPDATE exam_bookings
SET status = 'CANCELLED', cancelled_at = $1, cancel_reason = $2, cancelled_by = $3, updated_at = $4
WHERE id = $5 AND status IN ('BOOKED', 'CONFIRMED')`
	res, err := target.ExecContext(ctx, query, at, reason, actor, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel booking rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("booking %s not cancellable", id)
	}
	return nil
}

// MarkCheckedIn records attendance for a confirmed, not yet checked booking.
func (r *BookingRepository) MarkCheckedIn(ctx context.Context, id string, status models.CheckInStatus, at time.Time) (bool, error) {
	const query = `UPDATE exam_bookings
SET check_in_status = $1, checked_in_at = $2, updated_at = $3
WHERE id = $4 AND status = 'CONFIRMED' AND check_in_status = 'NOT_CHECKED'`
	res, err := r.db.ExecContext(ctx, query, status, at, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("check in booking: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check in booking rows: %w", err)
	}
	return affected > 0, nil
}

// MarkOutcome resolves a confirmed booking to COMPLETED or NO_SHOW during the
// reconciliation sweep. The status guard makes re-runs no-ops.
func (r *BookingRepository) MarkOutcome(ctx context.Context, exec sqlx.ExtContext, id string, status models.BookingStatus, checkIn models.CheckInStatus) (bool, error) {
	target := r.exec(exec)
	const query = `UPDATE exam_bookings
SET status = $1, check_in_status = $2, updated_at = $3
WHERE id = $4 AND status = 'CONFIRMED'`
	res, err := target.ExecContext(ctx, query, status, checkIn, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("resolve booking outcome: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve booking outcome rows: %w", err)
	}
	return affected > 0, nil
}

// List returns bookings matching the filter with a total count.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	idx := 1

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", idx))
		args = append(args, filter.UserID)
		idx++
	}
	if filter.SlotID != "" {
		conditions = append(conditions, fmt.Sprintf("slot_id = $%d", idx))
		args = append(args, filter.SlotID)
		idx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", idx))
		args = append(args, filter.Status)
		idx++
	}

	where := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM exam_bookings WHERE %s`, where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}

	listQuery := fmt.Sprintf(`SELECT %s FROM exam_bookings WHERE %s ORDER BY booked_at DESC LIMIT $%d OFFSET $%d`,
		bookingColumns, where, idx, idx+1)
	args = append(args, size, (page-1)*size)

	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, total, nil
}

// ListBySlot returns every booking of a slot ordered by booking time.
func (r *BookingRepository) ListBySlot(ctx context.Context, slotID string) ([]models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM exam_bookings WHERE slot_id = $1 ORDER BY booked_at ASC`, bookingColumns)
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, slotID); err != nil {
		return nil, fmt.Errorf("list slot bookings: %w", err)
	}
	return bookings, nil
}

// ListExpiredPending returns BOOKED bookings whose slot booking window has
// closed without confirmation.
func (r *BookingRepository) ListExpiredPending(ctx context.Context, now time.Time) ([]models.ExpiredBooking, error) {
	const query = `SELECT b.id AS booking_id, b.slot_id, b.user_id, s.booking_end_time
FROM exam_bookings b
JOIN exam_time_slots s ON s.id = b.slot_id
WHERE b.status = 'BOOKED' AND s.booking_end_time < $1
ORDER BY s.booking_end_time ASC`
	var rows []models.ExpiredBooking
	if err := r.db.SelectContext(ctx, &rows, query, now); err != nil {
		return nil, fmt.Errorf("list expired pending bookings: %w", err)
	}
	return rows, nil
}

// ListFinishedConfirmed returns CONFIRMED bookings whose slot has ended.
func (r *BookingRepository) ListFinishedConfirmed(ctx context.Context, now time.Time) ([]models.FinishedBooking, error) {
	const query = `SELECT b.id AS booking_id, b.slot_id, b.user_id, b.check_in_status, s.end_time AS slot_end_time
FROM exam_bookings b
JOIN exam_time_slots s ON s.id = b.slot_id
WHERE b.status = 'CONFIRMED' AND s.end_time < $1
ORDER BY s.end_time ASC`
	var rows []models.FinishedBooking
	if err := r.db.SelectContext(ctx, &rows, query, now); err != nil {
		return nil, fmt.Errorf("list finished confirmed bookings: %w", err)
	}
	return rows, nil
}
