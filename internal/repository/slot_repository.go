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

// pq error code raised by SELECT ... FOR UPDATE NOWAIT when the row is held.
const pqLockNotAvailable = "55P03"

// SlotRepository manages exam time slot rows and their occupancy counters.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository builds repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

const slotColumns = `id, exam_id, start_time, end_time, max_capacity, current_bookings, status,
booking_start_time, booking_end_time, allow_cancel, cancel_deadline_hours, version, created_at, updated_at`

// Create inserts a new slot.
func (r *SlotRepository) Create(ctx context.Context, slot *models.TimeSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now

	const query = `
INSERT INTO exam_time_slots (id, exam_id, start_time, end_time, max_capacity, current_bookings, status,
booking_start_time, booking_end_time, allow_cancel, cancel_deadline_hours, version, created_at, updated_at)
VALUES (:id, :exam_id, :start_time, :end_time, :max_capacity, :current_bookings, :status,
:booking_start_time, :booking_end_time, :allow_cancel, :cancel_deadline_hours, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

// FindByID returns a slot without locking it.
func (r *SlotRepository) FindByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM exam_time_slots WHERE id = $1`, slotColumns)
	var slot models.TimeSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get slot: %w", err)
	}
	return &slot, nil
}

// LockByID loads a slot row under FOR UPDATE NOWAIT inside the given
// transaction. A held row lock surfaces as ErrBusy so callers can fail fast
// instead of queueing behind a conflicting reservation.
func (r *SlotRepository) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.TimeSlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM exam_time_slots WHERE id = $1 FOR UPDATE NOWAIT`, slotColumns)
	var slot models.TimeSlot
	if err := tx.GetContext(ctx, &slot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		var pqErr *pq.Error
		if isPQError(err, &pqErr) && pqErr.Code == pqLockNotAvailable {
			return nil, appErrors.Clone(appErrors.ErrBusy, "slot row locked by concurrent request")
		}
		return nil, fmt.Errorf("lock slot: %w", err)
	}
	return &slot, nil
}

// UpdateOccupancy writes the counter and derived status for a locked slot,
// bumping the version column. The row must have been loaded via LockByID in
// the same transaction; a zero row count therefore indicates a programming
// error rather than a lost race.
func (r *SlotRepository) UpdateOccupancy(ctx context.Context, tx *sqlx.Tx, id string, bookings int, status models.SlotStatus, version int) error {
	const query = `UPDATE exam_time_slots
SET current_bookings = $1, status = $2, version = version + 1, updated_at = $3
WHERE id = $4 AND version = $5`
	res, err := tx.ExecContext(ctx, query, bookings, status, time.Now().UTC(), id, version)
	if err != nil {
		return fmt.Errorf("update slot occupancy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update slot occupancy rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("slot %s version %d stale during occupancy update", id, version)
	}
	return nil
}

// UpdateStatus sets an explicit administrative status on the slot.
func (r *SlotRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SlotStatus) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE exam_time_slots SET status = $1, version = version + 1, updated_at = $2 WHERE id = $3`
	if _, err := exec.ExecContext(ctx, query, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update slot status: %w", err)
	}
	return nil
}

// Update edits schedule, capacity and cancellation policy fields. The write
// carries the version read with the slot, so a reservation committing in
// between surfaces as a conflict instead of silently losing its status flip.
func (r *SlotRepository) Update(ctx context.Context, slot *models.TimeSlot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE exam_time_slots
SET start_time = :start_time, end_time = :end_time, max_capacity = :max_capacity, status = :status,
booking_start_time = :booking_start_time, booking_end_time = :booking_end_time,
allow_cancel = :allow_cancel, cancel_deadline_hours = :cancel_deadline_hours,
version = version + 1, updated_at = :updated_at
WHERE id = :id AND version = :version`
	res, err := r.db.NamedExecContext(ctx, query, slot)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update slot rows: %w", err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrConflict, "slot changed concurrently, reload and retry")
	}
	slot.Version++
	return nil
}

// List returns slots matching the filter with a total count.
func (r *SlotRepository) List(ctx context.Context, filter models.SlotFilter) ([]models.TimeSlot, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	idx := 1

	if filter.ExamID != "" {
		conditions = append(conditions, fmt.Sprintf("exam_id = $%d", idx))
		args = append(args, filter.ExamID)
		idx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", idx))
		args = append(args, filter.Status)
		idx++
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("start_time >= $%d", idx))
		args = append(args, *filter.DateFrom)
		idx++
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("start_time < $%d", idx))
		args = append(args, *filter.DateTo)
		idx++
	}

	where := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM exam_time_slots WHERE %s`, where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count slots: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}

	listQuery := fmt.Sprintf(`SELECT %s FROM exam_time_slots WHERE %s ORDER BY start_time ASC LIMIT $%d OFFSET $%d`,
		slotColumns, where, idx, idx+1)
	args = append(args, size, (page-1)*size)

	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list slots: %w", err)
	}
	return slots, total, nil
}

// ListEndedActive returns AVAILABLE/FULL slots whose end time has passed,
// candidates for the completion sweep.
func (r *SlotRepository) ListEndedActive(ctx context.Context, now time.Time) ([]models.TimeSlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM exam_time_slots
WHERE end_time < $1 AND status IN ('AVAILABLE', 'FULL') ORDER BY end_time ASC`, slotColumns)
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, now); err != nil {
		return nil, fmt.Errorf("list ended slots: %w", err)
	}
	return slots, nil
}

func isPQError(err error, target **pq.Error) bool {
	for err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			*target = pqErr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
