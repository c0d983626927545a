package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akashi1113/student-system-sub001/internal/models"
)

func newBookingRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestBookingRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO exam_bookings")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	booking := &models.Booking{
		BookingNumber: "EX202601021504050001",
		SlotID:        "slot-1",
		UserID:        "user-1",
		ContactInfo:   "student@example.com",
		Status:        models.BookingStatusBooked,
		CheckInStatus: models.CheckInNotChecked,
		BookedAt:      time.Now().UTC(),
	}
	require.NoError(t, repo.Insert(context.Background(), nil, booking))
	assert.NotEmpty(t, booking.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("status IN ('BOOKED', 'CONFIRMED')")).
		WithArgs("slot-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsActive(context.Background(), nil, "slot-1", "user-1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryMarkConfirmed(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'CONFIRMED'")).
		WithArgs(at, sqlmock.AnyArg(), "booking-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.MarkConfirmed(context.Background(), "booking-1", at)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryMarkConfirmedNotBooked(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET status = 'CONFIRMED'")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkConfirmed(context.Background(), "booking-1", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryMarkOutcomeIdempotent(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	// First run resolves the booking, second finds nothing in CONFIRMED.
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $4 AND status = 'CONFIRMED'")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $4 AND status = 'CONFIRMED'")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkOutcome(context.Background(), nil, "booking-1", models.BookingStatusNoShow, models.CheckInAbsent)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkOutcome(context.Background(), nil, "booking-1", models.BookingStatusNoShow, models.CheckInAbsent)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryListExpiredPending(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"booking_id", "slot_id", "user_id", "booking_end_time"}).
		AddRow("booking-1", "slot-1", "user-1", now.Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE b.status = 'BOOKED' AND s.booking_end_time < $1")).
		WithArgs(now).
		WillReturnRows(rows)

	expired, err := repo.ListExpiredPending(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "booking-1", expired[0].BookingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryListFinishedConfirmed(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"booking_id", "slot_id", "user_id", "check_in_status", "slot_end_time"}).
		AddRow("booking-1", "slot-1", "user-1", string(models.CheckInCheckedIn), now.Add(-time.Hour)).
		AddRow("booking-2", "slot-1", "user-2", string(models.CheckInNotChecked), now.Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE b.status = 'CONFIRMED' AND s.end_time < $1")).
		WithArgs(now).
		WillReturnRows(rows)

	finished, err := repo.ListFinishedConfirmed(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, finished, 2)
	assert.Equal(t, models.CheckInCheckedIn, finished[0].CheckInStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}
