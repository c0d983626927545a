package models

import "time"

// SlotStatus represents lifecycle phases for an exam time slot.
//
// AVAILABLE and FULL are derived from the occupancy counter; CANCELLED and
// COMPLETED are explicit administrative states and always take precedence
// over the derived pair.
type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "AVAILABLE"
	SlotStatusFull      SlotStatus = "FULL"
	SlotStatusCancelled SlotStatus = "CANCELLED"
	SlotStatusCompleted SlotStatus = "COMPLETED"
)

// Terminal reports whether the status is an administrative end state.
func (s SlotStatus) Terminal() bool {
	return s == SlotStatusCancelled || s == SlotStatusCompleted
}

// TimeSlot is a bookable window of an exam with fixed seating capacity.
// CurrentBookings is mutated only inside the reservation transaction; the
// version column guards against lost updates from concurrent writers.
type TimeSlot struct {
	ID               string     `db:"id" json:"id"`
	ExamID           string     `db:"exam_id" json:"exam_id"`
	StartTime        time.Time  `db:"start_time" json:"start_time"`
	EndTime          time.Time  `db:"end_time" json:"end_time"`
	MaxCapacity      int        `db:"max_capacity" json:"max_capacity"`
	CurrentBookings  int        `db:"current_bookings" json:"current_bookings"`
	Status           SlotStatus `db:"status" json:"status"`
	BookingStartTime time.Time  `db:"booking_start_time" json:"booking_start_time"`
	BookingEndTime   time.Time  `db:"booking_end_time" json:"booking_end_time"`
	AllowCancel      bool       `db:"allow_cancel" json:"allow_cancel"`
	CancelDeadline   int        `db:"cancel_deadline_hours" json:"cancel_deadline_hours"`
	Version          int        `db:"version" json:"-"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// BookingWindowOpen reports whether new reservations are accepted at now.
// The window is half-open: [booking_start_time, booking_end_time).
func (s *TimeSlot) BookingWindowOpen(now time.Time) bool {
	return !now.Before(s.BookingStartTime) && now.Before(s.BookingEndTime)
}

// CancelDeadlineAt returns the instant after which self-cancellation is refused.
func (s *TimeSlot) CancelDeadlineAt() time.Time {
	return s.StartTime.Add(-time.Duration(s.CancelDeadline) * time.Hour)
}

// SlotFilter narrows down slot listings.
type SlotFilter struct {
	ExamID   string
	Status   SlotStatus
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}
