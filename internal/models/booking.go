package models

import "time"

// BookingStatus models the one-way booking lifecycle:
// BOOKED -> CONFIRMED -> {CANCELLED | COMPLETED | NO_SHOW}.
type BookingStatus string

const (
	BookingStatusBooked    BookingStatus = "BOOKED"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusNoShow    BookingStatus = "NO_SHOW"
)

// Terminal reports whether the status admits no further transitions.
func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingStatusCancelled, BookingStatusCompleted, BookingStatusNoShow:
		return true
	}
	return false
}

// Active reports whether the booking still occupies a seat.
func (s BookingStatus) Active() bool {
	return s == BookingStatusBooked || s == BookingStatusConfirmed
}

// CheckInStatus is the orthogonal attendance sub-state, recorded around the
// exam's start time.
type CheckInStatus string

const (
	CheckInNotChecked CheckInStatus = "NOT_CHECKED"
	CheckInCheckedIn  CheckInStatus = "CHECKED_IN"
	CheckInLate       CheckInStatus = "LATE"
	CheckInAbsent     CheckInStatus = "ABSENT"
)

// CancelActor identifies who cancelled a booking.
type CancelActor string

const (
	CancelActorSelf   CancelActor = "SELF"
	CancelActorAdmin  CancelActor = "ADMIN"
	CancelActorSystem CancelActor = "SYSTEM"
)

// Booking is one user's reservation against one slot. The slot reference is
// immutable after creation; rows are never physically deleted.
type Booking struct {
	ID            string        `db:"id" json:"id"`
	BookingNumber string        `db:"booking_number" json:"booking_number"`
	SlotID        string        `db:"slot_id" json:"slot_id"`
	UserID        string        `db:"user_id" json:"user_id"`
	ContactInfo   string        `db:"contact_info" json:"contact_info"`
	Status        BookingStatus `db:"status" json:"status"`
	CheckInStatus CheckInStatus `db:"check_in_status" json:"check_in_status"`
	BookedAt      time.Time     `db:"booked_at" json:"booked_at"`
	ConfirmedAt   *time.Time    `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CheckedInAt   *time.Time    `db:"checked_in_at" json:"checked_in_at,omitempty"`
	CancelReason  *string       `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CancelledBy   *CancelActor  `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// BookingFilter narrows down booking listings.
type BookingFilter struct {
	UserID   string
	SlotID   string
	Status   BookingStatus
	Page     int
	PageSize int
}

// ExpiredBooking pairs a stale pending booking with its slot deadline, as
// returned by the expiration sweep query.
type ExpiredBooking struct {
	BookingID      string    `db:"booking_id"`
	SlotID         string    `db:"slot_id"`
	UserID         string    `db:"user_id"`
	BookingEndTime time.Time `db:"booking_end_time"`
}

// FinishedBooking pairs a confirmed booking with its ended slot, as returned
// by the completion sweep query.
type FinishedBooking struct {
	BookingID     string        `db:"booking_id"`
	SlotID        string        `db:"slot_id"`
	UserID        string        `db:"user_id"`
	CheckInStatus CheckInStatus `db:"check_in_status"`
	SlotEndTime   time.Time     `db:"slot_end_time"`
}
