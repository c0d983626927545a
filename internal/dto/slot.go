package dto

import "time"

// CreateSlotRequest creates a new exam time slot.
type CreateSlotRequest struct {
	ExamID           string    `json:"exam_id" validate:"required"`
	StartTime        time.Time `json:"start_time" validate:"required"`
	EndTime          time.Time `json:"end_time" validate:"required"`
	MaxCapacity      int       `json:"max_capacity" validate:"required,gt=0"`
	BookingStartTime time.Time `json:"booking_start_time" validate:"required"`
	BookingEndTime   time.Time `json:"booking_end_time" validate:"required"`
	AllowCancel      *bool     `json:"allow_cancel"`
	CancelDeadline   int       `json:"cancel_deadline_hours" validate:"gte=0"`
}

// UpdateSlotRequest edits schedule, capacity or cancellation policy.
// MaxCapacity may not drop below the current occupancy.
type UpdateSlotRequest struct {
	StartTime        *time.Time `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	MaxCapacity      *int       `json:"max_capacity" validate:"omitempty,gt=0"`
	BookingStartTime *time.Time `json:"booking_start_time"`
	BookingEndTime   *time.Time `json:"booking_end_time"`
	AllowCancel      *bool      `json:"allow_cancel"`
	CancelDeadline   *int       `json:"cancel_deadline_hours" validate:"omitempty,gte=0"`
}

// CancelSlotRequest retires a slot administratively.
type CancelSlotRequest struct {
	Reason string `json:"reason" validate:"required"`
}
