package models

import "time"

// NotificationType classifies emitted notifications.
type NotificationType string

const (
	NotificationBookingConfirmed NotificationType = "BOOKING_CONFIRMED"
	NotificationBookingCancelled NotificationType = "BOOKING_CANCELLED"
	NotificationExamReminder     NotificationType = "EXAM_REMINDER"
	NotificationExamChanged      NotificationType = "EXAM_CHANGED"
	NotificationSystemNotice     NotificationType = "SYSTEM_NOTICE"
)

// NotificationPriority orders delivery urgency.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "LOW"
	PriorityNormal NotificationPriority = "NORMAL"
	PriorityHigh   NotificationPriority = "HIGH"
)

// SendStatus tracks dispatch progress.
type SendStatus string

const (
	SendStatusPending SendStatus = "PENDING"
	SendStatusSent    SendStatus = "SENT"
	SendStatusFailed  SendStatus = "FAILED"
)

// Notification is produced by lifecycle transitions and the reconciler.
// Delivery transport is an external concern; this core only records intent.
type Notification struct {
	ID          string               `db:"id" json:"id"`
	UserID      string               `db:"user_id" json:"user_id"`
	BookingID   *string              `db:"booking_id" json:"booking_id,omitempty"`
	Type        NotificationType     `db:"type" json:"type"`
	Title       string               `db:"title" json:"title"`
	Content     string               `db:"content" json:"content"`
	Priority    NotificationPriority `db:"priority" json:"priority"`
	ScheduledAt *time.Time           `db:"scheduled_at" json:"scheduled_at,omitempty"`
	SendStatus  SendStatus           `db:"send_status" json:"send_status"`
	SentAt      *time.Time           `db:"sent_at" json:"sent_at,omitempty"`
	ReadAt      *time.Time           `db:"read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
}
