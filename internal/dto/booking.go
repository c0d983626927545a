package dto

import "time"

// ReserveRequest asks for a seat in a slot.
type ReserveRequest struct {
	SlotID      string `json:"slot_id" validate:"required"`
	ContactInfo string `json:"contact_info" validate:"required"`
}

// CancelBookingRequest cancels a booking. Reason is mandatory for
// administrator cancellations and optional for self-service ones.
type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

// CheckInRequest records attendance for a confirmed booking. ObservedTime
// defaults to the server clock when omitted.
type CheckInRequest struct {
	ObservedTime *time.Time `json:"observed_time"`
}

// ReconcileReport summarises one expiration sweep.
type ReconcileReport struct {
	Cancelled   int `json:"cancelled"`
	Completed   int `json:"completed"`
	NoShow      int `json:"no_show"`
	SlotsClosed int `json:"slots_closed"`
	Pruned      int `json:"pruned"`
}
