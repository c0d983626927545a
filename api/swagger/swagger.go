package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Exam Booking API",
        "description": "Capacity-constrained exam time-slot reservation engine",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Slots", "description": "Exam time-slot browsing and administration"},
        {"name": "Bookings", "description": "Reservation lifecycle"},
        {"name": "Notifications", "description": "Per-user notification feed"},
        {"name": "Admin", "description": "Operational endpoints"}
    ],
    "paths": {
        "/slots": {
            "get": {
                "tags": ["Slots"],
                "summary": "List exam time slots",
                "parameters": [
                    {"name": "examId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["AVAILABLE", "FULL", "CANCELLED", "COMPLETED"]},
                    {"name": "dateFrom", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "dateTo", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Slots"],
                "summary": "Create an exam time slot (admin)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSlotRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/slots/{id}": {
            "get": {
                "tags": ["Slots"],
                "summary": "Get a slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found"}
                }
            },
            "put": {
                "tags": ["Slots"],
                "summary": "Edit a slot (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateSlotRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/slots/{id}/cancel": {
            "post": {
                "tags": ["Slots"],
                "summary": "Cancel a slot administratively (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CancelSlotRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot already finalized"}
                }
            }
        },
        "/slots/{id}/roster": {
            "get": {
                "tags": ["Slots"],
                "summary": "Export the booking roster for a slot (admin)",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"], "default": "csv"}
                ],
                "responses": {
                    "200": {"description": "Roster file"}
                }
            }
        },
        "/bookings": {
            "get": {
                "tags": ["Bookings"],
                "summary": "List bookings (students see their own)",
                "parameters": [
                    {"name": "slotId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["BOOKED", "CONFIRMED", "CANCELLED", "COMPLETED", "NO_SHOW"]},
                    {"name": "userId", "in": "query", "type": "string", "description": "Admin only"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Bookings"],
                "summary": "Reserve a seat in a slot",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReserveRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot full or duplicate active booking"},
                    "422": {"description": "Outside booking window"},
                    "503": {"description": "Slot busy, retry later"}
                }
            }
        },
        "/bookings/{id}": {
            "get": {
                "tags": ["Bookings"],
                "summary": "Get a booking",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the booking owner"}
                }
            }
        },
        "/bookings/{id}/confirm": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Confirm a booked reservation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Not in BOOKED status"}
                }
            }
        },
        "/bookings/{id}/cancel": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Cancel a booking and release its seat",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/CancelBookingRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Past the cancellation deadline"}
                }
            }
        },
        "/bookings/{id}/check-in": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Record attendance for a confirmed booking",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/CheckInRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Outside check-in window"}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List the current user's notifications",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications/{id}/read": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Mark a notification as read",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/admin/reconcile": {
            "post": {
                "tags": ["Admin"],
                "summary": "Run a reconciliation sweep now (admin)",
                "responses": {
                    "200": {"description": "Sweep report", "schema": {"$ref": "#/definitions/ReconcileReport"}}
                }
            }
        }
    },
    "definitions": {
        "TimeSlot": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "exam_id": {"type": "string"},
                "start_time": {"type": "string", "format": "date-time"},
                "end_time": {"type": "string", "format": "date-time"},
                "max_capacity": {"type": "integer"},
                "current_bookings": {"type": "integer"},
                "status": {"type": "string", "enum": ["AVAILABLE", "FULL", "CANCELLED", "COMPLETED"]},
                "booking_start_time": {"type": "string", "format": "date-time"},
                "booking_end_time": {"type": "string", "format": "date-time"},
                "allow_cancel": {"type": "boolean"},
                "cancel_deadline_hours": {"type": "integer"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "Booking": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "booking_number": {"type": "string"},
                "slot_id": {"type": "string"},
                "user_id": {"type": "string"},
                "contact_info": {"type": "string"},
                "status": {"type": "string", "enum": ["BOOKED", "CONFIRMED", "CANCELLED", "COMPLETED", "NO_SHOW"]},
                "check_in_status": {"type": "string", "enum": ["NOT_CHECKED", "CHECKED_IN", "LATE", "ABSENT"]},
                "booked_at": {"type": "string", "format": "date-time"},
                "confirmed_at": {"type": "string", "format": "date-time"},
                "cancelled_at": {"type": "string", "format": "date-time"},
                "checked_in_at": {"type": "string", "format": "date-time"},
                "cancel_reason": {"type": "string"},
                "cancelled_by": {"type": "string", "enum": ["SELF", "ADMIN", "SYSTEM"]}
            }
        },
        "CreateSlotRequest": {
            "type": "object",
            "properties": {
                "exam_id": {"type": "string"},
                "start_time": {"type": "string", "format": "date-time"},
                "end_time": {"type": "string", "format": "date-time"},
                "max_capacity": {"type": "integer"},
                "booking_start_time": {"type": "string", "format": "date-time"},
                "booking_end_time": {"type": "string", "format": "date-time"},
                "allow_cancel": {"type": "boolean"},
                "cancel_deadline_hours": {"type": "integer"}
            },
            "required": ["exam_id", "start_time", "end_time", "max_capacity", "booking_start_time", "booking_end_time"]
        },
        "UpdateSlotRequest": {
            "type": "object",
            "properties": {
                "start_time": {"type": "string", "format": "date-time"},
                "end_time": {"type": "string", "format": "date-time"},
                "max_capacity": {"type": "integer"},
                "booking_start_time": {"type": "string", "format": "date-time"},
                "booking_end_time": {"type": "string", "format": "date-time"},
                "allow_cancel": {"type": "boolean"},
                "cancel_deadline_hours": {"type": "integer"}
            }
        },
        "CancelSlotRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            },
            "required": ["reason"]
        },
        "ReserveRequest": {
            "type": "object",
            "properties": {
                "slot_id": {"type": "string"},
                "contact_info": {"type": "string"}
            },
            "required": ["slot_id", "contact_info"]
        },
        "CancelBookingRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "CheckInRequest": {
            "type": "object",
            "properties": {
                "observed_time": {"type": "string", "format": "date-time"}
            }
        },
        "ReconcileReport": {
            "type": "object",
            "properties": {
                "cancelled": {"type": "integer"},
                "completed": {"type": "integer"},
                "no_show": {"type": "integer"},
                "slots_closed": {"type": "integer"},
                "pruned": {"type": "integer"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
