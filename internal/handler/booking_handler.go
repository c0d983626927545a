package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akashi1113/student-system-sub001/internal/dto"
	"github.com/akashi1113/student-system-sub001/internal/models"
	appErrors "github.com/akashi1113/student-system-sub001/pkg/errors"
	"github.com/akashi1113/student-system-sub001/pkg/response"
)

type bookingService interface {
	Reserve(ctx context.Context, claims *models.JWTClaims, req dto.ReserveRequest) (*models.Booking, error)
	Confirm(ctx context.Context, bookingID string, claims *models.JWTClaims) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID string, claims *models.JWTClaims, reason string) (*models.Booking, error)
	CheckIn(ctx context.Context, bookingID string, claims *models.JWTClaims, observed *time.Time) (*models.Booking, error)
	Get(ctx context.Context, bookingID string, claims *models.JWTClaims) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, *models.Pagination, error)
}

// BookingHandler exposes the booking lifecycle endpoints.
type BookingHandler struct {
	service bookingService
}

// NewBookingHandler builds a new handler.
func NewBookingHandler(service bookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

// Reserve godoc
// @Summary Reserve a seat in a slot
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body dto.ReserveRequest true "Reservation payload"
// @Success 201 {object} response.Envelope
// @Router /bookings [post]
func (h *BookingHandler) Reserve(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reservation payload"))
		return
	}
	booking, err := h.service.Reserve(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// Confirm godoc
// @Summary Confirm a booked reservation
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/confirm [post]
func (h *BookingHandler) Confirm(c *gin.Context) {
	booking, err := h.service.Confirm(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Cancel godoc
// @Summary Cancel a booking and release its seat
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.CancelBookingRequest false "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.CancelBookingRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancellation payload"))
			return
		}
	}
	booking, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// CheckIn godoc
// @Summary Record attendance for a confirmed booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.CheckInRequest false "Observed check-in time"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/check-in [post]
func (h *BookingHandler) CheckIn(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.CheckInRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid check-in payload"))
			return
		}
	}
	booking, err := h.service.CheckIn(c.Request.Context(), c.Param("id"), claims, req.ObservedTime)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Get godoc
// @Summary Get a booking by ID
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	booking, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// List godoc
// @Summary List bookings
// @Tags Bookings
// @Produce json
// @Param slotId query string false "Slot ID filter"
// @Param status query string false "Booking status filter"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /bookings [get]
func (h *BookingHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	filter := models.BookingFilter{
		SlotID:   c.Query("slotId"),
		Status:   models.BookingStatus(c.Query("status")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", 20),
	}
	// Students only see their own bookings; admins may filter by user.
	if claims != nil && claims.Role == models.RoleAdmin {
		filter.UserID = c.Query("userId")
	} else if claims != nil {
		filter.UserID = claims.UserID
	}
	bookings, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, pagination)
}
