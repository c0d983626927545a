package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akashi1113/student-system-sub001/internal/dto"
	"github.com/akashi1113/student-system-sub001/internal/models"
	"github.com/akashi1113/student-system-sub001/internal/service"
	appErrors "github.com/akashi1113/student-system-sub001/pkg/errors"
	"github.com/akashi1113/student-system-sub001/pkg/response"
)

type slotService interface {
	Create(ctx context.Context, req dto.CreateSlotRequest) (*models.TimeSlot, error)
	Get(ctx context.Context, id string) (*models.TimeSlot, error)
	List(ctx context.Context, filter models.SlotFilter) ([]models.TimeSlot, *models.Pagination, error)
	Update(ctx context.Context, id string, req dto.UpdateSlotRequest) (*models.TimeSlot, error)
	Cancel(ctx context.Context, id string, req dto.CancelSlotRequest) (*models.TimeSlot, error)
}

type exportService interface {
	SlotRoster(ctx context.Context, slotID string, format service.ExportFormat) (*service.ExportResult, error)
}

// SlotHandler exposes slot browsing plus administrative slot management.
type SlotHandler struct {
	service slotService
	export  exportService
}

// NewSlotHandler builds a new handler.
func NewSlotHandler(service slotService, export exportService) *SlotHandler {
	return &SlotHandler{service: service, export: export}
}

// List godoc
// @Summary List exam time slots
// @Tags Slots
// @Produce json
// @Param examId query string false "Exam ID filter"
// @Param status query string false "Slot status filter"
// @Param dateFrom query string false "Start of range (RFC3339)"
// @Param dateTo query string false "End of range (RFC3339)"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /slots [get]
func (h *SlotHandler) List(c *gin.Context) {
	filter := models.SlotFilter{
		ExamID:   c.Query("examId"),
		Status:   models.SlotStatus(c.Query("status")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", 20),
	}
	if from, ok := queryTime(c, "dateFrom"); ok {
		filter.DateFrom = &from
	}
	if to, ok := queryTime(c, "dateTo"); ok {
		filter.DateTo = &to
	}
	slots, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, pagination)
}

// Get godoc
// @Summary Get a slot by ID
// @Tags Slots
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /slots/{id} [get]
func (h *SlotHandler) Get(c *gin.Context) {
	slot, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Create godoc
// @Summary Create an exam time slot
// @Tags Slots
// @Accept json
// @Produce json
// @Param payload body dto.CreateSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Router /slots [post]
func (h *SlotHandler) Create(c *gin.Context) {
	var req dto.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot payload"))
		return
	}
	slot, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// Update godoc
// @Summary Edit a slot's schedule, capacity or cancellation policy
// @Tags Slots
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body dto.UpdateSlotRequest true "Slot changes"
// @Success 200 {object} response.Envelope
// @Router /slots/{id} [put]
func (h *SlotHandler) Update(c *gin.Context) {
	var req dto.UpdateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot payload"))
		return
	}
	slot, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Cancel godoc
// @Summary Cancel a slot administratively
// @Tags Slots
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body dto.CancelSlotRequest true "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Router /slots/{id}/cancel [post]
func (h *SlotHandler) Cancel(c *gin.Context) {
	var req dto.CancelSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancellation payload"))
		return
	}
	slot, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// ExportRoster godoc
// @Summary Export the booking roster for a slot
// @Tags Slots
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Slot ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /slots/{id}/roster [get]
func (h *SlotHandler) ExportRoster(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.export.SlotRoster(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

func queryTime(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, false
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return value, true
}
