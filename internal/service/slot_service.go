package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/akashi1113/student-system-sub001/internal/dto"
	"github.com/akashi1113/student-system-sub001/internal/models"
	appErrors "github.com/akashi1113/student-system-sub001/pkg/errors"
)

// SlotService manages administrative slot lifecycle: creation, edits and
// explicit cancellation. The occupancy counter is off limits here; only the
// reservation transaction mutates it.
type SlotService struct {
	slots     slotRepository
	cache     *CacheService
	notifier  notificationEmitter
	bookings  slotBookingReader
	validator *validator.Validate
	logger    *zap.Logger
}

type slotRepository interface {
	Create(ctx context.Context, slot *models.TimeSlot) error
	FindByID(ctx context.Context, id string) (*models.TimeSlot, error)
	Update(ctx context.Context, slot *models.TimeSlot) error
	List(ctx context.Context, filter models.SlotFilter) ([]models.TimeSlot, int, error)
}

type slotBookingReader interface {
	ListBySlot(ctx context.Context, slotID string) ([]models.Booking, error)
}

// NewSlotService constructs SlotService.
func NewSlotService(slots slotRepository, bookings slotBookingReader, cache *CacheService, notifier notificationEmitter, validate *validator.Validate, logger *zap.Logger) *SlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{slots: slots, bookings: bookings, cache: cache, notifier: notifier, validator: validate, logger: logger}
}

// Create registers a new exam time slot.
func (s *SlotService) Create(ctx context.Context, req dto.CreateSlotRequest) (*models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}
	if !req.BookingEndTime.After(req.BookingStartTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "booking window end must be after its start")
	}
	if req.BookingEndTime.After(req.StartTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "booking window must close before slot start")
	}

	allowCancel := true
	if req.AllowCancel != nil {
		allowCancel = *req.AllowCancel
	}

	slot := &models.TimeSlot{
		ExamID:           req.ExamID,
		StartTime:        req.StartTime.UTC(),
		EndTime:          req.EndTime.UTC(),
		MaxCapacity:      req.MaxCapacity,
		CurrentBookings:  0,
		Status:           models.SlotStatusAvailable,
		BookingStartTime: req.BookingStartTime.UTC(),
		BookingEndTime:   req.BookingEndTime.UTC(),
		AllowCancel:      allowCancel,
		CancelDeadline:   req.CancelDeadline,
	}
	if err := s.slots.Create(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create slot")
	}
	return slot, nil
}

// Get returns a slot, served from cache when possible.
func (s *SlotService) Get(ctx context.Context, id string) (*models.TimeSlot, error) {
	if s.cache != nil {
		if slot, hit := s.cache.GetSlot(ctx, id); hit {
			return slot, nil
		}
	}
	slot, err := s.loadSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetSlot(ctx, slot)
	}
	return slot, nil
}

// List returns slots with pagination metadata.
func (s *SlotService) List(ctx context.Context, filter models.SlotFilter) ([]models.TimeSlot, *models.Pagination, error) {
	slots, total, err := s.slots.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return slots, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update edits a slot's schedule, capacity or cancellation policy. Capacity
// may not drop below the current occupancy, and terminal slots are frozen.
func (s *SlotService) Update(ctx context.Context, id string, req dto.UpdateSlotRequest) (*models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}

	slot, err := s.loadSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	if slot.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "slot is no longer editable")
	}

	changed := false
	if req.StartTime != nil {
		slot.StartTime = req.StartTime.UTC()
		changed = true
	}
	if req.EndTime != nil {
		slot.EndTime = req.EndTime.UTC()
		changed = true
	}
	if req.BookingStartTime != nil {
		slot.BookingStartTime = req.BookingStartTime.UTC()
		changed = true
	}
	if req.BookingEndTime != nil {
		slot.BookingEndTime = req.BookingEndTime.UTC()
		changed = true
	}
	if req.AllowCancel != nil {
		slot.AllowCancel = *req.AllowCancel
		changed = true
	}
	if req.CancelDeadline != nil {
		slot.CancelDeadline = *req.CancelDeadline
		changed = true
	}
	if req.MaxCapacity != nil {
		if *req.MaxCapacity < slot.CurrentBookings {
			return nil, appErrors.Clone(appErrors.ErrValidation, "capacity below current occupancy")
		}
		slot.MaxCapacity = *req.MaxCapacity
		// A raised capacity reopens a FULL slot; a lowered one may fill it.
		if slot.CurrentBookings == slot.MaxCapacity {
			slot.Status = models.SlotStatusFull
		} else if slot.Status == models.SlotStatusFull {
			slot.Status = models.SlotStatusAvailable
		}
		changed = true
	}
	if !slot.EndTime.After(slot.StartTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}
	if !changed {
		return slot, nil
	}

	if err := s.slots.Update(ctx, slot); err != nil {
		if appErrors.Is(err, appErrors.ErrConflict) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update slot")
	}
	s.invalidate(ctx, id)
	s.notifySlotChange(ctx, id, "Exam slot updated", "The schedule of your booked exam slot has changed.")
	return slot, nil
}

// Cancel retires a slot administratively. Active bookings are notified; their
// cancellation is handled through the booking lifecycle, not by this call.
func (s *SlotService) Cancel(ctx context.Context, id string, req dto.CancelSlotRequest) (*models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation payload")
	}

	slot, err := s.loadSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	if slot.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "slot already finalized")
	}

	slot.Status = models.SlotStatusCancelled
	if err := s.slots.Update(ctx, slot); err != nil {
		if appErrors.Is(err, appErrors.ErrConflict) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel slot")
	}
	s.invalidate(ctx, id)
	s.notifySlotChange(ctx, id, "Exam slot cancelled", "Your booked exam slot was cancelled: "+req.Reason)

	s.logger.Info("slot cancelled", zap.String("slot_id", id), zap.String("reason", req.Reason))
	return slot, nil
}

func (s *SlotService) loadSlot(ctx context.Context, id string) (*models.TimeSlot, error) {
	slot, err := s.slots.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	return slot, nil
}

func (s *SlotService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSlot(ctx, id); err != nil {
		s.logger.Warn("slot cache invalidation failed", zap.String("slot_id", id), zap.Error(err))
	}
}

func (s *SlotService) notifySlotChange(ctx context.Context, slotID, title, content string) {
	if s.notifier == nil || s.bookings == nil {
		return
	}
	bookings, err := s.bookings.ListBySlot(ctx, slotID)
	if err != nil {
		s.logger.Warn("failed to list bookings for slot notification", zap.String("slot_id", slotID), zap.Error(err))
		return
	}
	for i := range bookings {
		b := &bookings[i]
		if !b.Status.Active() {
			continue
		}
		s.notifier.Emit(ctx, b.UserID, models.NotificationExamChanged, title, content, models.PriorityHigh, b.ID)
	}
}
