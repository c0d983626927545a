package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akashi1113/student-system-sub001/internal/models"
	appErrors "github.com/akashi1113/student-system-sub001/pkg/errors"
	"github.com/akashi1113/student-system-sub001/pkg/response"
)

type notificationService interface {
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, *models.Pagination, error)
	MarkRead(ctx context.Context, id, userID string) error
}

// NotificationHandler exposes the current user's notification feed.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler builds a new handler.
func NewNotificationHandler(service notificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List godoc
// @Summary List the current user's notifications
// @Tags Notifications
// @Produce json
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, pagination, err := h.service.ListByUser(c.Request.Context(), claims.UserID,
		queryInt(c, "page", 1), queryInt(c, "pageSize", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// MarkRead godoc
// @Summary Mark a notification as read
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 204
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
