package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akashi1113/student-system-sub001/internal/dto"
	"github.com/akashi1113/student-system-sub001/pkg/response"
)

type reconcileService interface {
	Reconcile(ctx context.Context) (*dto.ReconcileReport, error)
}

// ReconcileHandler lets administrators trigger an expiration sweep on demand,
// on top of the scheduled background runs.
type ReconcileHandler struct {
	service reconcileService
}

// NewReconcileHandler builds a new handler.
func NewReconcileHandler(service reconcileService) *ReconcileHandler {
	return &ReconcileHandler{service: service}
}

// Trigger godoc
// @Summary Run a reconciliation sweep now
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/reconcile [post]
func (h *ReconcileHandler) Trigger(c *gin.Context) {
	report, err := h.service.Reconcile(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
