package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/courier/internal/httputil"
	"github.com/allisson/courier/internal/messaging/http/dto"
	"github.com/allisson/courier/internal/messaging/usecase"
	customValidation "github.com/allisson/courier/internal/validation"
)

// QueueHandler serves queue health and on-demand reconciliation.
type QueueHandler struct {
	healthUseCase    usecase.HealthUseCase
	reconcileUseCase usecase.ReconcileUseCase
	reconcileLimit   int
	logger           *slog.Logger
}

// NewQueueHandler creates a new queue handler. reconcileLimit is used when a
// reconcile request does not set one.
func NewQueueHandler(
	healthUseCase usecase.HealthUseCase,
	reconcileUseCase usecase.ReconcileUseCase,
	reconcileLimit int,
	logger *slog.Logger,
) *QueueHandler {
	return &QueueHandler{
		healthUseCase:    healthUseCase,
		reconcileUseCase: reconcileUseCase,
		reconcileLimit:   reconcileLimit,
		logger:           logger,
	}
}

// HealthHandler reports queue depth and the age of the oldest queued unit.
// GET /v1/queue/health - Returns 200 OK, or 503 Service Unavailable when unhealthy.
func (h *QueueHandler) HealthHandler(c *gin.Context) {
	summary, err := h.healthUseCase.Summary(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	status := http.StatusOK
	if !summary.OK {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, dto.MapQueueHealthResponse(summary))
}

// ReconcileHandler runs one reconciliation pass.
// POST /v1/reconcile - Returns 200 OK with the pass counters.
func (h *QueueHandler) ReconcileHandler(c *gin.Context) {
	var req dto.ReconcileRequest

	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.HandleBadRequestGin(c, err, h.logger)
			return
		}
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	limit := req.Limit
	if limit == 0 {
		limit = h.reconcileLimit
	}

	result, err := h.reconcileUseCase.Reconcile(c.Request.Context(), dto.ParseOptionalUUID(req.TenantID), limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapReconcileResponse(result))
}
