package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/courier/internal/httputil"
	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/messaging/http/dto"
	"github.com/allisson/courier/internal/messaging/usecase"
	customValidation "github.com/allisson/courier/internal/validation"
)

// JobHandler handles HTTP requests for bulk send jobs.
type JobHandler struct {
	jobUseCase usecase.JobUseCase
	logger     *slog.Logger
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobUseCase usecase.JobUseCase, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		jobUseCase: jobUseCase,
		logger:     logger,
	}
}

// CreateHandler creates a job and its items in one transaction.
// POST /v1/jobs - Returns 201 Created with the job counters.
func (h *JobHandler) CreateHandler(c *gin.Context) {
	var req dto.CreateJobRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	input, err := req.ToInput()
	if err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	job, err := h.jobUseCase.Create(c.Request.Context(), input)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapJobResponse(job))
}

// GetHandler returns a job with its counters.
// GET /v1/jobs/:id - Returns 200 OK.
func (h *JobHandler) GetHandler(c *gin.Context) {
	id, err := httputil.ParseUUIDParam(c, "id")
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	job, err := h.jobUseCase.Get(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapJobResponse(job))
}

// ListItemsHandler pages through a job's items, optionally filtered by status.
// GET /v1/jobs/:id/items?status=&offset=&limit= - Returns 200 OK.
func (h *JobHandler) ListItemsHandler(c *gin.Context) {
	id, err := httputil.ParseUUIDParam(c, "id")
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	var status *domain.DeliveryStatus
	if raw := c.Query("status"); raw != "" {
		s := domain.DeliveryStatus(raw)
		if !s.Valid() {
			httputil.HandleBadRequestGin(c, fmt.Errorf("invalid status parameter: %q", raw), h.logger)
			return
		}
		status = &s
	}

	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	items, total, err := h.jobUseCase.ListItems(c.Request.Context(), id, status, offset, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapListJobItemsResponse(items, offset, limit, total))
}

// StartHandler moves a draft job to queued.
// POST /v1/jobs/:id/start - Returns 200 OK.
func (h *JobHandler) StartHandler(c *gin.Context) {
	h.transition(c, h.jobUseCase.Start)
}

// CancelHandler cancels an unfinished job. Its queued items are no longer claimed.
// POST /v1/jobs/:id/cancel - Returns 200 OK.
func (h *JobHandler) CancelHandler(c *gin.Context) {
	h.transition(c, h.jobUseCase.Cancel)
}

func (h *JobHandler) transition(
	c *gin.Context,
	fn func(ctx context.Context, id uuid.UUID) (*domain.SendJob, error),
) {
	id, err := httputil.ParseUUIDParam(c, "id")
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	job, err := fn(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapJobResponse(job))
}
