package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/courier/internal/httputil"
	"github.com/allisson/courier/internal/messaging/http/dto"
	"github.com/allisson/courier/internal/messaging/usecase"
	customValidation "github.com/allisson/courier/internal/validation"
)

// ChannelHandler handles HTTP requests for channel connections.
type ChannelHandler struct {
	channelUseCase usecase.ChannelUseCase
	logger         *slog.Logger
}

// NewChannelHandler creates a new channel handler.
func NewChannelHandler(channelUseCase usecase.ChannelUseCase, logger *slog.Logger) *ChannelHandler {
	return &ChannelHandler{
		channelUseCase: channelUseCase,
		logger:         logger,
	}
}

// CreateHandler connects a provider account and seals its access token.
// POST /v1/channels - Returns 201 Created.
func (h *ChannelHandler) CreateHandler(c *gin.Context) {
	var req dto.CreateChannelRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	channel, err := h.channelUseCase.Create(
		c.Request.Context(),
		uuid.MustParse(req.TenantID),
		req.Name,
		req.PhoneNumberID,
		req.AccessToken,
		req.SendLimitPerMinute,
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapChannelResponse(channel))
}

// GetHandler returns one channel connection.
// GET /v1/channels/:id - Returns 200 OK.
func (h *ChannelHandler) GetHandler(c *gin.Context) {
	id, err := httputil.ParseUUIDParam(c, "id")
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	channel, err := h.channelUseCase.Get(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapChannelResponse(channel))
}

// ListHandler lists a tenant's channel connections.
// GET /v1/channels?tenant_id=&offset=&limit= - Returns 200 OK.
func (h *ChannelHandler) ListHandler(c *gin.Context) {
	tenantID, err := httputil.ParseOptionalUUIDQuery(c, "tenant_id")
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if tenantID == nil {
		httputil.HandleBadRequestGin(c, errors.New("tenant_id parameter is required"), h.logger)
		return
	}

	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	channels, err := h.channelUseCase.List(c.Request.Context(), *tenantID, offset, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapListChannelsResponse(channels))
}
