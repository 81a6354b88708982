// Package http provides HTTP handlers for the delivery API, provider webhooks and queue operations.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/courier/internal/httputil"
	"github.com/allisson/courier/internal/messaging/http/dto"
	"github.com/allisson/courier/internal/messaging/usecase"
	customValidation "github.com/allisson/courier/internal/validation"
)

// MessageHandler handles HTTP requests for single outbound messages.
type MessageHandler struct {
	messageUseCase usecase.MessageUseCase
	logger         *slog.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(messageUseCase usecase.MessageUseCase, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		messageUseCase: messageUseCase,
		logger:         logger,
	}
}

// EnqueueHandler accepts a message for asynchronous delivery.
// POST /v1/messages - Returns 202 Accepted with the message id and status.
func (h *MessageHandler) EnqueueHandler(c *gin.Context) {
	var req dto.EnqueueMessageRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	msg, err := h.messageUseCase.Enqueue(
		c.Request.Context(),
		uuid.MustParse(req.TenantID),
		req.Destination,
		req.Payload,
		dto.ParseOptionalUUID(req.ChannelID),
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, dto.MapEnqueueResponse(msg))
}

// GetHandler returns a message with its delivery status.
// GET /v1/messages/:id - Returns 200 OK.
func (h *MessageHandler) GetHandler(c *gin.Context) {
	id, err := httputil.ParseUUIDParam(c, "id")
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	msg, err := h.messageUseCase.Get(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapMessageResponse(msg))
}
