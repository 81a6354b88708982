package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allisson/courier/internal/httputil"
	"github.com/allisson/courier/internal/messaging/http/dto"
	"github.com/allisson/courier/internal/messaging/usecase"
	"github.com/allisson/courier/internal/provider"
)

// WebhookConfig holds the webhook ingress settings.
type WebhookConfig struct {
	VerifyToken    string
	AppSecret      string
	ProcessTimeout time.Duration
	MaxBodyBytes   int64
}

// WebhookHandler receives provider callbacks.
type WebhookHandler struct {
	config        WebhookConfig
	ingestUseCase usecase.IngestUseCase
	logger        *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(config WebhookConfig, ingestUseCase usecase.IngestUseCase, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		config:        config,
		ingestUseCase: ingestUseCase,
		logger:        logger,
	}
}

// VerifyHandler answers the provider subscription handshake.
// GET /v1/webhooks/provider?hub.mode=subscribe&hub.verify_token=&hub.challenge= - Returns the challenge.
func (h *WebhookHandler) VerifyHandler(c *gin.Context) {
	challenge, err := provider.VerifyHandshake(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
		h.config.VerifyToken,
	)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("webhook handshake rejected", slog.String("mode", c.Query("hub.mode")))
		}
		c.JSON(http.StatusForbidden, httputil.ErrorResponse{
			Error:   "forbidden",
			Message: err.Error(),
		})
		return
	}

	c.String(http.StatusOK, challenge)
}

// ReceiveHandler verifies the delivery signature and ingests every callback it carries.
// POST /v1/webhooks/provider - Returns 200 OK once the signature is valid, even when
// callbacks could not be applied; those stay unprocessed for reconciliation.
func (h *WebhookHandler) ReceiveHandler(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes()))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, httputil.ErrorResponse{
			Error:   "payload_too_large",
			Message: err.Error(),
		})
		return
	}

	if err := provider.VerifySignature(h.config.AppSecret, body, c.GetHeader(provider.SignatureHeader)); err != nil {
		if h.logger != nil {
			h.logger.Warn("webhook signature rejected", slog.Any("error", err))
		}
		c.JSON(http.StatusUnauthorized, httputil.ErrorResponse{
			Error:   "unauthorized",
			Message: err.Error(),
		})
		return
	}

	docs, err := provider.SplitEnvelope(body)
	if err != nil || len(docs) == 0 {
		// Stored as a malformed event so the delivery is not lost.
		docs = [][]byte{body}
	}

	ctx := c.Request.Context()
	if h.config.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.ProcessTimeout)
		defer cancel()
	}

	response := dto.WebhookResponse{Received: len(docs)}
	for _, doc := range docs {
		result, err := h.ingestUseCase.Ingest(ctx, doc)
		if err != nil {
			response.Retained++
			if h.logger != nil {
				h.logger.Error("failed to ingest webhook event", slog.Any("error", err))
			}
			continue
		}
		switch {
		case result.Duplicate:
			response.Duplicates++
		case result.Processed:
			response.Processed++
		default:
			response.Retained++
		}
	}

	c.JSON(http.StatusOK, response)
}

func (h *WebhookHandler) maxBodyBytes() int64 {
	if h.config.MaxBodyBytes > 0 {
		return h.config.MaxBodyBytes
	}
	return 1 << 20
}
