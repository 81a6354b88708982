package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/validation"
)

// messageUseCase implements MessageUseCase.
type messageUseCase struct {
	messageRepo MessageRepository
	channelRepo ChannelRepository
	validator   PayloadValidator
	logger      *slog.Logger
}

// Enqueue validates and inserts a queued message. It never calls the provider.
func (uc *messageUseCase) Enqueue(
	ctx context.Context,
	tenantID uuid.UUID,
	destination string,
	payload map[string]any,
	channelID *uuid.UUID,
) (*domain.OutboxMessage, error) {
	if !validation.IsE164(destination) {
		return nil, domain.ErrInvalidDestination
	}
	if err := uc.validator.ValidatePayload(payload); err != nil {
		return nil, apperrors.Wrap(domain.ErrInvalidPayload, err.Error())
	}

	if channelID != nil {
		channel, err := uc.channelRepo.Get(ctx, *channelID)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "channel connection not found")
			}
			return nil, apperrors.Unavailable(err)
		}
		if channel.TenantID != tenantID {
			return nil, domain.ErrChannelTenantMismatch
		}
	}

	msg := domain.NewOutboxMessage(tenantID, channelID, destination, payload, time.Now().UTC())
	if err := uc.messageRepo.Create(ctx, msg); err != nil {
		return nil, apperrors.Unavailable(err)
	}

	if uc.logger != nil {
		uc.logger.Debug("message enqueued",
			slog.String("message_id", msg.ID.String()),
			slog.String("tenant_id", tenantID.String()),
		)
	}

	return msg, nil
}

// Get returns a message with its current status and error reason.
func (uc *messageUseCase) Get(ctx context.Context, id uuid.UUID) (*domain.OutboxMessage, error) {
	return uc.messageRepo.Get(ctx, id)
}

// NewMessageUseCase creates a new MessageUseCase.
func NewMessageUseCase(
	messageRepo MessageRepository,
	channelRepo ChannelRepository,
	validator PayloadValidator,
	logger *slog.Logger,
) MessageUseCase {
	return &messageUseCase{
		messageRepo: messageRepo,
		channelRepo: channelRepo,
		validator:   validator,
		logger:      logger,
	}
}
