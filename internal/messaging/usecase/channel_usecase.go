package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
)

// channelUseCase implements ChannelUseCase.
type channelUseCase struct {
	channelRepo ChannelRepository
	sealer      CredentialSealer
	logger      *slog.Logger
}

// Create seals the access token and stores a new channel connection.
func (uc *channelUseCase) Create(
	ctx context.Context,
	tenantID uuid.UUID,
	name, phoneNumberID, accessToken string,
	sendLimitPerMinute int,
) (*domain.ChannelConnection, error) {
	phoneNumberID = strings.TrimSpace(phoneNumberID)
	if phoneNumberID == "" || strings.TrimSpace(accessToken) == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "phone number id and access token are required")
	}
	if sendLimitPerMinute < 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "send limit per minute must not be negative")
	}

	ciphertext, err := uc.sealer.Seal(ctx, []byte(accessToken))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to seal access token")
	}

	now := time.Now().UTC()
	channel := &domain.ChannelConnection{
		ID:                    uuid.Must(uuid.NewV7()),
		TenantID:              tenantID,
		Name:                  strings.TrimSpace(name),
		PhoneNumberID:         phoneNumberID,
		AccessTokenCiphertext: ciphertext,
		SendLimitPerMinute:    sendLimitPerMinute,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := uc.channelRepo.Create(ctx, channel); err != nil {
		return nil, err
	}

	if uc.logger != nil {
		uc.logger.Info("channel connection created",
			slog.String("channel_id", channel.ID.String()),
			slog.String("tenant_id", tenantID.String()),
			slog.String("phone_number_id", phoneNumberID),
		)
	}

	return channel, nil
}

// Get returns a channel connection by id.
func (uc *channelUseCase) Get(ctx context.Context, id uuid.UUID) (*domain.ChannelConnection, error) {
	return uc.channelRepo.Get(ctx, id)
}

// List returns the tenant's channel connections, oldest first.
func (uc *channelUseCase) List(
	ctx context.Context,
	tenantID uuid.UUID,
	offset, limit int,
) ([]*domain.ChannelConnection, error) {
	return uc.channelRepo.ListByTenant(ctx, tenantID, offset, limit)
}

// NewChannelUseCase creates a new ChannelUseCase.
func NewChannelUseCase(
	channelRepo ChannelRepository,
	sealer CredentialSealer,
	logger *slog.Logger,
) ChannelUseCase {
	return &channelUseCase{
		channelRepo: channelRepo,
		sealer:      sealer,
		logger:      logger,
	}
}
