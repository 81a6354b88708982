package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/messaging/usecase/mocks"
)

func TestChannelUseCase_Create(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.Must(uuid.NewV7())

	t.Run("Success_SealsToken", func(t *testing.T) {
		channelRepo := mocks.NewMockChannelRepository(t)
		sealer := mocks.NewMockCredentialSealer(t)

		sealer.On("Seal", ctx, []byte("EAAG-token")).Return([]byte("sealed"), nil).Once()
		channelRepo.On("Create", ctx, mock.MatchedBy(func(c *domain.ChannelConnection) bool {
			return string(c.AccessTokenCiphertext) == "sealed" && c.PhoneNumberID == "1065"
		})).Return(nil).Once()

		uc := NewChannelUseCase(channelRepo, sealer, nil)
		channel, err := uc.Create(ctx, tenantID, " Support ", "1065", "EAAG-token", 80)

		require.NoError(t, err)
		assert.Equal(t, "Support", channel.Name)
		assert.Equal(t, tenantID, channel.TenantID)
		assert.Equal(t, 80, channel.SendLimitPerMinute)
	})

	t.Run("Error_MissingToken", func(t *testing.T) {
		uc := NewChannelUseCase(mocks.NewMockChannelRepository(t), mocks.NewMockCredentialSealer(t), nil)

		_, err := uc.Create(ctx, tenantID, "Support", "1065", "  ", 80)

		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_NegativeLimit", func(t *testing.T) {
		uc := NewChannelUseCase(mocks.NewMockChannelRepository(t), mocks.NewMockCredentialSealer(t), nil)

		_, err := uc.Create(ctx, tenantID, "Support", "1065", "token", -1)

		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_SealFails", func(t *testing.T) {
		sealer := mocks.NewMockCredentialSealer(t)
		sealer.On("Seal", ctx, []byte("token")).Return(nil, errors.New("keeper closed")).Once()

		uc := NewChannelUseCase(mocks.NewMockChannelRepository(t), sealer, nil)
		_, err := uc.Create(ctx, tenantID, "Support", "1065", "token", 0)

		assert.ErrorContains(t, err, "failed to seal access token")
	})

	t.Run("Error_PhoneNumberInUse", func(t *testing.T) {
		channelRepo := mocks.NewMockChannelRepository(t)
		sealer := mocks.NewMockCredentialSealer(t)

		sealer.On("Seal", ctx, []byte("token")).Return([]byte("sealed"), nil).Once()
		channelRepo.On("Create", ctx, mock.Anything).Return(domain.ErrPhoneNumberInUse).Once()

		uc := NewChannelUseCase(channelRepo, sealer, nil)
		_, err := uc.Create(ctx, tenantID, "Support", "1065", "token", 0)

		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})
}

func TestChannelUseCase_List(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.Must(uuid.NewV7())

	channelRepo := mocks.NewMockChannelRepository(t)
	expected := []*domain.ChannelConnection{{ID: uuid.Must(uuid.NewV7()), TenantID: tenantID}}
	channelRepo.On("ListByTenant", ctx, tenantID, 0, 50).Return(expected, nil).Once()

	uc := NewChannelUseCase(channelRepo, mocks.NewMockCredentialSealer(t), nil)
	channels, err := uc.List(ctx, tenantID, 0, 50)

	require.NoError(t, err)
	assert.Equal(t, expected, channels)
}
