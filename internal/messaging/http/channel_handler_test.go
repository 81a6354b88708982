package http

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/messaging/http/dto"
	"github.com/allisson/courier/internal/messaging/usecase/mocks"
)

func setupTestChannelHandler(t *testing.T) (*ChannelHandler, *mocks.MockChannelUseCase) {
	t.Helper()
	mockUseCase := mocks.NewMockChannelUseCase(t)
	return NewChannelHandler(mockUseCase, testLogger), mockUseCase
}

func testChannel(tenantID uuid.UUID) *domain.ChannelConnection {
	now := time.Now().UTC()
	return &domain.ChannelConnection{
		ID:                    uuid.Must(uuid.NewV7()),
		TenantID:              tenantID,
		Name:                  "support line",
		PhoneNumberID:         "1065",
		AccessTokenCiphertext: []byte("sealed"),
		SendLimitPerMinute:    600,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func TestChannelHandler_CreateHandler(t *testing.T) {
	tenantID := uuid.Must(uuid.NewV7())

	t.Run("Success", func(t *testing.T) {
		handler, mockUseCase := setupTestChannelHandler(t)
		channel := testChannel(tenantID)

		mockUseCase.On("Create", mock.Anything, tenantID, "support line", "1065", "EAAG-token", 600).
			Return(channel, nil).
			Once()

		c, w := createTestContext(http.MethodPost, "/v1/channels", dto.CreateChannelRequest{
			TenantID:           tenantID.String(),
			Name:               "support line",
			PhoneNumberID:      "1065",
			AccessToken:        "EAAG-token",
			SendLimitPerMinute: 600,
		})

		handler.CreateHandler(c)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.NotContains(t, w.Body.String(), "sealed")
		assert.NotContains(t, w.Body.String(), "EAAG-token")
		var response dto.ChannelResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, channel.ID.String(), response.ID)
		assert.Equal(t, 600, response.SendLimitPerMinute)
	})

	t.Run("Error_PhoneNumberInUse", func(t *testing.T) {
		handler, mockUseCase := setupTestChannelHandler(t)
		mockUseCase.On("Create", mock.Anything, tenantID, "support line", "1065", "EAAG-token", 0).
			Return(nil, domain.ErrPhoneNumberInUse).
			Once()

		c, w := createTestContext(http.MethodPost, "/v1/channels", dto.CreateChannelRequest{
			TenantID:      tenantID.String(),
			Name:          "support line",
			PhoneNumberID: "1065",
			AccessToken:   "EAAG-token",
		})

		handler.CreateHandler(c)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Error_MissingToken", func(t *testing.T) {
		handler, _ := setupTestChannelHandler(t)
		c, w := createTestContext(http.MethodPost, "/v1/channels", dto.CreateChannelRequest{
			TenantID:      tenantID.String(),
			Name:          "support line",
			PhoneNumberID: "1065",
		})

		handler.CreateHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestChannelHandler_GetAndList(t *testing.T) {
	tenantID := uuid.Must(uuid.NewV7())

	t.Run("Get", func(t *testing.T) {
		handler, mockUseCase := setupTestChannelHandler(t)
		channel := testChannel(tenantID)
		mockUseCase.On("Get", mock.Anything, channel.ID).Return(channel, nil).Once()

		c, w := createTestContext(http.MethodGet, "/v1/channels/"+channel.ID.String(), nil)
		c.Params = gin.Params{{Key: "id", Value: channel.ID.String()}}

		handler.GetHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("List", func(t *testing.T) {
		handler, mockUseCase := setupTestChannelHandler(t)
		channels := []*domain.ChannelConnection{testChannel(tenantID), testChannel(tenantID)}
		mockUseCase.On("List", mock.Anything, tenantID, 0, 50).Return(channels, nil).Once()

		c, w := createTestContext(http.MethodGet, "/v1/channels?tenant_id="+tenantID.String(), nil)

		handler.ListHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var response dto.ListChannelsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Len(t, response.Data, 2)
	})

	t.Run("List_RequiresTenant", func(t *testing.T) {
		handler, _ := setupTestChannelHandler(t)
		c, w := createTestContext(http.MethodGet, "/v1/channels", nil)

		handler.ListHandler(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
