package http

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/messaging/http/dto"
	"github.com/allisson/courier/internal/messaging/usecase/mocks"
)

func setupTestQueueHandler(t *testing.T) (*QueueHandler, *mocks.MockHealthUseCase, *mocks.MockReconcileUseCase) {
	t.Helper()
	health := mocks.NewMockHealthUseCase(t)
	reconcile := mocks.NewMockReconcileUseCase(t)
	return NewQueueHandler(health, reconcile, 100, testLogger), health, reconcile
}

func TestQueueHandler_HealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		summary    *domain.QueueSummary
		statusCode int
	}{
		{
			name:       "Healthy",
			summary:    &domain.QueueSummary{QueuedCount: 3, Status: domain.QueueHealthy, OK: true},
			statusCode: http.StatusOK,
		},
		{
			name: "Degraded",
			summary: &domain.QueueSummary{
				QueuedCount:            40,
				OldestQueuedAgeSeconds: 360,
				Status:                 domain.QueueDegraded,
				OK:                     true,
			},
			statusCode: http.StatusOK,
		},
		{
			name: "Unhealthy",
			summary: &domain.QueueSummary{
				QueuedCount:            900,
				ProcessingCount:        10,
				FailedCount:            4,
				OldestQueuedAgeSeconds: 1200,
				Status:                 domain.QueueUnhealthy,
			},
			statusCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, health, _ := setupTestQueueHandler(t)
			health.On("Summary", mock.Anything).Return(tt.summary, nil).Once()

			c, w := createTestContext(http.MethodGet, "/v1/queue/health", nil)

			handler.HealthHandler(c)

			assert.Equal(t, tt.statusCode, w.Code)
			var response dto.QueueHealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.summary.OK, response.OK)
			assert.Equal(t, string(tt.summary.Status), response.Status)
			assert.Equal(t, tt.summary.OldestQueuedAgeSeconds, response.OldestQueuedAgeSeconds)
		})
	}

	t.Run("StoreError", func(t *testing.T) {
		handler, health, _ := setupTestQueueHandler(t)
		health.On("Summary", mock.Anything).Return(nil, apperrors.Unavailable(assert.AnError)).Once()

		c, w := createTestContext(http.MethodGet, "/v1/queue/health", nil)

		handler.HealthHandler(c)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestQueueHandler_ReconcileHandler(t *testing.T) {
	t.Run("DefaultLimitWithoutBody", func(t *testing.T) {
		handler, _, reconcile := setupTestQueueHandler(t)
		reconcile.On("Reconcile", mock.Anything, (*uuid.UUID)(nil), 100).
			Return(&domain.ReconcileResult{ScannedEvents: 2, ReconciledEvents: 2, ReconciledMessages: 1}, nil).
			Once()

		c, w := createTestContext(http.MethodPost, "/v1/reconcile", nil)

		handler.ReconcileHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var response dto.ReconcileResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 2, response.ReconciledEvents)
		assert.Equal(t, 1, response.ReconciledMessages)
	})

	t.Run("TenantAndLimit", func(t *testing.T) {
		handler, _, reconcile := setupTestQueueHandler(t)
		tenantID := uuid.Must(uuid.NewV7())
		raw := tenantID.String()
		reconcile.On("Reconcile", mock.Anything, &tenantID, 10).
			Return(&domain.ReconcileResult{Remaining: 5, TimedOut: true}, nil).
			Once()

		c, w := createTestContext(http.MethodPost, "/v1/reconcile", dto.ReconcileRequest{TenantID: &raw, Limit: 10})

		handler.ReconcileHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"timed_out":true`)
	})

	t.Run("InvalidTenant", func(t *testing.T) {
		handler, _, _ := setupTestQueueHandler(t)
		raw := "tenant-1"

		c, w := createTestContext(http.MethodPost, "/v1/reconcile", dto.ReconcileRequest{TenantID: &raw})

		handler.ReconcileHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}
