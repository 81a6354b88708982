package commands

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/messaging/usecase/mocks"
)

func TestRunReconcile(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	result := &domain.ReconcileResult{
		ScannedEvents:      4,
		ReconciledEvents:   3,
		ReconciledMessages: 2,
		ReconciledThreads:  1,
		Remaining:          1,
	}

	t.Run("text-output", func(t *testing.T) {
		mockUseCase := mocks.NewMockReconcileUseCase(t)
		mockUseCase.On("Reconcile", ctx, (*uuid.UUID)(nil), 100).Return(result, nil)

		var out bytes.Buffer
		err := RunReconcile(ctx, mockUseCase, logger, &out, "", 100, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "Scanned 4 event(s), reconciled 3 event(s) (2 message(s), 1 thread(s)), 1 remaining")
		require.NotContains(t, out.String(), "time limit")
	})

	t.Run("json-output-with-tenant", func(t *testing.T) {
		tenantID := uuid.New()
		mockUseCase := mocks.NewMockReconcileUseCase(t)
		mockUseCase.On("Reconcile", ctx, mock.MatchedBy(func(id *uuid.UUID) bool {
			return id != nil && *id == tenantID
		}), 10).Return(&domain.ReconcileResult{ScannedEvents: 10, Remaining: 5, TimedOut: true}, nil)

		var out bytes.Buffer
		err := RunReconcile(ctx, mockUseCase, logger, &out, tenantID.String(), 10, "json")

		require.NoError(t, err)
		require.Contains(t, out.String(), `"scanned_events": 10`)
		require.Contains(t, out.String(), `"timed_out": true`)
	})

	t.Run("timed-out-text", func(t *testing.T) {
		mockUseCase := mocks.NewMockReconcileUseCase(t)
		mockUseCase.On("Reconcile", ctx, (*uuid.UUID)(nil), 10).
			Return(&domain.ReconcileResult{TimedOut: true}, nil)

		var out bytes.Buffer
		require.NoError(t, RunReconcile(ctx, mockUseCase, logger, &out, "", 10, "text"))
		require.Contains(t, out.String(), "stopped at its time limit")
	})

	t.Run("use-case-error", func(t *testing.T) {
		mockUseCase := mocks.NewMockReconcileUseCase(t)
		mockUseCase.On("Reconcile", ctx, (*uuid.UUID)(nil), 10).Return(nil, errors.New("boom"))

		err := RunReconcile(ctx, mockUseCase, logger, &bytes.Buffer{}, "", 10, "text")
		require.ErrorContains(t, err, "failed to reconcile")
	})

	t.Run("invalid-tenant", func(t *testing.T) {
		mockUseCase := mocks.NewMockReconcileUseCase(t)
		err := RunReconcile(ctx, mockUseCase, logger, &bytes.Buffer{}, "not-a-uuid", 10, "text")
		require.ErrorContains(t, err, "invalid tenant-id")
	})

	t.Run("invalid-limit", func(t *testing.T) {
		mockUseCase := mocks.NewMockReconcileUseCase(t)
		err := RunReconcile(ctx, mockUseCase, logger, &bytes.Buffer{}, "", 0, "text")
		require.ErrorContains(t, err, "limit must be a positive number")
	})
}
