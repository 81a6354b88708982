package commands

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/messaging/usecase/mocks"
)

func TestRunQueueHealth(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("healthy-text", func(t *testing.T) {
		mockUseCase := mocks.NewMockHealthUseCase(t)
		mockUseCase.On("Summary", ctx).Return(&domain.QueueSummary{
			QueuedCount:            12,
			ProcessingCount:        3,
			OldestQueuedAgeSeconds: 42,
			Status:                 domain.QueueHealthy,
			OK:                     true,
		}, nil)

		var out bytes.Buffer
		err := RunQueueHealth(ctx, mockUseCase, logger, &out, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "Status: healthy")
		require.Contains(t, out.String(), "Queued: 12")
		require.Contains(t, out.String(), "Oldest queued age: 42s")
	})

	t.Run("unhealthy-json", func(t *testing.T) {
		mockUseCase := mocks.NewMockHealthUseCase(t)
		mockUseCase.On("Summary", ctx).Return(&domain.QueueSummary{
			QueuedCount:            900,
			OldestQueuedAgeSeconds: 3600,
			Status:                 domain.QueueUnhealthy,
		}, nil)

		var out bytes.Buffer
		err := RunQueueHealth(ctx, mockUseCase, logger, &out, "json")

		require.ErrorIs(t, err, ErrQueueUnhealthy)
		require.Contains(t, out.String(), `"status": "unhealthy"`)
		require.Contains(t, out.String(), `"ok": false`)
	})

	t.Run("use-case-error", func(t *testing.T) {
		mockUseCase := mocks.NewMockHealthUseCase(t)
		mockUseCase.On("Summary", ctx).Return(nil, errors.New("db down"))

		err := RunQueueHealth(ctx, mockUseCase, logger, &bytes.Buffer{}, "text")
		require.ErrorContains(t, err, "failed to read queue health")
	})
}
