package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/allisson/courier/internal/messaging/http/dto"
	messagingUseCase "github.com/allisson/courier/internal/messaging/usecase"
)

// ErrQueueUnhealthy is returned after the report when the queue is unhealthy, so
// the command exits non-zero.
var ErrQueueUnhealthy = errors.New("queue is unhealthy")

// RunQueueHealth prints queue depth and the age of the oldest queued unit.
func RunQueueHealth(
	ctx context.Context,
	healthUseCase messagingUseCase.HealthUseCase,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	summary, err := healthUseCase.Summary(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue health: %w", err)
	}

	if format == "json" {
		err = writeJSON(writer, dto.MapQueueHealthResponse(summary))
	} else {
		_, err = fmt.Fprintf(writer,
			"Status: %s\nQueued: %d\nProcessing: %d\nFailed: %d\nOldest queued age: %ds\n",
			summary.Status,
			summary.QueuedCount,
			summary.ProcessingCount,
			summary.FailedCount,
			summary.OldestQueuedAgeSeconds,
		)
	}
	if err != nil {
		return err
	}

	if !summary.OK {
		logger.Warn("queue is unhealthy",
			slog.Int64("queued", summary.QueuedCount),
			slog.Int64("oldest_queued_age_seconds", summary.OldestQueuedAgeSeconds),
		)
		return ErrQueueUnhealthy
	}
	return nil
}
