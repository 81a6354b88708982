package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	messagingUseCase "github.com/allisson/courier/internal/messaging/usecase"
)

// RunCleanClaimLog prunes claim log rows older than the given number of minutes.
// Supports dry-run mode to preview the deletion count and both text/JSON output formats.
func RunCleanClaimLog(
	ctx context.Context,
	jobUseCase messagingUseCase.JobUseCase,
	logger *slog.Logger,
	writer io.Writer,
	minutes int,
	dryRun bool,
	format string,
) error {
	if minutes < 0 {
		return fmt.Errorf("minutes must be a positive number, got: %d", minutes)
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	logger.Info("cleaning claim log",
		slog.Int("minutes", minutes),
		slog.Bool("dry_run", dryRun),
	)

	count, err := jobUseCase.CleanClaimLog(ctx, time.Duration(minutes)*time.Minute, dryRun)
	if err != nil {
		return fmt.Errorf("failed to clean claim log: %w", err)
	}

	if format == "json" {
		return writeJSON(writer, map[string]any{
			"count":   count,
			"minutes": minutes,
			"dry_run": dryRun,
		})
	}

	if dryRun {
		_, err = fmt.Fprintf(writer, "Dry-run mode: Would delete %d claim log row(s) older than %d minute(s)\n", count, minutes)
	} else {
		_, err = fmt.Fprintf(writer, "Successfully deleted %d claim log row(s) older than %d minute(s)\n", count, minutes)
	}
	return err
}
