package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/allisson/courier/internal/messaging/http/dto"
	messagingUseCase "github.com/allisson/courier/internal/messaging/usecase"
)

// RunReconcile runs one reconciliation pass over unprocessed webhook events,
// optionally scoped to a tenant, and reports what it repaired.
func RunReconcile(
	ctx context.Context,
	reconcileUseCase messagingUseCase.ReconcileUseCase,
	logger *slog.Logger,
	writer io.Writer,
	tenantID string,
	limit int,
	format string,
) error {
	if limit <= 0 {
		return fmt.Errorf("limit must be a positive number, got: %d", limit)
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	tenant, err := parseOptionalUUID("tenant-id", tenantID)
	if err != nil {
		return err
	}

	logger.Info("running reconciliation",
		slog.String("tenant_id", tenantID),
		slog.Int("limit", limit),
	)

	result, err := reconcileUseCase.Reconcile(ctx, tenant, limit)
	if err != nil {
		return fmt.Errorf("failed to reconcile: %w", err)
	}

	if format == "json" {
		return writeJSON(writer, dto.MapReconcileResponse(result))
	}

	_, err = fmt.Fprintf(writer,
		"Scanned %d event(s), reconciled %d event(s) (%d message(s), %d thread(s)), %d remaining\n",
		result.ScannedEvents,
		result.ReconciledEvents,
		result.ReconciledMessages,
		result.ReconciledThreads,
		result.Remaining,
	)
	if err == nil && result.TimedOut {
		_, err = fmt.Fprintln(writer, "The pass stopped at its time limit; run again to continue")
	}
	return err
}
