package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
)

// countTimeout bounds the closing backlog count of a pass that ran out of time.
const countTimeout = 5 * time.Second

// ReconcileConfig holds reconciliation configuration.
type ReconcileConfig struct {
	Timeout     time.Duration
	MinAge      time.Duration
	MaxAttempts int
}

// reconcileUseCase implements ReconcileUseCase.
type reconcileUseCase struct {
	config    ReconcileConfig
	txManager database.TxManager
	decoder   EventDecoder
	applier   *eventApplier
	logger    *slog.Logger
	now       func() time.Time
}

// Reconcile re-applies up to limit unprocessed events, each in its own transaction
// after re-locking it. Events locked by live ingestion or another scanner are skipped.
// The pass stops early when its time box expires; the rest is left for the next pass.
func (uc *reconcileUseCase) Reconcile(
	ctx context.Context,
	tenantID *uuid.UUID,
	limit int,
) (*domain.ReconcileResult, error) {
	if limit <= 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "limit must be positive")
	}

	passCtx := ctx
	if uc.config.Timeout > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, uc.config.Timeout)
		defer cancel()
	}

	now := uc.now().UTC()
	ids, err := uc.applier.eventRepo.ListUnprocessed(
		passCtx,
		tenantID,
		now.Add(-uc.config.MinAge),
		uc.config.MaxAttempts,
		limit,
	)
	if err != nil {
		return nil, apperrors.Unavailable(apperrors.Wrap(err, "failed to list unprocessed events"))
	}

	result := &domain.ReconcileResult{ScannedEvents: len(ids)}
	for _, id := range ids {
		if passCtx.Err() != nil {
			result.TimedOut = true
			break
		}

		r, err := uc.reconcileEvent(passCtx, id, now)
		if err != nil {
			if passCtx.Err() != nil {
				result.TimedOut = true
				break
			}
			if uc.logger != nil {
				uc.logger.Error("failed to reconcile event",
					slog.String("event_id", id.String()),
					slog.Any("error", err),
				)
			}
			continue
		}
		if r.Processed {
			result.ReconciledEvents++
			result.ReconciledMessages += r.MessagesCreated + r.StatusesApplied
			result.ReconciledThreads += r.ThreadsTouched
		}
	}

	countCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), countTimeout)
	defer cancel()
	remaining, err := uc.applier.eventRepo.CountUnprocessed(countCtx, tenantID, uc.config.MaxAttempts)
	if err != nil {
		return nil, apperrors.Unavailable(apperrors.Wrap(err, "failed to count unprocessed events"))
	}
	result.Remaining = int(remaining)

	if uc.logger != nil && result.ScannedEvents > 0 {
		uc.logger.Info("reconciliation pass finished",
			slog.Int("scanned", result.ScannedEvents),
			slog.Int("reconciled_events", result.ReconciledEvents),
			slog.Int("reconciled_messages", result.ReconciledMessages),
			slog.Int("reconciled_threads", result.ReconciledThreads),
			slog.Int("remaining", result.Remaining),
			slog.Bool("timed_out", result.TimedOut),
		)
	}

	return result, nil
}

func (uc *reconcileUseCase) reconcileEvent(
	ctx context.Context,
	id uuid.UUID,
	now time.Time,
) (*domain.IngestResult, error) {
	result := &domain.IngestResult{EventID: id}
	err := uc.txManager.WithTx(ctx, func(txCtx context.Context) error {
		event, err := uc.applier.eventRepo.GetUnprocessedForUpdate(txCtx, id)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				return nil
			}
			return err
		}
		result.ExternalID = event.ExternalID

		ev, decodeErr := uc.decoder.DecodeEvent(event.Payload)
		if decodeErr != nil {
			return uc.applier.markMalformed(txCtx, event.ID, decodeErr, result)
		}
		return uc.applier.applyAndMark(txCtx, event.ID, ev, result, now)
	})
	return result, err
}

// NewReconcileUseCase creates a new ReconcileUseCase.
func NewReconcileUseCase(
	config ReconcileConfig,
	txManager database.TxManager,
	eventRepo InboundEventRepository,
	messageRepo MessageRepository,
	jobRepo JobRepository,
	channelRepo ChannelRepository,
	threadRepo ThreadRepository,
	publisher AutomationPublisher,
	decoder EventDecoder,
	logger *slog.Logger,
) ReconcileUseCase {
	return &reconcileUseCase{
		config:    config,
		txManager: txManager,
		decoder:   decoder,
		applier: &eventApplier{
			eventRepo:   eventRepo,
			messageRepo: messageRepo,
			jobRepo:     jobRepo,
			channelRepo: channelRepo,
			threadRepo:  threadRepo,
			publisher:   publisher,
			logger:      logger,
		},
		logger: logger,
		now:    time.Now,
	}
}
