package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/messaging/schema"
)

// ingestUseCase implements IngestUseCase.
type ingestUseCase struct {
	txManager database.TxManager
	decoder   EventDecoder
	applier   *eventApplier
	logger    *slog.Logger
	now       func() time.Time
}

// Ingest stores one callback under its external id and applies it in the same
// transaction. A repeated external id is a successful no-op. Callbacks that cannot be
// decoded or resolved are stored unprocessed with the reason.
func (uc *ingestUseCase) Ingest(ctx context.Context, raw []byte) (*domain.IngestResult, error) {
	now := uc.now().UTC()

	ev, decodeErr := uc.decoder.DecodeEvent(raw)
	if ev == nil {
		ev = &schema.Event{Type: domain.EventUnknown, ExternalID: domain.FallbackExternalID(raw)}
	}

	event := &domain.InboundEvent{
		ID:         uuid.Must(uuid.NewV7()),
		ExternalID: ev.ExternalID,
		EventType:  ev.Type,
		Payload:    raw,
		ReceivedAt: now,
	}

	var result *domain.IngestResult
	err := uc.txManager.WithTx(ctx, func(txCtx context.Context) error {
		result = &domain.IngestResult{EventID: event.ID, ExternalID: event.ExternalID}

		inserted, err := uc.applier.eventRepo.Insert(txCtx, event)
		if err != nil {
			return err
		}
		if !inserted {
			result.Processed = true
			result.Duplicate = true
			return nil
		}

		if decodeErr != nil {
			return uc.applier.markMalformed(txCtx, event.ID, decodeErr, result)
		}
		return uc.applier.applyAndMark(txCtx, event.ID, ev, result, now)
	})
	if err != nil {
		uc.retain(ctx, event, err)
		return nil, apperrors.Unavailable(apperrors.Wrap(err, "failed to ingest event"))
	}

	if uc.logger != nil {
		uc.logger.Debug("inbound event ingested",
			slog.String("event_id", result.EventID.String()),
			slog.String("external_id", result.ExternalID),
			slog.Bool("processed", result.Processed),
			slog.Bool("duplicate", result.Duplicate),
		)
	}

	return result, nil
}

// retain stores the raw callback unprocessed after the apply transaction rolled back, so
// reconciliation can retry it. Failures are only logged.
func (uc *ingestUseCase) retain(ctx context.Context, event *domain.InboundEvent, cause error) {
	ctx = context.WithoutCancel(ctx)
	err := uc.txManager.WithTx(ctx, func(txCtx context.Context) error {
		inserted, err := uc.applier.eventRepo.Insert(txCtx, event)
		if err != nil || !inserted {
			return err
		}
		return uc.applier.eventRepo.MarkFailed(txCtx, event.ID, nil, cause.Error())
	})
	if err != nil && uc.logger != nil {
		uc.logger.Error("failed to retain inbound event",
			slog.String("external_id", event.ExternalID),
			slog.Any("error", err),
		)
	}
}

// NewIngestUseCase creates a new IngestUseCase.
func NewIngestUseCase(
	txManager database.TxManager,
	eventRepo InboundEventRepository,
	messageRepo MessageRepository,
	jobRepo JobRepository,
	channelRepo ChannelRepository,
	threadRepo ThreadRepository,
	publisher AutomationPublisher,
	decoder EventDecoder,
	logger *slog.Logger,
) IngestUseCase {
	return &ingestUseCase{
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
