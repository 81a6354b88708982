package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/messaging/schema"
)

// EventInboundMessageReceived is the automation event appended for every new inbound message.
const EventInboundMessageReceived = "inbound_message.received"

// eventApplier applies decoded callbacks to message, item and thread state. It runs
// inside the caller's transaction and is shared by ingestion and reconciliation.
type eventApplier struct {
	eventRepo   InboundEventRepository
	messageRepo MessageRepository
	jobRepo     JobRepository
	channelRepo ChannelRepository
	threadRepo  ThreadRepository
	publisher   AutomationPublisher
	logger      *slog.Logger
}

// unresolvable reports whether err keeps an event unprocessed instead of failing the transaction.
func unresolvable(err error) bool {
	return apperrors.Is(err, domain.ErrMalformedEvent) ||
		apperrors.Is(err, domain.ErrUnknownChannel) ||
		apperrors.Is(err, domain.ErrUnknownProviderMessage)
}

// applyAndMark applies ev and marks the stored event processed, or failed when it cannot
// be resolved yet. Only storage errors are returned.
func (a *eventApplier) applyAndMark(
	ctx context.Context,
	eventID uuid.UUID,
	ev *schema.Event,
	result *domain.IngestResult,
	now time.Time,
) error {
	tenantID, err := a.apply(ctx, ev, result, now)
	if err != nil {
		if !unresolvable(err) {
			return err
		}
		result.Error = err.Error()
		if a.logger != nil {
			a.logger.Warn("inbound event kept unprocessed",
				slog.String("event_id", eventID.String()),
				slog.String("external_id", ev.ExternalID),
				slog.Any("error", err),
			)
		}
		return a.eventRepo.MarkFailed(ctx, eventID, tenantID, err.Error())
	}

	if err := a.eventRepo.MarkProcessed(ctx, eventID, tenantID, now); err != nil {
		return err
	}
	result.Processed = true
	return nil
}

// markMalformed records an undecodable event.
func (a *eventApplier) markMalformed(
	ctx context.Context,
	eventID uuid.UUID,
	decodeErr error,
	result *domain.IngestResult,
) error {
	result.Error = decodeErr.Error()
	if a.logger != nil {
		a.logger.Warn("malformed inbound event",
			slog.String("event_id", eventID.String()),
			slog.Any("error", decodeErr),
		)
	}
	return a.eventRepo.MarkFailed(ctx, eventID, nil, decodeErr.Error())
}

func (a *eventApplier) apply(
	ctx context.Context,
	ev *schema.Event,
	result *domain.IngestResult,
	now time.Time,
) (*uuid.UUID, error) {
	switch ev.Type {
	case domain.EventStatusUpdate:
		return a.applyStatus(ctx, ev.Status, result, now)
	case domain.EventInboundMessage:
		return a.applyMessage(ctx, ev.Message, result, now)
	default:
		return nil, apperrors.Wrapf(domain.ErrMalformedEvent, "unsupported event type %q", ev.Type)
	}
}

// applyStatus advances the message or item carrying the provider message id. A status
// that is not a forward move is ignored, so late and repeated callbacks are no-ops.
func (a *eventApplier) applyStatus(
	ctx context.Context,
	update *domain.StatusUpdate,
	result *domain.IngestResult,
	now time.Time,
) (*uuid.UUID, error) {
	if update.Status == "" {
		return nil, apperrors.Wrapf(domain.ErrMalformedEvent, "unsupported status %q", update.RawStatus)
	}
	lastError := statusError(update)

	msg, err := a.messageRepo.GetByProviderMessageIDForUpdate(ctx, update.ProviderMessageID)
	if err == nil {
		tenantID := msg.TenantID
		if msg.Status.CanAdvanceTo(update.Status) {
			if err := a.messageRepo.UpdateStatus(ctx, msg.ID, update.Status, lastError, now); err != nil {
				return &tenantID, err
			}
			result.StatusesApplied++
		}
		return &tenantID, nil
	}
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	item, err := a.jobRepo.GetItemByProviderMessageIDForUpdate(ctx, update.ProviderMessageID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Wrap(domain.ErrUnknownProviderMessage, update.ProviderMessageID)
		}
		return nil, err
	}

	tenantID := item.TenantID
	if !item.Status.CanAdvanceTo(update.Status) {
		return &tenantID, nil
	}
	if err := a.jobRepo.UpdateItemStatus(ctx, item.ID, update.Status, lastError, now); err != nil {
		return &tenantID, err
	}
	if delta := domain.TransitionDelta(item.Status, update.Status); !delta.IsZero() {
		if err := a.jobRepo.ApplyCounterDelta(ctx, item.JobID, delta, now); err != nil {
			return &tenantID, err
		}
	}
	result.StatusesApplied++
	return &tenantID, nil
}

// applyMessage stores a new inbound message on its thread and appends the automation event.
func (a *eventApplier) applyMessage(
	ctx context.Context,
	payload *domain.InboundPayload,
	result *domain.IngestResult,
	now time.Time,
) (*uuid.UUID, error) {
	channel, err := a.channelRepo.GetByPhoneNumberID(ctx, payload.PhoneNumberID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Wrap(domain.ErrUnknownChannel, payload.PhoneNumberID)
		}
		return nil, err
	}
	tenantID := channel.TenantID

	exists, err := a.threadRepo.MessageExists(ctx, payload.ProviderMessageID)
	if err != nil || exists {
		return &tenantID, err
	}

	at := payload.Timestamp
	if at.IsZero() {
		at = now
	}

	thread, err := a.threadRepo.Upsert(ctx, &domain.Thread{
		ID:             uuid.Must(uuid.NewV7()),
		TenantID:       tenantID,
		ContactAddress: payload.From,
		ContactName:    payload.ContactName,
		LastMessageAt:  at,
		UnreadCount:    1,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return &tenantID, err
	}

	msg := &domain.InboundMessage{
		ID:                  uuid.Must(uuid.NewV7()),
		TenantID:            tenantID,
		ThreadID:            thread.ID,
		ChannelConnectionID: channel.ID,
		ProviderMessageID:   payload.ProviderMessageID,
		Sender:              payload.From,
		MessageType:         payload.MessageType,
		Body:                payload.Body,
		ProviderTimestamp:   at,
		CreatedAt:           now,
	}
	created, err := a.threadRepo.CreateMessage(ctx, msg)
	if err != nil {
		return &tenantID, err
	}
	if !created {
		// The thread was already bumped in this transaction; roll it back.
		return &tenantID, apperrors.Wrap(apperrors.ErrConflict, "inbound message stored concurrently")
	}

	err = a.publisher.Append(ctx, tenantID, EventInboundMessageReceived, map[string]any{
		"message_id":          msg.ID.String(),
		"thread_id":           thread.ID.String(),
		"channel_id":          channel.ID.String(),
		"provider_message_id": msg.ProviderMessageID,
		"from":                msg.Sender,
		"contact_name":        payload.ContactName,
		"message_type":        msg.MessageType,
		"body":                msg.Body,
		"received_at":         at,
	})
	if err != nil {
		return &tenantID, err
	}

	result.ThreadsTouched++
	result.MessagesCreated++
	return &tenantID, nil
}

func statusError(update *domain.StatusUpdate) *string {
	if update.Status != domain.StatusFailed || (update.ErrorCode == "" && update.ErrorTitle == "") {
		return nil
	}
	text := update.ErrorTitle
	if update.ErrorCode != "" {
		text = update.ErrorCode + ": " + update.ErrorTitle
	}
	return &text
}
