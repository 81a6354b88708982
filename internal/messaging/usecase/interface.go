// Package usecase defines the interfaces and implementations of the delivery pipeline:
// enqueueing, bulk jobs, claiming, delivery, inbound ingestion, reconciliation and
// queue health. Use cases orchestrate repositories inside storage transactions; every
// cross-row invariant is maintained by the transaction that mutates the triggering row.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/messaging/schema"
)

// MessageRepository persists single outbound messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.OutboxMessage) error
	Get(ctx context.Context, id uuid.UUID) (*domain.OutboxMessage, error)
	// DeadLetter fails messages that exhausted their attempts and are queued or hold an expired lease.
	DeadLetter(ctx context.Context, maxAttempts int, leaseCutoff, now time.Time, reason string) (int64, error)
	// Claim leases up to limit claimable messages to workerID, oldest first.
	Claim(
		ctx context.Context,
		workerID string,
		limit, maxAttempts int,
		leaseCutoff, now time.Time,
	) ([]*domain.OutboxMessage, error)
	// Complete records an outcome if workerID still holds the lease taken at attempt.
	Complete(ctx context.Context, id uuid.UUID, workerID string, attempt int, outcome domain.Outcome) (bool, error)
	GetByProviderMessageIDForUpdate(ctx context.Context, providerMessageID string) (*domain.OutboxMessage, error)
	UpdateStatus(
		ctx context.Context,
		id uuid.UUID,
		status domain.DeliveryStatus,
		lastError *string,
		now time.Time,
	) error
}

// JobRepository persists bulk send jobs, their items and the claim log.
type JobRepository interface {
	Create(ctx context.Context, job *domain.SendJob) error
	CreateItems(ctx context.Context, items []*domain.SendJobItem) error
	Get(ctx context.Context, id uuid.UUID) (*domain.SendJob, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.SendJob, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, now time.Time) error
	ListItems(
		ctx context.Context,
		jobID uuid.UUID,
		status *domain.DeliveryStatus,
		offset, limit int,
	) ([]*domain.SendJobItem, int64, error)
	// ApplyCounterDelta adjusts the counters and finishes an active job whose queued bucket drained.
	ApplyCounterDelta(ctx context.Context, jobID uuid.UUID, delta domain.CounterDelta, now time.Time) error

	// DeadLetterItems fails exhausted items and returns the number failed per job.
	DeadLetterItems(
		ctx context.Context,
		maxAttempts int,
		leaseCutoff, now time.Time,
		reason string,
	) (map[uuid.UUID]int, error)
	// LockActiveJobs locks active jobs not locked by another claimer, oldest first,
	// with their claims since windowStart.
	LockActiveJobs(ctx context.Context, windowStart time.Time) ([]domain.JobBudget, error)
	// LockChannels locks the given channels not locked by another claimer,
	// with their claims since windowStart.
	LockChannels(ctx context.Context, ids []uuid.UUID, windowStart time.Time) ([]domain.ChannelBudget, error)
	ClaimItems(
		ctx context.Context,
		jobID uuid.UUID,
		workerID string,
		limit, maxAttempts int,
		leaseCutoff, now time.Time,
	) ([]*domain.SendJobItem, error)
	RecordClaims(ctx context.Context, jobID, channelID uuid.UUID, n int, now time.Time) error
	MarkRunning(ctx context.Context, jobID uuid.UUID, now time.Time) error
	CompleteItem(ctx context.Context, id uuid.UUID, workerID string, attempt int, outcome domain.Outcome) (bool, error)
	GetItemByProviderMessageIDForUpdate(ctx context.Context, providerMessageID string) (*domain.SendJobItem, error)
	UpdateItemStatus(
		ctx context.Context,
		id uuid.UUID,
		status domain.DeliveryStatus,
		lastError *string,
		now time.Time,
	) error
	// DeleteClaimsBefore prunes the claim log; dryRun only counts.
	DeleteClaimsBefore(ctx context.Context, before time.Time, dryRun bool) (int64, error)
}

// ChannelRepository persists channel connections.
type ChannelRepository interface {
	Create(ctx context.Context, channel *domain.ChannelConnection) error
	Get(ctx context.Context, id uuid.UUID) (*domain.ChannelConnection, error)
	GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (*domain.ChannelConnection, error)
	// GetDefaultForTenant returns the tenant's oldest channel connection.
	GetDefaultForTenant(ctx context.Context, tenantID uuid.UUID) (*domain.ChannelConnection, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, offset, limit int) ([]*domain.ChannelConnection, error)
}

// InboundEventRepository persists the inbound callback log.
type InboundEventRepository interface {
	// Insert stores event unless its external id exists; it reports whether a row was inserted.
	Insert(ctx context.Context, event *domain.InboundEvent) (bool, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, tenantID *uuid.UUID, now time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, tenantID *uuid.UUID, reason string) error
	// ListUnprocessed returns ids of unprocessed events received before receivedBefore.
	ListUnprocessed(
		ctx context.Context,
		tenantID *uuid.UUID,
		receivedBefore time.Time,
		maxAttempts, limit int,
	) ([]uuid.UUID, error)
	// GetUnprocessedForUpdate locks an unprocessed event, skipping rows locked elsewhere.
	GetUnprocessedForUpdate(ctx context.Context, id uuid.UUID) (*domain.InboundEvent, error)
	CountUnprocessed(ctx context.Context, tenantID *uuid.UUID, maxAttempts int) (int64, error)
}

// ThreadRepository persists threads and inbound messages.
type ThreadRepository interface {
	// Upsert creates the thread or bumps its last message time and unread count.
	Upsert(ctx context.Context, thread *domain.Thread) (*domain.Thread, error)
	// CreateMessage stores msg unless its provider id exists; it reports whether a row was inserted.
	CreateMessage(ctx context.Context, msg *domain.InboundMessage) (bool, error)
	MessageExists(ctx context.Context, providerMessageID string) (bool, error)
}

// QueueRepository reads queue health aggregates.
type QueueRepository interface {
	Counts(ctx context.Context) (domain.QueueCounts, error)
}

// AutomationPublisher appends downstream automation events inside the caller's transaction.
type AutomationPublisher interface {
	Append(ctx context.Context, tenantID uuid.UUID, eventType string, payload any) error
}

// CredentialSealer seals and opens channel access tokens.
type CredentialSealer interface {
	Seal(ctx context.Context, plaintext []byte) ([]byte, error)
	Open(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// Sender delivers one outbound request to the provider and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, req *domain.SendRequest) (string, error)
}

// EventDecoder decodes normalized provider callbacks.
type EventDecoder interface {
	DecodeEvent(raw []byte) (*schema.Event, error)
}

// PayloadValidator validates open documents before they are stored.
type PayloadValidator interface {
	ValidatePayload(payload map[string]any) error
	ValidateVariables(vars map[string]string) error
}

// MessageUseCase enqueues and reads single messages.
type MessageUseCase interface {
	Enqueue(
		ctx context.Context,
		tenantID uuid.UUID,
		destination string,
		payload map[string]any,
		channelID *uuid.UUID,
	) (*domain.OutboxMessage, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.OutboxMessage, error)
}

// JobUseCase manages bulk send jobs.
type JobUseCase interface {
	Create(ctx context.Context, input domain.CreateJobInput) (*domain.SendJob, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.SendJob, error)
	ListItems(
		ctx context.Context,
		jobID uuid.UUID,
		status *domain.DeliveryStatus,
		offset, limit int,
	) ([]*domain.SendJobItem, int64, error)
	Start(ctx context.Context, id uuid.UUID) (*domain.SendJob, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.SendJob, error)
	CleanClaimLog(ctx context.Context, olderThan time.Duration, dryRun bool) (int64, error)
}

// ChannelUseCase manages channel connections.
type ChannelUseCase interface {
	Create(
		ctx context.Context,
		tenantID uuid.UUID,
		name, phoneNumberID, accessToken string,
		sendLimitPerMinute int,
	) (*domain.ChannelConnection, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.ChannelConnection, error)
	List(ctx context.Context, tenantID uuid.UUID, offset, limit int) ([]*domain.ChannelConnection, error)
}

// ClaimScheduler leases batches of work.
type ClaimScheduler interface {
	Claim(ctx context.Context, workerID string, batchSize int, visibilityTimeout time.Duration) ([]*domain.Unit, error)
}

// IngestUseCase ingests provider callbacks.
type IngestUseCase interface {
	Ingest(ctx context.Context, raw []byte) (*domain.IngestResult, error)
}

// ReconcileUseCase re-applies unprocessed callbacks.
type ReconcileUseCase interface {
	Reconcile(ctx context.Context, tenantID *uuid.UUID, limit int) (*domain.ReconcileResult, error)
}

// HealthUseCase reports queue health.
type HealthUseCase interface {
	Summary(ctx context.Context) (*domain.QueueSummary, error)
}
