package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/metrics"
)

const metricsDomain = "messaging"

// observe records the count and duration of one operation.
func observe(ctx context.Context, m metrics.BusinessMetrics, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RecordOperation(ctx, metricsDomain, operation, status)
	m.RecordDuration(ctx, metricsDomain, operation, time.Since(start), status)
}

// messageUseCaseWithMetrics decorates MessageUseCase with metrics instrumentation.
type messageUseCaseWithMetrics struct {
	next    MessageUseCase
	metrics metrics.BusinessMetrics
}

// NewMessageUseCaseWithMetrics wraps a MessageUseCase with metrics recording.
func NewMessageUseCaseWithMetrics(useCase MessageUseCase, m metrics.BusinessMetrics) MessageUseCase {
	return &messageUseCaseWithMetrics{next: useCase, metrics: m}
}

// Enqueue records metrics for message enqueue operations.
func (d *messageUseCaseWithMetrics) Enqueue(
	ctx context.Context,
	tenantID uuid.UUID,
	destination string,
	payload map[string]any,
	channelID *uuid.UUID,
) (*domain.OutboxMessage, error) {
	start := time.Now()
	msg, err := d.next.Enqueue(ctx, tenantID, destination, payload, channelID)
	observe(ctx, d.metrics, "message_enqueue", start, err)
	return msg, err
}

// Get records metrics for message retrieval operations.
func (d *messageUseCaseWithMetrics) Get(ctx context.Context, id uuid.UUID) (*domain.OutboxMessage, error) {
	start := time.Now()
	msg, err := d.next.Get(ctx, id)
	observe(ctx, d.metrics, "message_get", start, err)
	return msg, err
}

// jobUseCaseWithMetrics decorates JobUseCase with metrics instrumentation.
type jobUseCaseWithMetrics struct {
	next    JobUseCase
	metrics metrics.BusinessMetrics
}

// NewJobUseCaseWithMetrics wraps a JobUseCase with metrics recording.
func NewJobUseCaseWithMetrics(useCase JobUseCase, m metrics.BusinessMetrics) JobUseCase {
	return &jobUseCaseWithMetrics{next: useCase, metrics: m}
}

func (d *jobUseCaseWithMetrics) Create(ctx context.Context, input domain.CreateJobInput) (*domain.SendJob, error) {
	start := time.Now()
	job, err := d.next.Create(ctx, input)
	observe(ctx, d.metrics, "job_create", start, err)
	return job, err
}

func (d *jobUseCaseWithMetrics) Get(ctx context.Context, id uuid.UUID) (*domain.SendJob, error) {
	start := time.Now()
	job, err := d.next.Get(ctx, id)
	observe(ctx, d.metrics, "job_get", start, err)
	return job, err
}

func (d *jobUseCaseWithMetrics) ListItems(
	ctx context.Context,
	jobID uuid.UUID,
	status *domain.DeliveryStatus,
	offset, limit int,
) ([]*domain.SendJobItem, int64, error) {
	start := time.Now()
	items, total, err := d.next.ListItems(ctx, jobID, status, offset, limit)
	observe(ctx, d.metrics, "job_list_items", start, err)
	return items, total, err
}

func (d *jobUseCaseWithMetrics) Start(ctx context.Context, id uuid.UUID) (*domain.SendJob, error) {
	start := time.Now()
	job, err := d.next.Start(ctx, id)
	observe(ctx, d.metrics, "job_start", start, err)
	return job, err
}

func (d *jobUseCaseWithMetrics) Cancel(ctx context.Context, id uuid.UUID) (*domain.SendJob, error) {
	start := time.Now()
	job, err := d.next.Cancel(ctx, id)
	observe(ctx, d.metrics, "job_cancel", start, err)
	return job, err
}

func (d *jobUseCaseWithMetrics) CleanClaimLog(ctx context.Context, olderThan time.Duration, dryRun bool) (int64, error) {
	start := time.Now()
	count, err := d.next.CleanClaimLog(ctx, olderThan, dryRun)
	observe(ctx, d.metrics, "claim_log_clean", start, err)
	return count, err
}

// channelUseCaseWithMetrics decorates ChannelUseCase with metrics instrumentation.
type channelUseCaseWithMetrics struct {
	next    ChannelUseCase
	metrics metrics.BusinessMetrics
}

// NewChannelUseCaseWithMetrics wraps a ChannelUseCase with metrics recording.
func NewChannelUseCaseWithMetrics(useCase ChannelUseCase, m metrics.BusinessMetrics) ChannelUseCase {
	return &channelUseCaseWithMetrics{next: useCase, metrics: m}
}

func (d *channelUseCaseWithMetrics) Create(
	ctx context.Context,
	tenantID uuid.UUID,
	name, phoneNumberID, accessToken string,
	sendLimitPerMinute int,
) (*domain.ChannelConnection, error) {
	start := time.Now()
	channel, err := d.next.Create(ctx, tenantID, name, phoneNumberID, accessToken, sendLimitPerMinute)
	observe(ctx, d.metrics, "channel_create", start, err)
	return channel, err
}

func (d *channelUseCaseWithMetrics) Get(ctx context.Context, id uuid.UUID) (*domain.ChannelConnection, error) {
	start := time.Now()
	channel, err := d.next.Get(ctx, id)
	observe(ctx, d.metrics, "channel_get", start, err)
	return channel, err
}

func (d *channelUseCaseWithMetrics) List(
	ctx context.Context,
	tenantID uuid.UUID,
	offset, limit int,
) ([]*domain.ChannelConnection, error) {
	start := time.Now()
	channels, err := d.next.List(ctx, tenantID, offset, limit)
	observe(ctx, d.metrics, "channel_list", start, err)
	return channels, err
}

// claimSchedulerWithMetrics decorates ClaimScheduler with metrics instrumentation.
type claimSchedulerWithMetrics struct {
	next    ClaimScheduler
	metrics metrics.BusinessMetrics
}

// NewClaimSchedulerWithMetrics wraps a ClaimScheduler with metrics recording.
func NewClaimSchedulerWithMetrics(scheduler ClaimScheduler, m metrics.BusinessMetrics) ClaimScheduler {
	return &claimSchedulerWithMetrics{next: scheduler, metrics: m}
}

func (d *claimSchedulerWithMetrics) Claim(
	ctx context.Context,
	workerID string,
	batchSize int,
	visibilityTimeout time.Duration,
) ([]*domain.Unit, error) {
	start := time.Now()
	units, err := d.next.Claim(ctx, workerID, batchSize, visibilityTimeout)
	observe(ctx, d.metrics, "claim", start, err)
	return units, err
}

// ingestUseCaseWithMetrics decorates IngestUseCase with metrics instrumentation.
// Callbacks kept unprocessed are counted as "unresolved".
type ingestUseCaseWithMetrics struct {
	next    IngestUseCase
	metrics metrics.BusinessMetrics
}

// NewIngestUseCaseWithMetrics wraps an IngestUseCase with metrics recording.
func NewIngestUseCaseWithMetrics(useCase IngestUseCase, m metrics.BusinessMetrics) IngestUseCase {
	return &ingestUseCaseWithMetrics{next: useCase, metrics: m}
}

func (d *ingestUseCaseWithMetrics) Ingest(ctx context.Context, raw []byte) (*domain.IngestResult, error) {
	start := time.Now()
	result, err := d.next.Ingest(ctx, raw)

	status := "success"
	switch {
	case err != nil:
		status = "error"
	case result.Duplicate:
		status = "duplicate"
	case !result.Processed:
		status = "unresolved"
	}
	d.metrics.RecordOperation(ctx, metricsDomain, "ingest", status)
	d.metrics.RecordDuration(ctx, metricsDomain, "ingest", time.Since(start), status)

	return result, err
}

// reconcileUseCaseWithMetrics decorates ReconcileUseCase with metrics instrumentation.
type reconcileUseCaseWithMetrics struct {
	next    ReconcileUseCase
	metrics metrics.BusinessMetrics
}

// NewReconcileUseCaseWithMetrics wraps a ReconcileUseCase with metrics recording.
func NewReconcileUseCaseWithMetrics(useCase ReconcileUseCase, m metrics.BusinessMetrics) ReconcileUseCase {
	return &reconcileUseCaseWithMetrics{next: useCase, metrics: m}
}

func (d *reconcileUseCaseWithMetrics) Reconcile(
	ctx context.Context,
	tenantID *uuid.UUID,
	limit int,
) (*domain.ReconcileResult, error) {
	start := time.Now()
	result, err := d.next.Reconcile(ctx, tenantID, limit)
	observe(ctx, d.metrics, "reconcile", start, err)
	return result, err
}

// senderWithMetrics decorates Sender with metrics instrumentation. Failures are split
// into retryable and permanent.
type senderWithMetrics struct {
	next    Sender
	metrics metrics.BusinessMetrics
}

// NewSenderWithMetrics wraps a Sender with metrics recording.
func NewSenderWithMetrics(sender Sender, m metrics.BusinessMetrics) Sender {
	return &senderWithMetrics{next: sender, metrics: m}
}

func (d *senderWithMetrics) Send(ctx context.Context, req *domain.SendRequest) (string, error) {
	start := time.Now()
	id, err := d.next.Send(ctx, req)

	status := "success"
	if err != nil {
		status = "retryable"
		if !domain.IsRetryable(err) {
			status = "permanent"
		}
	}
	d.metrics.RecordOperation(ctx, "provider", "send", status)
	d.metrics.RecordDuration(ctx, "provider", "send", time.Since(start), status)

	return id, err
}
