package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/metrics"
)

const (
	// recordTimeout bounds writing an outcome after the provider call returned.
	recordTimeout = 10 * time.Second

	// maxClaimBackoff caps the wait between failing claims.
	maxClaimBackoff = 30 * time.Second

	errCodeNoChannel = "no_channel_connection"
)

// DeliveryConfig holds delivery worker configuration.
type DeliveryConfig struct {
	WorkerID          string
	BatchSize         int
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
	MaxAttempts       int
	Concurrency       int
	SendTimeout       time.Duration
	Retry             domain.RetryPolicy
	CacheTTL          time.Duration
}

// credentials is a resolved provider account.
type credentials struct {
	PhoneNumberID string
	AccessToken   string
}

// DeliveryWorker claims units and delivers them to the provider.
type DeliveryWorker struct {
	config      DeliveryConfig
	txManager   database.TxManager
	scheduler   ClaimScheduler
	messageRepo MessageRepository
	jobRepo     JobRepository
	channelRepo ChannelRepository
	sealer      CredentialSealer
	sender      Sender
	wake        <-chan struct{}
	cache       *cache.Cache
	metrics     metrics.BusinessMetrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewDeliveryWorker creates a new DeliveryWorker. wake may be nil; when set, a receive
// on it starts the next poll before the interval elapses. A nil businessMetrics records nothing.
func NewDeliveryWorker(
	config DeliveryConfig,
	txManager database.TxManager,
	scheduler ClaimScheduler,
	messageRepo MessageRepository,
	jobRepo JobRepository,
	channelRepo ChannelRepository,
	sealer CredentialSealer,
	sender Sender,
	wake <-chan struct{},
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *DeliveryWorker {
	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}
	return &DeliveryWorker{
		config:      config,
		txManager:   txManager,
		scheduler:   scheduler,
		messageRepo: messageRepo,
		jobRepo:     jobRepo,
		channelRepo: channelRepo,
		sealer:      sealer,
		sender:      sender,
		wake:        wake,
		cache:       cache.New(ttl, 2*ttl),
		metrics:     businessMetrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Start runs the poll loop until ctx is cancelled. A full batch is followed by an
// immediate next poll; claim failures back off exponentially.
func (w *DeliveryWorker) Start(ctx context.Context) error {
	if w.logger != nil {
		w.logger.Info("starting delivery worker",
			slog.String("worker_id", w.config.WorkerID),
			slog.Int("batch_size", w.config.BatchSize),
			slog.Duration("poll_interval", w.config.PollInterval),
			slog.Int("concurrency", w.config.Concurrency),
		)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.config.PollInterval
	bo.MaxInterval = maxClaimBackoff
	bo.MaxElapsedTime = 0

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		processed, err := w.RunOnce(ctx)
		if ctx.Err() != nil {
			if w.logger != nil {
				w.logger.Info("stopping delivery worker")
			}
			return ctx.Err()
		}

		if err != nil {
			delay := bo.NextBackOff()
			if w.logger != nil {
				w.logger.Error("failed to claim units",
					slog.Duration("retry_in", delay),
					slog.Any("error", err),
				)
			}
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			continue
		}
		bo.Reset()

		if processed >= w.config.BatchSize {
			continue
		}

		select {
		case <-ctx.Done():
			if w.logger != nil {
				w.logger.Info("stopping delivery worker")
			}
			return ctx.Err()
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// RunOnce claims one batch and delivers it. Per-unit failures are recorded on the unit
// and never fail the batch; only a failed claim returns an error.
func (w *DeliveryWorker) RunOnce(ctx context.Context) (int, error) {
	units, err := w.scheduler.Claim(ctx, w.config.WorkerID, w.config.BatchSize, w.config.VisibilityTimeout)
	if err != nil {
		return 0, err
	}
	if len(units) == 0 {
		return 0, nil
	}

	var g errgroup.Group
	g.SetLimit(max(w.config.Concurrency, 1))
	for _, unit := range units {
		g.Go(func() error {
			w.deliver(ctx, unit)
			return nil
		})
	}
	_ = g.Wait()

	return len(units), nil
}

func (w *DeliveryWorker) deliver(ctx context.Context, unit *domain.Unit) {
	var providerMessageID string
	req, err := w.buildRequest(ctx, unit)
	if err == nil {
		sendCtx, cancel := context.WithTimeout(ctx, w.config.SendTimeout)
		providerMessageID, err = w.sender.Send(sendCtx, req)
		cancel()
	}

	outcome := domain.DecideOutcome(unit, providerMessageID, err, w.config.MaxAttempts, w.config.Retry, w.now().UTC())

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	held, recordErr := w.record(recordCtx, unit, outcome)

	status := string(outcome.Status)
	switch {
	case recordErr != nil:
		status = metrics.DeliveryRecordFailed
	case !held:
		status = metrics.DeliveryLeaseLost
	}
	w.metrics.RecordDelivery(recordCtx, string(unit.Kind), status, unit.Attempt)

	if w.logger == nil {
		return
	}
	attrs := []any{
		slog.String("unit_id", unit.ID.String()),
		slog.String("kind", string(unit.Kind)),
		slog.Int("attempt", unit.Attempt),
		slog.String("status", string(outcome.Status)),
	}
	switch {
	case recordErr != nil:
		w.logger.Error("failed to record delivery outcome", append(attrs, slog.Any("error", recordErr))...)
	case !held:
		w.logger.Warn("lease lost before recording outcome", attrs...)
	case err != nil:
		w.logger.Warn("delivery attempt failed", append(attrs, slog.Any("error", err))...)
	default:
		w.logger.Debug("unit delivered", append(attrs, slog.String("provider_message_id", providerMessageID))...)
	}
}

// record writes the outcome if the lease is still held. Job item outcomes move the job
// counters in the same transaction.
func (w *DeliveryWorker) record(ctx context.Context, unit *domain.Unit, outcome domain.Outcome) (bool, error) {
	if unit.Kind == domain.UnitMessage {
		return w.messageRepo.Complete(ctx, unit.ID, unit.ClaimedBy, unit.Attempt, outcome)
	}

	var held bool
	err := w.txManager.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		held, err = w.jobRepo.CompleteItem(txCtx, unit.ID, unit.ClaimedBy, unit.Attempt, outcome)
		if err != nil || !held {
			return err
		}
		delta := domain.TransitionDelta(domain.StatusProcessing, outcome.Status)
		if delta.IsZero() {
			return nil
		}
		return w.jobRepo.ApplyCounterDelta(txCtx, *unit.JobID, delta, outcome.At)
	})
	return held, err
}

// buildRequest resolves the unit's provider account and payload.
func (w *DeliveryWorker) buildRequest(ctx context.Context, unit *domain.Unit) (*domain.SendRequest, error) {
	creds, err := w.credentials(ctx, unit)
	if err != nil {
		return nil, err
	}

	payload := unit.Payload
	if unit.Kind == domain.UnitJobItem {
		job, err := w.job(ctx, *unit.JobID)
		if err != nil {
			return nil, err
		}
		payload, err = domain.TemplatePayload(job, unit.Variables)
		if err != nil {
			return nil, err
		}
	}

	return &domain.SendRequest{
		IdempotencyKey: unit.ID.String(),
		PhoneNumberID:  creds.PhoneNumberID,
		AccessToken:    creds.AccessToken,
		To:             unit.Destination,
		Payload:        payload,
	}, nil
}

// credentials resolves the unit's channel, or the tenant's default channel for messages
// enqueued without one. A missing channel is a permanent failure.
func (w *DeliveryWorker) credentials(ctx context.Context, unit *domain.Unit) (*credentials, error) {
	key := "tenant:" + unit.TenantID.String()
	if unit.ChannelConnectionID != nil {
		key = "channel:" + unit.ChannelConnectionID.String()
	}
	if cached, ok := w.cache.Get(key); ok {
		return cached.(*credentials), nil
	}

	var channel *domain.ChannelConnection
	var err error
	if unit.ChannelConnectionID != nil {
		channel, err = w.channelRepo.Get(ctx, *unit.ChannelConnectionID)
	} else {
		channel, err = w.channelRepo.GetDefaultForTenant(ctx, unit.TenantID)
	}
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.NewPermanentError(errCodeNoChannel, err.Error())
		}
		return nil, err
	}

	token, err := w.sealer.Open(ctx, channel.AccessTokenCiphertext)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open channel access token")
	}

	creds := &credentials{PhoneNumberID: channel.PhoneNumberID, AccessToken: string(token)}
	w.cache.SetDefault(key, creds)
	return creds, nil
}

func (w *DeliveryWorker) job(ctx context.Context, id uuid.UUID) (*domain.SendJob, error) {
	key := "job:" + id.String()
	if cached, ok := w.cache.Get(key); ok {
		return cached.(*domain.SendJob), nil
	}
	job, err := w.jobRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	w.cache.SetDefault(key, job)
	return job, nil
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
