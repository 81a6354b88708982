package usecase

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
)

// rateWindow is the trailing window job and channel send limits are measured over.
const rateWindow = time.Minute

// claimScheduler implements ClaimScheduler.
//
// A claim runs in one transaction: exhausted units are dead-lettered first, then
// single messages take up to half of the batch, job items take what is left within
// their rate budgets, and capacity the items could not use goes back to messages.
type claimScheduler struct {
	txManager   database.TxManager
	messageRepo MessageRepository
	jobRepo     JobRepository
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
}

// Claim leases up to batchSize units to workerID and returns them oldest first.
func (s *claimScheduler) Claim(
	ctx context.Context,
	workerID string,
	batchSize int,
	visibilityTimeout time.Duration,
) ([]*domain.Unit, error) {
	if batchSize <= 0 {
		return nil, nil
	}

	now := s.now().UTC()
	leaseCutoff := now.Add(-visibilityTimeout)
	windowStart := now.Add(-rateWindow)

	// Budget counts must see claims committed by other claimers after this
	// transaction began, which MySQL's default REPEATABLE READ snapshot hides.
	var units []*domain.Unit
	err := s.txManager.WithTxIsolation(ctx, sql.LevelReadCommitted, func(txCtx context.Context) error {
		units = units[:0]

		if err := s.deadLetter(txCtx, leaseCutoff, now); err != nil {
			return err
		}

		messageShare := (batchSize + 1) / 2
		messages, err := s.messageRepo.Claim(txCtx, workerID, messageShare, s.maxAttempts, leaseCutoff, now)
		if err != nil {
			return err
		}
		units = appendMessageUnits(units, messages, workerID, now)

		items, err := s.claimItems(txCtx, workerID, batchSize-len(messages), leaseCutoff, windowStart, now)
		if err != nil {
			return err
		}
		units = append(units, items...)

		leftover := batchSize - len(units)
		if leftover > 0 && len(messages) == messageShare {
			more, err := s.messageRepo.Claim(txCtx, workerID, leftover, s.maxAttempts, leaseCutoff, now)
			if err != nil {
				return err
			}
			units = appendMessageUnits(units, more, workerID, now)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Unavailable(apperrors.Wrap(err, "failed to claim units"))
	}

	sortUnits(units)
	return units, nil
}

// deadLetter fails exhausted messages and items, keeping job counters in step.
func (s *claimScheduler) deadLetter(ctx context.Context, leaseCutoff, now time.Time) error {
	messages, err := s.messageRepo.DeadLetter(ctx, s.maxAttempts, leaseCutoff, now, domain.MaxAttemptsExceeded)
	if err != nil {
		return err
	}

	perJob, err := s.jobRepo.DeadLetterItems(ctx, s.maxAttempts, leaseCutoff, now, domain.MaxAttemptsExceeded)
	if err != nil {
		return err
	}

	// Sorted so concurrent claimers lock job rows in the same order.
	jobIDs := slices.SortedFunc(maps.Keys(perJob), compareUUID)
	items := 0
	for _, jobID := range jobIDs {
		n := perJob[jobID]
		items += n
		delta := domain.CounterDelta{Queued: -n, Failed: n}
		if err := s.jobRepo.ApplyCounterDelta(ctx, jobID, delta, now); err != nil {
			return err
		}
	}

	if s.logger != nil && (messages > 0 || items > 0) {
		s.logger.Warn("dead-lettered exhausted units",
			slog.Int64("messages", messages),
			slog.Int("items", items),
			slog.Int("jobs", len(jobIDs)),
		)
	}
	return nil
}

// claimItems claims job items within the per-job and per-channel budgets, oldest job first.
func (s *claimScheduler) claimItems(
	ctx context.Context,
	workerID string,
	capacity int,
	leaseCutoff, windowStart, now time.Time,
) ([]*domain.Unit, error) {
	if capacity <= 0 {
		return nil, nil
	}

	jobs, err := s.jobRepo.LockActiveJobs(ctx, windowStart)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}

	channelIDs := make([]uuid.UUID, 0, len(jobs))
	for _, job := range jobs {
		channelIDs = append(channelIDs, job.ChannelConnectionID)
	}
	slices.SortFunc(channelIDs, compareUUID)
	channelIDs = slices.Compact(channelIDs)

	channels, err := s.jobRepo.LockChannels(ctx, channelIDs, windowStart)
	if err != nil {
		return nil, err
	}
	budget := domain.NewClaimBudget(channels)

	var units []*domain.Unit
	for _, job := range jobs {
		if capacity == 0 {
			break
		}
		room := budget.Room(job, capacity)
		if room == 0 {
			continue
		}

		items, err := s.jobRepo.ClaimItems(ctx, job.JobID, workerID, room, s.maxAttempts, leaseCutoff, now)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			continue
		}

		if err := s.jobRepo.RecordClaims(ctx, job.JobID, job.ChannelConnectionID, len(items), now); err != nil {
			return nil, err
		}
		if err := s.jobRepo.MarkRunning(ctx, job.JobID, now); err != nil {
			return nil, err
		}
		budget.Consume(job, len(items))
		capacity -= len(items)

		for _, item := range items {
			units = append(units, itemUnit(item, job, workerID, now))
		}
	}
	return units, nil
}

func appendMessageUnits(
	units []*domain.Unit,
	messages []*domain.OutboxMessage,
	workerID string,
	now time.Time,
) []*domain.Unit {
	for _, msg := range messages {
		units = append(units, &domain.Unit{
			Kind:                domain.UnitMessage,
			ID:                  msg.ID,
			TenantID:            msg.TenantID,
			ChannelConnectionID: msg.ChannelConnectionID,
			Destination:         msg.Destination,
			Payload:             msg.Payload,
			Attempt:             msg.Attempts,
			ClaimedBy:           workerID,
			ClaimedAt:           now,
			CreatedAt:           msg.CreatedAt,
		})
	}
	return units
}

func itemUnit(item *domain.SendJobItem, job domain.JobBudget, workerID string, now time.Time) *domain.Unit {
	jobID := item.JobID
	channelID := job.ChannelConnectionID
	return &domain.Unit{
		Kind:                domain.UnitJobItem,
		ID:                  item.ID,
		TenantID:            item.TenantID,
		JobID:               &jobID,
		ChannelConnectionID: &channelID,
		Destination:         item.Destination,
		Variables:           item.Variables,
		Attempt:             item.Attempts,
		ClaimedBy:           workerID,
		ClaimedAt:           now,
		CreatedAt:           item.CreatedAt,
	}
}

func sortUnits(units []*domain.Unit) {
	slices.SortStableFunc(units, func(a, b *domain.Unit) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareUUID(a.ID, b.ID)
	})
}

func compareUUID(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

// NewClaimScheduler creates a new ClaimScheduler that dead-letters units after maxAttempts.
func NewClaimScheduler(
	txManager database.TxManager,
	messageRepo MessageRepository,
	jobRepo JobRepository,
	maxAttempts int,
	logger *slog.Logger,
) ClaimScheduler {
	return &claimScheduler{
		txManager:   txManager,
		messageRepo: messageRepo,
		jobRepo:     jobRepo,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}
