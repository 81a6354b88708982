package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/validation"
)

// minClaimLogAge keeps the rows the trailing rate-limit window still reads.
const minClaimLogAge = time.Minute

// jobUseCase implements JobUseCase.
type jobUseCase struct {
	txManager   database.TxManager
	jobRepo     JobRepository
	channelRepo ChannelRepository
	validator   PayloadValidator
	logger      *slog.Logger
}

// Create validates the request and inserts the job with all of its items in one transaction.
func (uc *jobUseCase) Create(ctx context.Context, input domain.CreateJobInput) (*domain.SendJob, error) {
	if err := uc.validate(input); err != nil {
		return nil, err
	}

	channel, err := uc.channelRepo.Get(ctx, input.ChannelID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "channel connection not found")
		}
		return nil, apperrors.Unavailable(err)
	}
	if channel.TenantID != input.TenantID {
		return nil, domain.ErrChannelTenantMismatch
	}

	job, items := domain.NewSendJob(
		input.TenantID,
		input.ChannelID,
		input.TemplateName,
		input.TemplateLanguage,
		input.TemplateParams,
		input.GlobalVariables,
		input.RateLimitPerMinute,
		input.Recipients,
		input.Start,
		time.Now().UTC(),
	)

	err = uc.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := uc.jobRepo.Create(txCtx, job); err != nil {
			return err
		}
		return uc.jobRepo.CreateItems(txCtx, items)
	})
	if err != nil {
		return nil, apperrors.Unavailable(err)
	}

	if uc.logger != nil {
		uc.logger.Info("send job created",
			slog.String("job_id", job.ID.String()),
			slog.String("tenant_id", job.TenantID.String()),
			slog.String("status", string(job.Status)),
			slog.Int("total_count", job.TotalCount),
		)
	}

	return job, nil
}

func (uc *jobUseCase) validate(input domain.CreateJobInput) error {
	if strings.TrimSpace(input.TemplateName) == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "template name is required")
	}
	if input.RateLimitPerMinute <= 0 {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "rate limit per minute must be positive")
	}
	if len(input.Recipients) == 0 {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "at least one recipient is required")
	}
	if err := uc.validator.ValidateVariables(input.GlobalVariables); err != nil {
		return apperrors.Wrap(domain.ErrInvalidVariables, err.Error())
	}

	for i, r := range input.Recipients {
		if !validation.IsE164(r.Destination) {
			return apperrors.Wrap(domain.ErrInvalidDestination, fmt.Sprintf("recipients[%d]", i))
		}
		if err := uc.validator.ValidateVariables(r.Variables); err != nil {
			return apperrors.Wrap(domain.ErrInvalidVariables, fmt.Sprintf("recipients[%d]: %s", i, err))
		}
	}
	return nil
}

// Get returns a job with its counters.
func (uc *jobUseCase) Get(ctx context.Context, id uuid.UUID) (*domain.SendJob, error) {
	return uc.jobRepo.Get(ctx, id)
}

// ListItems returns a page of the job's items, optionally filtered by status, and the
// total number of matching items.
func (uc *jobUseCase) ListItems(
	ctx context.Context,
	jobID uuid.UUID,
	status *domain.DeliveryStatus,
	offset, limit int,
) ([]*domain.SendJobItem, int64, error) {
	if status != nil && !status.Valid() {
		return nil, 0, apperrors.Wrap(apperrors.ErrInvalidInput, "unknown item status")
	}
	if _, err := uc.jobRepo.Get(ctx, jobID); err != nil {
		return nil, 0, err
	}
	return uc.jobRepo.ListItems(ctx, jobID, status, offset, limit)
}

// Start moves a draft job to queued so its items become claimable.
func (uc *jobUseCase) Start(ctx context.Context, id uuid.UUID) (*domain.SendJob, error) {
	return uc.transition(ctx, id, domain.JobStatusQueued, func(job *domain.SendJob) error {
		if job.Status != domain.JobStatusDraft {
			return domain.ErrJobNotStartable
		}
		return nil
	})
}

// Cancel stops a job that has not finished. Items already claimed complete normally;
// queued items are never claimed again.
func (uc *jobUseCase) Cancel(ctx context.Context, id uuid.UUID) (*domain.SendJob, error) {
	return uc.transition(ctx, id, domain.JobStatusCancelled, func(job *domain.SendJob) error {
		if job.Status.IsFinished() {
			return domain.ErrJobNotCancellable
		}
		return nil
	})
}

func (uc *jobUseCase) transition(
	ctx context.Context,
	id uuid.UUID,
	to domain.JobStatus,
	allowed func(job *domain.SendJob) error,
) (*domain.SendJob, error) {
	var job *domain.SendJob
	err := uc.txManager.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		job, err = uc.jobRepo.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if err := allowed(job); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := uc.jobRepo.UpdateStatus(txCtx, id, to, now); err != nil {
			return err
		}
		job.Status = to
		job.UpdatedAt = now
		if to.IsFinished() {
			job.CompletedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.logger != nil {
		uc.logger.Info("send job status changed",
			slog.String("job_id", id.String()),
			slog.String("status", string(to)),
		)
	}

	return job, nil
}

// CleanClaimLog prunes claim log rows older than olderThan. Ages under one minute are
// raised to one minute; dryRun only counts.
func (uc *jobUseCase) CleanClaimLog(ctx context.Context, olderThan time.Duration, dryRun bool) (int64, error) {
	olderThan = max(olderThan, minClaimLogAge)
	before := time.Now().UTC().Add(-olderThan)

	count, err := uc.jobRepo.DeleteClaimsBefore(ctx, before, dryRun)
	if err != nil {
		return 0, err
	}

	if uc.logger != nil {
		uc.logger.Info("claim log cleaned",
			slog.Int64("count", count),
			slog.Bool("dry_run", dryRun),
			slog.Time("before", before),
		)
	}

	return count, nil
}

// NewJobUseCase creates a new JobUseCase.
func NewJobUseCase(
	txManager database.TxManager,
	jobRepo JobRepository,
	channelRepo ChannelRepository,
	validator PayloadValidator,
	logger *slog.Logger,
) JobUseCase {
	return &jobUseCase{
		txManager:   txManager,
		jobRepo:     jobRepo,
		channelRepo: channelRepo,
		validator:   validator,
		logger:      logger,
	}
}
