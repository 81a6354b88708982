package usecase

import (
	"context"
	"time"

	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
)

// healthUseCase implements HealthUseCase.
type healthUseCase struct {
	queueRepo    QueueRepository
	degradedAge  time.Duration
	unhealthyAge time.Duration
	now          func() time.Time
}

// Summary aggregates queue depth and the age of the oldest queued unit.
func (uc *healthUseCase) Summary(ctx context.Context) (*domain.QueueSummary, error) {
	counts, err := uc.queueRepo.Counts(ctx)
	if err != nil {
		return nil, apperrors.Unavailable(err)
	}
	return domain.Summarize(counts, uc.now().UTC(), uc.degradedAge, uc.unhealthyAge), nil
}

// NewHealthUseCase creates a new HealthUseCase.
func NewHealthUseCase(queueRepo QueueRepository, degradedAge, unhealthyAge time.Duration) HealthUseCase {
	return &healthUseCase{
		queueRepo:    queueRepo,
		degradedAge:  degradedAge,
		unhealthyAge: unhealthyAge,
		now:          time.Now,
	}
}
