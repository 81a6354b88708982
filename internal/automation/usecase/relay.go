// Package usecase stores automation events transactionally and relays them to a broker.
package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/courier/internal/automation/domain"
	"github.com/allisson/courier/internal/database"
)

// Config holds relay configuration.
type Config struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
}

// EventRepository defines automation event persistence.
type EventRepository interface {
	Create(ctx context.Context, event *domain.Event) error
	GetPendingEvents(ctx context.Context, limit int) ([]*domain.Event, error)
	Update(ctx context.Context, event *domain.Event) error
}

// Publisher hands one event to a downstream broker.
type Publisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// UseCase defines the relay loop.
type UseCase interface {
	Start(ctx context.Context) error
	ProcessEvents(ctx context.Context) error
}

// RelayUseCase publishes pending automation events.
type RelayUseCase struct {
	config    Config
	txManager database.TxManager
	eventRepo EventRepository
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewRelayUseCase creates a new RelayUseCase.
func NewRelayUseCase(
	config Config,
	txManager database.TxManager,
	eventRepo EventRepository,
	publisher Publisher,
	logger *slog.Logger,
) *RelayUseCase {
	return &RelayUseCase{
		config:    config,
		txManager: txManager,
		eventRepo: eventRepo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Start runs ProcessEvents every interval until ctx is done.
func (uc *RelayUseCase) Start(ctx context.Context) error {
	if uc.logger != nil {
		uc.logger.Info("starting automation relay",
			slog.Duration("interval", uc.config.Interval),
			slog.Int("batch_size", uc.config.BatchSize),
		)
	}

	ticker := time.NewTicker(uc.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if uc.logger != nil {
				uc.logger.Info("stopping automation relay")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := uc.ProcessEvents(ctx); err != nil {
				if uc.logger != nil {
					uc.logger.Error("failed to relay automation events", slog.Any("error", err))
				}
			}
		}
	}
}

// ProcessEvents locks a batch of pending events and publishes them in one transaction.
// A publish failure is counted against the event, which is marked failed after
// MaxRetries failures.
func (uc *RelayUseCase) ProcessEvents(ctx context.Context) error {
	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		events, err := uc.eventRepo.GetPendingEvents(ctx, uc.config.BatchSize)
		if err != nil {
			return err
		}

		if len(events) == 0 {
			return nil
		}

		if uc.logger != nil {
			uc.logger.Debug("relaying automation events", slog.Int("count", len(events)))
		}

		for _, event := range events {
			now := uc.now().UTC()
			event.UpdatedAt = now

			if err := uc.publisher.Publish(ctx, event); err != nil {
				if uc.logger != nil {
					uc.logger.Error("failed to publish automation event",
						slog.String("event_id", event.ID.String()),
						slog.String("event_type", event.EventType),
						slog.Any("error", err),
					)
				}

				event.Retries++
				errorMsg := err.Error()
				event.LastError = &errorMsg

				if event.Retries >= uc.config.MaxRetries {
					event.Status = domain.EventStatusFailed
				}

				if err := uc.eventRepo.Update(ctx, event); err != nil {
					return err
				}
				continue
			}

			event.Status = domain.EventStatusProcessed
			event.ProcessedAt = &now

			if err := uc.eventRepo.Update(ctx, event); err != nil {
				return err
			}
		}

		return nil
	})
}
