package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/automation/domain"
	apperrors "github.com/allisson/courier/internal/errors"
)

// Appender stores automation events through the repository, joining the caller's
// transaction, so an event exists exactly when the change that raised it commits.
type Appender struct {
	eventRepo EventRepository
	now       func() time.Time
}

// NewAppender creates a new Appender.
func NewAppender(eventRepo EventRepository) *Appender {
	return &Appender{eventRepo: eventRepo, now: time.Now}
}

// Append stores a pending event of eventType for tenantID.
func (a *Appender) Append(ctx context.Context, tenantID uuid.UUID, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal automation payload")
	}

	now := a.now().UTC()
	return a.eventRepo.Create(ctx, &domain.Event{
		ID:        uuid.Must(uuid.NewV7()),
		TenantID:  tenantID,
		EventType: eventType,
		Payload:   raw,
		Status:    domain.EventStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
}
