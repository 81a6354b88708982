package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutboxMessage is one outbound single message waiting for, or finished with, delivery.
//
// Rows are created queued by the enqueuer and afterwards only mutated by the worker
// holding the claim or by provider status callbacks. Rows are never deleted.
type OutboxMessage struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	ChannelConnectionID *uuid.UUID
	Destination         string
	Payload             map[string]any
	Status              DeliveryStatus
	Attempts            int
	ProviderMessageID   *string
	LastError           *string
	ClaimedBy           *string
	ClaimedAt           *time.Time
	AvailableAt         time.Time
	SentAt              *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewOutboxMessage builds a queued message ready to be inserted.
func NewOutboxMessage(
	tenantID uuid.UUID,
	channelID *uuid.UUID,
	destination string,
	payload map[string]any,
	now time.Time,
) *OutboxMessage {
	return &OutboxMessage{
		ID:                  uuid.Must(uuid.NewV7()),
		TenantID:            tenantID,
		ChannelConnectionID: channelID,
		Destination:         destination,
		Payload:             payload,
		Status:              StatusQueued,
		AvailableAt:         now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}
