package domain

import (
	"time"

	"github.com/google/uuid"
)

// Thread is the per-contact conversation state of a tenant.
type Thread struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ContactAddress string
	ContactName    string
	LastMessageAt  time.Time
	UnreadCount    int
	AssignedTo     *uuid.UUID
	StatusTags     []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InboundMessage is a message received from a contact.
type InboundMessage struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	ThreadID            uuid.UUID
	ChannelConnectionID uuid.UUID
	ProviderMessageID   string
	Sender              string
	MessageType         string
	Body                map[string]any
	ProviderTimestamp   time.Time
	CreatedAt           time.Time
}
