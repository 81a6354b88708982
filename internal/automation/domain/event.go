// Package domain defines the automation events handed to downstream consumers.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus represents the relay status of an automation event.
type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusProcessed EventStatus = "processed"
	EventStatusFailed    EventStatus = "failed"
)

// Event is one automation trigger stored in the same transaction as the change that
// raised it and relayed to a broker afterwards.
type Event struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	EventType   string
	Payload     []byte
	Status      EventStatus
	Retries     int
	LastError   *string
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Envelope is the document published to brokers.
type Envelope struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}
