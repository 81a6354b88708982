package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// UnitKind distinguishes single messages from job items.
type UnitKind string

const (
	UnitMessage UnitKind = "message"
	UnitJobItem UnitKind = "job_item"
)

// Unit is one claimed piece of work: an OutboxMessage or a SendJobItem.
type Unit struct {
	Kind                UnitKind
	ID                  uuid.UUID
	TenantID            uuid.UUID
	JobID               *uuid.UUID
	ChannelConnectionID *uuid.UUID
	Destination         string
	Payload             map[string]any
	Variables           map[string]string
	Attempt             int
	ClaimedBy           string
	ClaimedAt           time.Time
	CreatedAt           time.Time
}

// Outcome is the result of one delivery attempt, ready to be recorded.
type Outcome struct {
	Status            DeliveryStatus
	ProviderMessageID *string
	Error             *string
	AvailableAt       time.Time
	At                time.Time
}

// DeliveryError is a classified provider failure.
type DeliveryError struct {
	Code      string
	Message   string
	Retryable bool
}

// Error implements error.
func (e *DeliveryError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewRetryableError builds a transient delivery failure.
func NewRetryableError(code, message string) *DeliveryError {
	return &DeliveryError{Code: code, Message: message, Retryable: true}
}

// NewPermanentError builds a delivery failure that must not be retried.
func NewPermanentError(code, message string) *DeliveryError {
	return &DeliveryError{Code: code, Message: message, Retryable: false}
}

// IsRetryable classifies an arbitrary send error. Timeouts and unclassified
// errors (network, breaker open) are retryable; only an explicit permanent
// DeliveryError stops retries.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return true
}

// RetryPolicy computes the deferral of a transiently failed unit.
type RetryPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Delay returns the backoff before the attempt following attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := float64(p.BaseDelay) * math.Pow(2, float64(max(attempt-1, 0)))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// MaxAttemptsExceeded is the error prefix written when a unit is dead-lettered.
const MaxAttemptsExceeded = "max attempts exceeded"

// DecideOutcome maps a send result to the status the unit should be recorded with.
//
// Success is sent. A permanent error fails immediately. A retryable error puts the
// unit back in queued with a backoff deferral unless this was the last allowed
// attempt, in which case the unit is dead-lettered.
func DecideOutcome(
	unit *Unit,
	providerMessageID string,
	sendErr error,
	maxAttempts int,
	policy RetryPolicy,
	now time.Time,
) Outcome {
	if sendErr == nil {
		id := providerMessageID
		return Outcome{Status: StatusSent, ProviderMessageID: &id, AvailableAt: now, At: now}
	}

	msg := sendErr.Error()
	if !IsRetryable(sendErr) {
		return Outcome{Status: StatusFailed, Error: &msg, AvailableAt: now, At: now}
	}

	if unit.Attempt >= maxAttempts {
		dead := fmt.Sprintf("%s: %s", MaxAttemptsExceeded, msg)
		return Outcome{Status: StatusFailed, Error: &dead, AvailableAt: now, At: now}
	}

	return Outcome{
		Status:      StatusQueued,
		Error:       &msg,
		AvailableAt: now.Add(policy.Delay(unit.Attempt)),
		At:          now,
	}
}
