package domain

import (
	"encoding/hex"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// EventType classifies an inbound callback.
type EventType string

const (
	EventStatusUpdate   EventType = "status_update"
	EventInboundMessage EventType = "inbound_message"
	EventUnknown        EventType = "unknown"
)

// InboundEvent is one provider callback as received. Apart from the processing
// bookkeeping (processed flag, attempts, last error) rows are append-only.
type InboundEvent struct {
	ID          uuid.UUID
	ExternalID  string
	TenantID    *uuid.UUID
	EventType   EventType
	Payload     []byte
	ReceivedAt  time.Time
	Processed   bool
	ProcessedAt *time.Time
	Attempts    int
	LastError   *string
}

// MaxExternalIDLength is the width of the inbound_events.external_id column.
const MaxExternalIDLength = 255

// MaxContactNameLength is the width, in characters, of threads.contact_name.
const MaxContactNameLength = 255

// StatusExternalID is the deduplication key of a status callback. The status is part
// of the key because the provider reports each transition of one message separately.
func StatusExternalID(providerMessageID string, status string) string {
	return boundedKey("status:", providerMessageID+":"+status)
}

// MessageExternalID is the deduplication key of an inbound message callback.
func MessageExternalID(providerMessageID string) string {
	return boundedKey("message:", providerMessageID)
}

// FallbackExternalID keys a callback that cannot be decoded by a digest of its bytes,
// so byte-identical redeliveries still deduplicate.
func FallbackExternalID(payload []byte) string {
	return "malformed:" + digest(payload)
}

// boundedKey returns prefix+key, or prefix+"digest:"+blake2b(key) when that would
// not fit MaxExternalIDLength.
func boundedKey(prefix, key string) string {
	if len(prefix)+len(key) <= MaxExternalIDLength {
		return prefix + key
	}
	return prefix + "digest:" + digest([]byte(key))
}

func digest(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// TruncateRunes cuts s to at most n characters without splitting a rune.
func TruncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// StatusUpdate is a decoded delivery status callback.
type StatusUpdate struct {
	ProviderMessageID string
	Status            DeliveryStatus
	RawStatus         string
	RecipientID       string
	Timestamp         time.Time
	ErrorCode         string
	ErrorTitle        string
}

// InboundPayload is a decoded inbound message callback.
type InboundPayload struct {
	PhoneNumberID     string
	ProviderMessageID string
	From              string
	ContactName       string
	MessageType       string
	Body              map[string]any
	Timestamp         time.Time
}

// IngestResult summarizes the effect of one ingested callback.
type IngestResult struct {
	EventID         uuid.UUID
	ExternalID      string
	Processed       bool
	Duplicate       bool
	MessagesCreated int
	ThreadsTouched  int
	StatusesApplied int
	Error           string
}

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	ScannedEvents      int
	ReconciledEvents   int
	ReconciledMessages int
	ReconciledThreads  int
	Remaining          int
	TimedOut           bool
}
