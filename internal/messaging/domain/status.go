// Package domain defines the core delivery and ingestion entities: outbound messages,
// bulk send jobs and their items, channel connections, inbound events and threads.
package domain

import "strings"

// DeliveryStatus is the lifecycle state of an outbound message or job item.
type DeliveryStatus string

const (
	StatusQueued     DeliveryStatus = "queued"
	StatusProcessing DeliveryStatus = "processing"
	StatusSent       DeliveryStatus = "sent"
	StatusDelivered  DeliveryStatus = "delivered"
	StatusRead       DeliveryStatus = "read"
	StatusFailed     DeliveryStatus = "failed"
)

// rank orders the non-failed statuses along the forward path.
var rank = map[DeliveryStatus]int{
	StatusQueued:     0,
	StatusProcessing: 1,
	StatusSent:       2,
	StatusDelivered:  3,
	StatusRead:       4,
}

// Valid reports whether s is a known delivery status.
func (s DeliveryStatus) Valid() bool {
	if s == StatusFailed {
		return true
	}
	_, ok := rank[s]
	return ok
}

// IsTerminal reports whether no further worker action is expected for s.
func (s DeliveryStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusSent || s == StatusDelivered || s == StatusRead
}

// CanAdvanceTo reports whether a status callback may move a unit from s to next.
//
// Statuses only move forward. Failed is terminal and can replace queued, processing
// or sent, but never delivered or read: a late failure report must not regress a
// message the recipient already has. Equal statuses are not an advance, which makes
// re-applying a callback a no-op.
func (s DeliveryStatus) CanAdvanceTo(next DeliveryStatus) bool {
	if s == StatusFailed || !next.Valid() || !s.Valid() {
		return false
	}
	if next == StatusFailed {
		return rank[s] < rank[StatusDelivered]
	}
	return rank[next] > rank[s]
}

// JobBucket is the job counter a delivery status is accounted in.
type JobBucket int

const (
	BucketQueued JobBucket = iota
	BucketSent
	BucketFailed
)

// Bucket returns the job counter bucket of s.
func (s DeliveryStatus) Bucket() JobBucket {
	switch s {
	case StatusSent, StatusDelivered, StatusRead:
		return BucketSent
	case StatusFailed:
		return BucketFailed
	default:
		return BucketQueued
	}
}

// ParseProviderStatus maps a provider status string to a delivery status.
// The boolean is false for statuses this service does not track.
func ParseProviderStatus(s string) (DeliveryStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sent":
		return StatusSent, true
	case "delivered":
		return StatusDelivered, true
	case "read":
		return StatusRead, true
	case "failed", "undeliverable":
		return StatusFailed, true
	default:
		return "", false
	}
}
