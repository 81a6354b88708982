package domain

import (
	"github.com/google/uuid"
)

// unlimited marks a channel without an account-level ceiling.
const unlimited = -1

// ClaimBudget allots job item claims inside one claim transaction.
//
// Each job may claim at most RateLimitPerMinute items per trailing window, and all
// jobs of a channel together at most the channel's SendLimitPerMinute. Jobs whose
// channel row was not locked by this transaction get nothing; another claimer owns
// that channel's budget right now.
type ClaimBudget struct {
	channelRemaining map[uuid.UUID]int
}

// NewClaimBudget seeds the per-channel remaining allowance.
func NewClaimBudget(channels []ChannelBudget) *ClaimBudget {
	b := &ClaimBudget{channelRemaining: make(map[uuid.UUID]int, len(channels))}
	for _, c := range channels {
		if c.SendLimitPerMinute <= 0 {
			b.channelRemaining[c.ChannelConnectionID] = unlimited
			continue
		}
		b.channelRemaining[c.ChannelConnectionID] = max(c.SendLimitPerMinute-c.ClaimedInWindow, 0)
	}
	return b
}

// Room returns how many items job may claim now, bounded by capacity, without consuming.
func (b *ClaimBudget) Room(job JobBudget, capacity int) int {
	if capacity <= 0 {
		return 0
	}
	channel, ok := b.channelRemaining[job.ChannelConnectionID]
	if !ok {
		return 0
	}
	room := min(max(job.RateLimitPerMinute-job.ClaimedInWindow, 0), capacity)
	if channel != unlimited {
		room = min(room, channel)
	}
	return room
}

// Consume records n claimed items against the job's channel.
func (b *ClaimBudget) Consume(job JobBudget, n int) {
	channel, ok := b.channelRemaining[job.ChannelConnectionID]
	if !ok || channel == unlimited {
		return
	}
	b.channelRemaining[job.ChannelConnectionID] = max(channel-n, 0)
}
