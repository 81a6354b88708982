package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChannelConnection is a tenant's provider account.
//
// The access token is stored sealed by the secrets keeper; SendLimitPerMinute is the
// account-level ceiling shared by all jobs on the channel, 0 meaning no ceiling.
type ChannelConnection struct {
	ID                    uuid.UUID
	TenantID              uuid.UUID
	Name                  string
	PhoneNumberID         string
	AccessTokenCiphertext []byte
	SendLimitPerMinute    int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ChannelBudget is a channel's claim allowance inside one claim transaction.
type ChannelBudget struct {
	ChannelConnectionID uuid.UUID
	SendLimitPerMinute  int
	ClaimedInWindow     int
}
