package domain

import (
	"github.com/allisson/courier/internal/errors"
)

// Delivery and ingestion error definitions.
var (
	// ErrMessageNotFound indicates the outbound message does not exist.
	ErrMessageNotFound = errors.Wrap(errors.ErrNotFound, "message not found")

	// ErrJobNotFound indicates the send job does not exist.
	ErrJobNotFound = errors.Wrap(errors.ErrNotFound, "send job not found")

	// ErrJobItemNotFound indicates the send job item does not exist.
	ErrJobItemNotFound = errors.Wrap(errors.ErrNotFound, "send job item not found")

	// ErrChannelNotFound indicates the channel connection does not exist.
	ErrChannelNotFound = errors.Wrap(errors.ErrNotFound, "channel connection not found")

	// ErrEventNotFound indicates the inbound event does not exist or is already processed.
	ErrEventNotFound = errors.Wrap(errors.ErrNotFound, "inbound event not found")

	// ErrThreadNotFound indicates the thread does not exist.
	ErrThreadNotFound = errors.Wrap(errors.ErrNotFound, "thread not found")

	// ErrInvalidDestination indicates the destination is not an E.164 phone number.
	ErrInvalidDestination = errors.Wrap(errors.ErrInvalidInput, "destination must be in E.164 format")

	// ErrInvalidPayload indicates the message payload does not match its schema.
	ErrInvalidPayload = errors.Wrap(errors.ErrInvalidInput, "invalid message payload")

	// ErrInvalidVariables indicates template variables do not match their schema.
	ErrInvalidVariables = errors.Wrap(errors.ErrInvalidInput, "invalid template variables")

	// ErrChannelTenantMismatch indicates the channel belongs to another tenant.
	ErrChannelTenantMismatch = errors.Wrap(errors.ErrInvalidInput, "channel connection belongs to another tenant")

	// ErrJobNotStartable indicates the job is not a draft.
	ErrJobNotStartable = errors.Wrap(errors.ErrConflict, "only draft jobs can be started")

	// ErrJobNotCancellable indicates the job already finished.
	ErrJobNotCancellable = errors.Wrap(errors.ErrConflict, "finished jobs cannot be cancelled")

	// ErrPhoneNumberInUse indicates another channel connection owns the phone number id.
	ErrPhoneNumberInUse = errors.Wrap(errors.ErrConflict, "phone number id already connected")

	// ErrMalformedEvent indicates a callback could not be decoded.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrUnknownChannel indicates a callback references an unknown phone number id.
	ErrUnknownChannel = errors.New("no channel connection for phone number id")

	// ErrUnknownProviderMessage indicates a status callback for a provider id no unit carries yet.
	ErrUnknownProviderMessage = errors.New("no message for provider message id")
)
