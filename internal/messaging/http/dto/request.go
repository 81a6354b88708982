// Package dto provides data transfer objects for the delivery API.
package dto

import (
	"errors"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/courier/internal/messaging/domain"
	customValidation "github.com/allisson/courier/internal/validation"
)

const (
	// MaxRecipients bounds the recipients of one bulk job request.
	MaxRecipients = 10000

	maxTemplateParams = 64
)

// EnqueueMessageRequest contains the parameters for enqueueing a single message.
type EnqueueMessageRequest struct {
	TenantID    string         `json:"tenant_id"`
	Destination string         `json:"destination"`
	Payload     map[string]any `json:"payload"`
	ChannelID   *string        `json:"channel_id"`
}

// Validate checks if the enqueue request is valid.
func (r *EnqueueMessageRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.TenantID, validation.Required, customValidation.UUID),
		validation.Field(&r.Destination, validation.Required, customValidation.E164),
		validation.Field(&r.Payload, validation.Required),
		validation.Field(&r.ChannelID, validation.NilOrNotEmpty, customValidation.UUID),
	)
}

// CreateChannelRequest contains the parameters for connecting a provider account.
type CreateChannelRequest struct {
	TenantID           string `json:"tenant_id"`
	Name               string `json:"name"`
	PhoneNumberID      string `json:"phone_number_id"`
	AccessToken        string `json:"access_token"`
	SendLimitPerMinute int    `json:"send_limit_per_minute"`
}

// Validate checks if the create channel request is valid.
func (r *CreateChannelRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.TenantID, validation.Required, customValidation.UUID),
		validation.Field(&r.Name, validation.Required, customValidation.NotBlank, validation.Length(1, 255)),
		validation.Field(&r.PhoneNumberID,
			validation.Required,
			customValidation.NoWhitespace,
			validation.Length(1, 64),
		),
		validation.Field(&r.AccessToken, validation.Required, customValidation.NotBlank),
		validation.Field(&r.SendLimitPerMinute, validation.Min(0)),
	)
}

// RecipientRequest is one recipient of a bulk job.
type RecipientRequest struct {
	ContactRef  string            `json:"contact_ref"`
	Destination string            `json:"destination"`
	Variables   map[string]string `json:"variables"`
}

// Validate checks if the recipient is valid.
func (r RecipientRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ContactRef, validation.Length(0, 255)),
		validation.Field(&r.Destination, validation.Required, customValidation.E164),
	)
}

// CreateJobRequest contains the parameters for creating a bulk send job.
type CreateJobRequest struct {
	TenantID           string             `json:"tenant_id"`
	ChannelID          string             `json:"channel_id"`
	TemplateName       string             `json:"template_name"`
	TemplateLanguage   string             `json:"template_language"`
	TemplateParams     []string           `json:"template_params"`
	GlobalVariables    map[string]string  `json:"global_variables"`
	RateLimitPerMinute int                `json:"rate_limit_per_minute"`
	Recipients         []RecipientRequest `json:"recipients"`
	// Start defaults to true; false creates a draft job.
	Start *bool `json:"start"`
}

// Validate checks if the create job request is valid.
func (r *CreateJobRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.TenantID, validation.Required, customValidation.UUID),
		validation.Field(&r.ChannelID, validation.Required, customValidation.UUID),
		validation.Field(&r.TemplateName, validation.Required, customValidation.TemplateName),
		validation.Field(&r.TemplateLanguage, validation.Required, validation.Length(2, 16)),
		validation.Field(&r.TemplateParams, validation.Length(0, maxTemplateParams)),
		validation.Field(&r.RateLimitPerMinute, validation.Min(0)),
		validation.Field(&r.Recipients, validation.Required, validation.Length(1, MaxRecipients)),
	)
}

// ToInput maps a validated request to the job creation input.
func (r *CreateJobRequest) ToInput() (domain.CreateJobInput, error) {
	tenantID, err := uuid.Parse(r.TenantID)
	if err != nil {
		return domain.CreateJobInput{}, errors.New("tenant_id: must be a valid UUID")
	}
	channelID, err := uuid.Parse(r.ChannelID)
	if err != nil {
		return domain.CreateJobInput{}, errors.New("channel_id: must be a valid UUID")
	}

	recipients := make([]domain.Recipient, 0, len(r.Recipients))
	for _, rec := range r.Recipients {
		recipients = append(recipients, domain.Recipient{
			ContactRef:  rec.ContactRef,
			Destination: rec.Destination,
			Variables:   rec.Variables,
		})
	}

	start := true
	if r.Start != nil {
		start = *r.Start
	}

	return domain.CreateJobInput{
		TenantID:           tenantID,
		ChannelID:          channelID,
		TemplateName:       r.TemplateName,
		TemplateLanguage:   r.TemplateLanguage,
		TemplateParams:     r.TemplateParams,
		GlobalVariables:    r.GlobalVariables,
		RateLimitPerMinute: r.RateLimitPerMinute,
		Recipients:         recipients,
		Start:              start,
	}, nil
}

// ReconcileRequest contains the parameters of an on-demand reconciliation pass.
type ReconcileRequest struct {
	TenantID *string `json:"tenant_id"`
	Limit    int     `json:"limit"`
}

// Validate checks if the reconcile request is valid.
func (r *ReconcileRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.TenantID, validation.NilOrNotEmpty, customValidation.UUID),
		validation.Field(&r.Limit, validation.Min(0), validation.Max(1000)),
	)
}

// ParseOptionalUUID parses an optional validated UUID string.
func ParseOptionalUUID(raw *string) *uuid.UUID {
	if raw == nil {
		return nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil
	}
	return &id
}
