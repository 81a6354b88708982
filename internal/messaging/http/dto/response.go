package dto

import (
	"time"

	"github.com/allisson/courier/internal/httputil"
	"github.com/allisson/courier/internal/messaging/domain"
)

// EnqueueResponse is returned when a message is accepted.
type EnqueueResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// MessageResponse represents an outbound message in API responses.
type MessageResponse struct {
	ID                  string     `json:"id"`
	TenantID            string     `json:"tenant_id"`
	ChannelConnectionID *string    `json:"channel_id,omitempty"`
	Destination         string     `json:"destination"`
	Status              string     `json:"status"`
	Attempts            int        `json:"attempts"`
	ProviderMessageID   *string    `json:"provider_message_id,omitempty"`
	LastError           *string    `json:"last_error,omitempty"`
	AvailableAt         time.Time  `json:"available_at"`
	SentAt              *time.Time `json:"sent_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// MapEnqueueResponse maps an accepted message to the 202 body.
func MapEnqueueResponse(msg *domain.OutboxMessage) EnqueueResponse {
	return EnqueueResponse{ID: msg.ID.String(), Status: string(msg.Status)}
}

// MapMessageResponse maps a domain message to its response.
func MapMessageResponse(msg *domain.OutboxMessage) MessageResponse {
	resp := MessageResponse{
		ID:                msg.ID.String(),
		TenantID:          msg.TenantID.String(),
		Destination:       msg.Destination,
		Status:            string(msg.Status),
		Attempts:          msg.Attempts,
		ProviderMessageID: msg.ProviderMessageID,
		LastError:         msg.LastError,
		AvailableAt:       msg.AvailableAt,
		SentAt:            msg.SentAt,
		CreatedAt:         msg.CreatedAt,
		UpdatedAt:         msg.UpdatedAt,
	}
	if msg.ChannelConnectionID != nil {
		id := msg.ChannelConnectionID.String()
		resp.ChannelConnectionID = &id
	}
	return resp
}

// ChannelResponse represents a channel connection. The access token is never returned.
type ChannelResponse struct {
	ID                 string    `json:"id"`
	TenantID           string    `json:"tenant_id"`
	Name               string    `json:"name"`
	PhoneNumberID      string    `json:"phone_number_id"`
	SendLimitPerMinute int       `json:"send_limit_per_minute"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// MapChannelResponse maps a channel connection to its response.
func MapChannelResponse(ch *domain.ChannelConnection) ChannelResponse {
	return ChannelResponse{
		ID:                 ch.ID.String(),
		TenantID:           ch.TenantID.String(),
		Name:               ch.Name,
		PhoneNumberID:      ch.PhoneNumberID,
		SendLimitPerMinute: ch.SendLimitPerMinute,
		CreatedAt:          ch.CreatedAt,
		UpdatedAt:          ch.UpdatedAt,
	}
}

// ListChannelsResponse wraps a page of channel connections.
type ListChannelsResponse struct {
	Data []ChannelResponse `json:"data"`
}

// MapListChannelsResponse maps a page of channel connections.
func MapListChannelsResponse(channels []*domain.ChannelConnection) ListChannelsResponse {
	data := make([]ChannelResponse, 0, len(channels))
	for _, ch := range channels {
		data = append(data, MapChannelResponse(ch))
	}
	return ListChannelsResponse{Data: data}
}

// JobResponse represents a bulk job with its counters.
type JobResponse struct {
	ID                 string     `json:"id"`
	TenantID           string     `json:"tenant_id"`
	ChannelID          string     `json:"channel_id"`
	TemplateName       string     `json:"template_name"`
	TemplateLanguage   string     `json:"template_language"`
	Status             string     `json:"status"`
	TotalCount         int        `json:"total_count"`
	QueuedCount        int        `json:"queued_count"`
	SentCount          int        `json:"sent_count"`
	FailedCount        int        `json:"failed_count"`
	RateLimitPerMinute int        `json:"rate_limit_per_minute"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// MapJobResponse maps a send job to its response.
func MapJobResponse(job *domain.SendJob) JobResponse {
	return JobResponse{
		ID:                 job.ID.String(),
		TenantID:           job.TenantID.String(),
		ChannelID:          job.ChannelConnectionID.String(),
		TemplateName:       job.TemplateName,
		TemplateLanguage:   job.TemplateLanguage,
		Status:             string(job.Status),
		TotalCount:         job.TotalCount,
		QueuedCount:        job.QueuedCount,
		SentCount:          job.SentCount,
		FailedCount:        job.FailedCount,
		RateLimitPerMinute: job.RateLimitPerMinute,
		StartedAt:          job.StartedAt,
		CompletedAt:        job.CompletedAt,
		CreatedAt:          job.CreatedAt,
		UpdatedAt:          job.UpdatedAt,
	}
}

// JobItemResponse represents one recipient of a bulk job.
type JobItemResponse struct {
	ID                string     `json:"id"`
	ContactRef        string     `json:"contact_ref,omitempty"`
	Destination       string     `json:"destination"`
	Status            string     `json:"status"`
	Attempts          int        `json:"attempts"`
	ProviderMessageID *string    `json:"provider_message_id,omitempty"`
	LastError         *string    `json:"last_error,omitempty"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ListJobItemsResponse wraps a page of job items.
type ListJobItemsResponse struct {
	Data []JobItemResponse `json:"data"`
	Meta httputil.PageMeta `json:"meta"`
}

// MapListJobItemsResponse maps a page of job items.
func MapListJobItemsResponse(items []*domain.SendJobItem, offset, limit int, total int64) ListJobItemsResponse {
	data := make([]JobItemResponse, 0, len(items))
	for _, item := range items {
		data = append(data, JobItemResponse{
			ID:                item.ID.String(),
			ContactRef:        item.ContactRef,
			Destination:       item.Destination,
			Status:            string(item.Status),
			Attempts:          item.Attempts,
			ProviderMessageID: item.ProviderMessageID,
			LastError:         item.LastError,
			SentAt:            item.SentAt,
			UpdatedAt:         item.UpdatedAt,
		})
	}
	return ListJobItemsResponse{
		Data: data,
		Meta: httputil.PageMeta{Offset: offset, Limit: limit, Total: total},
	}
}

// QueueHealthResponse is the queue health report.
type QueueHealthResponse struct {
	OK                     bool   `json:"ok"`
	Status                 string `json:"status"`
	QueuedCount            int64  `json:"queued_count"`
	ProcessingCount        int64  `json:"processing_count"`
	FailedCount            int64  `json:"failed_count"`
	OldestQueuedAgeSeconds int64  `json:"oldest_queued_age_seconds"`
}

// MapQueueHealthResponse maps a queue summary.
func MapQueueHealthResponse(s *domain.QueueSummary) QueueHealthResponse {
	return QueueHealthResponse{
		OK:                     s.OK,
		Status:                 string(s.Status),
		QueuedCount:            s.QueuedCount,
		ProcessingCount:        s.ProcessingCount,
		FailedCount:            s.FailedCount,
		OldestQueuedAgeSeconds: s.OldestQueuedAgeSeconds,
	}
}

// ReconcileResponse reports an on-demand reconciliation pass.
type ReconcileResponse struct {
	ScannedEvents      int  `json:"scanned_events"`
	ReconciledEvents   int  `json:"reconciled_events"`
	ReconciledMessages int  `json:"reconciled_messages"`
	ReconciledThreads  int  `json:"reconciled_threads"`
	Remaining          int  `json:"remaining"`
	TimedOut           bool `json:"timed_out"`
}

// MapReconcileResponse maps a reconciliation result.
func MapReconcileResponse(r *domain.ReconcileResult) ReconcileResponse {
	return ReconcileResponse{
		ScannedEvents:      r.ScannedEvents,
		ReconciledEvents:   r.ReconciledEvents,
		ReconciledMessages: r.ReconciledMessages,
		ReconciledThreads:  r.ReconciledThreads,
		Remaining:          r.Remaining,
		TimedOut:           r.TimedOut,
	}
}

// WebhookResponse acknowledges a webhook delivery.
type WebhookResponse struct {
	Received   int `json:"received"`
	Processed  int `json:"processed"`
	Duplicates int `json:"duplicates"`
	Retained   int `json:"retained"`
}
