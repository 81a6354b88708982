package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a bulk send job.
type JobStatus string

const (
	JobStatusDraft     JobStatus = "draft"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsActive reports whether items of a job in this status may be claimed.
func (s JobStatus) IsActive() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

// IsFinished reports whether the job reached a final status.
func (s JobStatus) IsFinished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// SendJob is a bulk campaign sending one template to many recipients.
//
// The counters are cached aggregates of the item statuses:
// QueuedCount covers queued and processing items, SentCount covers sent, delivered
// and read items, FailedCount covers failed items. They are updated in the same
// transaction as every item status write, so their sum always equals TotalCount.
type SendJob struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	ChannelConnectionID uuid.UUID
	TemplateName        string
	TemplateLanguage    string
	TemplateParams      []string
	GlobalVariables     map[string]string
	Status              JobStatus
	TotalCount          int
	QueuedCount         int
	SentCount           int
	FailedCount         int
	RateLimitPerMinute  int
	StartedAt           *time.Time
	CompletedAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SendJobItem is one recipient of a SendJob.
type SendJobItem struct {
	ID                uuid.UUID
	JobID             uuid.UUID
	TenantID          uuid.UUID
	ContactRef        string
	Destination       string
	Variables         map[string]string
	Status            DeliveryStatus
	Attempts          int
	ProviderMessageID *string
	LastError         *string
	ClaimedBy         *string
	ClaimedAt         *time.Time
	AvailableAt       time.Time
	SentAt            *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Recipient is one entry of a job creation request.
type Recipient struct {
	ContactRef  string
	Destination string
	Variables   map[string]string
}

// NewSendJob builds a job and its queued items. Jobs created with start=false stay
// in draft until started.
func NewSendJob(
	tenantID, channelID uuid.UUID,
	templateName, templateLanguage string,
	templateParams []string,
	globalVariables map[string]string,
	rateLimitPerMinute int,
	recipients []Recipient,
	start bool,
	now time.Time,
) (*SendJob, []*SendJobItem) {
	status := JobStatusDraft
	if start {
		status = JobStatusQueued
	}

	job := &SendJob{
		ID:                  uuid.Must(uuid.NewV7()),
		TenantID:            tenantID,
		ChannelConnectionID: channelID,
		TemplateName:        templateName,
		TemplateLanguage:    templateLanguage,
		TemplateParams:      templateParams,
		GlobalVariables:     globalVariables,
		Status:              status,
		TotalCount:          len(recipients),
		QueuedCount:         len(recipients),
		RateLimitPerMinute:  rateLimitPerMinute,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	items := make([]*SendJobItem, 0, len(recipients))
	for _, r := range recipients {
		items = append(items, &SendJobItem{
			ID:          uuid.Must(uuid.NewV7()),
			JobID:       job.ID,
			TenantID:    tenantID,
			ContactRef:  r.ContactRef,
			Destination: r.Destination,
			Variables:   r.Variables,
			Status:      StatusQueued,
			AvailableAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	return job, items
}

// CounterDelta is a change to the job counters caused by item status transitions.
type CounterDelta struct {
	Queued int
	Sent   int
	Failed int
}

// IsZero reports whether the delta changes nothing.
func (d CounterDelta) IsZero() bool {
	return d.Queued == 0 && d.Sent == 0 && d.Failed == 0
}

// Add accumulates another delta.
func (d CounterDelta) Add(other CounterDelta) CounterDelta {
	return CounterDelta{
		Queued: d.Queued + other.Queued,
		Sent:   d.Sent + other.Sent,
		Failed: d.Failed + other.Failed,
	}
}

// TransitionDelta returns the counter change for an item moving from one status to another.
func TransitionDelta(from, to DeliveryStatus) CounterDelta {
	var d CounterDelta
	fromBucket, toBucket := from.Bucket(), to.Bucket()
	if fromBucket == toBucket {
		return d
	}
	d.bump(fromBucket, -1)
	d.bump(toBucket, 1)
	return d
}

func (d *CounterDelta) bump(b JobBucket, n int) {
	switch b {
	case BucketQueued:
		d.Queued += n
	case BucketSent:
		d.Sent += n
	case BucketFailed:
		d.Failed += n
	}
}

// JobBudget is a job's claim allowance inside one claim transaction.
type JobBudget struct {
	JobID               uuid.UUID
	ChannelConnectionID uuid.UUID
	RateLimitPerMinute  int
	ClaimedInWindow     int
}

// CreateJobInput is a bulk job creation request.
type CreateJobInput struct {
	TenantID           uuid.UUID
	ChannelID          uuid.UUID
	TemplateName       string
	TemplateLanguage   string
	TemplateParams     []string
	GlobalVariables    map[string]string
	RateLimitPerMinute int
	Recipients         []Recipient
	Start              bool
}
