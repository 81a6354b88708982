package domain

import "time"

// QueueHealth is the operational verdict of a queue summary.
type QueueHealth string

const (
	QueueHealthy   QueueHealth = "healthy"
	QueueDegraded  QueueHealth = "degraded"
	QueueUnhealthy QueueHealth = "unhealthy"
)

// QueueCounts is the raw aggregation read from the store.
type QueueCounts struct {
	Queued         int64
	Processing     int64
	Failed         int64
	OldestQueuedAt *time.Time
}

// QueueSummary is the health view over messages and active job items.
type QueueSummary struct {
	QueuedCount            int64
	ProcessingCount        int64
	FailedCount            int64
	OldestQueuedAgeSeconds int64
	Status                 QueueHealth
	OK                     bool
}

// Summarize derives the summary from counts at now. The queue is unhealthy once the
// oldest queued unit waited unhealthyAge, degraded once it waited degradedAge.
func Summarize(counts QueueCounts, now time.Time, degradedAge, unhealthyAge time.Duration) *QueueSummary {
	s := &QueueSummary{
		QueuedCount:     counts.Queued,
		ProcessingCount: counts.Processing,
		FailedCount:     counts.Failed,
		Status:          QueueHealthy,
	}

	var age time.Duration
	if counts.OldestQueuedAt != nil {
		age = max(now.Sub(*counts.OldestQueuedAt), 0)
	}
	s.OldestQueuedAgeSeconds = int64(age / time.Second)

	switch {
	case unhealthyAge > 0 && age >= unhealthyAge:
		s.Status = QueueUnhealthy
	case degradedAge > 0 && age >= degradedAge:
		s.Status = QueueDegraded
	}
	s.OK = s.Status != QueueUnhealthy
	return s
}
