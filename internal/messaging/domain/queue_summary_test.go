package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name       string
		counts     QueueCounts
		wantStatus QueueHealth
		wantOK     bool
		wantAge    int64
	}{
		{"empty queue", QueueCounts{}, QueueHealthy, true, 0},
		{"fresh queue", QueueCounts{Queued: 3, OldestQueuedAt: ago(10 * time.Second)}, QueueHealthy, true, 10},
		{"degraded", QueueCounts{Queued: 3, OldestQueuedAt: ago(6 * time.Minute)}, QueueDegraded, true, 360},
		{"unhealthy", QueueCounts{Queued: 3, OldestQueuedAt: ago(20 * time.Minute)}, QueueUnhealthy, false, 1200},
		{"clock skew", QueueCounts{Queued: 1, OldestQueuedAt: ago(-time.Minute)}, QueueHealthy, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(tt.counts, now, 5*time.Minute, 15*time.Minute)
			assert.Equal(t, tt.wantStatus, s.Status)
			assert.Equal(t, tt.wantOK, s.OK)
			assert.Equal(t, tt.wantAge, s.OldestQueuedAgeSeconds)
			assert.Equal(t, tt.counts.Queued, s.QueuedCount)
		})
	}
}
