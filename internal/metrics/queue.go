package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// QueueStats is one observation of the delivery queue.
type QueueStats struct {
	Queued                 int64
	Processing             int64
	Failed                 int64
	OldestQueuedAgeSeconds int64
}

// QueueStatsFunc reads the current queue stats. It is called on every scrape.
type QueueStatsFunc func(ctx context.Context) (QueueStats, error)

// RegisterQueueGauges exposes queue depth and age as observable gauges. A failing read
// skips the observation so the scrape still succeeds.
func RegisterQueueGauges(meterProvider metric.MeterProvider, namespace string, read QueueStatsFunc) error {
	meter := meterProvider.Meter(namespace)

	depth, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_queue_units", namespace),
		metric.WithDescription("Delivery units by queue state"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create queue depth gauge: %w", err)
	}

	age, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_queue_oldest_age_seconds", namespace),
		metric.WithDescription("Age of the oldest queued delivery unit"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create queue age gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		stats, err := read(ctx)
		if err != nil {
			return nil
		}
		o.ObserveInt64(depth, stats.Queued, metric.WithAttributes(stateAttr("queued")))
		o.ObserveInt64(depth, stats.Processing, metric.WithAttributes(stateAttr("processing")))
		o.ObserveInt64(depth, stats.Failed, metric.WithAttributes(stateAttr("failed")))
		o.ObserveInt64(age, stats.OldestQueuedAgeSeconds)
		return nil
	}, depth, age)
	if err != nil {
		return fmt.Errorf("failed to register queue gauge callback: %w", err)
	}
	return nil
}

func stateAttr(state string) attribute.KeyValue {
	return attribute.String("state", state)
}
