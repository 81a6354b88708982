package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Delivery statuses recorded in addition to the unit statuses.
const (
	DeliveryLeaseLost    = "lease_lost"
	DeliveryRecordFailed = "record_failed"
)

// BusinessMetrics records delivery pipeline metrics.
type BusinessMetrics interface {
	// RecordOperation counts one use case call. domain groups operations ("messages",
	// "jobs", "provider"); status is "success" or "error" unless the operation has
	// richer outcomes ("duplicate", "retryable").
	RecordOperation(ctx context.Context, domain, operation, status string)

	// RecordDuration records how long one use case call took, in seconds.
	RecordDuration(ctx context.Context, domain, operation string, duration time.Duration, status string)

	// RecordDelivery counts one finished delivery attempt of a unit. kind is "message"
	// or "job_item"; status is the status the unit was left in, or DeliveryLeaseLost /
	// DeliveryRecordFailed when the outcome could not be written.
	RecordDelivery(ctx context.Context, kind, status string, attempt int)
}

type businessMetrics struct {
	operationCounter metric.Int64Counter
	durationHisto    metric.Float64Histogram
	deliveryCounter  metric.Int64Counter
	attemptHisto     metric.Int64Histogram
}

// NewBusinessMetrics creates the instruments under namespace (e.g. "courier").
func NewBusinessMetrics(meterProvider metric.MeterProvider, namespace string) (BusinessMetrics, error) {
	meter := meterProvider.Meter(namespace)

	operationCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_operations_total", namespace),
		metric.WithDescription("Total number of delivery pipeline operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	durationHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_operation_duration_seconds", namespace),
		metric.WithDescription("Duration of delivery pipeline operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	deliveryCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_deliveries_total", namespace),
		metric.WithDescription("Delivery attempts by unit kind and resulting status"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery counter: %w", err)
	}

	attemptHisto, err := meter.Int64Histogram(
		fmt.Sprintf("%s_delivery_attempt_number", namespace),
		metric.WithDescription("Attempt number at which a unit reached its status"),
		metric.WithUnit("{attempt}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 5, 8, 13),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create attempt histogram: %w", err)
	}

	return &businessMetrics{
		operationCounter: operationCounter,
		durationHisto:    durationHisto,
		deliveryCounter:  deliveryCounter,
		attemptHisto:     attemptHisto,
	}, nil
}

func operationAttrs(domain, operation, status string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
}

func (b *businessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	b.operationCounter.Add(ctx, 1, operationAttrs(domain, operation, status))
}

func (b *businessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	b.durationHisto.Record(ctx, duration.Seconds(), operationAttrs(domain, operation, status))
}

func (b *businessMetrics) RecordDelivery(ctx context.Context, kind, status string, attempt int) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	)
	b.deliveryCounter.Add(ctx, 1, attrs)
	b.attemptHisto.Record(ctx, int64(attempt), attrs)
}

// NoOpBusinessMetrics is used when metrics are disabled.
type NoOpBusinessMetrics struct{}

// NewNoOpBusinessMetrics creates a no-op BusinessMetrics implementation.
func NewNoOpBusinessMetrics() BusinessMetrics {
	return &NoOpBusinessMetrics{}
}

func (n *NoOpBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
}

func (n *NoOpBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
}

func (n *NoOpBusinessMetrics) RecordDelivery(ctx context.Context, kind, status string, attempt int) {}
