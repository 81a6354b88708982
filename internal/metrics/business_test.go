package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertMetricLine checks the exposition output for name with labels matching the
// pattern and the given value. OTel scope labels are tolerated in between.
func assertMetricLine(t *testing.T, output, name, labels, value string) {
	t.Helper()
	pattern := name + `\{[^}]*` + labels + `[^}]*\} ` + value
	assert.Regexp(t, pattern, output)
}

func scrape(t *testing.T, provider *Provider) string {
	t.Helper()
	w := httptest.NewRecorder()
	provider.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestNewBusinessMetrics(t *testing.T) {
	provider, err := NewProvider("courier_test")
	require.NoError(t, err)

	businessMetrics, err := NewBusinessMetrics(provider.MeterProvider(), "courier_test")
	require.NoError(t, err)
	assert.NotNil(t, businessMetrics)
}

func TestBusinessMetrics_Operations(t *testing.T) {
	provider, err := NewProvider("ops_test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "ops_test")
	require.NoError(t, err)

	ctx := context.Background()
	bm.RecordOperation(ctx, "messages", "message_enqueue", "success")
	bm.RecordOperation(ctx, "messages", "message_enqueue", "success")
	bm.RecordOperation(ctx, "messages", "message_enqueue", "error")
	bm.RecordOperation(ctx, "ingest", "event_ingest", "duplicate")
	bm.RecordDuration(ctx, "messages", "message_enqueue", 10*time.Millisecond, "success")
	bm.RecordDuration(ctx, "messages", "message_enqueue", 30*time.Millisecond, "success")
	bm.RecordDuration(ctx, "jobs", "job_start", 150*time.Millisecond, "error")

	output := scrape(t, provider)

	assertMetricLine(t, output, `ops_test_operations_total`,
		`domain="messages".*operation="message_enqueue".*status="success"`, `2`)
	assertMetricLine(t, output, `ops_test_operations_total`,
		`domain="messages".*operation="message_enqueue".*status="error"`, `1`)
	assertMetricLine(t, output, `ops_test_operations_total`,
		`domain="ingest".*operation="event_ingest".*status="duplicate"`, `1`)
	assertMetricLine(t, output, `ops_test_operation_duration_seconds_count`,
		`domain="messages".*operation="message_enqueue".*status="success"`, `2`)
	assertMetricLine(t, output, `ops_test_operation_duration_seconds_count`,
		`domain="jobs".*operation="job_start".*status="error"`, `1`)
}

func TestBusinessMetrics_RecordDelivery(t *testing.T) {
	provider, err := NewProvider("delivery_test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "delivery_test")
	require.NoError(t, err)

	ctx := context.Background()
	bm.RecordDelivery(ctx, "message", "sent", 1)
	bm.RecordDelivery(ctx, "message", "sent", 2)
	bm.RecordDelivery(ctx, "job_item", "queued", 1)
	bm.RecordDelivery(ctx, "job_item", "failed", 5)
	bm.RecordDelivery(ctx, "message", DeliveryLeaseLost, 3)

	output := scrape(t, provider)

	assertMetricLine(t, output, `delivery_test_deliveries_total`, `kind="message".*status="sent"`, `2`)
	assertMetricLine(t, output, `delivery_test_deliveries_total`, `kind="job_item".*status="queued"`, `1`)
	assertMetricLine(t, output, `delivery_test_deliveries_total`, `kind="job_item".*status="failed"`, `1`)
	assertMetricLine(t, output, `delivery_test_deliveries_total`, `kind="message".*status="lease_lost"`, `1`)
	assertMetricLine(t, output, `delivery_test_delivery_attempt_number_sum`, `kind="message".*status="sent"`, `3`)
	assertMetricLine(t, output, `delivery_test_delivery_attempt_number_bucket`,
		`kind="job_item".*status="failed".*le="3"`, `0`)
}

func TestNoOpBusinessMetrics(t *testing.T) {
	noOp := NewNoOpBusinessMetrics()
	assert.IsType(t, &NoOpBusinessMetrics{}, noOp)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		noOp.RecordOperation(ctx, "messages", "message_enqueue", "success")
		noOp.RecordDuration(ctx, "messages", "message_enqueue", time.Millisecond, "success")
		noOp.RecordDelivery(ctx, "message", "sent", 1)
	})
}
