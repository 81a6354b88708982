// Package publisher delivers relayed automation events to downstream brokers.
package publisher

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/allisson/courier/internal/automation/domain"
	apperrors "github.com/allisson/courier/internal/errors"
)

// Encode renders the broker envelope of event.
func Encode(event *domain.Event) ([]byte, error) {
	var payload map[string]any
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, apperrors.Wrap(err, "failed to decode automation payload")
		}
	}

	return json.Marshal(domain.Envelope{
		ID:        event.ID.String(),
		TenantID:  event.TenantID.String(),
		EventType: event.EventType,
		Payload:   payload,
		CreatedAt: event.CreatedAt,
	})
}

// LogPublisher writes events to the log. It is the default when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a new LogPublisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs event.
func (p *LogPublisher) Publish(ctx context.Context, event *domain.Event) error {
	body, err := Encode(event)
	if err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "automation event",
		slog.String("event_id", event.ID.String()),
		slog.String("tenant_id", event.TenantID.String()),
		slog.String("event_type", event.EventType),
		slog.String("envelope", string(body)),
	)
	return nil
}

// Close implements io.Closer.
func (p *LogPublisher) Close() error {
	return nil
}
