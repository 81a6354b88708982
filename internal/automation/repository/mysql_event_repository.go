package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/courier/internal/automation/domain"
	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
)

// MySQLEventRepository handles automation event persistence for MySQL.
type MySQLEventRepository struct {
	db *sql.DB
}

// NewMySQLEventRepository creates a new MySQLEventRepository.
func NewMySQLEventRepository(db *sql.DB) *MySQLEventRepository {
	return &MySQLEventRepository{
		db: db,
	}
}

// Create inserts a new automation event, joining the transaction in ctx if any.
func (r *MySQLEventRepository) Create(ctx context.Context, event *domain.Event) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO automation_events (id, tenant_id, event_type, payload, status, retries, last_error,
			  processed_at, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	// BINARY(16) ids
	idBytes, err := event.ID.MarshalBinary()
	if err != nil {
		return err
	}
	tenantBytes, err := event.TenantID.MarshalBinary()
	if err != nil {
		return err
	}

	_, err = querier.ExecContext(ctx, query, idBytes, tenantBytes, event.EventType, event.Payload,
		event.Status, event.Retries, event.LastError, event.ProcessedAt, event.CreatedAt, event.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create automation event")
	}
	return nil
}

// GetPendingEvents locks up to limit pending events, oldest first. Rows locked by
// another relay are skipped.
func (r *MySQLEventRepository) GetPendingEvents(ctx context.Context, limit int) ([]*domain.Event, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, tenant_id, event_type, payload, status, retries, last_error, processed_at,
			  created_at, updated_at
			  FROM automation_events
			  WHERE status = ?
			  ORDER BY created_at ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, domain.EventStatusPending, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get pending automation events")
	}
	defer rows.Close() //nolint:errcheck

	var events []*domain.Event
	for rows.Next() {
		var event domain.Event
		var idBytes, tenantBytes []byte

		err := rows.Scan(&idBytes, &tenantBytes, &event.EventType, &event.Payload, &event.Status,
			&event.Retries, &event.LastError, &event.ProcessedAt, &event.CreatedAt, &event.UpdatedAt)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan automation event")
		}

		if err := event.ID.UnmarshalBinary(idBytes); err != nil {
			return nil, err
		}
		if err := event.TenantID.UnmarshalBinary(tenantBytes); err != nil {
			return nil, err
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate automation events")
	}

	return events, nil
}

// Update stores the relay outcome of an event.
func (r *MySQLEventRepository) Update(ctx context.Context, event *domain.Event) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE automation_events
			  SET status = ?, retries = ?, last_error = ?, processed_at = ?, updated_at = ?
			  WHERE id = ?`

	idBytes, err := event.ID.MarshalBinary()
	if err != nil {
		return err
	}

	_, err = querier.ExecContext(ctx, query, event.Status, event.Retries, event.LastError,
		event.ProcessedAt, event.UpdatedAt, idBytes)
	if err != nil {
		return apperrors.Wrap(err, "failed to update automation event")
	}
	return nil
}
