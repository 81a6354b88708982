package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
)

const eventColumns = `id, external_id, tenant_id, event_type, payload, received_at, processed, processed_at,
	attempts, last_error`

// PostgreSQLInboundEventRepository persists the inbound callback log in PostgreSQL.
type PostgreSQLInboundEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLInboundEventRepository creates a new PostgreSQLInboundEventRepository.
func NewPostgreSQLInboundEventRepository(db *sql.DB) *PostgreSQLInboundEventRepository {
	return &PostgreSQLInboundEventRepository{db: db}
}

// Insert stores event unless its external id was already recorded.
func (r *PostgreSQLInboundEventRepository) Insert(ctx context.Context, event *domain.InboundEvent) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO inbound_events (` + eventColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  ON CONFLICT (external_id) DO NOTHING`

	result, err := querier.ExecContext(ctx, query, event.ID, event.ExternalID, event.TenantID, event.EventType,
		event.Payload, event.ReceivedAt, event.Processed, event.ProcessedAt, event.Attempts, event.LastError)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to insert inbound event")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read inserted rows")
	}
	return n == 1, nil
}

// MarkProcessed flags the event as applied.
func (r *PostgreSQLInboundEventRepository) MarkProcessed(
	ctx context.Context,
	id uuid.UUID,
	tenantID *uuid.UUID,
	now time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE inbound_events
			  SET processed = TRUE, processed_at = $1, tenant_id = COALESCE($2, tenant_id), last_error = NULL
			  WHERE id = $3`

	if _, err := querier.ExecContext(ctx, query, now, tenantID, id); err != nil {
		return apperrors.Wrap(err, "failed to mark inbound event processed")
	}
	return nil
}

// MarkFailed counts a failed processing attempt.
func (r *PostgreSQLInboundEventRepository) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	tenantID *uuid.UUID,
	reason string,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE inbound_events
			  SET attempts = attempts + 1, last_error = $1, tenant_id = COALESCE($2, tenant_id)
			  WHERE id = $3`

	if _, err := querier.ExecContext(ctx, query, reason, tenantID, id); err != nil {
		return apperrors.Wrap(err, "failed to mark inbound event failed")
	}
	return nil
}

// ListUnprocessed returns ids of unprocessed events, oldest first.
func (r *PostgreSQLInboundEventRepository) ListUnprocessed(
	ctx context.Context,
	tenantID *uuid.UUID,
	receivedBefore time.Time,
	maxAttempts, limit int,
) ([]uuid.UUID, error) {
	querier := database.GetTx(ctx, r.db)

	where := `WHERE processed = FALSE AND received_at < $1 AND attempts < $2`
	args := []any{receivedBefore, maxAttempts}
	if tenantID != nil {
		where += ` AND tenant_id = $3`
		args = append(args, *tenantID)
	}
	query := fmt.Sprintf(`SELECT id FROM inbound_events %s ORDER BY received_at, id LIMIT $%d`,
		where, len(args)+1)

	rows, err := querier.QueryContext(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list unprocessed inbound events")
	}
	defer rows.Close() //nolint:errcheck

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan inbound event id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate inbound events")
	}
	return ids, nil
}

// GetUnprocessedForUpdate locks an unprocessed event. Events locked by a concurrent
// processor or already processed are reported as not found.
func (r *PostgreSQLInboundEventRepository) GetUnprocessedForUpdate(
	ctx context.Context,
	id uuid.UUID,
) (*domain.InboundEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + eventColumns + ` FROM inbound_events
			  WHERE id = $1 AND processed = FALSE
			  FOR UPDATE SKIP LOCKED`

	var e domain.InboundEvent
	var tenantID uuid.NullUUID
	err := querier.QueryRowContext(ctx, query, id).Scan(&e.ID, &e.ExternalID, &tenantID, &e.EventType,
		&e.Payload, &e.ReceivedAt, &e.Processed, &e.ProcessedAt, &e.Attempts, &e.LastError)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get inbound event")
	}
	e.TenantID = nullUUIDPtr(tenantID)
	return &e, nil
}

// CountUnprocessed counts events still eligible for reconciliation.
func (r *PostgreSQLInboundEventRepository) CountUnprocessed(
	ctx context.Context,
	tenantID *uuid.UUID,
	maxAttempts int,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT COUNT(*) FROM inbound_events WHERE processed = FALSE AND attempts < $1`
	args := []any{maxAttempts}
	if tenantID != nil {
		query += ` AND tenant_id = $2`
		args = append(args, *tenantID)
	}

	var count int64
	if err := querier.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count unprocessed inbound events")
	}
	return count, nil
}
