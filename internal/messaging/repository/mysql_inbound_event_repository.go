package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
)

// MySQLInboundEventRepository persists the inbound callback log in MySQL.
type MySQLInboundEventRepository struct {
	db *sql.DB
}

// NewMySQLInboundEventRepository creates a new MySQLInboundEventRepository.
func NewMySQLInboundEventRepository(db *sql.DB) *MySQLInboundEventRepository {
	return &MySQLInboundEventRepository{db: db}
}

// Insert stores event unless its external id was already recorded. The no-op update
// reports zero affected rows on duplicates.
func (r *MySQLInboundEventRepository) Insert(ctx context.Context, event *domain.InboundEvent) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO inbound_events (` + eventColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE id = id`

	result, err := querier.ExecContext(ctx, query, binaryUUID(event.ID), event.ExternalID,
		nullableBinaryUUID(event.TenantID), event.EventType, event.Payload, event.ReceivedAt, event.Processed,
		event.ProcessedAt, event.Attempts, event.LastError)
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
func (r *MySQLInboundEventRepository) MarkProcessed(
	ctx context.Context,
	id uuid.UUID,
	tenantID *uuid.UUID,
	now time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE inbound_events
			  SET processed = TRUE, processed_at = ?, tenant_id = COALESCE(?, tenant_id), last_error = NULL
			  WHERE id = ?`

	if _, err := querier.ExecContext(ctx, query, now, nullableBinaryUUID(tenantID), binaryUUID(id)); err != nil {
		return apperrors.Wrap(err, "failed to mark inbound event processed")
	}
	return nil
}

// MarkFailed counts a failed processing attempt.
func (r *MySQLInboundEventRepository) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	tenantID *uuid.UUID,
	reason string,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE inbound_events
			  SET attempts = attempts + 1, last_error = ?, tenant_id = COALESCE(?, tenant_id)
			  WHERE id = ?`

	if _, err := querier.ExecContext(ctx, query, reason, nullableBinaryUUID(tenantID), binaryUUID(id)); err != nil {
		return apperrors.Wrap(err, "failed to mark inbound event failed")
	}
	return nil
}

// ListUnprocessed returns ids of unprocessed events, oldest first.
func (r *MySQLInboundEventRepository) ListUnprocessed(
	ctx context.Context,
	tenantID *uuid.UUID,
	receivedBefore time.Time,
	maxAttempts, limit int,
) ([]uuid.UUID, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id FROM inbound_events WHERE processed = FALSE AND received_at < ? AND attempts < ?`
	args := []any{receivedBefore, maxAttempts}
	if tenantID != nil {
		query += ` AND tenant_id = ?`
		args = append(args, binaryUUID(*tenantID))
	}
	query += ` ORDER BY received_at, id LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list unprocessed inbound events")
	}
	defer rows.Close() //nolint:errcheck

	var ids []uuid.UUID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan inbound event id")
		}
		id, err := parseBinaryUUID(raw)
		if err != nil {
			return nil, err
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
func (r *MySQLInboundEventRepository) GetUnprocessedForUpdate(
	ctx context.Context,
	id uuid.UUID,
) (*domain.InboundEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + eventColumns + ` FROM inbound_events
			  WHERE id = ? AND processed = FALSE
			  FOR UPDATE SKIP LOCKED`

	var e domain.InboundEvent
	var rawID, rawTenantID []byte
	err := querier.QueryRowContext(ctx, query, binaryUUID(id)).Scan(&rawID, &e.ExternalID, &rawTenantID,
		&e.EventType, &e.Payload, &e.ReceivedAt, &e.Processed, &e.ProcessedAt, &e.Attempts, &e.LastError)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get inbound event")
	}
	if e.ID, err = parseBinaryUUID(rawID); err != nil {
		return nil, err
	}
	if e.TenantID, err = parseNullableBinaryUUID(rawTenantID); err != nil {
		return nil, err
	}
	return &e, nil
}

// CountUnprocessed counts events still eligible for reconciliation.
func (r *MySQLInboundEventRepository) CountUnprocessed(
	ctx context.Context,
	tenantID *uuid.UUID,
	maxAttempts int,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT COUNT(*) FROM inbound_events WHERE processed = FALSE AND attempts < ?`
	args := []any{maxAttempts}
	if tenantID != nil {
		query += ` AND tenant_id = ?`
		args = append(args, binaryUUID(*tenantID))
	}

	var count int64
	if err := querier.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count unprocessed inbound events")
	}
	return count, nil
}
