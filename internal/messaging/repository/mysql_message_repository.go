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

// MySQLMessageRepository persists outbound messages in MySQL.
type MySQLMessageRepository struct {
	db *sql.DB
}

// NewMySQLMessageRepository creates a new MySQLMessageRepository.
func NewMySQLMessageRepository(db *sql.DB) *MySQLMessageRepository {
	return &MySQLMessageRepository{db: db}
}

// Create inserts a new message.
func (r *MySQLMessageRepository) Create(ctx context.Context, msg *domain.OutboxMessage) error {
	querier := database.GetTx(ctx, r.db)

	payload, err := marshalJSON(msg.Payload)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal message payload")
	}

	query := `INSERT INTO outbox_messages (id, tenant_id, channel_connection_id, destination, payload, status,
			  attempts, available_at, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(ctx, query, binaryUUID(msg.ID), binaryUUID(msg.TenantID),
		nullableBinaryUUID(msg.ChannelConnectionID), msg.Destination, payload, msg.Status, msg.Attempts,
		msg.AvailableAt, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create message")
	}
	return nil
}

// Get retrieves a message by id.
func (r *MySQLMessageRepository) Get(ctx context.Context, id uuid.UUID) (*domain.OutboxMessage, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + messageColumns + ` FROM outbox_messages WHERE id = ?`

	msg, err := scanMySQLMessage(querier.QueryRowContext(ctx, query, binaryUUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get message")
	}
	return msg, nil
}

// DeadLetter fails exhausted messages. MySQL cannot update a table it selects from
// in a subquery, so the ids are locked first.
func (r *MySQLMessageRepository) DeadLetter(
	ctx context.Context,
	maxAttempts int,
	leaseCutoff, now time.Time,
	reason string,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	ids, err := selectBinaryIDs(ctx, querier, `SELECT id FROM outbox_messages
			  WHERE attempts >= ? AND (status = 'queued' OR (status = 'processing' AND claimed_at < ?))
			  FOR UPDATE SKIP LOCKED`, maxAttempts, leaseCutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to select exhausted messages")
	}
	if len(ids) == 0 {
		return 0, nil
	}

	query := `UPDATE outbox_messages SET status = 'failed', last_error = ?, updated_at = ?
			  WHERE id IN (` + placeholders(len(ids)) + `)`
	args := append([]any{reason, now}, ids...)

	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to dead-letter messages")
	}
	return result.RowsAffected()
}

// Claim leases up to limit messages: lock, update, then read back inside the caller's transaction.
func (r *MySQLMessageRepository) Claim(
	ctx context.Context,
	workerID string,
	limit, maxAttempts int,
	leaseCutoff, now time.Time,
) ([]*domain.OutboxMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	querier := database.GetTx(ctx, r.db)

	ids, err := selectBinaryIDs(ctx, querier, `SELECT id FROM outbox_messages
			  WHERE attempts < ?
			    AND ((status = 'queued' AND available_at <= ?) OR (status = 'processing' AND claimed_at < ?))
			  ORDER BY created_at, id
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`, maxAttempts, now, leaseCutoff, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to select claimable messages")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	update := `UPDATE outbox_messages
			   SET status = 'processing', claimed_by = ?, claimed_at = ?, attempts = attempts + 1, updated_at = ?
			   WHERE id IN (` + placeholders(len(ids)) + `)`
	if _, err := querier.ExecContext(ctx, update, append([]any{workerID, now, now}, ids...)...); err != nil {
		return nil, apperrors.Wrap(err, "failed to claim messages")
	}

	query := `SELECT ` + messageColumns + ` FROM outbox_messages
			  WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY created_at, id`
	rows, err := querier.QueryContext(ctx, query, ids...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read claimed messages")
	}
	defer rows.Close() //nolint:errcheck

	var messages []*domain.OutboxMessage
	for rows.Next() {
		msg, err := scanMySQLMessage(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan claimed message")
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate claimed messages")
	}
	return messages, nil
}

// Complete records an outcome under the lease guard.
func (r *MySQLMessageRepository) Complete(
	ctx context.Context,
	id uuid.UUID,
	workerID string,
	attempt int,
	outcome domain.Outcome,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_messages
			  SET status = ?, provider_message_id = COALESCE(?, provider_message_id), last_error = ?,
			      available_at = ?, sent_at = COALESCE(?, sent_at), updated_at = ?
			  WHERE id = ? AND status = 'processing' AND claimed_by = ? AND attempts = ?`

	result, err := querier.ExecContext(ctx, query, outcome.Status, outcome.ProviderMessageID, outcome.Error,
		outcome.AvailableAt, sentAt(outcome), outcome.At, binaryUUID(id), workerID, attempt)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to complete message")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read completed rows")
	}
	return n == 1, nil
}

// GetByProviderMessageIDForUpdate locks the message carrying a provider id.
func (r *MySQLMessageRepository) GetByProviderMessageIDForUpdate(
	ctx context.Context,
	providerMessageID string,
) (*domain.OutboxMessage, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + messageColumns + ` FROM outbox_messages
			  WHERE provider_message_id = ? ORDER BY created_at LIMIT 1 FOR UPDATE`

	msg, err := scanMySQLMessage(querier.QueryRowContext(ctx, query, providerMessageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get message by provider id")
	}
	return msg, nil
}

// UpdateStatus applies a status reported by the provider.
func (r *MySQLMessageRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.DeliveryStatus,
	lastError *string,
	now time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_messages SET status = ?, last_error = COALESCE(?, last_error), updated_at = ?
			  WHERE id = ?`

	if _, err := querier.ExecContext(ctx, query, status, lastError, now, binaryUUID(id)); err != nil {
		return apperrors.Wrap(err, "failed to update message status")
	}
	return nil
}

func scanMySQLMessage(row rowScanner) (*domain.OutboxMessage, error) {
	var msg domain.OutboxMessage
	var id, tenantID, channelID, payload []byte

	err := row.Scan(&id, &tenantID, &channelID, &msg.Destination, &payload, &msg.Status,
		&msg.Attempts, &msg.ProviderMessageID, &msg.LastError, &msg.ClaimedBy, &msg.ClaimedAt,
		&msg.AvailableAt, &msg.SentAt, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if msg.ID, err = parseBinaryUUID(id); err != nil {
		return nil, err
	}
	if msg.TenantID, err = parseBinaryUUID(tenantID); err != nil {
		return nil, err
	}
	if msg.ChannelConnectionID, err = parseNullableBinaryUUID(channelID); err != nil {
		return nil, err
	}
	if msg.Payload, err = unmarshalMap(payload); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal message payload")
	}
	return &msg, nil
}

// selectBinaryIDs runs a query returning one BINARY(16) id column and returns
// the ids ready to be used as IN arguments.
func selectBinaryIDs(ctx context.Context, querier database.Querier, query string, args ...any) ([]any, error) {
	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var ids []any
	for rows.Next() {
		var id []byte
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
