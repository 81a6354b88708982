package repository

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
)

const messageColumns = `id, tenant_id, channel_connection_id, destination, payload, status, attempts,
	provider_message_id, last_error, claimed_by, claimed_at, available_at, sent_at, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgreSQLMessageRepository persists outbound messages in PostgreSQL.
type PostgreSQLMessageRepository struct {
	db *sql.DB
}

// NewPostgreSQLMessageRepository creates a new PostgreSQLMessageRepository.
func NewPostgreSQLMessageRepository(db *sql.DB) *PostgreSQLMessageRepository {
	return &PostgreSQLMessageRepository{db: db}
}

// Create inserts a new message.
func (r *PostgreSQLMessageRepository) Create(ctx context.Context, msg *domain.OutboxMessage) error {
	querier := database.GetTx(ctx, r.db)

	payload, err := marshalJSON(msg.Payload)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal message payload")
	}

	query := `INSERT INTO outbox_messages (id, tenant_id, channel_connection_id, destination, payload, status,
			  attempts, available_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = querier.ExecContext(ctx, query, msg.ID, msg.TenantID, msg.ChannelConnectionID, msg.Destination,
		payload, msg.Status, msg.Attempts, msg.AvailableAt, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create message")
	}
	return nil
}

// Get retrieves a message by id.
func (r *PostgreSQLMessageRepository) Get(ctx context.Context, id uuid.UUID) (*domain.OutboxMessage, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + messageColumns + ` FROM outbox_messages WHERE id = $1`

	msg, err := scanPostgreSQLMessage(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get message")
	}
	return msg, nil
}

// DeadLetter fails exhausted messages.
func (r *PostgreSQLMessageRepository) DeadLetter(
	ctx context.Context,
	maxAttempts int,
	leaseCutoff, now time.Time,
	reason string,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_messages SET status = 'failed', last_error = $1, updated_at = $2
			  WHERE id IN (
			      SELECT id FROM outbox_messages
			      WHERE attempts >= $3
			        AND (status = 'queued' OR (status = 'processing' AND claimed_at < $4))
			      FOR UPDATE SKIP LOCKED
			  )`

	result, err := querier.ExecContext(ctx, query, reason, now, maxAttempts, leaseCutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to dead-letter messages")
	}
	return result.RowsAffected()
}

// Claim leases up to limit messages in one statement.
func (r *PostgreSQLMessageRepository) Claim(
	ctx context.Context,
	workerID string,
	limit, maxAttempts int,
	leaseCutoff, now time.Time,
) ([]*domain.OutboxMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_messages
			  SET status = 'processing', claimed_by = $1, claimed_at = $2, attempts = attempts + 1, updated_at = $2
			  WHERE id IN (
			      SELECT id FROM outbox_messages
			      WHERE attempts < $3
			        AND ((status = 'queued' AND available_at <= $2) OR (status = 'processing' AND claimed_at < $4))
			      ORDER BY created_at, id
			      LIMIT $5
			      FOR UPDATE SKIP LOCKED
			  )
			  RETURNING ` + messageColumns

	rows, err := querier.QueryContext(ctx, query, workerID, now, maxAttempts, leaseCutoff, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to claim messages")
	}
	defer rows.Close() //nolint:errcheck

	var messages []*domain.OutboxMessage
	for rows.Next() {
		msg, err := scanPostgreSQLMessage(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan claimed message")
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate claimed messages")
	}

	sortMessages(messages)
	return messages, nil
}

// Complete records an outcome under the lease guard.
func (r *PostgreSQLMessageRepository) Complete(
	ctx context.Context,
	id uuid.UUID,
	workerID string,
	attempt int,
	outcome domain.Outcome,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_messages
			  SET status = $1, provider_message_id = COALESCE($2, provider_message_id), last_error = $3,
			      available_at = $4, sent_at = COALESCE($5, sent_at), updated_at = $6
			  WHERE id = $7 AND status = 'processing' AND claimed_by = $8 AND attempts = $9`

	result, err := querier.ExecContext(ctx, query, outcome.Status, outcome.ProviderMessageID, outcome.Error,
		outcome.AvailableAt, sentAt(outcome), outcome.At, id, workerID, attempt)
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
func (r *PostgreSQLMessageRepository) GetByProviderMessageIDForUpdate(
	ctx context.Context,
	providerMessageID string,
) (*domain.OutboxMessage, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + messageColumns + ` FROM outbox_messages
			  WHERE provider_message_id = $1 ORDER BY created_at LIMIT 1 FOR UPDATE`

	msg, err := scanPostgreSQLMessage(querier.QueryRowContext(ctx, query, providerMessageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get message by provider id")
	}
	return msg, nil
}

// UpdateStatus applies a status reported by the provider.
func (r *PostgreSQLMessageRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.DeliveryStatus,
	lastError *string,
	now time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_messages SET status = $1, last_error = COALESCE($2, last_error), updated_at = $3
			  WHERE id = $4`

	if _, err := querier.ExecContext(ctx, query, status, lastError, now, id); err != nil {
		return apperrors.Wrap(err, "failed to update message status")
	}
	return nil
}

func scanPostgreSQLMessage(row rowScanner) (*domain.OutboxMessage, error) {
	var msg domain.OutboxMessage
	var channelID uuid.NullUUID
	var payload []byte

	err := row.Scan(&msg.ID, &msg.TenantID, &channelID, &msg.Destination, &payload, &msg.Status,
		&msg.Attempts, &msg.ProviderMessageID, &msg.LastError, &msg.ClaimedBy, &msg.ClaimedAt,
		&msg.AvailableAt, &msg.SentAt, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return nil, err
	}

	msg.ChannelConnectionID = nullUUIDPtr(channelID)
	if msg.Payload, err = unmarshalMap(payload); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal message payload")
	}
	return &msg, nil
}

func sentAt(outcome domain.Outcome) *time.Time {
	if outcome.Status != domain.StatusSent {
		return nil
	}
	at := outcome.At
	return &at
}

func sortMessages(messages []*domain.OutboxMessage) {
	slices.SortFunc(messages, func(a, b *domain.OutboxMessage) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}
