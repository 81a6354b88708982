package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
)

const threadColumns = `id, tenant_id, contact_address, contact_name, last_message_at, unread_count, assigned_to,
	status_tags, created_at, updated_at`

const inboundMessageColumns = `id, tenant_id, thread_id, channel_connection_id, provider_message_id, sender,
	message_type, body, provider_timestamp, created_at`

// PostgreSQLThreadRepository persists threads and inbound messages in PostgreSQL.
type PostgreSQLThreadRepository struct {
	db *sql.DB
}

// NewPostgreSQLThreadRepository creates a new PostgreSQLThreadRepository.
func NewPostgreSQLThreadRepository(db *sql.DB) *PostgreSQLThreadRepository {
	return &PostgreSQLThreadRepository{db: db}
}

// Upsert creates the thread of (tenant, contact) or bumps the existing one.
func (r *PostgreSQLThreadRepository) Upsert(ctx context.Context, thread *domain.Thread) (*domain.Thread, error) {
	querier := database.GetTx(ctx, r.db)

	tags, err := marshalTags(thread.StatusTags)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO threads (` + threadColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  ON CONFLICT (tenant_id, contact_address) DO UPDATE SET
			      contact_name = CASE WHEN EXCLUDED.contact_name <> '' THEN EXCLUDED.contact_name
			          ELSE threads.contact_name END,
			      last_message_at = GREATEST(threads.last_message_at, EXCLUDED.last_message_at),
			      unread_count = threads.unread_count + 1,
			      updated_at = EXCLUDED.updated_at
			  RETURNING ` + threadColumns

	row := querier.QueryRowContext(ctx, query, thread.ID, thread.TenantID, thread.ContactAddress,
		thread.ContactName, thread.LastMessageAt, thread.UnreadCount, thread.AssignedTo, tags, thread.CreatedAt,
		thread.UpdatedAt)

	var t domain.Thread
	var assignedTo uuid.NullUUID
	var rawTags []byte
	if err := row.Scan(&t.ID, &t.TenantID, &t.ContactAddress, &t.ContactName, &t.LastMessageAt, &t.UnreadCount,
		&assignedTo, &rawTags, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, apperrors.Wrap(err, "failed to upsert thread")
	}
	t.AssignedTo = nullUUIDPtr(assignedTo)
	if t.StatusTags, err = unmarshalStrings(rawTags); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal thread status tags")
	}
	return &t, nil
}

// CreateMessage stores msg unless its provider message id was already stored.
func (r *PostgreSQLThreadRepository) CreateMessage(ctx context.Context, msg *domain.InboundMessage) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	body, err := marshalJSON(msg.Body)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal inbound message body")
	}

	query := `INSERT INTO inbound_messages (` + inboundMessageColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  ON CONFLICT (provider_message_id) DO NOTHING`

	result, err := querier.ExecContext(ctx, query, msg.ID, msg.TenantID, msg.ThreadID, msg.ChannelConnectionID,
		msg.ProviderMessageID, msg.Sender, msg.MessageType, body, msg.ProviderTimestamp, msg.CreatedAt)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to create inbound message")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read inserted rows")
	}
	return n == 1, nil
}

// MessageExists reports whether an inbound message with the provider id is stored.
func (r *PostgreSQLThreadRepository) MessageExists(ctx context.Context, providerMessageID string) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	var exists bool
	err := querier.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM inbound_messages WHERE provider_message_id = $1)`, providerMessageID).
		Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to check inbound message")
	}
	return exists, nil
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := marshalJSON(tags)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to marshal thread status tags")
	}
	return raw, nil
}
