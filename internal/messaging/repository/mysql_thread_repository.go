package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
)

// MySQLThreadRepository persists threads and inbound messages in MySQL.
type MySQLThreadRepository struct {
	db *sql.DB
}

// NewMySQLThreadRepository creates a new MySQLThreadRepository.
func NewMySQLThreadRepository(db *sql.DB) *MySQLThreadRepository {
	return &MySQLThreadRepository{db: db}
}

// Upsert creates the thread of (tenant, contact) or bumps the existing one, then reads it back.
func (r *MySQLThreadRepository) Upsert(ctx context.Context, thread *domain.Thread) (*domain.Thread, error) {
	querier := database.GetTx(ctx, r.db)

	tags, err := marshalTags(thread.StatusTags)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO threads (` + threadColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			      contact_name = IF(VALUES(contact_name) <> '', VALUES(contact_name), contact_name),
			      last_message_at = GREATEST(last_message_at, VALUES(last_message_at)),
			      unread_count = unread_count + 1,
			      updated_at = VALUES(updated_at)`

	_, err = querier.ExecContext(ctx, query, binaryUUID(thread.ID), binaryUUID(thread.TenantID),
		thread.ContactAddress, thread.ContactName, thread.LastMessageAt, thread.UnreadCount,
		nullableBinaryUUID(thread.AssignedTo), tags, thread.CreatedAt, thread.UpdatedAt)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to upsert thread")
	}

	row := querier.QueryRowContext(ctx, `SELECT `+threadColumns+` FROM threads
			  WHERE tenant_id = ? AND contact_address = ?`, binaryUUID(thread.TenantID), thread.ContactAddress)

	var t domain.Thread
	var id, tenantID, assignedTo, rawTags []byte
	if err := row.Scan(&id, &tenantID, &t.ContactAddress, &t.ContactName, &t.LastMessageAt, &t.UnreadCount,
		&assignedTo, &rawTags, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, apperrors.Wrap(err, "failed to read upserted thread")
	}
	if t.ID, err = parseBinaryUUID(id); err != nil {
		return nil, err
	}
	if t.TenantID, err = parseBinaryUUID(tenantID); err != nil {
		return nil, err
	}
	if t.AssignedTo, err = parseNullableBinaryUUID(assignedTo); err != nil {
		return nil, err
	}
	if t.StatusTags, err = unmarshalStrings(rawTags); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal thread status tags")
	}
	return &t, nil
}

// CreateMessage stores msg unless its provider message id was already stored.
func (r *MySQLThreadRepository) CreateMessage(ctx context.Context, msg *domain.InboundMessage) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	body, err := marshalJSON(msg.Body)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal inbound message body")
	}

	query := `INSERT INTO inbound_messages (` + inboundMessageColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE id = id`

	result, err := querier.ExecContext(ctx, query, binaryUUID(msg.ID), binaryUUID(msg.TenantID),
		binaryUUID(msg.ThreadID), binaryUUID(msg.ChannelConnectionID), msg.ProviderMessageID, msg.Sender,
		msg.MessageType, body, msg.ProviderTimestamp, msg.CreatedAt)
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
func (r *MySQLThreadRepository) MessageExists(ctx context.Context, providerMessageID string) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	var exists bool
	err := querier.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM inbound_messages WHERE provider_message_id = ?)`, providerMessageID).
		Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to check inbound message")
	}
	return exists, nil
}
