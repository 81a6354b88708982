package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
)

// MySQLChannelRepository persists channel connections in MySQL.
type MySQLChannelRepository struct {
	db *sql.DB
}

// NewMySQLChannelRepository creates a new MySQLChannelRepository.
func NewMySQLChannelRepository(db *sql.DB) *MySQLChannelRepository {
	return &MySQLChannelRepository{db: db}
}

// Create inserts a new channel connection.
func (r *MySQLChannelRepository) Create(ctx context.Context, channel *domain.ChannelConnection) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO channel_connections (` + channelColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(ctx, query, binaryUUID(channel.ID), binaryUUID(channel.TenantID), channel.Name,
		channel.PhoneNumberID, channel.AccessTokenCiphertext, channel.SendLimitPerMinute, channel.CreatedAt,
		channel.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrPhoneNumberInUse
		}
		return apperrors.Wrap(err, "failed to create channel")
	}
	return nil
}

// Get retrieves a channel connection by id.
func (r *MySQLChannelRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ChannelConnection, error) {
	return r.getOne(ctx, `SELECT `+channelColumns+` FROM channel_connections WHERE id = ?`, binaryUUID(id))
}

// GetByPhoneNumberID retrieves the channel owning a provider phone number id.
func (r *MySQLChannelRepository) GetByPhoneNumberID(
	ctx context.Context,
	phoneNumberID string,
) (*domain.ChannelConnection, error) {
	return r.getOne(ctx, `SELECT `+channelColumns+` FROM channel_connections WHERE phone_number_id = ?`,
		phoneNumberID)
}

// GetDefaultForTenant returns the tenant's oldest channel connection.
func (r *MySQLChannelRepository) GetDefaultForTenant(
	ctx context.Context,
	tenantID uuid.UUID,
) (*domain.ChannelConnection, error) {
	return r.getOne(ctx, `SELECT `+channelColumns+` FROM channel_connections
			  WHERE tenant_id = ? ORDER BY created_at, id LIMIT 1`, binaryUUID(tenantID))
}

func (r *MySQLChannelRepository) getOne(ctx context.Context, query string, arg any) (*domain.ChannelConnection, error) {
	querier := database.GetTx(ctx, r.db)

	c, err := scanMySQLChannel(querier.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get channel")
	}
	return c, nil
}

// ListByTenant returns a page of a tenant's channels, oldest first.
func (r *MySQLChannelRepository) ListByTenant(
	ctx context.Context,
	tenantID uuid.UUID,
	offset, limit int,
) ([]*domain.ChannelConnection, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + channelColumns + ` FROM channel_connections
			  WHERE tenant_id = ? ORDER BY created_at, id LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, binaryUUID(tenantID), limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list channels")
	}
	defer rows.Close() //nolint:errcheck

	var channels []*domain.ChannelConnection
	for rows.Next() {
		c, err := scanMySQLChannel(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan channel")
		}
		channels = append(channels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate channels")
	}
	return channels, nil
}

func scanMySQLChannel(row rowScanner) (*domain.ChannelConnection, error) {
	var c domain.ChannelConnection
	var id, tenantID []byte

	err := row.Scan(&id, &tenantID, &c.Name, &c.PhoneNumberID, &c.AccessTokenCiphertext, &c.SendLimitPerMinute,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if c.ID, err = parseBinaryUUID(id); err != nil {
		return nil, err
	}
	if c.TenantID, err = parseBinaryUUID(tenantID); err != nil {
		return nil, err
	}
	return &c, nil
}
