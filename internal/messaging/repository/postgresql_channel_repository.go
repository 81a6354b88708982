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

const channelColumns = `id, tenant_id, name, phone_number_id, access_token_ciphertext, send_limit_per_minute,
	created_at, updated_at`

// PostgreSQLChannelRepository persists channel connections in PostgreSQL.
type PostgreSQLChannelRepository struct {
	db *sql.DB
}

// NewPostgreSQLChannelRepository creates a new PostgreSQLChannelRepository.
func NewPostgreSQLChannelRepository(db *sql.DB) *PostgreSQLChannelRepository {
	return &PostgreSQLChannelRepository{db: db}
}

// Create inserts a new channel connection.
func (r *PostgreSQLChannelRepository) Create(ctx context.Context, channel *domain.ChannelConnection) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO channel_connections (` + channelColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := querier.ExecContext(ctx, query, channel.ID, channel.TenantID, channel.Name, channel.PhoneNumberID,
		channel.AccessTokenCiphertext, channel.SendLimitPerMinute, channel.CreatedAt, channel.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrPhoneNumberInUse
		}
		return apperrors.Wrap(err, "failed to create channel")
	}
	return nil
}

// Get retrieves a channel connection by id.
func (r *PostgreSQLChannelRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ChannelConnection, error) {
	return r.getOne(ctx, `SELECT `+channelColumns+` FROM channel_connections WHERE id = $1`, id)
}

// GetByPhoneNumberID retrieves the channel owning a provider phone number id.
func (r *PostgreSQLChannelRepository) GetByPhoneNumberID(
	ctx context.Context,
	phoneNumberID string,
) (*domain.ChannelConnection, error) {
	return r.getOne(ctx, `SELECT `+channelColumns+` FROM channel_connections WHERE phone_number_id = $1`,
		phoneNumberID)
}

// GetDefaultForTenant returns the tenant's oldest channel connection.
func (r *PostgreSQLChannelRepository) GetDefaultForTenant(
	ctx context.Context,
	tenantID uuid.UUID,
) (*domain.ChannelConnection, error) {
	return r.getOne(ctx, `SELECT `+channelColumns+` FROM channel_connections
			  WHERE tenant_id = $1 ORDER BY created_at, id LIMIT 1`, tenantID)
}

func (r *PostgreSQLChannelRepository) getOne(
	ctx context.Context,
	query string,
	arg any,
) (*domain.ChannelConnection, error) {
	querier := database.GetTx(ctx, r.db)

	var c domain.ChannelConnection
	err := querier.QueryRowContext(ctx, query, arg).Scan(&c.ID, &c.TenantID, &c.Name, &c.PhoneNumberID,
		&c.AccessTokenCiphertext, &c.SendLimitPerMinute, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get channel")
	}
	return &c, nil
}

// ListByTenant returns a page of a tenant's channels, oldest first.
func (r *PostgreSQLChannelRepository) ListByTenant(
	ctx context.Context,
	tenantID uuid.UUID,
	offset, limit int,
) ([]*domain.ChannelConnection, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + channelColumns + ` FROM channel_connections
			  WHERE tenant_id = $1 ORDER BY created_at, id LIMIT $2 OFFSET $3`

	rows, err := querier.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list channels")
	}
	defer rows.Close() //nolint:errcheck

	var channels []*domain.ChannelConnection
	for rows.Next() {
		var c domain.ChannelConnection
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.PhoneNumberID, &c.AccessTokenCiphertext,
			&c.SendLimitPerMinute, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan channel")
		}
		channels = append(channels, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate channels")
	}
	return channels, nil
}
