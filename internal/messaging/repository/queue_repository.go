package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
)

// queueCountsQuery aggregates single messages and the items of active jobs.
// Items of draft or cancelled jobs are not waiting for a worker and are left out.
const queueCountsQuery = `SELECT
	COALESCE(SUM(CASE WHEN status = 'queued' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
	MIN(CASE WHEN status = 'queued' THEN created_at END)
FROM (
	SELECT status, created_at FROM outbox_messages
	UNION ALL
	SELECT i.status, i.created_at FROM send_job_items i
	JOIN send_jobs j ON j.id = i.job_id
	WHERE j.status IN ('queued', 'running')
) units`

// PostgreSQLQueueRepository reads queue health aggregates from PostgreSQL.
type PostgreSQLQueueRepository struct {
	db *sql.DB
}

// NewPostgreSQLQueueRepository creates a new PostgreSQLQueueRepository.
func NewPostgreSQLQueueRepository(db *sql.DB) *PostgreSQLQueueRepository {
	return &PostgreSQLQueueRepository{db: db}
}

// Counts returns the current queue aggregates.
func (r *PostgreSQLQueueRepository) Counts(ctx context.Context) (domain.QueueCounts, error) {
	return queryQueueCounts(ctx, database.GetTx(ctx, r.db))
}

// MySQLQueueRepository reads queue health aggregates from MySQL.
type MySQLQueueRepository struct {
	db *sql.DB
}

// NewMySQLQueueRepository creates a new MySQLQueueRepository.
func NewMySQLQueueRepository(db *sql.DB) *MySQLQueueRepository {
	return &MySQLQueueRepository{db: db}
}

// Counts returns the current queue aggregates.
func (r *MySQLQueueRepository) Counts(ctx context.Context) (domain.QueueCounts, error) {
	return queryQueueCounts(ctx, database.GetTx(ctx, r.db))
}

func queryQueueCounts(ctx context.Context, querier database.Querier) (domain.QueueCounts, error) {
	var counts domain.QueueCounts
	var oldest sql.NullTime

	err := querier.QueryRowContext(ctx, queueCountsQuery).
		Scan(&counts.Queued, &counts.Processing, &counts.Failed, &oldest)
	if err != nil {
		return domain.QueueCounts{}, apperrors.Wrap(err, "failed to read queue counts")
	}
	if oldest.Valid {
		t := oldest.Time.UTC()
		counts.OldestQueuedAt = &t
	}
	return counts, nil
}
