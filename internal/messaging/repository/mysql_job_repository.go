package repository

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
)

// MySQLJobRepository persists send jobs, items and the claim log in MySQL.
type MySQLJobRepository struct {
	db *sql.DB
}

// NewMySQLJobRepository creates a new MySQLJobRepository.
func NewMySQLJobRepository(db *sql.DB) *MySQLJobRepository {
	return &MySQLJobRepository{db: db}
}

// Create inserts a new job.
func (r *MySQLJobRepository) Create(ctx context.Context, job *domain.SendJob) error {
	querier := database.GetTx(ctx, r.db)

	params, vars, err := marshalJobDocs(job)
	if err != nil {
		return err
	}

	query := `INSERT INTO send_jobs (` + jobColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(ctx, query, binaryUUID(job.ID), binaryUUID(job.TenantID),
		binaryUUID(job.ChannelConnectionID), job.TemplateName, job.TemplateLanguage, params, vars, job.Status,
		job.TotalCount, job.QueuedCount, job.SentCount, job.FailedCount, job.RateLimitPerMinute, job.StartedAt,
		job.CompletedAt, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create send job")
	}
	return nil
}

// CreateItems inserts items in batched multi-row statements.
func (r *MySQLJobRepository) CreateItems(ctx context.Context, items []*domain.SendJobItem) error {
	querier := database.GetTx(ctx, r.db)

	for batch := range slices.Chunk(items, itemInsertBatch) {
		var sb strings.Builder
		sb.WriteString(`INSERT INTO send_job_items (id, job_id, tenant_id, contact_ref, destination, variables,
			status, available_at, created_at, updated_at) VALUES `)
		args := make([]any, 0, len(batch)*(itemInsertColumns+1))

		for i, item := range batch {
			vars, err := marshalJSON(item.Variables)
			if err != nil {
				return apperrors.Wrap(err, "failed to marshal item variables")
			}
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(" + placeholders(itemInsertColumns+1) + ")")
			args = append(args, binaryUUID(item.ID), binaryUUID(item.JobID), binaryUUID(item.TenantID),
				item.ContactRef, item.Destination, vars, item.Status, item.AvailableAt, item.CreatedAt,
				item.UpdatedAt)
		}

		if _, err := querier.ExecContext(ctx, sb.String(), args...); err != nil {
			return apperrors.Wrap(err, "failed to create send job items")
		}
	}
	return nil
}

// Get retrieves a job by id.
func (r *MySQLJobRepository) Get(ctx context.Context, id uuid.UUID) (*domain.SendJob, error) {
	return r.get(ctx, `SELECT `+jobColumns+` FROM send_jobs WHERE id = ?`, id)
}

// GetForUpdate retrieves and locks a job by id.
func (r *MySQLJobRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.SendJob, error) {
	return r.get(ctx, `SELECT `+jobColumns+` FROM send_jobs WHERE id = ? FOR UPDATE`, id)
}

func (r *MySQLJobRepository) get(ctx context.Context, query string, id uuid.UUID) (*domain.SendJob, error) {
	querier := database.GetTx(ctx, r.db)

	job, err := scanMySQLJob(querier.QueryRowContext(ctx, query, binaryUUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get send job")
	}
	return job, nil
}

// UpdateStatus sets the job status; finished statuses also stamp completed_at.
func (r *MySQLJobRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.JobStatus,
	now time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE send_jobs SET status = ?, completed_at = COALESCE(?, completed_at), updated_at = ?
			  WHERE id = ?`

	_, err := querier.ExecContext(ctx, query, status, completedAt(status, now), now, binaryUUID(id))
	if err != nil {
		return apperrors.Wrap(err, "failed to update send job status")
	}
	return nil
}

// ListItems returns a page of a job's items, optionally filtered by status, and the filtered total.
func (r *MySQLJobRepository) ListItems(
	ctx context.Context,
	jobID uuid.UUID,
	status *domain.DeliveryStatus,
	offset, limit int,
) ([]*domain.SendJobItem, int64, error) {
	querier := database.GetTx(ctx, r.db)

	where := `WHERE job_id = ?`
	args := []any{binaryUUID(jobID)}
	if status != nil {
		where += ` AND status = ?`
		args = append(args, *status)
	}

	var total int64
	if err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM send_job_items `+where, args...).
		Scan(&total); err != nil {
		return nil, 0, apperrors.Wrap(err, "failed to count send job items")
	}

	query := `SELECT ` + itemColumns + ` FROM send_job_items ` + where + ` ORDER BY created_at, id LIMIT ? OFFSET ?`
	rows, err := querier.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, "failed to list send job items")
	}
	defer rows.Close() //nolint:errcheck

	items, err := collectMySQLItems(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ApplyCounterDelta adjusts the counters and finishes an active job whose queued bucket drained.
// MySQL evaluates single-table assignments left to right against already updated
// columns, so completed_at and status are assigned before the counters move.
func (r *MySQLJobRepository) ApplyCounterDelta(
	ctx context.Context,
	jobID uuid.UUID,
	delta domain.CounterDelta,
	now time.Time,
) error {
	if delta.IsZero() {
		return nil
	}
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE send_jobs SET
			      completed_at = CASE WHEN status IN ('queued', 'running') AND queued_count + ? <= 0 THEN ? ELSE completed_at END,
			      status = CASE WHEN status IN ('queued', 'running') AND queued_count + ? <= 0
			          THEN CASE WHEN sent_count + ? > 0 THEN 'completed' ELSE 'failed' END
			          ELSE status END,
			      queued_count = queued_count + ?,
			      sent_count = sent_count + ?,
			      failed_count = failed_count + ?,
			      updated_at = ?
			  WHERE id = ?`

	_, err := querier.ExecContext(ctx, query,
		delta.Queued, now,
		delta.Queued, delta.Sent,
		delta.Queued, delta.Sent, delta.Failed,
		now, binaryUUID(jobID))
	if err != nil {
		return apperrors.Wrap(err, "failed to update send job counters")
	}
	return nil
}

// DeadLetterItems fails exhausted items and returns the count per job.
func (r *MySQLJobRepository) DeadLetterItems(
	ctx context.Context,
	maxAttempts int,
	leaseCutoff, now time.Time,
	reason string,
) (map[uuid.UUID]int, error) {
	querier := database.GetTx(ctx, r.db)

	rows, err := querier.QueryContext(ctx, `SELECT id, job_id FROM send_job_items
			  WHERE attempts >= ? AND (status = 'queued' OR (status = 'processing' AND claimed_at < ?))
			  FOR UPDATE SKIP LOCKED`, maxAttempts, leaseCutoff)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to select exhausted send job items")
	}
	defer rows.Close() //nolint:errcheck

	var ids []any
	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id, rawJobID []byte
		if err := rows.Scan(&id, &rawJobID); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan exhausted send job item")
		}
		jobID, err := parseBinaryUUID(rawJobID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		counts[jobID]++
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate exhausted send job items")
	}
	if len(ids) == 0 {
		return counts, nil
	}

	query := `UPDATE send_job_items SET status = 'failed', last_error = ?, updated_at = ?
			  WHERE id IN (` + placeholders(len(ids)) + `)`
	if _, err := querier.ExecContext(ctx, query, append([]any{reason, now}, ids...)...); err != nil {
		return nil, apperrors.Wrap(err, "failed to dead-letter send job items")
	}
	return counts, nil
}

// LockActiveJobs locks the active jobs no other claimer holds, oldest first.
func (r *MySQLJobRepository) LockActiveJobs(
	ctx context.Context,
	windowStart time.Time,
) ([]domain.JobBudget, error) {
	querier := database.GetTx(ctx, r.db)

	rows, err := querier.QueryContext(ctx, `SELECT id, channel_connection_id, rate_limit_per_minute
			  FROM send_jobs WHERE status IN ('queued', 'running')
			  ORDER BY created_at, id
			  FOR UPDATE SKIP LOCKED`)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock active send jobs")
	}
	defer rows.Close() //nolint:errcheck

	var budgets []domain.JobBudget
	var ids []uuid.UUID
	for rows.Next() {
		var rawID, rawChannelID []byte
		var b domain.JobBudget
		if err := rows.Scan(&rawID, &rawChannelID, &b.RateLimitPerMinute); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan active send job")
		}
		if b.JobID, err = parseBinaryUUID(rawID); err != nil {
			return nil, err
		}
		if b.ChannelConnectionID, err = parseBinaryUUID(rawChannelID); err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
		ids = append(ids, b.JobID)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate active send jobs")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	counts, err := mysqlClaimCounts(ctx, querier, "job_id", ids, windowStart)
	if err != nil {
		return nil, err
	}
	for i := range budgets {
		budgets[i].ClaimedInWindow = counts[budgets[i].JobID]
	}
	return budgets, nil
}

// LockChannels locks the given channels no other claimer holds.
func (r *MySQLJobRepository) LockChannels(
	ctx context.Context,
	ids []uuid.UUID,
	windowStart time.Time,
) ([]domain.ChannelBudget, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, send_limit_per_minute FROM channel_connections
			  WHERE id IN (` + placeholders(len(ids)) + `)
			  ORDER BY id
			  FOR UPDATE SKIP LOCKED`
	rows, err := querier.QueryContext(ctx, query, binaryUUIDArgs(ids)...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock channels")
	}
	defer rows.Close() //nolint:errcheck

	var budgets []domain.ChannelBudget
	var locked []uuid.UUID
	for rows.Next() {
		var rawID []byte
		var b domain.ChannelBudget
		if err := rows.Scan(&rawID, &b.SendLimitPerMinute); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan channel")
		}
		if b.ChannelConnectionID, err = parseBinaryUUID(rawID); err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
		locked = append(locked, b.ChannelConnectionID)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate channels")
	}
	if len(locked) == 0 {
		return nil, nil
	}

	counts, err := mysqlClaimCounts(ctx, querier, "channel_connection_id", locked, windowStart)
	if err != nil {
		return nil, err
	}
	for i := range budgets {
		budgets[i].ClaimedInWindow = counts[budgets[i].ChannelConnectionID]
	}
	return budgets, nil
}

func mysqlClaimCounts(
	ctx context.Context,
	querier database.Querier,
	column string,
	ids []uuid.UUID,
	windowStart time.Time,
) (map[uuid.UUID]int, error) {
	query := `SELECT ` + column + `, COUNT(*) FROM send_job_claims
			  WHERE ` + column + ` IN (` + placeholders(len(ids)) + `) AND claimed_at >= ?
			  GROUP BY ` + column

	rows, err := querier.QueryContext(ctx, query, append(binaryUUIDArgs(ids), windowStart)...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to count claims")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[uuid.UUID]int, len(ids))
	for rows.Next() {
		var raw []byte
		var n int
		if err := rows.Scan(&raw, &n); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan claim count")
		}
		id, err := parseBinaryUUID(raw)
		if err != nil {
			return nil, err
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate claim counts")
	}
	return counts, nil
}

// ClaimItems leases up to limit items of one job: lock, update, then read back.
func (r *MySQLJobRepository) ClaimItems(
	ctx context.Context,
	jobID uuid.UUID,
	workerID string,
	limit, maxAttempts int,
	leaseCutoff, now time.Time,
) ([]*domain.SendJobItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	querier := database.GetTx(ctx, r.db)

	ids, err := selectBinaryIDs(ctx, querier, `SELECT id FROM send_job_items
			  WHERE job_id = ? AND attempts < ?
			    AND ((status = 'queued' AND available_at <= ?) OR (status = 'processing' AND claimed_at < ?))
			  ORDER BY created_at, id
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`, binaryUUID(jobID), maxAttempts, now, leaseCutoff, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to select claimable send job items")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	update := `UPDATE send_job_items
			   SET status = 'processing', claimed_by = ?, claimed_at = ?, attempts = attempts + 1, updated_at = ?
			   WHERE id IN (` + placeholders(len(ids)) + `)`
	if _, err := querier.ExecContext(ctx, update, append([]any{workerID, now, now}, ids...)...); err != nil {
		return nil, apperrors.Wrap(err, "failed to claim send job items")
	}

	query := `SELECT ` + itemColumns + ` FROM send_job_items
			  WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY created_at, id`
	rows, err := querier.QueryContext(ctx, query, ids...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read claimed send job items")
	}
	defer rows.Close() //nolint:errcheck

	return collectMySQLItems(rows)
}

// RecordClaims appends n claim log rows.
func (r *MySQLJobRepository) RecordClaims(
	ctx context.Context,
	jobID, channelID uuid.UUID,
	n int,
	now time.Time,
) error {
	if n <= 0 {
		return nil
	}
	querier := database.GetTx(ctx, r.db)

	var sb strings.Builder
	sb.WriteString(`INSERT INTO send_job_claims (job_id, channel_connection_id, claimed_at) VALUES `)
	args := make([]any, 0, n*3)
	job, channel := binaryUUID(jobID), binaryUUID(channelID)
	for i := range n {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?)")
		args = append(args, job, channel, now)
	}

	if _, err := querier.ExecContext(ctx, sb.String(), args...); err != nil {
		return apperrors.Wrap(err, "failed to record claims")
	}
	return nil
}

// MarkRunning moves a queued job to running on its first claim.
func (r *MySQLJobRepository) MarkRunning(ctx context.Context, jobID uuid.UUID, now time.Time) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE send_jobs SET status = 'running', started_at = COALESCE(started_at, ?), updated_at = ?
			  WHERE id = ? AND status = 'queued'`

	if _, err := querier.ExecContext(ctx, query, now, now, binaryUUID(jobID)); err != nil {
		return apperrors.Wrap(err, "failed to mark send job running")
	}
	return nil
}

// CompleteItem records an outcome under the lease guard.
func (r *MySQLJobRepository) CompleteItem(
	ctx context.Context,
	id uuid.UUID,
	workerID string,
	attempt int,
	outcome domain.Outcome,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE send_job_items
			  SET status = ?, provider_message_id = COALESCE(?, provider_message_id), last_error = ?,
			      available_at = ?, sent_at = COALESCE(?, sent_at), updated_at = ?
			  WHERE id = ? AND status = 'processing' AND claimed_by = ? AND attempts = ?`

	result, err := querier.ExecContext(ctx, query, outcome.Status, outcome.ProviderMessageID, outcome.Error,
		outcome.AvailableAt, sentAt(outcome), outcome.At, binaryUUID(id), workerID, attempt)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to complete send job item")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read completed rows")
	}
	return n == 1, nil
}

// GetItemByProviderMessageIDForUpdate locks the item carrying a provider id.
func (r *MySQLJobRepository) GetItemByProviderMessageIDForUpdate(
	ctx context.Context,
	providerMessageID string,
) (*domain.SendJobItem, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + itemColumns + ` FROM send_job_items
			  WHERE provider_message_id = ? ORDER BY created_at LIMIT 1 FOR UPDATE`

	item, err := scanMySQLItem(querier.QueryRowContext(ctx, query, providerMessageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobItemNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get send job item by provider id")
	}
	return item, nil
}

// UpdateItemStatus applies a status reported by the provider.
func (r *MySQLJobRepository) UpdateItemStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.DeliveryStatus,
	lastError *string,
	now time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE send_job_items SET status = ?, last_error = COALESCE(?, last_error), updated_at = ?
			  WHERE id = ?`

	if _, err := querier.ExecContext(ctx, query, status, lastError, now, binaryUUID(id)); err != nil {
		return apperrors.Wrap(err, "failed to update send job item status")
	}
	return nil
}

// DeleteClaimsBefore prunes claim log rows older than before.
func (r *MySQLJobRepository) DeleteClaimsBefore(ctx context.Context, before time.Time, dryRun bool) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	if dryRun {
		var count int64
		err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM send_job_claims WHERE claimed_at < ?`, before).
			Scan(&count)
		if err != nil {
			return 0, apperrors.Wrap(err, "failed to count claims")
		}
		return count, nil
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM send_job_claims WHERE claimed_at < ?`, before)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete claims")
	}
	return result.RowsAffected()
}

func scanMySQLJob(row rowScanner) (*domain.SendJob, error) {
	var job domain.SendJob
	var id, tenantID, channelID, params, vars []byte

	err := row.Scan(&id, &tenantID, &channelID, &job.TemplateName, &job.TemplateLanguage, &params, &vars,
		&job.Status, &job.TotalCount, &job.QueuedCount, &job.SentCount, &job.FailedCount,
		&job.RateLimitPerMinute, &job.StartedAt, &job.CompletedAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if job.ID, err = parseBinaryUUID(id); err != nil {
		return nil, err
	}
	if job.TenantID, err = parseBinaryUUID(tenantID); err != nil {
		return nil, err
	}
	if job.ChannelConnectionID, err = parseBinaryUUID(channelID); err != nil {
		return nil, err
	}
	if err := unmarshalJobDocs(&job, params, vars); err != nil {
		return nil, err
	}
	return &job, nil
}

func scanMySQLItem(row rowScanner) (*domain.SendJobItem, error) {
	var item domain.SendJobItem
	var id, jobID, tenantID, vars []byte

	err := row.Scan(&id, &jobID, &tenantID, &item.ContactRef, &item.Destination, &vars, &item.Status,
		&item.Attempts, &item.ProviderMessageID, &item.LastError, &item.ClaimedBy, &item.ClaimedAt,
		&item.AvailableAt, &item.SentAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if item.ID, err = parseBinaryUUID(id); err != nil {
		return nil, err
	}
	if item.JobID, err = parseBinaryUUID(jobID); err != nil {
		return nil, err
	}
	if item.TenantID, err = parseBinaryUUID(tenantID); err != nil {
		return nil, err
	}
	if item.Variables, err = unmarshalStringMap(vars); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal item variables")
	}
	return &item, nil
}

func collectMySQLItems(rows *sql.Rows) ([]*domain.SendJobItem, error) {
	var items []*domain.SendJobItem
	for rows.Next() {
		item, err := scanMySQLItem(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan send job item")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate send job items")
	}
	return items, nil
}
