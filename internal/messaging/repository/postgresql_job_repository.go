package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
)

const (
	jobColumns = `id, tenant_id, channel_connection_id, template_name, template_language, template_params,
	global_variables, status, total_count, queued_count, sent_count, failed_count, rate_limit_per_minute,
	started_at, completed_at, created_at, updated_at`

	itemColumns = `id, job_id, tenant_id, contact_ref, destination, variables, status, attempts,
	provider_message_id, last_error, claimed_by, claimed_at, available_at, sent_at, created_at, updated_at`

	itemInsertColumns = 9

	// itemInsertBatch bounds the rows of one multi-row insert.
	itemInsertBatch = 500
)

// PostgreSQLJobRepository persists send jobs, items and the claim log in PostgreSQL.
type PostgreSQLJobRepository struct {
	db *sql.DB
}

// NewPostgreSQLJobRepository creates a new PostgreSQLJobRepository.
func NewPostgreSQLJobRepository(db *sql.DB) *PostgreSQLJobRepository {
	return &PostgreSQLJobRepository{db: db}
}

// Create inserts a new job.
func (r *PostgreSQLJobRepository) Create(ctx context.Context, job *domain.SendJob) error {
	querier := database.GetTx(ctx, r.db)

	params, vars, err := marshalJobDocs(job)
	if err != nil {
		return err
	}

	query := `INSERT INTO send_jobs (` + jobColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err = querier.ExecContext(ctx, query, job.ID, job.TenantID, job.ChannelConnectionID, job.TemplateName,
		job.TemplateLanguage, params, vars, job.Status, job.TotalCount, job.QueuedCount, job.SentCount,
		job.FailedCount, job.RateLimitPerMinute, job.StartedAt, job.CompletedAt, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create send job")
	}
	return nil
}

// CreateItems inserts items in batched multi-row statements.
func (r *PostgreSQLJobRepository) CreateItems(ctx context.Context, items []*domain.SendJobItem) error {
	querier := database.GetTx(ctx, r.db)

	for batch := range slices.Chunk(items, itemInsertBatch) {
		var sb strings.Builder
		sb.WriteString(`INSERT INTO send_job_items (id, job_id, tenant_id, contact_ref, destination, variables,
			status, available_at, created_at, updated_at) VALUES `)
		args := make([]any, 0, len(batch)*itemInsertColumns)

		for i, item := range batch {
			vars, err := marshalJSON(item.Variables)
			if err != nil {
				return apperrors.Wrap(err, "failed to marshal item variables")
			}
			if i > 0 {
				sb.WriteString(", ")
			}
			n := len(args)
			fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
				n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8, n+9, n+9)
			args = append(args, item.ID, item.JobID, item.TenantID, item.ContactRef, item.Destination, vars,
				item.Status, item.AvailableAt, item.CreatedAt)
		}

		if _, err := querier.ExecContext(ctx, sb.String(), args...); err != nil {
			return apperrors.Wrap(err, "failed to create send job items")
		}
	}
	return nil
}

// Get retrieves a job by id.
func (r *PostgreSQLJobRepository) Get(ctx context.Context, id uuid.UUID) (*domain.SendJob, error) {
	return r.get(ctx, `SELECT `+jobColumns+` FROM send_jobs WHERE id = $1`, id)
}

// GetForUpdate retrieves and locks a job by id.
func (r *PostgreSQLJobRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.SendJob, error) {
	return r.get(ctx, `SELECT `+jobColumns+` FROM send_jobs WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgreSQLJobRepository) get(ctx context.Context, query string, id uuid.UUID) (*domain.SendJob, error) {
	querier := database.GetTx(ctx, r.db)

	job, err := scanPostgreSQLJob(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get send job")
	}
	return job, nil
}

// UpdateStatus sets the job status; finished statuses also stamp completed_at.
func (r *PostgreSQLJobRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.JobStatus,
	now time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE send_jobs SET status = $1, completed_at = COALESCE($2, completed_at), updated_at = $3
			  WHERE id = $4`

	if _, err := querier.ExecContext(ctx, query, status, completedAt(status, now), now, id); err != nil {
		return apperrors.Wrap(err, "failed to update send job status")
	}
	return nil
}

// ListItems returns a page of a job's items, optionally filtered by status, and the filtered total.
func (r *PostgreSQLJobRepository) ListItems(
	ctx context.Context,
	jobID uuid.UUID,
	status *domain.DeliveryStatus,
	offset, limit int,
) ([]*domain.SendJobItem, int64, error) {
	querier := database.GetTx(ctx, r.db)

	where := `WHERE job_id = $1`
	args := []any{jobID}
	if status != nil {
		where += ` AND status = $2`
		args = append(args, *status)
	}

	var total int64
	if err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM send_job_items `+where, args...).
		Scan(&total); err != nil {
		return nil, 0, apperrors.Wrap(err, "failed to count send job items")
	}

	query := fmt.Sprintf(`SELECT %s FROM send_job_items %s ORDER BY created_at, id LIMIT $%d OFFSET $%d`,
		itemColumns, where, len(args)+1, len(args)+2)
	rows, err := querier.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, "failed to list send job items")
	}
	defer rows.Close() //nolint:errcheck

	items, err := collectPostgreSQLItems(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ApplyCounterDelta adjusts the counters. An active job whose queued bucket drains is
// finished: completed when at least one item was sent, failed otherwise.
func (r *PostgreSQLJobRepository) ApplyCounterDelta(
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
			      queued_count = queued_count + $2,
			      sent_count = sent_count + $3,
			      failed_count = failed_count + $4,
			      status = CASE WHEN status IN ('queued', 'running') AND queued_count + $2 <= 0
			          THEN CASE WHEN sent_count + $3 > 0 THEN 'completed' ELSE 'failed' END
			          ELSE status END,
			      completed_at = CASE WHEN status IN ('queued', 'running') AND queued_count + $2 <= 0 THEN $5 ELSE completed_at END,
			      updated_at = $5
			  WHERE id = $1`

	if _, err := querier.ExecContext(ctx, query, jobID, delta.Queued, delta.Sent, delta.Failed, now); err != nil {
		return apperrors.Wrap(err, "failed to update send job counters")
	}
	return nil
}

// DeadLetterItems fails exhausted items and returns the count per job.
func (r *PostgreSQLJobRepository) DeadLetterItems(
	ctx context.Context,
	maxAttempts int,
	leaseCutoff, now time.Time,
	reason string,
) (map[uuid.UUID]int, error) {
	querier := database.GetTx(ctx, r.db)

	query := `WITH dead AS (
			      UPDATE send_job_items SET status = 'failed', last_error = $1, updated_at = $2
			      WHERE id IN (
			          SELECT id FROM send_job_items
			          WHERE attempts >= $3
			            AND (status = 'queued' OR (status = 'processing' AND claimed_at < $4))
			          FOR UPDATE SKIP LOCKED
			      )
			      RETURNING job_id
			  )
			  SELECT job_id, COUNT(*) FROM dead GROUP BY job_id`

	rows, err := querier.QueryContext(ctx, query, reason, now, maxAttempts, leaseCutoff)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to dead-letter send job items")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var jobID uuid.UUID
		var n int
		if err := rows.Scan(&jobID, &n); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan dead-lettered items")
		}
		counts[jobID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate dead-lettered items")
	}
	return counts, nil
}

// LockActiveJobs locks the active jobs no other claimer holds, oldest first.
func (r *PostgreSQLJobRepository) LockActiveJobs(
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
		var b domain.JobBudget
		if err := rows.Scan(&b.JobID, &b.ChannelConnectionID, &b.RateLimitPerMinute); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan active send job")
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

	counts, err := r.claimCounts(ctx, querier, "job_id", ids, windowStart)
	if err != nil {
		return nil, err
	}
	for i := range budgets {
		budgets[i].ClaimedInWindow = counts[budgets[i].JobID]
	}
	return budgets, nil
}

// LockChannels locks the given channels no other claimer holds.
func (r *PostgreSQLJobRepository) LockChannels(
	ctx context.Context,
	ids []uuid.UUID,
	windowStart time.Time,
) ([]domain.ChannelBudget, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	querier := database.GetTx(ctx, r.db)

	rows, err := querier.QueryContext(ctx, `SELECT id, send_limit_per_minute FROM channel_connections
			  WHERE id = ANY($1::uuid[])
			  ORDER BY id
			  FOR UPDATE SKIP LOCKED`, pq.Array(uuidStrings(ids)))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock channels")
	}
	defer rows.Close() //nolint:errcheck

	var budgets []domain.ChannelBudget
	var locked []uuid.UUID
	for rows.Next() {
		var b domain.ChannelBudget
		if err := rows.Scan(&b.ChannelConnectionID, &b.SendLimitPerMinute); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan channel")
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

	counts, err := r.claimCounts(ctx, querier, "channel_connection_id", locked, windowStart)
	if err != nil {
		return nil, err
	}
	for i := range budgets {
		budgets[i].ClaimedInWindow = counts[budgets[i].ChannelConnectionID]
	}
	return budgets, nil
}

// claimCounts counts claim log rows since windowStart grouped by column.
func (r *PostgreSQLJobRepository) claimCounts(
	ctx context.Context,
	querier database.Querier,
	column string,
	ids []uuid.UUID,
	windowStart time.Time,
) (map[uuid.UUID]int, error) {
	query := `SELECT ` + column + `, COUNT(*) FROM send_job_claims
			  WHERE ` + column + ` = ANY($1::uuid[]) AND claimed_at >= $2
			  GROUP BY ` + column

	rows, err := querier.QueryContext(ctx, query, pq.Array(uuidStrings(ids)), windowStart)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to count claims")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[uuid.UUID]int, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan claim count")
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate claim counts")
	}
	return counts, nil
}

// ClaimItems leases up to limit items of one job in a single statement.
func (r *PostgreSQLJobRepository) ClaimItems(
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

	query := `UPDATE send_job_items
			  SET status = 'processing', claimed_by = $1, claimed_at = $2, attempts = attempts + 1, updated_at = $2
			  WHERE id IN (
			      SELECT id FROM send_job_items
			      WHERE job_id = $3 AND attempts < $4
			        AND ((status = 'queued' AND available_at <= $2) OR (status = 'processing' AND claimed_at < $5))
			      ORDER BY created_at, id
			      LIMIT $6
			      FOR UPDATE SKIP LOCKED
			  )
			  RETURNING ` + itemColumns

	rows, err := querier.QueryContext(ctx, query, workerID, now, jobID, maxAttempts, leaseCutoff, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to claim send job items")
	}
	defer rows.Close() //nolint:errcheck

	items, err := collectPostgreSQLItems(rows)
	if err != nil {
		return nil, err
	}
	sortItems(items)
	return items, nil
}

// RecordClaims appends n claim log rows.
func (r *PostgreSQLJobRepository) RecordClaims(
	ctx context.Context,
	jobID, channelID uuid.UUID,
	n int,
	now time.Time,
) error {
	if n <= 0 {
		return nil
	}
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO send_job_claims (job_id, channel_connection_id, claimed_at)
			  SELECT $1::uuid, $2::uuid, $3::timestamptz FROM generate_series(1, $4::int)`

	if _, err := querier.ExecContext(ctx, query, jobID, channelID, now, n); err != nil {
		return apperrors.Wrap(err, "failed to record claims")
	}
	return nil
}

// MarkRunning moves a queued job to running on its first claim.
func (r *PostgreSQLJobRepository) MarkRunning(ctx context.Context, jobID uuid.UUID, now time.Time) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE send_jobs SET status = 'running', started_at = COALESCE(started_at, $2), updated_at = $2
			  WHERE id = $1 AND status = 'queued'`

	if _, err := querier.ExecContext(ctx, query, jobID, now); err != nil {
		return apperrors.Wrap(err, "failed to mark send job running")
	}
	return nil
}

// CompleteItem records an outcome under the lease guard.
func (r *PostgreSQLJobRepository) CompleteItem(
	ctx context.Context,
	id uuid.UUID,
	workerID string,
	attempt int,
	outcome domain.Outcome,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE send_job_items
			  SET status = $1, provider_message_id = COALESCE($2, provider_message_id), last_error = $3,
			      available_at = $4, sent_at = COALESCE($5, sent_at), updated_at = $6
			  WHERE id = $7 AND status = 'processing' AND claimed_by = $8 AND attempts = $9`

	result, err := querier.ExecContext(ctx, query, outcome.Status, outcome.ProviderMessageID, outcome.Error,
		outcome.AvailableAt, sentAt(outcome), outcome.At, id, workerID, attempt)
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
func (r *PostgreSQLJobRepository) GetItemByProviderMessageIDForUpdate(
	ctx context.Context,
	providerMessageID string,
) (*domain.SendJobItem, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + itemColumns + ` FROM send_job_items
			  WHERE provider_message_id = $1 ORDER BY created_at LIMIT 1 FOR UPDATE`

	item, err := scanPostgreSQLItem(querier.QueryRowContext(ctx, query, providerMessageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobItemNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get send job item by provider id")
	}
	return item, nil
}

// UpdateItemStatus applies a status reported by the provider.
func (r *PostgreSQLJobRepository) UpdateItemStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.DeliveryStatus,
	lastError *string,
	now time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE send_job_items SET status = $1, last_error = COALESCE($2, last_error), updated_at = $3
			  WHERE id = $4`

	if _, err := querier.ExecContext(ctx, query, status, lastError, now, id); err != nil {
		return apperrors.Wrap(err, "failed to update send job item status")
	}
	return nil
}

// DeleteClaimsBefore prunes claim log rows older than before.
func (r *PostgreSQLJobRepository) DeleteClaimsBefore(
	ctx context.Context,
	before time.Time,
	dryRun bool,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	if dryRun {
		var count int64
		err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM send_job_claims WHERE claimed_at < $1`, before).
			Scan(&count)
		if err != nil {
			return 0, apperrors.Wrap(err, "failed to count claims")
		}
		return count, nil
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM send_job_claims WHERE claimed_at < $1`, before)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete claims")
	}
	return result.RowsAffected()
}

func scanPostgreSQLJob(row rowScanner) (*domain.SendJob, error) {
	var job domain.SendJob
	var params, vars []byte

	err := row.Scan(&job.ID, &job.TenantID, &job.ChannelConnectionID, &job.TemplateName, &job.TemplateLanguage,
		&params, &vars, &job.Status, &job.TotalCount, &job.QueuedCount, &job.SentCount, &job.FailedCount,
		&job.RateLimitPerMinute, &job.StartedAt, &job.CompletedAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJobDocs(&job, params, vars); err != nil {
		return nil, err
	}
	return &job, nil
}

func scanPostgreSQLItem(row rowScanner) (*domain.SendJobItem, error) {
	var item domain.SendJobItem
	var vars []byte

	err := row.Scan(&item.ID, &item.JobID, &item.TenantID, &item.ContactRef, &item.Destination, &vars,
		&item.Status, &item.Attempts, &item.ProviderMessageID, &item.LastError, &item.ClaimedBy, &item.ClaimedAt,
		&item.AvailableAt, &item.SentAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if item.Variables, err = unmarshalStringMap(vars); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal item variables")
	}
	return &item, nil
}

func collectPostgreSQLItems(rows *sql.Rows) ([]*domain.SendJobItem, error) {
	var items []*domain.SendJobItem
	for rows.Next() {
		item, err := scanPostgreSQLItem(rows)
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

func marshalJobDocs(job *domain.SendJob) (string, string, error) {
	params := job.TemplateParams
	if params == nil {
		params = []string{}
	}
	rawParams, err := marshalJSON(params)
	if err != nil {
		return "", "", apperrors.Wrap(err, "failed to marshal template params")
	}
	vars := job.GlobalVariables
	if vars == nil {
		vars = map[string]string{}
	}
	rawVars, err := marshalJSON(vars)
	if err != nil {
		return "", "", apperrors.Wrap(err, "failed to marshal global variables")
	}
	return rawParams, rawVars, nil
}

func unmarshalJobDocs(job *domain.SendJob, params, vars []byte) error {
	var err error
	if job.TemplateParams, err = unmarshalStrings(params); err != nil {
		return apperrors.Wrap(err, "failed to unmarshal template params")
	}
	if job.GlobalVariables, err = unmarshalStringMap(vars); err != nil {
		return apperrors.Wrap(err, "failed to unmarshal global variables")
	}
	return nil
}

func completedAt(status domain.JobStatus, now time.Time) *time.Time {
	if !status.IsFinished() {
		return nil
	}
	return &now
}

func sortItems(items []*domain.SendJobItem) {
	slices.SortFunc(items, func(a, b *domain.SendJobItem) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}
