package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/courier/internal/database"
	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/testutil"
)

type jobStore interface {
	Create(ctx context.Context, job *domain.SendJob) error
	CreateItems(ctx context.Context, items []*domain.SendJobItem) error
}

func createTestJob(
	t *testing.T,
	repo jobStore,
	tenantID, channelID uuid.UUID,
	recipients, rateLimit int,
	start bool,
	now time.Time,
) (*domain.SendJob, []*domain.SendJobItem) {
	t.Helper()

	rs := make([]domain.Recipient, recipients)
	for i := range rs {
		rs[i] = domain.Recipient{
			ContactRef:  fmt.Sprintf("contact-%d", i),
			Destination: fmt.Sprintf("+55119999%05d", i),
			Variables:   map[string]string{"name": fmt.Sprintf("n%d", i)},
		}
	}
	job, items := domain.NewSendJob(tenantID, channelID, "welcome", "en_US", []string{"{{name}}"},
		map[string]string{"brand": "acme"}, rateLimit, rs, start, now)
	for i, item := range items {
		item.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
	}

	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, job))
	require.NoError(t, repo.CreateItems(ctx, items))
	return job, items
}

func TestPostgreSQLJobRepository_CreateAndGet(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewPostgreSQLJobRepository(db)
	ctx := context.Background()
	tenantID := uuid.Must(uuid.NewV7())
	channelID := testutil.CreateTestChannel(t, db, "postgres", tenantID, "2001", 0)
	now := time.Now().UTC()

	job, _ := createTestJob(t, repo, tenantID, channelID, 3, 60, false, now)

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDraft, got.Status)
	assert.Equal(t, 3, got.TotalCount)
	assert.Equal(t, 3, got.QueuedCount)
	assert.Equal(t, []string{"{{name}}"}, got.TemplateParams)
	assert.Equal(t, map[string]string{"brand": "acme"}, got.GlobalVariables)
	assert.Nil(t, got.CompletedAt)

	items, total, err := repo.ListItems(ctx, job.ID, nil, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, items, 2)
	assert.Equal(t, "contact-0", items[0].ContactRef)
	assert.Equal(t, map[string]string{"name": "n0"}, items[0].Variables)

	failed := domain.StatusFailed
	items, total, err = repo.ListItems(ctx, job.ID, &failed, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, items)

	_, err = repo.Get(ctx, uuid.Must(uuid.NewV7()))
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestPostgreSQLJobRepository_UpdateStatus(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewPostgreSQLJobRepository(db)
	ctx := context.Background()
	tenantID := uuid.Must(uuid.NewV7())
	channelID := testutil.CreateTestChannel(t, db, "postgres", tenantID, "2002", 0)
	now := time.Now().UTC()

	job, _ := createTestJob(t, repo, tenantID, channelID, 1, 60, false, now)

	require.NoError(t, repo.UpdateStatus(ctx, job.ID, domain.JobStatusQueued, now))
	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, got.Status)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, repo.UpdateStatus(ctx, job.ID, domain.JobStatusCancelled, now))
	got, err = repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestPostgreSQLJobRepository_ClaimPipeline(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewPostgreSQLJobRepository(db)
	ctx := context.Background()
	tenantID := uuid.Must(uuid.NewV7())
	channelID := testutil.CreateTestChannel(t, db, "postgres", tenantID, "2003", 100)
	now := time.Now().UTC()

	job, items := createTestJob(t, repo, tenantID, channelID, 5, 2, true, now.Add(-time.Second))
	draft, _ := createTestJob(t, repo, tenantID, channelID, 2, 10, false, now.Add(-time.Second))

	windowStart := now.Add(-time.Minute)
	txManager := database.NewTxManager(db)
	err := txManager.WithTx(ctx, func(txCtx context.Context) error {
		jobs, err := repo.LockActiveJobs(txCtx, windowStart)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, job.ID, jobs[0].JobID)
		assert.NotEqual(t, draft.ID, jobs[0].JobID)
		assert.Equal(t, 2, jobs[0].RateLimitPerMinute)
		assert.Equal(t, 0, jobs[0].ClaimedInWindow)

		channels, err := repo.LockChannels(txCtx, []uuid.UUID{channelID}, windowStart)
		require.NoError(t, err)
		require.Len(t, channels, 1)
		assert.Equal(t, 100, channels[0].SendLimitPerMinute)

		budget := domain.NewClaimBudget(channels)
		room := budget.Room(jobs[0], 10)
		assert.Equal(t, 2, room)

		claimed, err := repo.ClaimItems(txCtx, job.ID, "worker-a", room, 5, windowStart, now)
		require.NoError(t, err)
		require.Len(t, claimed, 2)
		assert.Equal(t, items[0].ID, claimed[0].ID)
		assert.Equal(t, items[1].ID, claimed[1].ID)
		assert.Equal(t, domain.StatusProcessing, claimed[0].Status)

		if err := repo.RecordClaims(txCtx, job.ID, channelID, len(claimed), now); err != nil {
			return err
		}
		return repo.MarkRunning(txCtx, job.ID, now)
	})
	require.NoError(t, err)

	// The window is now full for the job
	jobs, err := repo.LockActiveJobs(ctx, windowStart)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 2, jobs[0].ClaimedInWindow)

	channels, err := repo.LockChannels(ctx, []uuid.UUID{channelID}, windowStart)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, 2, channels[0].ClaimedInWindow)

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)

	n, err := repo.DeleteClaimsBefore(ctx, now.Add(time.Second), true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = repo.DeleteClaimsBefore(ctx, now.Add(time.Second), false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 0, testutil.CountRows(t, db, "send_job_claims", ""))
}

func TestPostgreSQLJobRepository_CompleteItemFinishesJob(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewPostgreSQLJobRepository(db)
	ctx := context.Background()
	tenantID := uuid.Must(uuid.NewV7())
	channelID := testutil.CreateTestChannel(t, db, "postgres", tenantID, "2004", 0)
	now := time.Now().UTC()

	job, _ := createTestJob(t, repo, tenantID, channelID, 2, 60, true, now.Add(-time.Second))
	require.NoError(t, repo.MarkRunning(ctx, job.ID, now))

	claimed, err := repo.ClaimItems(ctx, job.ID, "worker-a", 2, 5, now.Add(-time.Minute), now)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	providerID := "wamid.job"
	ok, err := repo.CompleteItem(ctx, claimed[0].ID, "worker-a", 1, domain.Outcome{
		Status: domain.StatusSent, ProviderMessageID: &providerID, AvailableAt: now, At: now,
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.ApplyCounterDelta(ctx, job.ID,
		domain.TransitionDelta(domain.StatusProcessing, domain.StatusSent), now))

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, got.Status)
	assert.Equal(t, 1, got.QueuedCount)
	assert.Equal(t, 1, got.SentCount)

	reason := "permanent"
	ok, err = repo.CompleteItem(ctx, claimed[1].ID, "worker-a", 1, domain.Outcome{
		Status: domain.StatusFailed, Error: &reason, AvailableAt: now, At: now,
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.ApplyCounterDelta(ctx, job.ID,
		domain.TransitionDelta(domain.StatusProcessing, domain.StatusFailed), now))

	got, err = repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, 0, got.QueuedCount)
	assert.Equal(t, 1, got.SentCount)
	assert.Equal(t, 1, got.FailedCount)
	assert.NotNil(t, got.CompletedAt)

	item, err := repo.GetItemByProviderMessageIDForUpdate(ctx, providerID)
	require.NoError(t, err)
	assert.Equal(t, claimed[0].ID, item.ID)

	require.NoError(t, repo.UpdateItemStatus(ctx, item.ID, domain.StatusRead, nil, now))
	_, err = repo.GetItemByProviderMessageIDForUpdate(ctx, "wamid.none")
	assert.ErrorIs(t, err, domain.ErrJobItemNotFound)
}

func TestPostgreSQLJobRepository_AllFailedJob(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewPostgreSQLJobRepository(db)
	ctx := context.Background()
	tenantID := uuid.Must(uuid.NewV7())
	channelID := testutil.CreateTestChannel(t, db, "postgres", tenantID, "2005", 0)
	now := time.Now().UTC()

	job, items := createTestJob(t, repo, tenantID, channelID, 2, 60, true, now)
	require.NoError(t, repo.MarkRunning(ctx, job.ID, now))

	_, err := db.ExecContext(ctx, `UPDATE send_job_items SET attempts = 5 WHERE job_id = $1`, job.ID)
	require.NoError(t, err)

	counts, err := repo.DeadLetterItems(ctx, 5, now.Add(-time.Minute), now, domain.MaxAttemptsExceeded)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{job.ID: 2}, counts)
	require.NoError(t, repo.ApplyCounterDelta(ctx, job.ID, domain.CounterDelta{Queued: -2, Failed: 2}, now))

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, 2, got.FailedCount)

	var status string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT status FROM send_job_items WHERE id = $1`, items[0].ID).
		Scan(&status))
	assert.Equal(t, "failed", status)
}

func TestPostgreSQLJobRepository_LargeItemBatch(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewPostgreSQLJobRepository(db)
	tenantID := uuid.Must(uuid.NewV7())
	channelID := testutil.CreateTestChannel(t, db, "postgres", tenantID, "2006", 0)

	job, _ := createTestJob(t, repo, tenantID, channelID, itemInsertBatch+7, 60, false, time.Now().UTC())
	assert.Equal(t, itemInsertBatch+7, testutil.CountRows(t, db, "send_job_items", "job_id = $1", job.ID))
}
