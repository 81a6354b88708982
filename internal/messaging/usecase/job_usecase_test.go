package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	databaseMocks "github.com/allisson/courier/internal/database/mocks"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/messaging/usecase/mocks"
)

type jobFixture struct {
	txManager   *databaseMocks.MockTxManager
	jobRepo     *mocks.MockJobRepository
	channelRepo *mocks.MockChannelRepository
	validator   *mocks.MockPayloadValidator
	uc          JobUseCase
}

func newJobFixture(t *testing.T) *jobFixture {
	f := &jobFixture{
		txManager:   databaseMocks.NewMockTxManager(t),
		jobRepo:     mocks.NewMockJobRepository(t),
		channelRepo: mocks.NewMockChannelRepository(t),
		validator:   mocks.NewMockPayloadValidator(t),
	}
	f.uc = NewJobUseCase(f.txManager, f.jobRepo, f.channelRepo, f.validator, nil)
	return f
}

func validJobInput(tenantID, channelID uuid.UUID) domain.CreateJobInput {
	return domain.CreateJobInput{
		TenantID:           tenantID,
		ChannelID:          channelID,
		TemplateName:       "order_update",
		TemplateLanguage:   "en_US",
		TemplateParams:     []string{"{{name}}", "{{order}}"},
		GlobalVariables:    map[string]string{"order": "A-1"},
		RateLimitPerMinute: 10,
		Recipients: []domain.Recipient{
			{ContactRef: "c-1", Destination: "+5511999990001", Variables: map[string]string{"name": "Ana"}},
			{ContactRef: "c-2", Destination: "+5511999990002", Variables: map[string]string{"name": "Bia"}},
		},
		Start: true,
	}
}

func TestJobUseCase_Create(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.Must(uuid.NewV7())
	channelID := uuid.Must(uuid.NewV7())

	t.Run("Success_JobAndItemsInOneTransaction", func(t *testing.T) {
		f := newJobFixture(t)
		input := validJobInput(tenantID, channelID)

		f.validator.On("ValidateVariables", mock.Anything).Return(nil).Times(3)
		f.channelRepo.On("Get", ctx, channelID).
			Return(&domain.ChannelConnection{ID: channelID, TenantID: tenantID}, nil).
			Once()
		f.txManager.On("WithTx", ctx, mock.Anything).Return(nil).Once()
		f.jobRepo.On("Create", ctx, mock.MatchedBy(func(job *domain.SendJob) bool {
			return job.TotalCount == 2 && job.QueuedCount == 2 && job.Status == domain.JobStatusQueued
		})).Return(nil).Once()
		f.jobRepo.On("CreateItems", ctx, mock.MatchedBy(func(items []*domain.SendJobItem) bool {
			return len(items) == 2 && items[0].Destination == "+5511999990001"
		})).Return(nil).Once()

		job, err := f.uc.Create(ctx, input)

		require.NoError(t, err)
		assert.Equal(t, "order_update", job.TemplateName)
		assert.Equal(t, 10, job.RateLimitPerMinute)
	})

	t.Run("Success_DraftWhenNotStarted", func(t *testing.T) {
		f := newJobFixture(t)
		input := validJobInput(tenantID, channelID)
		input.Start = false

		f.validator.On("ValidateVariables", mock.Anything).Return(nil)
		f.channelRepo.On("Get", ctx, channelID).
			Return(&domain.ChannelConnection{ID: channelID, TenantID: tenantID}, nil).
			Once()
		f.txManager.On("WithTx", ctx, mock.Anything).Return(nil).Once()
		f.jobRepo.On("Create", ctx, mock.Anything).Return(nil).Once()
		f.jobRepo.On("CreateItems", ctx, mock.Anything).Return(nil).Once()

		job, err := f.uc.Create(ctx, input)

		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusDraft, job.Status)
	})

	t.Run("Error_InvalidRecipientDestination", func(t *testing.T) {
		f := newJobFixture(t)
		input := validJobInput(tenantID, channelID)
		input.Recipients[1].Destination = "not-a-phone"

		f.validator.On("ValidateVariables", mock.Anything).Return(nil)

		_, err := f.uc.Create(ctx, input)

		assert.ErrorIs(t, err, domain.ErrInvalidDestination)
		assert.Contains(t, err.Error(), "recipients[1]")
	})

	t.Run("Error_InvalidVariables", func(t *testing.T) {
		f := newJobFixture(t)
		input := validJobInput(tenantID, channelID)

		f.validator.On("ValidateVariables", input.GlobalVariables).Return(errors.New("too many keys")).Once()

		_, err := f.uc.Create(ctx, input)

		assert.ErrorIs(t, err, domain.ErrInvalidVariables)
	})

	t.Run("Error_NoRecipients", func(t *testing.T) {
		f := newJobFixture(t)
		input := validJobInput(tenantID, channelID)
		input.Recipients = nil

		_, err := f.uc.Create(ctx, input)

		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_NonPositiveRateLimit", func(t *testing.T) {
		f := newJobFixture(t)
		input := validJobInput(tenantID, channelID)
		input.RateLimitPerMinute = 0

		_, err := f.uc.Create(ctx, input)

		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_ChannelOfAnotherTenant", func(t *testing.T) {
		f := newJobFixture(t)
		input := validJobInput(tenantID, channelID)

		f.validator.On("ValidateVariables", mock.Anything).Return(nil)
		f.channelRepo.On("Get", ctx, channelID).
			Return(&domain.ChannelConnection{ID: channelID, TenantID: uuid.Must(uuid.NewV7())}, nil).
			Once()

		_, err := f.uc.Create(ctx, input)

		assert.ErrorIs(t, err, domain.ErrChannelTenantMismatch)
	})

	t.Run("Error_ItemInsertFailsIsUnavailable", func(t *testing.T) {
		f := newJobFixture(t)
		input := validJobInput(tenantID, channelID)
		dbErr := errors.New("connection reset")

		f.validator.On("ValidateVariables", mock.Anything).Return(nil)
		f.channelRepo.On("Get", ctx, channelID).
			Return(&domain.ChannelConnection{ID: channelID, TenantID: tenantID}, nil).
			Once()
		f.txManager.On("WithTx", ctx, mock.Anything).Return(nil).Once()
		f.jobRepo.On("Create", ctx, mock.Anything).Return(nil).Once()
		f.jobRepo.On("CreateItems", ctx, mock.Anything).Return(dbErr).Once()

		_, err := f.uc.Create(ctx, input)

		assert.ErrorIs(t, err, apperrors.ErrUnavailable)
		assert.ErrorIs(t, err, dbErr)
	})
}

func TestJobUseCase_StartAndCancel(t *testing.T) {
	ctx := context.Background()
	jobID := uuid.Must(uuid.NewV7())

	tests := []struct {
		name      string
		current   domain.JobStatus
		cancel    bool
		wantErr   error
		wantState domain.JobStatus
	}{
		{name: "StartDraft", current: domain.JobStatusDraft, wantState: domain.JobStatusQueued},
		{name: "StartRunning", current: domain.JobStatusRunning, wantErr: domain.ErrJobNotStartable},
		{name: "CancelRunning", current: domain.JobStatusRunning, cancel: true, wantState: domain.JobStatusCancelled},
		{name: "CancelDraft", current: domain.JobStatusDraft, cancel: true, wantState: domain.JobStatusCancelled},
		{name: "CancelCompleted", current: domain.JobStatusCompleted, cancel: true, wantErr: domain.ErrJobNotCancellable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newJobFixture(t)

			f.txManager.On("WithTx", ctx, mock.Anything).Return(nil).Once()
			f.jobRepo.On("GetForUpdate", ctx, jobID).
				Return(&domain.SendJob{ID: jobID, Status: tt.current}, nil).
				Once()
			if tt.wantErr == nil {
				f.jobRepo.On("UpdateStatus", ctx, jobID, tt.wantState, mock.AnythingOfType("time.Time")).
					Return(nil).
					Once()
			}

			var job *domain.SendJob
			var err error
			if tt.cancel {
				job, err = f.uc.Cancel(ctx, jobID)
			} else {
				job, err = f.uc.Start(ctx, jobID)
			}

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, apperrors.ErrConflict)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, job.Status)
			if tt.cancel {
				assert.NotNil(t, job.CompletedAt)
			}
		})
	}

	t.Run("NotFound", func(t *testing.T) {
		f := newJobFixture(t)

		f.txManager.On("WithTx", ctx, mock.Anything).Return(nil).Once()
		f.jobRepo.On("GetForUpdate", ctx, jobID).Return(nil, domain.ErrJobNotFound).Once()

		_, err := f.uc.Start(ctx, jobID)

		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestJobUseCase_ListItems(t *testing.T) {
	ctx := context.Background()
	jobID := uuid.Must(uuid.NewV7())

	t.Run("Success_FilteredByStatus", func(t *testing.T) {
		f := newJobFixture(t)
		status := domain.StatusFailed
		items := []*domain.SendJobItem{{ID: uuid.Must(uuid.NewV7()), JobID: jobID, Status: status}}

		f.jobRepo.On("Get", ctx, jobID).Return(&domain.SendJob{ID: jobID}, nil).Once()
		f.jobRepo.On("ListItems", ctx, jobID, &status, 0, 20).Return(items, int64(7), nil).Once()

		got, total, err := f.uc.ListItems(ctx, jobID, &status, 0, 20)

		require.NoError(t, err)
		assert.Equal(t, items, got)
		assert.Equal(t, int64(7), total)
	})

	t.Run("Error_UnknownStatus", func(t *testing.T) {
		f := newJobFixture(t)
		status := domain.DeliveryStatus("bounced")

		_, _, err := f.uc.ListItems(ctx, jobID, &status, 0, 20)

		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_JobNotFound", func(t *testing.T) {
		f := newJobFixture(t)
		f.jobRepo.On("Get", ctx, jobID).Return(nil, domain.ErrJobNotFound).Once()

		_, _, err := f.uc.ListItems(ctx, jobID, nil, 0, 20)

		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})
}

func TestJobUseCase_CleanClaimLog(t *testing.T) {
	ctx := context.Background()

	t.Run("ClampsToRateWindow", func(t *testing.T) {
		f := newJobFixture(t)
		f.jobRepo.On("DeleteClaimsBefore", ctx, mock.MatchedBy(func(before time.Time) bool {
			return time.Since(before) >= time.Minute
		}), true).Return(int64(3), nil).Once()

		count, err := f.uc.CleanClaimLog(ctx, 10*time.Second, true)

		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	t.Run("UsesRequestedAge", func(t *testing.T) {
		f := newJobFixture(t)
		f.jobRepo.On("DeleteClaimsBefore", ctx, mock.MatchedBy(func(before time.Time) bool {
			age := time.Since(before)
			return age >= time.Hour && age < time.Hour+time.Minute
		}), false).Return(int64(120), nil).Once()

		count, err := f.uc.CleanClaimLog(ctx, time.Hour, false)

		require.NoError(t, err)
		assert.Equal(t, int64(120), count)
	})
}
