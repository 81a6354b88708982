package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/courier/internal/messaging/domain"
)

// MockMessageUseCase is a mock implementation of MessageUseCase.
type MockMessageUseCase struct {
	mock.Mock
}

// NewMockMessageUseCase creates a MockMessageUseCase asserted on cleanup.
func NewMockMessageUseCase(t testingT) *MockMessageUseCase {
	m := &MockMessageUseCase{}
	register(t, m)
	return m
}

func (m *MockMessageUseCase) Enqueue(
	ctx context.Context,
	tenantID uuid.UUID,
	destination string,
	payload map[string]any,
	channelID *uuid.UUID,
) (*domain.OutboxMessage, error) {
	args := m.Called(ctx, tenantID, destination, payload, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxMessage), args.Error(1)
}

func (m *MockMessageUseCase) Get(ctx context.Context, id uuid.UUID) (*domain.OutboxMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxMessage), args.Error(1)
}

// MockJobUseCase is a mock implementation of JobUseCase.
type MockJobUseCase struct {
	mock.Mock
}

// NewMockJobUseCase creates a MockJobUseCase asserted on cleanup.
func NewMockJobUseCase(t testingT) *MockJobUseCase {
	m := &MockJobUseCase{}
	register(t, m)
	return m
}

func (m *MockJobUseCase) Create(ctx context.Context, input domain.CreateJobInput) (*domain.SendJob, error) {
	return jobResult(m.Called(ctx, input))
}

func (m *MockJobUseCase) Get(ctx context.Context, id uuid.UUID) (*domain.SendJob, error) {
	return jobResult(m.Called(ctx, id))
}

func (m *MockJobUseCase) ListItems(
	ctx context.Context,
	jobID uuid.UUID,
	status *domain.DeliveryStatus,
	offset, limit int,
) ([]*domain.SendJobItem, int64, error) {
	args := m.Called(ctx, jobID, status, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*domain.SendJobItem), args.Get(1).(int64), args.Error(2)
}

func (m *MockJobUseCase) Start(ctx context.Context, id uuid.UUID) (*domain.SendJob, error) {
	return jobResult(m.Called(ctx, id))
}

func (m *MockJobUseCase) Cancel(ctx context.Context, id uuid.UUID) (*domain.SendJob, error) {
	return jobResult(m.Called(ctx, id))
}

func (m *MockJobUseCase) CleanClaimLog(ctx context.Context, olderThan time.Duration, dryRun bool) (int64, error) {
	args := m.Called(ctx, olderThan, dryRun)
	return args.Get(0).(int64), args.Error(1)
}

func jobResult(args mock.Arguments) (*domain.SendJob, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SendJob), args.Error(1)
}

// MockChannelUseCase is a mock implementation of ChannelUseCase.
type MockChannelUseCase struct {
	mock.Mock
}

// NewMockChannelUseCase creates a MockChannelUseCase asserted on cleanup.
func NewMockChannelUseCase(t testingT) *MockChannelUseCase {
	m := &MockChannelUseCase{}
	register(t, m)
	return m
}

func (m *MockChannelUseCase) Create(
	ctx context.Context,
	tenantID uuid.UUID,
	name, phoneNumberID, accessToken string,
	sendLimitPerMinute int,
) (*domain.ChannelConnection, error) {
	return channelResult(m.Called(ctx, tenantID, name, phoneNumberID, accessToken, sendLimitPerMinute))
}

func (m *MockChannelUseCase) Get(ctx context.Context, id uuid.UUID) (*domain.ChannelConnection, error) {
	return channelResult(m.Called(ctx, id))
}

func (m *MockChannelUseCase) List(
	ctx context.Context,
	tenantID uuid.UUID,
	offset, limit int,
) ([]*domain.ChannelConnection, error) {
	args := m.Called(ctx, tenantID, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ChannelConnection), args.Error(1)
}

// MockClaimScheduler is a mock implementation of ClaimScheduler.
type MockClaimScheduler struct {
	mock.Mock
}

// NewMockClaimScheduler creates a MockClaimScheduler asserted on cleanup.
func NewMockClaimScheduler(t testingT) *MockClaimScheduler {
	m := &MockClaimScheduler{}
	register(t, m)
	return m
}

func (m *MockClaimScheduler) Claim(
	ctx context.Context,
	workerID string,
	batchSize int,
	visibilityTimeout time.Duration,
) ([]*domain.Unit, error) {
	args := m.Called(ctx, workerID, batchSize, visibilityTimeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Unit), args.Error(1)
}

// MockIngestUseCase is a mock implementation of IngestUseCase.
type MockIngestUseCase struct {
	mock.Mock
}

// NewMockIngestUseCase creates a MockIngestUseCase asserted on cleanup.
func NewMockIngestUseCase(t testingT) *MockIngestUseCase {
	m := &MockIngestUseCase{}
	register(t, m)
	return m
}

func (m *MockIngestUseCase) Ingest(ctx context.Context, raw []byte) (*domain.IngestResult, error) {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestResult), args.Error(1)
}

// MockReconcileUseCase is a mock implementation of ReconcileUseCase.
type MockReconcileUseCase struct {
	mock.Mock
}

// NewMockReconcileUseCase creates a MockReconcileUseCase asserted on cleanup.
func NewMockReconcileUseCase(t testingT) *MockReconcileUseCase {
	m := &MockReconcileUseCase{}
	register(t, m)
	return m
}

func (m *MockReconcileUseCase) Reconcile(
	ctx context.Context,
	tenantID *uuid.UUID,
	limit int,
) (*domain.ReconcileResult, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReconcileResult), args.Error(1)
}

// MockHealthUseCase is a mock implementation of HealthUseCase.
type MockHealthUseCase struct {
	mock.Mock
}

// NewMockHealthUseCase creates a MockHealthUseCase asserted on cleanup.
func NewMockHealthUseCase(t testingT) *MockHealthUseCase {
	m := &MockHealthUseCase{}
	register(t, m)
	return m
}

func (m *MockHealthUseCase) Summary(ctx context.Context) (*domain.QueueSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.QueueSummary), args.Error(1)
}
