// Package mocks provides mock implementations of the messaging use case dependencies
// and use cases for testing.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/courier/internal/messaging/domain"
)

// testingT is satisfied by *testing.T.
type testingT interface {
	mock.TestingT
	Cleanup(func())
}

func register(t testingT, m interface {
	Test(mock.TestingT)
	AssertExpectations(mock.TestingT) bool
}) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

// MockMessageRepository is a mock implementation of MessageRepository.
type MockMessageRepository struct {
	mock.Mock
}

// NewMockMessageRepository creates a MockMessageRepository asserted on cleanup.
func NewMockMessageRepository(t testingT) *MockMessageRepository {
	m := &MockMessageRepository{}
	register(t, m)
	return m
}

func (m *MockMessageRepository) Create(ctx context.Context, msg *domain.OutboxMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockMessageRepository) Get(ctx context.Context, id uuid.UUID) (*domain.OutboxMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxMessage), args.Error(1)
}

func (m *MockMessageRepository) DeadLetter(
	ctx context.Context,
	maxAttempts int,
	leaseCutoff, now time.Time,
	reason string,
) (int64, error) {
	args := m.Called(ctx, maxAttempts, leaseCutoff, now, reason)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepository) Claim(
	ctx context.Context,
	workerID string,
	limit, maxAttempts int,
	leaseCutoff, now time.Time,
) ([]*domain.OutboxMessage, error) {
	args := m.Called(ctx, workerID, limit, maxAttempts, leaseCutoff, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxMessage), args.Error(1)
}

func (m *MockMessageRepository) Complete(
	ctx context.Context,
	id uuid.UUID,
	workerID string,
	attempt int,
	outcome domain.Outcome,
) (bool, error) {
	args := m.Called(ctx, id, workerID, attempt, outcome)
	return args.Bool(0), args.Error(1)
}

func (m *MockMessageRepository) GetByProviderMessageIDForUpdate(
	ctx context.Context,
	providerMessageID string,
) (*domain.OutboxMessage, error) {
	args := m.Called(ctx, providerMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxMessage), args.Error(1)
}

func (m *MockMessageRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.DeliveryStatus,
	lastError *string,
	now time.Time,
) error {
	return m.Called(ctx, id, status, lastError, now).Error(0)
}

// MockJobRepository is a mock implementation of JobRepository.
type MockJobRepository struct {
	mock.Mock
}

// NewMockJobRepository creates a MockJobRepository asserted on cleanup.
func NewMockJobRepository(t testingT) *MockJobRepository {
	m := &MockJobRepository{}
	register(t, m)
	return m
}

func (m *MockJobRepository) Create(ctx context.Context, job *domain.SendJob) error {
	return m.Called(ctx, job).Error(0)
}

func (m *MockJobRepository) CreateItems(ctx context.Context, items []*domain.SendJobItem) error {
	return m.Called(ctx, items).Error(0)
}

func (m *MockJobRepository) Get(ctx context.Context, id uuid.UUID) (*domain.SendJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SendJob), args.Error(1)
}

func (m *MockJobRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.SendJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SendJob), args.Error(1)
}

func (m *MockJobRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.JobStatus,
	now time.Time,
) error {
	return m.Called(ctx, id, status, now).Error(0)
}

func (m *MockJobRepository) ListItems(
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

func (m *MockJobRepository) ApplyCounterDelta(
	ctx context.Context,
	jobID uuid.UUID,
	delta domain.CounterDelta,
	now time.Time,
) error {
	return m.Called(ctx, jobID, delta, now).Error(0)
}

func (m *MockJobRepository) DeadLetterItems(
	ctx context.Context,
	maxAttempts int,
	leaseCutoff, now time.Time,
	reason string,
) (map[uuid.UUID]int, error) {
	args := m.Called(ctx, maxAttempts, leaseCutoff, now, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]int), args.Error(1)
}

func (m *MockJobRepository) LockActiveJobs(ctx context.Context, windowStart time.Time) ([]domain.JobBudget, error) {
	args := m.Called(ctx, windowStart)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.JobBudget), args.Error(1)
}

func (m *MockJobRepository) LockChannels(
	ctx context.Context,
	ids []uuid.UUID,
	windowStart time.Time,
) ([]domain.ChannelBudget, error) {
	args := m.Called(ctx, ids, windowStart)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ChannelBudget), args.Error(1)
}

func (m *MockJobRepository) ClaimItems(
	ctx context.Context,
	jobID uuid.UUID,
	workerID string,
	limit, maxAttempts int,
	leaseCutoff, now time.Time,
) ([]*domain.SendJobItem, error) {
	args := m.Called(ctx, jobID, workerID, limit, maxAttempts, leaseCutoff, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SendJobItem), args.Error(1)
}

func (m *MockJobRepository) RecordClaims(
	ctx context.Context,
	jobID, channelID uuid.UUID,
	n int,
	now time.Time,
) error {
	return m.Called(ctx, jobID, channelID, n, now).Error(0)
}

func (m *MockJobRepository) MarkRunning(ctx context.Context, jobID uuid.UUID, now time.Time) error {
	return m.Called(ctx, jobID, now).Error(0)
}

func (m *MockJobRepository) CompleteItem(
	ctx context.Context,
	id uuid.UUID,
	workerID string,
	attempt int,
	outcome domain.Outcome,
) (bool, error) {
	args := m.Called(ctx, id, workerID, attempt, outcome)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobRepository) GetItemByProviderMessageIDForUpdate(
	ctx context.Context,
	providerMessageID string,
) (*domain.SendJobItem, error) {
	args := m.Called(ctx, providerMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SendJobItem), args.Error(1)
}

func (m *MockJobRepository) UpdateItemStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.DeliveryStatus,
	lastError *string,
	now time.Time,
) error {
	return m.Called(ctx, id, status, lastError, now).Error(0)
}

func (m *MockJobRepository) DeleteClaimsBefore(ctx context.Context, before time.Time, dryRun bool) (int64, error) {
	args := m.Called(ctx, before, dryRun)
	return args.Get(0).(int64), args.Error(1)
}

// MockChannelRepository is a mock implementation of ChannelRepository.
type MockChannelRepository struct {
	mock.Mock
}

// NewMockChannelRepository creates a MockChannelRepository asserted on cleanup.
func NewMockChannelRepository(t testingT) *MockChannelRepository {
	m := &MockChannelRepository{}
	register(t, m)
	return m
}

func (m *MockChannelRepository) Create(ctx context.Context, channel *domain.ChannelConnection) error {
	return m.Called(ctx, channel).Error(0)
}

func (m *MockChannelRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ChannelConnection, error) {
	return channelResult(m.Called(ctx, id))
}

func (m *MockChannelRepository) GetByPhoneNumberID(
	ctx context.Context,
	phoneNumberID string,
) (*domain.ChannelConnection, error) {
	return channelResult(m.Called(ctx, phoneNumberID))
}

func (m *MockChannelRepository) GetDefaultForTenant(
	ctx context.Context,
	tenantID uuid.UUID,
) (*domain.ChannelConnection, error) {
	return channelResult(m.Called(ctx, tenantID))
}

func (m *MockChannelRepository) ListByTenant(
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

func channelResult(args mock.Arguments) (*domain.ChannelConnection, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChannelConnection), args.Error(1)
}

// MockInboundEventRepository is a mock implementation of InboundEventRepository.
type MockInboundEventRepository struct {
	mock.Mock
}

// NewMockInboundEventRepository creates a MockInboundEventRepository asserted on cleanup.
func NewMockInboundEventRepository(t testingT) *MockInboundEventRepository {
	m := &MockInboundEventRepository{}
	register(t, m)
	return m
}

func (m *MockInboundEventRepository) Insert(ctx context.Context, event *domain.InboundEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *MockInboundEventRepository) MarkProcessed(
	ctx context.Context,
	id uuid.UUID,
	tenantID *uuid.UUID,
	now time.Time,
) error {
	return m.Called(ctx, id, tenantID, now).Error(0)
}

func (m *MockInboundEventRepository) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	tenantID *uuid.UUID,
	reason string,
) error {
	return m.Called(ctx, id, tenantID, reason).Error(0)
}

func (m *MockInboundEventRepository) ListUnprocessed(
	ctx context.Context,
	tenantID *uuid.UUID,
	receivedBefore time.Time,
	maxAttempts, limit int,
) ([]uuid.UUID, error) {
	args := m.Called(ctx, tenantID, receivedBefore, maxAttempts, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockInboundEventRepository) GetUnprocessedForUpdate(
	ctx context.Context,
	id uuid.UUID,
) (*domain.InboundEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InboundEvent), args.Error(1)
}

func (m *MockInboundEventRepository) CountUnprocessed(
	ctx context.Context,
	tenantID *uuid.UUID,
	maxAttempts int,
) (int64, error) {
	args := m.Called(ctx, tenantID, maxAttempts)
	return args.Get(0).(int64), args.Error(1)
}

// MockThreadRepository is a mock implementation of ThreadRepository.
type MockThreadRepository struct {
	mock.Mock
}

// NewMockThreadRepository creates a MockThreadRepository asserted on cleanup.
func NewMockThreadRepository(t testingT) *MockThreadRepository {
	m := &MockThreadRepository{}
	register(t, m)
	return m
}

func (m *MockThreadRepository) Upsert(ctx context.Context, thread *domain.Thread) (*domain.Thread, error) {
	args := m.Called(ctx, thread)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Thread), args.Error(1)
}

func (m *MockThreadRepository) CreateMessage(ctx context.Context, msg *domain.InboundMessage) (bool, error) {
	args := m.Called(ctx, msg)
	return args.Bool(0), args.Error(1)
}

func (m *MockThreadRepository) MessageExists(ctx context.Context, providerMessageID string) (bool, error) {
	args := m.Called(ctx, providerMessageID)
	return args.Bool(0), args.Error(1)
}

// MockQueueRepository is a mock implementation of QueueRepository.
type MockQueueRepository struct {
	mock.Mock
}

// NewMockQueueRepository creates a MockQueueRepository asserted on cleanup.
func NewMockQueueRepository(t testingT) *MockQueueRepository {
	m := &MockQueueRepository{}
	register(t, m)
	return m
}

func (m *MockQueueRepository) Counts(ctx context.Context) (domain.QueueCounts, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.QueueCounts), args.Error(1)
}
