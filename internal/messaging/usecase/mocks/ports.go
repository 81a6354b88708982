package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/messaging/schema"
)

// MockAutomationPublisher is a mock implementation of AutomationPublisher.
type MockAutomationPublisher struct {
	mock.Mock
}

// NewMockAutomationPublisher creates a MockAutomationPublisher asserted on cleanup.
func NewMockAutomationPublisher(t testingT) *MockAutomationPublisher {
	m := &MockAutomationPublisher{}
	register(t, m)
	return m
}

func (m *MockAutomationPublisher) Append(ctx context.Context, tenantID uuid.UUID, eventType string, payload any) error {
	return m.Called(ctx, tenantID, eventType, payload).Error(0)
}

// MockCredentialSealer is a mock implementation of CredentialSealer.
type MockCredentialSealer struct {
	mock.Mock
}

// NewMockCredentialSealer creates a MockCredentialSealer asserted on cleanup.
func NewMockCredentialSealer(t testingT) *MockCredentialSealer {
	m := &MockCredentialSealer{}
	register(t, m)
	return m
}

func (m *MockCredentialSealer) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	args := m.Called(ctx, plaintext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockCredentialSealer) Open(ctx context.Context, ciphertext []byte) ([]byte, error) {
	args := m.Called(ctx, ciphertext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockSender is a mock implementation of Sender.
type MockSender struct {
	mock.Mock
}

// NewMockSender creates a MockSender asserted on cleanup.
func NewMockSender(t testingT) *MockSender {
	m := &MockSender{}
	register(t, m)
	return m
}

func (m *MockSender) Send(ctx context.Context, req *domain.SendRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockEventDecoder is a mock implementation of EventDecoder.
type MockEventDecoder struct {
	mock.Mock
}

// NewMockEventDecoder creates a MockEventDecoder asserted on cleanup.
func NewMockEventDecoder(t testingT) *MockEventDecoder {
	m := &MockEventDecoder{}
	register(t, m)
	return m
}

func (m *MockEventDecoder) DecodeEvent(raw []byte) (*schema.Event, error) {
	args := m.Called(raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Event), args.Error(1)
}

// MockPayloadValidator is a mock implementation of PayloadValidator.
type MockPayloadValidator struct {
	mock.Mock
}

// NewMockPayloadValidator creates a MockPayloadValidator asserted on cleanup.
func NewMockPayloadValidator(t testingT) *MockPayloadValidator {
	m := &MockPayloadValidator{}
	register(t, m)
	return m
}

func (m *MockPayloadValidator) ValidatePayload(payload map[string]any) error {
	return m.Called(payload).Error(0)
}

func (m *MockPayloadValidator) ValidateVariables(vars map[string]string) error {
	return m.Called(vars).Error(0)
}
