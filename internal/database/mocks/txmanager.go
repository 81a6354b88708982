// Package mocks provides mock implementations of the database package interfaces.
package mocks

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"
)

// MockTxManager is a mock implementation of database.TxManager. Unless an error is
// configured, WithTx runs fn with the given context.
type MockTxManager struct {
	mock.Mock
}

// NewMockTxManager creates a MockTxManager whose expectations are asserted on cleanup.
func NewMockTxManager(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockTxManager {
	m := &MockTxManager{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// WithTx mocks the WithTx method of TxManager.
func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx)
}

// WithTxIsolation mocks the WithTxIsolation method of TxManager.
func (m *MockTxManager) WithTxIsolation(
	ctx context.Context,
	level sql.IsolationLevel,
	fn func(ctx context.Context) error,
) error {
	args := m.Called(ctx, level, fn)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx)
}
