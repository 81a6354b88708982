package commands

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/courier/internal/messaging/domain"
	"github.com/allisson/courier/internal/messaging/usecase/mocks"
)

func TestRunReconcileLoop(t *testing.T) {
	logger := slog.Default()

	t.Run("runs-until-cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		calls := make(chan struct{}, 10)
		mockUseCase := mocks.NewMockReconcileUseCase(t)
		mockUseCase.On("Reconcile", mock.Anything, (*uuid.UUID)(nil), 25).
			Return(&domain.ReconcileResult{ScannedEvents: 1, ReconciledEvents: 1}, nil).
			Run(func(mock.Arguments) {
				select {
				case calls <- struct{}{}:
				default:
				}
			})

		done := make(chan error, 1)
		go func() {
			done <- RunReconcileLoop(ctx, mockUseCase, logger, 5*time.Millisecond, 25)
		}()

		<-calls
		<-calls
		cancel()

		require.ErrorIs(t, <-done, context.Canceled)
	})

	t.Run("failed-pass-keeps-running", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		calls := make(chan struct{}, 10)
		mockUseCase := mocks.NewMockReconcileUseCase(t)
		mockUseCase.On("Reconcile", mock.Anything, (*uuid.UUID)(nil), 25).
			Return(nil, errors.New("db down")).
			Run(func(mock.Arguments) {
				select {
				case calls <- struct{}{}:
				default:
				}
			})

		done := make(chan error, 1)
		go func() {
			done <- RunReconcileLoop(ctx, mockUseCase, logger, 5*time.Millisecond, 25)
		}()

		<-calls
		<-calls
		cancel()

		require.ErrorIs(t, <-done, context.Canceled)
	})
}
