package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/allisson/courier/internal/app"
	"github.com/allisson/courier/internal/config"
	messagingUseCase "github.com/allisson/courier/internal/messaging/usecase"
)

// RunWorker runs the delivery worker, plus the reconciliation scanner and the
// automation relay when they are enabled, until SIGINT/SIGTERM. A failing loop
// stops the others.
func RunWorker(ctx context.Context, version string) error {
	cfg := config.Load()

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting worker",
		slog.String("version", version),
		slog.String("worker_id", cfg.WorkerID),
	)

	defer closeContainer(container, logger)

	worker, err := container.DeliveryWorker()
	if err != nil {
		return fmt.Errorf("failed to initialize delivery worker: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Start(gctx)
	})

	if cfg.ReconcileEnabled {
		reconcileUseCase, err := container.ReconcileUseCase()
		if err != nil {
			return fmt.Errorf("failed to initialize reconcile use case: %w", err)
		}
		g.Go(func() error {
			return RunReconcileLoop(gctx, reconcileUseCase, logger, cfg.ReconcileInterval, cfg.ReconcileBatchSize)
		})
	}

	if cfg.AutomationEnabled {
		relay, err := container.RelayUseCase()
		if err != nil {
			return fmt.Errorf("failed to initialize automation relay: %w", err)
		}
		g.Go(func() error {
			return relay.Start(gctx)
		})
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}
	if metricsServer != nil {
		g.Go(func() error {
			return metricsServer.Start(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			return shutdownServers(map[string]shutdowner{"metrics server": metricsServer}, cfg.DBConnMaxLifetime)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("worker stopped")
	return nil
}

// RunReconcileLoop runs a reconciliation pass every interval until ctx is done.
// A failed pass is logged and retried on the next tick.
func RunReconcileLoop(
	ctx context.Context,
	reconcileUseCase messagingUseCase.ReconcileUseCase,
	logger *slog.Logger,
	interval time.Duration,
	limit int,
) error {
	logger.Info("starting reconciliation scanner",
		slog.Duration("interval", interval),
		slog.Int("limit", limit),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping reconciliation scanner")
			return ctx.Err()
		case <-ticker.C:
			result, err := reconcileUseCase.Reconcile(ctx, nil, limit)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Error("reconciliation pass failed", slog.Any("error", err))
				continue
			}
			if result.ScannedEvents > 0 {
				logger.Info("reconciliation pass completed",
					slog.Int("scanned_events", result.ScannedEvents),
					slog.Int("reconciled_events", result.ReconciledEvents),
					slog.Int("remaining", result.Remaining),
					slog.Bool("timed_out", result.TimedOut),
				)
			}
		}
	}
}
