package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// WorkChannel is the NOTIFY channel raised whenever deliverable work is inserted.
const WorkChannel = "courier_work"

const listenerPingInterval = 90 * time.Second

// Notifier delivers wake-up signals to a worker.
type Notifier interface {
	// Wake returns a channel that receives a value whenever new work may be available.
	Wake() <-chan struct{}
	Close() error
}

// PgNotifier listens on a PostgreSQL channel and coalesces notifications into wake-ups.
type PgNotifier struct {
	listener *pq.Listener
	wake     chan struct{}
	logger   *slog.Logger
	done     chan struct{}
}

// NewPgNotifier subscribes to channel using a dedicated connection.
func NewPgNotifier(ctx context.Context, dsn, channel string, logger *slog.Logger) (*PgNotifier, error) {
	n := &PgNotifier{
		wake:   make(chan struct{}, 1),
		logger: logger,
		done:   make(chan struct{}),
	}

	n.listener = pq.NewListener(dsn, time.Second, time.Minute, n.onEvent)
	if err := n.listener.Listen(channel); err != nil {
		_ = n.listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	go n.loop(ctx)
	go n.keepAlive(ctx, listenerPingInterval, n.listener.Ping)
	return n, nil
}

func (n *PgNotifier) onEvent(ev pq.ListenerEventType, err error) {
	if err != nil && n.logger != nil {
		n.logger.Warn("notification listener event", slog.Int("event", int(ev)), slog.Any("error", err))
	}
	// A reconnect may have missed notifications.
	if ev == pq.ListenerEventReconnected {
		n.signal()
	}
}

func (n *PgNotifier) loop(ctx context.Context) {
	defer close(n.done)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-n.listener.Notify:
			if !ok {
				return
			}
			n.signal()
		}
	}
}

// keepAlive pings the listener connection one call at a time. It runs apart from loop
// because a ping reply waits behind undelivered notifications.
func (n *PgNotifier) keepAlive(ctx context.Context, interval time.Duration, ping func() error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case <-ticker.C:
			if err := ping(); err != nil && n.logger != nil {
				n.logger.Warn("notification listener ping failed", slog.Any("error", err))
			}
		}
	}
}

func (n *PgNotifier) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Wake implements Notifier.
func (n *PgNotifier) Wake() <-chan struct{} {
	return n.wake
}

// Close stops listening and releases the connection.
func (n *PgNotifier) Close() error {
	err := n.listener.Close()
	select {
	case <-n.done:
	case <-time.After(5 * time.Second):
	}
	return err
}

// NopNotifier never wakes; workers fall back to polling.
type NopNotifier struct{}

// Wake implements Notifier.
func (NopNotifier) Wake() <-chan struct{} { return nil }

// Close implements Notifier.
func (NopNotifier) Close() error { return nil }
