// Package syncer runs the background reconciliation pass that pushes
// unsynced step records to the remote store.
package syncer

import (
	"context"
	"errors"
	"log"
	"time"
)

// UserSource lists users that currently hold unsynced records.
type UserSource interface {
	UsersWithUnsynced(ctx context.Context) ([]string, error)
}

// Syncer pushes one user's unsynced records to the remote store and
// reports how many were confirmed.
type Syncer interface {
	SyncUnsynced(ctx context.Context, userID string) (int, error)
}

// Worker drives periodic sync passes, decoupled from the read path.
// Records are synced sequentially per user, so a pass never bursts the
// remote store.
type Worker struct {
	users            UserSource
	syncer           Syncer
	pollInterval     time.Duration
	logger           *log.Logger
	shutdownComplete chan struct{}
}

// Option configures optional Worker behaviour.
type Option func(*Worker)

// WithLogger overrides the logger used to report pass errors.
func WithLogger(logger *log.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// NewWorker constructs a Worker.
func NewWorker(users UserSource, syncer Syncer, pollInterval time.Duration, opts ...Option) *Worker {
	w := &Worker{
		users:            users,
		syncer:           syncer,
		pollInterval:     pollInterval,
		logger:           log.New(log.Writer(), "[syncer] ", log.LstdFlags),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the polling loop. It should be called in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer func() {
		ticker.Stop()
		close(w.shutdownComplete)
	}()

	for {
		if err := w.runPass(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Printf("sync pass error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the worker has stopped.
func (w *Worker) Wait() {
	<-w.shutdownComplete
}

// runPass syncs every user with pending records. Per-user failures are
// logged and do not abort the pass; failed records stay unsynced and are
// retried on the next tick.
func (w *Worker) runPass(ctx context.Context) error {
	start := time.Now()

	users, err := w.users.UsersWithUnsynced(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return nil
	}
	defer func() { passDuration.Observe(time.Since(start).Seconds()) }()

	total := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return err
		}

		synced, err := w.syncer.SyncUnsynced(ctx, userID)
		total += synced
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			w.logger.Printf("sync failed (user=%s): %v", userID, err)
		}
	}

	if total > 0 {
		w.logger.Printf("sync pass complete: %d records across %d users", total, len(users))
	}
	passCounter.Inc()
	return nil
}
