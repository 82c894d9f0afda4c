// Package queueaccess selects the configured job queue backend.
package queueaccess

import (
	"context"
	"fmt"
	"time"

	"ticketless/internal/config"
	"ticketless/internal/queue"
	"ticketless/internal/queue/pgstore"
)

// Access is the job table surface shared by the SQLite and Postgres stores.
type Access interface {
	Enqueue(ctx context.Context, req queue.NewJob) (*queue.Job, error)
	GetByID(ctx context.Context, id int64) (*queue.Job, error)
	List(ctx context.Context, filter queue.ListFilter) ([]*queue.Job, error)
	Claim(ctx context.Context, id int64, workerID string, maxRetries int) (bool, error)
	ClaimPending(ctx context.Context, limit, maxRetries int, workerID string) ([]*queue.Job, error)
	Complete(ctx context.Context, id int64, workerID string, done queue.Completion) error
	RecordFailure(ctx context.Context, id int64, workerID string, failure queue.Failure, maxRetries int) (queue.Status, error)
	ReclaimStale(ctx context.Context, cutoff time.Time, maxRetries int) (int64, error)
	Retry(ctx context.Context, ids ...int64) (int64, error)
	ClearCompleted(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	Health(ctx context.Context) (queue.HealthSummary, error)
	CheckHealth(ctx context.Context) (queue.DatabaseHealth, error)
	Path() string
	Close() error
}

var (
	_ Access = (*queue.Store)(nil)
	_ Access = (*pgstore.Store)(nil)
)

// Open connects to the backend named by cfg.Queue.Driver.
func Open(ctx context.Context, cfg *config.Config) (Access, error) {
	switch cfg.Queue.Driver {
	case config.QueuePostgres:
		store, err := pgstore.Open(ctx, cfg.Queue.DSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.QueueSQLite, "":
		store, err := queue.Open(cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported queue driver %q", cfg.Queue.Driver)
	}
}
