package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ticketless/internal/config"
	"ticketless/internal/logging"
	"ticketless/internal/metrics"
	"ticketless/internal/notifications"
	"ticketless/internal/queue"
	"ticketless/internal/services"
	"ticketless/internal/storage"
	"ticketless/internal/video"
	"ticketless/internal/workspace"
)

// Store is the slice of the job table the worker drives.
type Store interface {
	ClaimPending(ctx context.Context, limit, maxRetries int, workerID string) ([]*queue.Job, error)
	Complete(ctx context.Context, id int64, workerID string, done queue.Completion) error
	RecordFailure(ctx context.Context, id int64, workerID string, failure queue.Failure, maxRetries int) (queue.Status, error)
	ReclaimStale(ctx context.Context, cutoff time.Time, maxRetries int) (int64, error)
}

// Processor runs the video pipeline over a local source file.
type Processor interface {
	Process(ctx context.Context, job video.Job, outDir string) (video.Result, error)
}

// Options bounds one invocation.
type Options struct {
	BatchSize       int
	MaxRetries      int
	StaleAfter      time.Duration
	WorkspaceMaxAge time.Duration
}

// OptionsFromConfig reads worker bounds from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BatchSize:       cfg.Worker.BatchSize,
		MaxRetries:      cfg.Worker.MaxRetries,
		StaleAfter:      cfg.StaleAfter(),
		WorkspaceMaxAge: cfg.WorkspaceMaxAge(),
	}
}

// Deps are the collaborators a Worker drives. Notifier and Metrics may be nil.
type Deps struct {
	Store      Store
	Pipeline   Processor
	Workspaces *workspace.Manager
	Blobs      storage.Store
	Notifier   notifications.Service
	Metrics    *metrics.Metrics
}

// Summary reports what one invocation did.
type Summary struct {
	WorkerID    string        `json:"worker_id"`
	Swept       int           `json:"workspaces_swept"`
	Reclaimed   int64         `json:"reclaimed"`
	Claimed     int           `json:"claimed"`
	Completed   int           `json:"completed"`
	Retried     int           `json:"retried"`
	Failed      int           `json:"failed"`
	StateErrors int           `json:"state_errors"`
	Elapsed     time.Duration `json:"elapsed_ns"`
}

// Worker runs queue invocations. RunOnce is safe to call concurrently from
// separate processes; the claim step keeps them from sharing a job.
type Worker struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// New constructs a worker.
func New(deps Deps, opts Options, logger *slog.Logger) *Worker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = queue.DefaultBatchSize
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = queue.DefaultMaxRetries
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.Noop()
	}
	return &Worker{deps: deps, opts: opts, logger: logging.NewComponentLogger(logger, "worker")}
}

// RunOnce performs one invocation. Claimed jobs always run to a recorded
// outcome; cancelling ctx only stops the invocation from claiming work.
func (w *Worker) RunOnce(ctx context.Context) (Summary, error) {
	started := time.Now()
	summary := Summary{WorkerID: "worker-" + uuid.NewString()}
	ctx = services.WithWorkerID(ctx, summary.WorkerID)
	logger := logging.WithContext(ctx, w.logger)

	summary.Swept = w.sweepWorkspaces(ctx, logger)

	if w.opts.StaleAfter > 0 {
		reclaimed, err := w.deps.Store.ReclaimStale(ctx, time.Now().Add(-w.opts.StaleAfter), w.opts.MaxRetries)
		if err != nil {
			return summary, err
		}
		summary.Reclaimed = reclaimed
		w.deps.Metrics.Reclaimed(reclaimed)
		if reclaimed > 0 {
			logging.WarnWithContext(logger, "reclaimed stalled jobs", "jobs_reclaimed",
				logging.Int64("count", reclaimed),
				logging.String(logging.FieldErrorHint, "a previous worker exited mid-job; check its logs"),
				logging.String(logging.FieldImpact, "each reclaimed job lost one attempt"),
			)
		}
	}

	jobs, err := w.deps.Store.ClaimPending(ctx, w.opts.BatchSize, w.opts.MaxRetries, summary.WorkerID)
	summary.Claimed = len(jobs)
	if err != nil && len(jobs) == 0 {
		return summary, err
	}
	if err != nil {
		logger.Warn("claim stopped early", logging.Int("claimed", len(jobs)), logging.Error(err))
	}
	if len(jobs) == 0 {
		summary.Elapsed = time.Since(started)
		logger.Debug("no pending jobs")
		return summary, nil
	}

	logger.Info("processing batch",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.Int("claimed", len(jobs)),
	)
	jobCtx := context.WithoutCancel(ctx)
	for _, job := range jobs {
		switch w.runJob(jobCtx, summary.WorkerID, job) {
		case outcomeCompleted:
			summary.Completed++
		case outcomeRetry:
			summary.Retried++
		case outcomeFailed:
			summary.Failed++
		case outcomeStateError:
			summary.StateErrors++
		}
	}
	summary.Elapsed = time.Since(started)

	logger.Info("batch finished",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("completed", summary.Completed),
		logging.Int("retried", summary.Retried),
		logging.Int("failed", summary.Failed),
		logging.Int("state_errors", summary.StateErrors),
		logging.Duration("elapsed", summary.Elapsed),
	)
	if summary.StateErrors > 0 {
		return summary, services.Wrap(services.ErrState, "worker", "run", "job transitions conflicted; see logs", nil)
	}
	return summary, nil
}

func (w *Worker) sweepWorkspaces(ctx context.Context, logger *slog.Logger) int {
	if w.opts.WorkspaceMaxAge <= 0 {
		return 0
	}
	result := w.deps.Workspaces.CleanStale(ctx, w.opts.WorkspaceMaxAge)
	for _, failure := range result.Errors {
		logger.Warn("workspace sweep failed",
			logging.String("path", failure.Path),
			logging.Error(failure.Error),
		)
	}
	if len(result.Removed) > 0 {
		logger.Info("removed abandoned workspaces",
			logging.String(logging.FieldEventType, "workspace_sweep"),
			logging.Int("count", len(result.Removed)),
		)
	}
	return len(result.Removed)
}

// IsStateError reports whether err came from a conflicting transition.
func IsStateError(err error) bool {
	return errors.Is(err, services.ErrState)
}
