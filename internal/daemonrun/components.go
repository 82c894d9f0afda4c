package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ticketless/internal/api"
	"ticketless/internal/config"
	"ticketless/internal/logging"
	"ticketless/internal/metrics"
	"ticketless/internal/notifications"
	"ticketless/internal/queueaccess"
	"ticketless/internal/storage"
	"ticketless/internal/upload"
	"ticketless/internal/video"
	"ticketless/internal/wakeup"
	"ticketless/internal/worker"
	"ticketless/internal/workspace"
)

// Components is the wired runtime graph.
type Components struct {
	Config     *config.Config
	Store      queueaccess.Access
	Blobs      storage.Store
	Pipeline   *video.Pipeline
	Workspaces *workspace.Manager
	Worker     *worker.Worker
	Uploads    *upload.Handler
	Enqueuer   *api.Enqueuer
	Notifier   notifications.Service
	Wakeups    wakeup.Publisher
	Metrics    *metrics.Metrics
}

// Build opens the job table and storage and wires the rest of the graph.
// Notification and wakeup failures degrade to no-ops with a warning; the job
// table and storage are required.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	store, err := queueaccess.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	blobs, err := storage.New(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	notifier, err := notifications.NewService(cfg)
	if err != nil {
		logging.WarnWithContext(logger, "job notifications disabled", "notifications_disabled",
			logging.String(logging.FieldImpact, "status changes are not published to redis"),
			logging.Error(err),
		)
		notifier = notifications.Noop()
	}

	m := metrics.New()
	workspaces := workspace.NewManager(cfg.Paths.WorkDir, cfg.MinFreeBytes(), logger)
	m.TrackWorkspaces(workspaces.Active)
	m.TrackQueue(queueDepth(store, logger))

	pipeline := video.NewPipelineFromConfig(cfg, m, logger)
	wakeups := wakeup.NewPublisher(cfg)

	return &Components{
		Config:     cfg,
		Store:      store,
		Blobs:      blobs,
		Pipeline:   pipeline,
		Workspaces: workspaces,
		Worker: worker.New(worker.Deps{
			Store:      store,
			Pipeline:   pipeline,
			Workspaces: workspaces,
			Blobs:      blobs,
			Notifier:   notifier,
			Metrics:    m,
		}, worker.OptionsFromConfig(cfg), logger),
		Uploads:  upload.NewHandler(pipeline, workspaces, blobs, cfg.MaxSyncUploadBytes(), m, logger),
		Enqueuer: api.NewEnqueuer(store, blobs, workspaces, wakeups, cfg.MaxQueuedUploadBytes(), logger),
		Notifier: notifier,
		Wakeups:  wakeups,
		Metrics:  m,
	}, nil
}

// Close releases network clients and the job table.
func (c *Components) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Wakeups != nil {
		errs = append(errs, c.Wakeups.Close())
	}
	if c.Notifier != nil {
		errs = append(errs, c.Notifier.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return errors.Join(errs...)
}

func queueDepth(store queueaccess.Access, logger *slog.Logger) func() map[string]int {
	return func() map[string]int {
		stats, err := store.Stats(context.Background())
		if err != nil {
			logger.Debug("queue depth unavailable", logging.Error(err))
			return nil
		}
		return api.MergeQueueStats(stats)
	}
}
