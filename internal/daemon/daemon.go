package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"ticketless/internal/api"
	"ticketless/internal/config"
	"ticketless/internal/logging"
	"ticketless/internal/metrics"
	"ticketless/internal/preflight"
	"ticketless/internal/queueaccess"
	"ticketless/internal/upload"
	"ticketless/internal/wakeup"
	"ticketless/internal/worker"
	"ticketless/internal/workspace"
)

// Trigger names why a worker invocation ran.
const (
	TriggerSchedule = "schedule"
	TriggerWakeup   = "wakeup"
	TriggerHTTP     = "http"
	TriggerStartup  = "startup"
)

// Deps are the components the daemon coordinates. Listener and Metrics may
// be nil.
type Deps struct {
	Store      queueaccess.Access
	Worker     *worker.Worker
	Uploads    *upload.Handler
	Enqueuer   *api.Enqueuer
	Workspaces *workspace.Manager
	Listener   *wakeup.Listener
	Metrics    *metrics.Metrics
}

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   Deps

	lockPath string
	lock     *flock.Flock

	scheduler *cron.Cron
	triggers  chan string
	api       *apiServer

	runMu   sync.Mutex
	lastRun atomic.Pointer[api.WorkerRun]

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Worker == nil || deps.Workspaces == nil {
		return nil, errors.New("daemon requires config, store, worker, and workspace manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "ticketless.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		deps:     deps,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		triggers: make(chan string, 1),
	}
	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock, sweeps leftover workspaces, and launches
// the scheduler, the wakeup listener, and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another ticketless daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.sweepWorkspaces()

	scheduler, err := newScheduler(d.cfg.Worker.Schedule, d.logger, func() { d.Trigger(TriggerSchedule) })
	if err != nil {
		d.abortStart()
		return err
	}
	if err := d.api.start(); err != nil {
		d.abortStart()
		return err
	}
	d.scheduler = scheduler
	d.scheduler.Start()

	d.wg.Add(1)
	go d.loop()
	if listener := d.deps.Listener; listener != nil && listener.Enabled() {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := listener.Run(d.ctx, func(msg wakeup.Message) {
				d.logger.Debug("wakeup received", logging.Int64(logging.FieldJobID, msg.JobID))
				d.Trigger(TriggerWakeup)
			}); err != nil && !errors.Is(err, context.Canceled) {
				logging.WarnWithContext(d.logger, "wakeup listener stopped", "wakeup_listener_stopped",
					logging.String(logging.FieldImpact, "jobs wait for the next scheduled worker run"),
					logging.Error(err),
				)
			}
		}()
	}
	d.Trigger(TriggerStartup)

	d.running.Store(true)
	d.logger.Info("ticketless daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("schedule", d.cfg.Worker.Schedule),
	)
	return nil
}

func (d *Daemon) abortStart() {
	d.cancel()
	d.ctx = nil
	d.cancel = nil
	_ = d.lock.Unlock()
}

// Stop stops background processing and releases the daemon lock. A worker
// invocation already running is allowed to finish recording its jobs.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.scheduler != nil {
		<-d.scheduler.Stop().Done()
	}
	d.api.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("ticketless daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.deps.Store != nil {
		return d.deps.Store.Close()
	}
	return nil
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Trigger requests a worker invocation. Requests arriving while one is
// already pending collapse into it.
func (d *Daemon) Trigger(reason string) {
	select {
	case d.triggers <- reason:
	default:
	}
}

func (d *Daemon) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case reason := <-d.triggers:
			if d.ctx.Err() != nil {
				return
			}
			_, _ = d.RunWorker(d.ctx, reason)
		}
	}
}

// RunWorker performs one worker invocation and records it as the last run.
// Invocations in this process are serialized.
func (d *Daemon) RunWorker(ctx context.Context, reason string) (worker.Summary, error) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	started := time.Now()
	summary, err := d.deps.Worker.RunOnce(ctx)
	run := &api.WorkerRun{
		WorkerID:    summary.WorkerID,
		Trigger:     reason,
		StartedAt:   started.UTC().Format(time.RFC3339),
		Claimed:     summary.Claimed,
		Completed:   summary.Completed,
		Retried:     summary.Retried,
		Failed:      summary.Failed,
		Reclaimed:   summary.Reclaimed,
		StateErrors: summary.StateErrors,
	}
	if err != nil {
		run.Error = err.Error()
		if !errors.Is(err, context.Canceled) {
			d.logger.Error("worker invocation failed",
				logging.String(logging.FieldEventType, "worker_run_failed"),
				logging.String("trigger", reason),
				logging.Error(err),
			)
		}
	}
	d.lastRun.Store(run)
	return summary, err
}

// LastRun returns the most recent worker invocation, or nil.
func (d *Daemon) LastRun() *api.WorkerRun {
	return d.lastRun.Load()
}

func (d *Daemon) sweepWorkspaces() {
	result := d.deps.Workspaces.CleanStale(d.ctx, d.cfg.WorkspaceMaxAge())
	for _, failure := range result.Errors {
		d.logger.Warn("workspace sweep failed",
			logging.String(logging.FieldEventType, "workspace_sweep_failed"),
			logging.String("path", failure.Path),
			logging.Error(failure.Error),
		)
	}
	if len(result.Removed) > 0 {
		d.logger.Info("removed leftover workspaces",
			logging.String(logging.FieldEventType, "workspace_swept"),
			logging.Int("count", len(result.Removed)),
		)
	}
}

// Status returns the current daemon status. Preflight checks contact external
// services and only run when withChecks is set.
func (d *Daemon) Status(ctx context.Context, withChecks bool) api.ServiceStatus {
	status := api.ServiceStatus{
		Running:          d.running.Load(),
		PID:              os.Getpid(),
		QueueDriver:      d.cfg.Queue.Driver,
		QueueLocation:    d.deps.Store.Path(),
		LockFilePath:     d.lockPath,
		StorageBackend:   d.cfg.Storage.Backend,
		Schedule:         d.cfg.Worker.Schedule,
		ActiveWorkspaces: d.deps.Workspaces.Active(),
		LastRun:          d.LastRun(),
		Dependencies:     api.FromDependencies(preflight.CheckSystemDeps(d.cfg)),
	}
	if stats, err := d.deps.Store.Stats(ctx); err == nil {
		status.Queue = api.MergeQueueStats(stats)
	} else {
		d.logger.Warn("queue stats unavailable", logging.Error(err))
	}
	if withChecks {
		status.Checks = api.FromChecks(preflight.RunAll(ctx, d.cfg))
	}
	return status
}
