package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"ticketless/internal/config"
	"ticketless/internal/daemon"
	"ticketless/internal/logging"
	"ticketless/internal/preflight"
	"ticketless/internal/wakeup"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the ticketless daemon and blocks until cmdCtx is cancelled or
// the process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "ticketless.log")},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "ticketless.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logDependencySnapshot(signalCtx, logger, cfg)

	components, err := Build(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("build runtime", logging.Error(err))
		return err
	}
	defer components.Close()

	d, err := daemon.New(cfg, daemon.Deps{
		Store:      components.Store,
		Worker:     components.Worker,
		Uploads:    components.Uploads,
		Enqueuer:   components.Enqueuer,
		Workspaces: components.Workspaces,
		Listener:   wakeup.NewListener(cfg, logger),
		Metrics:    components.Metrics,
	}, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	if err := d.Start(signalCtx); err != nil {
		return err
	}
	defer d.Stop()

	<-signalCtx.Done()
	logger.Info("ticketless daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, dep := range preflight.CheckSystemDeps(cfg) {
		if dep.Available {
			logger.Info("dependency available",
				logging.String(logging.FieldEventType, "dependency_snapshot"),
				logging.String("name", dep.Name),
				logging.String("command", dep.Command),
			)
			continue
		}
		logging.WarnWithContext(logger, "dependency missing", "dependency_missing",
			logging.String("name", dep.Name),
			logging.String("command", dep.Command),
			logging.String(logging.FieldErrorHint, dep.Detail),
			logging.String(logging.FieldImpact, "video processing fails until the binary is installed"),
		)
	}
	for _, failed := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String(logging.FieldErrorHint, failed.Detail),
		)
	}
}
