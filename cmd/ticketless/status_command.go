package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ticketless/internal/api"
	"ticketless/internal/config"
	"ticketless/internal/daemonctl"
	"ticketless/internal/preflight"
	"ticketless/internal/queue"
	"ticketless/internal/queueaccess"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var withChecks bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and dependency status",
		Long: "Query the running daemon for its status. When no daemon answers, the queue\n" +
			"and system dependencies are inspected directly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := remoteStatus(cmd.Context(), cfg, withChecks)
			if errors.Is(err, daemonctl.ErrUnavailable) {
				status, err = localStatus(cmd.Context(), ctx, cfg, withChecks)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, strings.Join(renderServiceStatus(status, shouldColorize(out)), "\n")+"\n")
			return nil
		},
	}

	cmd.Flags().BoolVar(&withChecks, "checks", false, "Also run connectivity and disk checks")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output status as JSON")
	return cmd
}

func remoteStatus(ctx context.Context, cfg *config.Config, withChecks bool) (api.ServiceStatus, error) {
	client, err := daemonctl.FromConfig(cfg)
	if err != nil {
		return api.ServiceStatus{}, err
	}
	return client.Status(ctx, withChecks)
}

func localStatus(ctx context.Context, cmdCtx *commandContext, cfg *config.Config, withChecks bool) (api.ServiceStatus, error) {
	status := api.ServiceStatus{
		QueueDriver:    cfg.Queue.Driver,
		StorageBackend: cfg.Storage.Backend,
		Schedule:       cfg.Worker.Schedule,
		Dependencies:   api.FromDependencies(preflight.CheckSystemDeps(cfg)),
	}
	if withChecks {
		status.Checks = api.FromChecks(preflight.RunAll(ctx, cfg))
	}
	err := cmdCtx.withStore(ctx, func(store queueaccess.Access) error {
		status.QueueLocation = store.Path()
		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		status.Queue = api.MergeQueueStats(stats)
		return nil
	})
	if err != nil {
		return status, fmt.Errorf("inspect queue: %w", err)
	}
	return status, nil
}

func renderServiceStatus(status api.ServiceStatus, colorize bool) []string {
	var lines []string

	lines = append(lines, renderSectionHeader("Daemon", colorize)...)
	if status.Running {
		lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize))
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	}
	lines = append(lines,
		renderStatusLine("Queue", statusInfo, status.QueueDriver+" "+status.QueueLocation, colorize),
		renderStatusLine("Storage", statusInfo, status.StorageBackend, colorize),
	)
	if status.Schedule != "" {
		lines = append(lines, renderStatusLine("Schedule", statusInfo, status.Schedule, colorize))
	}
	if status.Running {
		lines = append(lines, renderStatusLine("Workspaces", statusInfo, fmt.Sprintf("%d active", status.ActiveWorkspaces), colorize))
	}
	if run := status.LastRun; run != nil {
		kind := statusOK
		message := fmt.Sprintf("%s via %s: %d claimed, %d completed, %d retried, %d failed",
			run.StartedAt, run.Trigger, run.Claimed, run.Completed, run.Retried, run.Failed)
		if run.Error != "" {
			kind = statusError
			message += " (" + run.Error + ")"
		} else if run.Failed > 0 || run.StateErrors > 0 {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine("Last run", kind, message, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Jobs", colorize)...)
	for _, s := range queue.AllStatuses() {
		count := status.Queue[string(s)]
		kind := statusInfo
		if s == queue.StatusFailed && count > 0 {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(titleCaser.String(string(s)), kind, fmt.Sprintf("%d", count), colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	for _, dep := range status.Dependencies {
		lines = append(lines, dependencyLine(dep, colorize))
	}

	if len(status.Checks) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Checks", colorize)...)
		for _, check := range status.Checks {
			kind := statusOK
			if !check.Passed {
				kind = statusError
			}
			lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
		}
	}
	return lines
}

func dependencyLine(dep api.DependencyStatus, colorize bool) string {
	switch {
	case dep.Available && dep.Version != "":
		return renderStatusLine(dep.Name, statusOK, dep.Version, colorize)
	case dep.Available:
		return renderStatusLine(dep.Name, statusOK, dep.Command, colorize)
	case dep.Optional:
		return renderStatusLine(dep.Name, statusWarn, dep.Detail, colorize)
	default:
		return renderStatusLine(dep.Name, statusError, dep.Detail, colorize)
	}
}

