package preflight

import (
	"context"

	"ticketless/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Workspace directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckFreeSpace("Workspace free space", cfg.Paths.WorkDir, cfg.MinFreeBytes()),
	}
	if cfg.Storage.Backend == config.StorageLocal {
		results = append(results, CheckDirectoryAccess("Local blob storage", cfg.Storage.LocalDir))
	}
	if cfg.Queue.Driver == config.QueuePostgres {
		results = append(results, CheckPostgres(ctx, cfg.Queue.DSN))
	}
	if cfg.Notifications.RedisAddr != "" {
		results = append(results, CheckRedis(ctx, cfg.Notifications.RedisAddr))
	}
	if cfg.Wakeup.AMQPURL != "" {
		results = append(results, CheckAMQP(cfg.Wakeup.AMQPURL))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
