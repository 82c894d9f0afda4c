package daemon

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"ticketless/internal/logging"
)

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func newScheduler(spec string, logger *slog.Logger, fire func()) (*cron.Cron, error) {
	adapter := cronLogger{logger: logger}
	c := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter)),
	)
	if _, err := c.AddFunc(spec, fire); err != nil {
		return nil, fmt.Errorf("worker schedule %q: %w", spec, err)
	}
	return c, nil
}

// cronLogger routes cron's own diagnostics through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{logging.Error(err)}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}
