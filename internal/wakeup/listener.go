package wakeup

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ticketless/internal/config"
	"ticketless/internal/logging"
)

// ErrDisabled is returned by Listen when no AMQP URL is configured.
var ErrDisabled = errors.New("wakeup listener disabled")

// Listener consumes wakeups and forwards them to a handler.
type Listener struct {
	url     string
	queue   string
	backoff time.Duration
	logger  *slog.Logger
}

// NewListener builds a listener from cfg.
func NewListener(cfg *config.Config, logger *slog.Logger) *Listener {
	return &Listener{
		url:     strings.TrimSpace(cfg.Wakeup.AMQPURL),
		queue:   queueName(cfg),
		backoff: 5 * time.Second,
		logger:  logging.NewComponentLogger(logger, "wakeup"),
	}
}

// Enabled reports whether a broker is configured.
func (l *Listener) Enabled() bool { return l.url != "" }

// Run consumes until ctx is cancelled, reconnecting after broker failures.
// handle runs once per delivery; deliveries are acknowledged after it returns.
func (l *Listener) Run(ctx context.Context, handle func(Message)) error {
	if !l.Enabled() {
		return ErrDisabled
	}
	for {
		err := l.consume(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		logging.WarnWithContext(l.logger, "wakeup consumer disconnected", "wakeup_disconnected",
			logging.Error(err),
			logging.Duration("retry_in", l.backoff),
			logging.String(logging.FieldImpact, "scheduled worker runs continue; early wakeups paused"),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.backoff):
		}
	}
}

func (l *Listener) consume(ctx context.Context, handle func(Message)) error {
	conn, channel, err := open(l.url, l.queue)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer channel.Close()

	if err := channel.Qos(1, 0, false); err != nil {
		return err
	}
	deliveries, err := channel.Consume(l.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	l.logger.Info("listening for wakeups", logging.String("queue", l.queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return amqp.ErrClosed
			}
			msg, err := Decode(delivery.Body)
			if err != nil {
				l.logger.Debug("malformed wakeup treated as generic", logging.Error(err))
			}
			handle(msg)
			if err := delivery.Ack(false); err != nil {
				return err
			}
		}
	}
}
