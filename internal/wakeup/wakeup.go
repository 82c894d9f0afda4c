// Package wakeup carries "new work queued" hints over RabbitMQ.
//
// The enqueue path publishes one message per queued job; the daemon consumes
// them and runs the worker early instead of waiting for the next scheduled
// tick. Messages are hints only: the job table stays the source of truth, so a
// lost message delays a job by at most one schedule interval.
package wakeup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ticketless/internal/config"
)

// DefaultQueue is used when wakeup.queue is empty.
const DefaultQueue = "ticketless.jobs"

// Message is the wakeup payload.
type Message struct {
	JobID    int64     `json:"job_id"`
	Enqueued time.Time `json:"enqueued_at"`
}

// Publisher sends wakeups.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// NewPublisher returns an AMQP publisher when a URL is configured, otherwise
// a no-op.
func NewPublisher(cfg *config.Config) Publisher {
	url := strings.TrimSpace(cfg.Wakeup.AMQPURL)
	if url == "" {
		return noopPublisher{}
	}
	return &amqpPublisher{url: url, queue: queueName(cfg)}
}

func queueName(cfg *config.Config) string {
	if name := strings.TrimSpace(cfg.Wakeup.Queue); name != "" {
		return name
	}
	return DefaultQueue
}

type amqpPublisher struct {
	url   string
	queue string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func (p *amqpPublisher) Publish(ctx context.Context, msg Message) error {
	if msg.Enqueued.IsZero() {
		msg.Enqueued = time.Now().UTC()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode wakeup: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureChannel(); err != nil {
		return err
	}
	err = p.channel.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.Enqueued,
		Body:         body,
	})
	if err != nil {
		// Drop the connection so the next publish redials.
		p.closeLocked()
		return fmt.Errorf("publish wakeup: %w", err)
	}
	return nil
}

func (p *amqpPublisher) ensureChannel() error {
	if p.channel != nil && !p.channel.IsClosed() {
		return nil
	}
	p.closeLocked()
	conn, channel, err := open(p.url, p.queue)
	if err != nil {
		return err
	}
	p.conn, p.channel = conn, channel
	return nil
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *amqpPublisher) closeLocked() error {
	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.channel = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.conn = nil
	}
	return errors.Join(errs...)
}

// open dials url and declares the durable wakeup queue.
func open(url, queue string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return conn, channel, nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Message) error { return nil }
func (noopPublisher) Close() error                           { return nil }

// Decode parses a wakeup body.
func Decode(body []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, fmt.Errorf("decode wakeup: %w", err)
	}
	return msg, nil
}
