package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ticketless/internal/config"
)

// DefaultChannel is used when notifications.redis_channel is empty.
const DefaultChannel = "ticketless:jobs"

const publishTimeout = 5 * time.Second

// Event is one job status transition.
type Event struct {
	JobID      int64     `json:"job_id"`
	Status     string    `json:"status"`
	RetryCount int       `json:"retry_count"`
	UserID     string    `json:"user_id,omitempty"`
	ContestID  string    `json:"contest_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	VideoURL   string    `json:"processed_video_url,omitempty"`
	At         time.Time `json:"at"`
}

// Service defines the notification surface exposed to the worker.
type Service interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NewService builds a Redis-backed service when an address is configured.
// The address may be host:port or a redis:// URL.
func NewService(cfg *config.Config) (Service, error) {
	addr := strings.TrimSpace(cfg.Notifications.RedisAddr)
	if addr == "" {
		return Noop(), nil
	}
	opts, err := clientOptions(addr)
	if err != nil {
		return nil, err
	}
	channel := strings.TrimSpace(cfg.Notifications.RedisChannel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &redisService{client: redis.NewClient(opts), channel: channel}, nil
}

func clientOptions(addr string) (*redis.Options, error) {
	if strings.Contains(addr, "://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: addr}, nil
}

type redisService struct {
	client  *redis.Client
	channel string
}

func (r *redisService) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode job event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish job event to %s: %w", r.channel, err)
	}
	return nil
}

func (r *redisService) Close() error {
	return r.client.Close()
}

// Noop returns a service that drops every event.
func Noop() Service { return noopService{} }

type noopService struct{}

func (noopService) Publish(context.Context, Event) error { return nil }
func (noopService) Close() error                         { return nil }
