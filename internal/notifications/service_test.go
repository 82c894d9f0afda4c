package notifications_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"ticketless/internal/config"
	"ticketless/internal/notifications"
)

func TestNewServiceReturnsNoopWhenAddrMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.RedisAddr = ""
	svc, err := notifications.NewService(&cfg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Publish(context.Background(), notifications.Event{JobID: 1, Status: "completed"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewServiceRejectsBadURL(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.RedisAddr = "redis://host:notaport/0"
	if _, err := notifications.NewService(&cfg); err == nil {
		t.Fatal("expected error for malformed redis url")
	}
}

func TestPublishReportsUnreachableServer(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.RedisAddr = "127.0.0.1:1"
	svc, err := notifications.NewService(&cfg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = svc.Publish(ctx, notifications.Event{JobID: 7, Status: "failed"})
	if err == nil || !strings.Contains(err.Error(), "publish job event") {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestEventJSONShape(t *testing.T) {
	event := notifications.Event{
		JobID:      9,
		Status:     "pending",
		RetryCount: 1,
		Error:      "toolchain error",
		At:         time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"job_id", "status", "retry_count", "error", "at"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("event json missing %q: %s", key, data)
		}
	}
	if _, ok := decoded["processed_video_url"]; ok {
		t.Errorf("empty url should be omitted: %s", data)
	}
}
