package testsupport

import (
	"context"
	"testing"

	"ticketless/internal/config"
	"ticketless/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob enqueues a pending job referencing originalRef for tests.
func NewJob(t testing.TB, store *queue.Store, originalRef string) *queue.Job {
	t.Helper()

	job, err := store.Enqueue(context.Background(), queue.NewJob{
		UserID:           "user-1",
		ContestID:        "contest-1",
		OriginalVideoRef: originalRef,
		AutoSlice:        true,
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}
