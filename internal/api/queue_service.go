package api

import (
	"context"

	"ticketless/internal/queue"
)

// QueueReader abstracts the job table operations needed for API queries and
// operator maintenance.
type QueueReader interface {
	List(ctx context.Context, filter queue.ListFilter) ([]*queue.Job, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	GetByID(ctx context.Context, id int64) (*queue.Job, error)
	Retry(ctx context.Context, ids ...int64) (int64, error)
	ClearCompleted(ctx context.Context) (int64, error)
}

// QueueService exposes queue operations returning API DTOs.
type QueueService struct {
	store QueueReader
}

// NewQueueService constructs a QueueService around the provided reader.
func NewQueueService(store QueueReader) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store}
}

// List returns jobs matching filter, newest first.
func (s *QueueService) List(ctx context.Context, filter queue.ListFilter) ([]JobView, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	jobs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Stats returns queue summary counts keyed by status string.
func (s *QueueService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}

// Describe fetches a single job. It returns nil, nil when absent.
func (s *QueueService) Describe(ctx context.Context, id int64) (*JobView, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	job, err := s.store.GetByID(ctx, id)
	if err != nil || job == nil {
		return nil, err
	}
	dto := FromJob(job)
	return &dto, nil
}

// Retry resets failed jobs to pending. With no ids every failed job is reset.
func (s *QueueService) Retry(ctx context.Context, ids ...int64) (int64, error) {
	if s == nil || s.store == nil {
		return 0, nil
	}
	return s.store.Retry(ctx, ids...)
}

// ClearCompleted removes completed rows.
func (s *QueueService) ClearCompleted(ctx context.Context) (int64, error) {
	if s == nil || s.store == nil {
		return 0, nil
	}
	return s.store.ClearCompleted(ctx)
}
