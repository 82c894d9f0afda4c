package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ticketless/internal/services"
)

// Claim atomically moves job id from pending to processing for workerID.
// It reports false when another worker got there first or the job is no
// longer eligible; the conditional update is the only claim primitive.
func (s *Store) Claim(ctx context.Context, id int64, workerID string, maxRetries int) (bool, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE video_jobs
         SET status = ?, claimed_by = ?, claimed_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND retry_count < ?`,
		StatusProcessing, workerID, now, now,
		id, StatusPending, maxRetries,
	)
	if err != nil {
		return false, fmt.Errorf("claim job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job %d rows: %w", id, err)
	}
	return affected == 1, nil
}

// ClaimPending claims up to limit eligible jobs, oldest first. Candidates
// lost to a concurrent worker are skipped and the next oldest is tried.
func (s *Store) ClaimPending(ctx context.Context, limit, maxRetries int, workerID string) ([]*Job, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	claimed := make([]*Job, 0, limit)
	tried := make(map[int64]struct{})
	for len(claimed) < limit {
		candidates, err := s.pendingCandidates(ctx, limit-len(claimed), maxRetries, tried)
		if err != nil {
			return claimed, err
		}
		if len(candidates) == 0 {
			break
		}
		for _, id := range candidates {
			tried[id] = struct{}{}
			ok, err := s.Claim(ctx, id, workerID, maxRetries)
			if err != nil {
				return claimed, err
			}
			if !ok {
				continue
			}
			job, err := s.GetByID(ctx, id)
			if err != nil {
				return claimed, err
			}
			if job != nil {
				claimed = append(claimed, job)
			}
		}
	}
	return claimed, nil
}

func (s *Store) pendingCandidates(ctx context.Context, limit, maxRetries int, exclude map[int64]struct{}) ([]int64, error) {
	query := `SELECT id FROM video_jobs WHERE status = ? AND retry_count < ?`
	args := []any{StatusPending, maxRetries}
	if len(exclude) > 0 {
		query += " AND id NOT IN (" + makePlaceholders(len(exclude)) + ")"
		for id := range exclude {
			args = append(args, id)
		}
	}
	query += " ORDER BY created_at, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("select pending jobs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending job: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Complete records a successful attempt. It fails with services.ErrState when
// the job is not processing under workerID's claim.
func (s *Store) Complete(ctx context.Context, id int64, workerID string, done Completion) error {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE video_jobs
         SET status = ?, processed_video_ref = ?, thumbnail_ref = ?, processed_video_url = ?,
             thumbnail_url = ?, metadata_json = ?, error_message = NULL, error_kind = NULL,
             completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND claimed_by = ?`,
		StatusCompleted,
		done.ProcessedVideoRef,
		done.ThumbnailRef,
		nullableString(done.ProcessedVideoURL),
		nullableString(done.ThumbnailURL),
		nullableString(done.MetadataJSON),
		now, now,
		id, StatusProcessing, workerID,
	)
	if err != nil {
		return fmt.Errorf("complete job %d: %w", id, err)
	}
	return s.requireOwned(ctx, res, id, workerID, "complete")
}

// RecordFailure records a failed attempt and returns the resulting status:
// pending while retries remain, failed once retry_count reaches maxRetries or
// when the failure is terminal.
func (s *Store) RecordFailure(ctx context.Context, id int64, workerID string, failure Failure, maxRetries int) (Status, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE video_jobs
         SET retry_count = retry_count + 1,
             status = CASE WHEN ? = 1 OR retry_count + 1 >= ? THEN ? ELSE ? END,
             error_message = ?, error_kind = ?, claimed_by = NULL, claimed_at = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND claimed_by = ?`,
		boolToInt(failure.Terminal), maxRetries, StatusFailed, StatusPending,
		truncateMessage(failure.Message), nullableString(failure.Kind), now,
		id, StatusProcessing, workerID,
	)
	if err != nil {
		return "", fmt.Errorf("record failure for job %d: %w", id, err)
	}
	if err := s.requireOwned(ctx, res, id, workerID, "record failure"); err != nil {
		return "", err
	}
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", services.Wrap(services.ErrState, "queue", "record failure", fmt.Sprintf("job %d vanished", id), nil)
	}
	return job.Status, nil
}

// ReclaimStale returns processing jobs whose claim is older than cutoff to
// pending, counting the lost attempt against the retry budget. Jobs that run
// out of attempts become failed.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time, maxRetries int) (int64, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE video_jobs
         SET retry_count = retry_count + 1,
             status = CASE WHEN retry_count + 1 >= ? THEN ? ELSE ? END,
             error_message = ?, error_kind = ?, claimed_by = NULL, claimed_at = NULL, updated_at = ?
         WHERE status = ? AND claimed_at IS NOT NULL AND claimed_at < ?`,
		maxRetries, StatusFailed, StatusPending,
		StalledErrorMessage, ErrorKindStalled, now,
		StatusProcessing, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) requireOwned(ctx context.Context, res interface{ RowsAffected() (int64, error) }, id int64, workerID, operation string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s job %d rows: %w", operation, id, err)
	}
	if affected == 1 {
		return nil
	}
	current, err := s.GetByID(ctx, id)
	detail := fmt.Sprintf("job %d is not processing under worker %s", id, workerID)
	if err == nil && current != nil {
		detail = fmt.Sprintf("job %d is %s (claimed by %q), not processing under worker %s", id, current.Status, current.ClaimedBy, workerID)
	}
	return services.Wrap(services.ErrState, "queue", operation, detail, nil)
}

const maxErrorMessage = 2000

func truncateMessage(message string) string {
	message = strings.TrimSpace(message)
	if len(message) <= maxErrorMessage {
		return message
	}
	return message[:maxErrorMessage] + "..."
}
