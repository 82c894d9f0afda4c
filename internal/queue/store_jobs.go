package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Enqueue inserts a pending job.
func (s *Store) Enqueue(ctx context.Context, req NewJob) (*Job, error) {
	if strings.TrimSpace(req.OriginalVideoRef) == "" {
		return nil, errors.New("enqueue: original video reference is required")
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.ContestID) == "" {
		return nil, errors.New("enqueue: user and contest are required")
	}
	quality := req.Quality
	if quality == "" {
		quality = "balanced"
	}
	source := req.Source
	if source == "" {
		source = "upload"
	}
	now := formatTime(time.Now())

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO video_jobs (
            status, retry_count, user_id, contest_id, original_video_ref, ticket_timestamp,
            auto_slice, quality_mode, description, source, created_at, updated_at
        ) VALUES (?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		StatusPending,
		req.UserID,
		req.ContestID,
		req.OriginalVideoRef,
		nullableTime(req.TicketTimestamp),
		boolToInt(req.AutoSlice),
		quality,
		nullableString(req.Description),
		source,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. It returns nil, nil when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM video_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}

	query := `SELECT ` + jobColumns + ` FROM video_jobs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
