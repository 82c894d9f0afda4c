package pgstore

import (
	"cmp"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"ticketless/internal/queue"
	"ticketless/internal/services"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

const jobColumns = "id, status, retry_count, user_id, contest_id, original_video_ref, ticket_timestamp, auto_slice, quality_mode, description, source, processed_video_ref, thumbnail_ref, processed_video_url, thumbnail_url, error_message, error_kind, claimed_by, claimed_at, metadata_json, created_at, updated_at, completed_at"

const maxErrorMessage = 2000

// Store manages job persistence backed by Postgres.
type Store struct {
	pool *pgxpool.Pool
	dsn  string
}

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := &Store{pool: pool, dsn: dsn}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize concurrent first starts across hosts.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(7490001)"); err != nil {
		return fmt.Errorf("lock schema: %w", err)
	}
	if _, err := tx.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	var version int
	err = tx.QueryRow(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := tx.Exec(ctx, "INSERT INTO schema_version (version) VALUES ($1)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("%w: database has version %d, expected %d", queue.ErrSchemaMismatch, version, schemaVersion)
	}
	return tx.Commit(ctx)
}

// Path returns a redacted form of the connection string for diagnostics.
func (s *Store) Path() string {
	if cfg, err := pgxpool.ParseConfig(s.dsn); err == nil {
		return fmt.Sprintf("postgres://%s@%s:%d/%s", cfg.ConnConfig.User, cfg.ConnConfig.Host, cfg.ConnConfig.Port, cfg.ConnConfig.Database)
	}
	return "postgres"
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Enqueue inserts a pending job.
func (s *Store) Enqueue(ctx context.Context, req queue.NewJob) (*queue.Job, error) {
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
	row := s.pool.QueryRow(ctx,
		`INSERT INTO video_jobs (
            status, user_id, contest_id, original_video_ref, ticket_timestamp,
            auto_slice, quality_mode, description, source
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING `+jobColumns,
		queue.StatusPending, req.UserID, req.ContestID, req.OriginalVideoRef, req.TicketTimestamp,
		req.AutoSlice, quality, textOrNull(req.Description), source,
	)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetByID fetches a job by identifier. It returns nil, nil when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*queue.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM video_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs newest first.
func (s *Store) List(ctx context.Context, filter queue.ListFilter) ([]*queue.Job, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		args = append(args, statuses)
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", len(args)))
	}
	query := `SELECT ` + jobColumns + ` FROM video_jobs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return s.queryJobs(ctx, query, args...)
}

// Claim atomically moves job id from pending to processing for workerID.
func (s *Store) Claim(ctx context.Context, id int64, workerID string, maxRetries int) (bool, error) {
	if maxRetries <= 0 {
		maxRetries = queue.DefaultMaxRetries
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE video_jobs
         SET status = $1, claimed_by = $2, claimed_at = now(), updated_at = now()
         WHERE id = $3 AND status = $4 AND retry_count < $5`,
		queue.StatusProcessing, workerID, id, queue.StatusPending, maxRetries,
	)
	if err != nil {
		return false, fmt.Errorf("claim job %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimPending claims up to limit eligible jobs, oldest first, in one
// statement. Rows locked by a concurrent claim are skipped.
func (s *Store) ClaimPending(ctx context.Context, limit, maxRetries int, workerID string) ([]*queue.Job, error) {
	if limit <= 0 {
		limit = queue.DefaultBatchSize
	}
	if maxRetries <= 0 {
		maxRetries = queue.DefaultMaxRetries
	}
	jobs, err := s.queryJobs(ctx,
		`UPDATE video_jobs
         SET status = $1, claimed_by = $2, claimed_at = now(), updated_at = now()
         WHERE id IN (
             SELECT id FROM video_jobs
             WHERE status = $3 AND retry_count < $4
             ORDER BY created_at, id
             LIMIT $5
             FOR UPDATE SKIP LOCKED
         )
         RETURNING `+jobColumns,
		queue.StatusProcessing, workerID, queue.StatusPending, maxRetries, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	slices.SortFunc(jobs, claimOrder)
	return jobs, nil
}

// claimOrder sorts claimed jobs oldest first, breaking ties by id.
func claimOrder(a, b *queue.Job) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Complete records a successful attempt under workerID's claim.
func (s *Store) Complete(ctx context.Context, id int64, workerID string, done queue.Completion) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE video_jobs
         SET status = $1, processed_video_ref = $2, thumbnail_ref = $3, processed_video_url = $4,
             thumbnail_url = $5, metadata_json = $6, error_message = NULL, error_kind = NULL,
             completed_at = now(), updated_at = now()
         WHERE id = $7 AND status = $8 AND claimed_by = $9`,
		queue.StatusCompleted, done.ProcessedVideoRef, done.ThumbnailRef,
		textOrNull(done.ProcessedVideoURL), textOrNull(done.ThumbnailURL), textOrNull(done.MetadataJSON),
		id, queue.StatusProcessing, workerID,
	)
	if err != nil {
		return fmt.Errorf("complete job %d: %w", id, err)
	}
	return s.requireOwned(ctx, tag, id, workerID, "complete")
}

// RecordFailure records a failed attempt and returns the resulting status.
func (s *Store) RecordFailure(ctx context.Context, id int64, workerID string, failure queue.Failure, maxRetries int) (queue.Status, error) {
	if maxRetries <= 0 {
		maxRetries = queue.DefaultMaxRetries
	}
	var status queue.Status
	err := s.pool.QueryRow(ctx,
		`UPDATE video_jobs
         SET retry_count = retry_count + 1,
             status = CASE WHEN $1 OR retry_count + 1 >= $2 THEN $3 ELSE $4 END,
             error_message = $5, error_kind = $6, claimed_by = NULL, claimed_at = NULL, updated_at = now()
         WHERE id = $7 AND status = $8 AND claimed_by = $9
         RETURNING status`,
		failure.Terminal, maxRetries, queue.StatusFailed, queue.StatusPending,
		truncateMessage(failure.Message), textOrNull(failure.Kind),
		id, queue.StatusProcessing, workerID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", s.requireOwned(ctx, pgconn.NewCommandTag("UPDATE 0"), id, workerID, "record failure")
	}
	if err != nil {
		return "", fmt.Errorf("record failure for job %d: %w", id, err)
	}
	return status, nil
}

// ReclaimStale returns processing jobs claimed before cutoff to pending,
// counting the lost attempt.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time, maxRetries int) (int64, error) {
	if maxRetries <= 0 {
		maxRetries = queue.DefaultMaxRetries
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE video_jobs
         SET retry_count = retry_count + 1,
             status = CASE WHEN retry_count + 1 >= $1 THEN $2 ELSE $3 END,
             error_message = $4, error_kind = $5, claimed_by = NULL, claimed_at = NULL, updated_at = now()
         WHERE status = $6 AND claimed_at IS NOT NULL AND claimed_at < $7`,
		maxRetries, queue.StatusFailed, queue.StatusPending,
		queue.StalledErrorMessage, queue.ErrorKindStalled,
		queue.StatusProcessing, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Retry resets failed jobs to pending. With no ids every failed job is reset.
func (s *Store) Retry(ctx context.Context, ids ...int64) (int64, error) {
	query := `UPDATE video_jobs
        SET status = $1, retry_count = 0, error_message = NULL, error_kind = NULL,
            claimed_by = NULL, claimed_at = NULL, updated_at = now()
        WHERE status = $2`
	args := []any{queue.StatusPending, queue.StatusFailed}
	if len(ids) > 0 {
		query += " AND id = ANY($3)"
		args = append(args, ids)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ClearCompleted deletes completed jobs.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM video_jobs WHERE status = $1`, queue.StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[queue.Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(1) FROM video_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[queue.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[queue.Status(status)] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (queue.HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return queue.HealthSummary{}, err
	}
	return queue.SummarizeStats(stats), nil
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	health := queue.DatabaseHealth{Driver: "postgres", Location: s.Path()}
	if err := s.pool.Ping(ctx); err != nil {
		return health, fmt.Errorf("ping postgres: %w", err)
	}
	health.DatabaseExists = true
	if err := s.pool.QueryRow(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		return health, fmt.Errorf("read schema version: %w", err)
	}
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(1) FROM video_jobs").Scan(&health.TotalJobs); err != nil {
		return health, fmt.Errorf("count jobs: %w", err)
	}
	return health, nil
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*queue.Job, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*queue.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *Store) requireOwned(ctx context.Context, tag pgconn.CommandTag, id int64, workerID, operation string) error {
	if tag.RowsAffected() == 1 {
		return nil
	}
	detail := fmt.Sprintf("job %d is not processing under worker %s", id, workerID)
	if current, err := s.GetByID(ctx, id); err == nil && current != nil {
		detail = fmt.Sprintf("job %d is %s (claimed by %q), not processing under worker %s", id, current.Status, current.ClaimedBy, workerID)
	}
	return services.Wrap(services.ErrState, "queue", operation, detail, nil)
}

func scanJob(row pgx.Row) (*queue.Job, error) {
	var (
		job          queue.Job
		status       string
		description  pgtype.Text
		processedRef pgtype.Text
		thumbnailRef pgtype.Text
		processedURL pgtype.Text
		thumbnailURL pgtype.Text
		errorMessage pgtype.Text
		errorKind    pgtype.Text
		claimedBy    pgtype.Text
		metadata     pgtype.Text
	)
	if err := row.Scan(
		&job.ID,
		&status,
		&job.RetryCount,
		&job.UserID,
		&job.ContestID,
		&job.OriginalVideoRef,
		&job.TicketTimestamp,
		&job.AutoSlice,
		&job.Quality,
		&description,
		&job.Source,
		&processedRef,
		&thumbnailRef,
		&processedURL,
		&thumbnailURL,
		&errorMessage,
		&errorKind,
		&claimedBy,
		&job.ClaimedAt,
		&metadata,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	job.Status = queue.Status(status)
	job.Description = description.String
	job.ProcessedVideoRef = processedRef.String
	job.ThumbnailRef = thumbnailRef.String
	job.ProcessedVideoURL = processedURL.String
	job.ThumbnailURL = thumbnailURL.String
	job.ErrorMessage = errorMessage.String
	job.ErrorKind = errorKind.String
	job.ClaimedBy = claimedBy.String
	job.MetadataJSON = metadata.String
	return &job, nil
}

func textOrNull(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}

func truncateMessage(message string) string {
	message = strings.TrimSpace(message)
	if len(message) <= maxErrorMessage {
		return message
	}
	return message[:maxErrorMessage] + "..."
}
