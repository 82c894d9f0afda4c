package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var baseSchema string

// migrations[i] upgrades a database from version i+1 to version i+2. Append
// only; never edit a released step.
var migrations = []string{
	// 2: job listings filter by user and sort newest first.
	`DROP INDEX IF EXISTS idx_video_jobs_user;
CREATE INDEX IF NOT EXISTS idx_video_jobs_user_created ON video_jobs(user_id, created_at DESC, id DESC);`,
}

// SchemaVersion is the version a freshly opened store is migrated to.
var SchemaVersion = 1 + len(migrations)

// ErrSchemaMismatch indicates the database was written by a newer release.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func (s *Store) initSchema(ctx context.Context) error {
	version, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if version > SchemaVersion {
		return fmt.Errorf("%w: database %s has version %d, this build supports up to %d",
			ErrSchemaMismatch, s.path, version, SchemaVersion)
	}
	if version == 0 {
		if err := s.applyStep(ctx, 0, baseSchema, 1); err != nil {
			return err
		}
		version = 1
	}
	for ; version < SchemaVersion; version++ {
		if err := s.applyStep(ctx, version, migrations[version-1], version+1); err != nil {
			return err
		}
	}
	return nil
}

// schemaVersion returns 0 for an empty database.
func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var tables int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tables)
	if err != nil {
		return 0, fmt.Errorf("check schema_version table: %w", err)
	}
	if tables == 0 {
		return 0, nil
	}
	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) applyStep(ctx context.Context, from int, statements string, to int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration to %d: %w", to, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, statements); err != nil {
		return fmt.Errorf("migrate schema %d -> %d: %w", from, to, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("clear schema version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", to); err != nil {
		return fmt.Errorf("record schema version %d: %w", to, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration to %d: %w", to, err)
	}
	return nil
}
