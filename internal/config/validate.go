package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Quality presets accepted by slicing.default_quality.
var qualityModes = map[string]struct{}{
	"fast":       {},
	"balanced":   {},
	"max-compat": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateSlicing(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return errors.New("storage.local_dir must be set when storage.backend is local")
		}
	case StorageS3:
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket is required when storage.backend is s3 (or set AWS_BUCKET_NAME)")
		}
		if (c.Storage.AccessKeyID == "") != (c.Storage.SecretAccessKey == "") {
			return errors.New("storage.access_key_id and storage.secret_access_key must be set together")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", StorageLocal, StorageS3, c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.Driver {
	case QueueSQLite, "":
	case QueuePostgres:
		if c.Queue.DSN == "" {
			return errors.New("queue.dsn is required when queue.driver is postgres (or set DATABASE_URL)")
		}
	default:
		return fmt.Errorf("queue.driver must be %q or %q, got %q", QueueSQLite, QueuePostgres, c.Queue.Driver)
	}
	return nil
}

func (c *Config) validateSlicing() error {
	if c.Slicing.WindowBeforeSeconds < 0 {
		return errors.New("slicing.window_before_seconds must be >= 0")
	}
	if c.Slicing.WindowAfterSeconds < 0 {
		return errors.New("slicing.window_after_seconds must be >= 0")
	}
	if c.Slicing.WindowBeforeSeconds+c.Slicing.WindowAfterSeconds <= 0 {
		return errors.New("slicing window must be longer than zero seconds")
	}
	if _, ok := qualityModes[c.Slicing.DefaultQuality]; !ok {
		return fmt.Errorf("slicing.default_quality must be one of fast, balanced, max-compat; got %q", c.Slicing.DefaultQuality)
	}
	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.BatchSize > 100 {
		return errors.New("worker.batch_size must be <= 100")
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Worker.Schedule); err != nil {
		return fmt.Errorf("worker.schedule %q: %w", c.Worker.Schedule, err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error; got %q", c.Logging.Level)
	}
	return nil
}
