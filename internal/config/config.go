package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir string `toml:"work_dir"`
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// API contains HTTP surface configuration.
type API struct {
	Bind              string `toml:"bind"`
	Token             string `toml:"token"`
	WorkerSecret      string `toml:"worker_secret"`
	MaxSyncUploadMB   int    `toml:"max_sync_upload_mb"`
	MaxQueuedUploadMB int    `toml:"max_queued_upload_mb"`
}

// Storage selects and configures the durable blob store.
type Storage struct {
	Backend           string `toml:"backend"`
	LocalDir          string `toml:"local_dir"`
	PublicBaseURL     string `toml:"public_base_url"`
	Bucket            string `toml:"bucket"`
	Region            string `toml:"region"`
	Endpoint          string `toml:"endpoint"`
	AccessKeyID       string `toml:"access_key_id"`
	SecretAccessKey   string `toml:"secret_access_key"`
	UsePathStyle      bool   `toml:"use_path_style"`
	PresignTTLSeconds int    `toml:"presign_ttl_seconds"`
}

// Queue selects the job table backend.
type Queue struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// Toolchain names the multimedia binaries and bounds their runtime.
type Toolchain struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Slicing configures the evidence window and thumbnail bounds.
type Slicing struct {
	WindowBeforeSeconds float64 `toml:"window_before_seconds"`
	WindowAfterSeconds  float64 `toml:"window_after_seconds"`
	DefaultQuality      string  `toml:"default_quality"`
	ThumbnailMaxWidth   int     `toml:"thumbnail_max_width"`
	ThumbnailMaxHeight  int     `toml:"thumbnail_max_height"`
}

// Worker configures the queue worker invocation.
type Worker struct {
	BatchSize            int    `toml:"batch_size"`
	MaxRetries           int    `toml:"max_retries"`
	Schedule             string `toml:"schedule"`
	StaleAfterSeconds    int    `toml:"stale_after_seconds"`
	WorkspaceMaxAgeHours int    `toml:"workspace_max_age_hours"`
	MinFreeMB            int    `toml:"min_free_mb"`
}

// Notifications configures Redis job status events.
type Notifications struct {
	RedisAddr    string `toml:"redis_addr"`
	RedisChannel string `toml:"redis_channel"`
}

// Wakeup configures RabbitMQ enqueue wakeups.
type Wakeup struct {
	AMQPURL string `toml:"amqp_url"`
	Queue   string `toml:"queue"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for ticketless.
//
// Configuration sections by subsystem:
//   - Paths: workspace, data, and log directories
//   - API: bind address, credentials, and upload limits
//   - Storage: durable blob store (local filesystem or S3)
//   - Queue: job table backend (sqlite or postgres)
//   - Toolchain: ffmpeg/ffprobe binaries and timeout
//   - Slicing: evidence window and thumbnail size
//   - Worker: batch size, retries, schedule, and recovery bounds
//   - Notifications: Redis status channel
//   - Wakeup: RabbitMQ enqueue wakeups
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Storage       Storage       `toml:"storage"`
	Queue         Queue         `toml:"queue"`
	Toolchain     Toolchain     `toml:"toolchain"`
	Slicing       Slicing       `toml:"slicing"`
	Worker        Worker        `toml:"worker"`
	Notifications Notifications `toml:"notifications"`
	Wakeup        Wakeup        `toml:"wakeup"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("ticketless.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and worker operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.WorkDir, c.Paths.DataDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Storage.LocalDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ToolchainTimeout returns the hard bound applied to each toolchain invocation.
func (c *Config) ToolchainTimeout() time.Duration {
	return time.Duration(c.Toolchain.TimeoutSeconds) * time.Second
}

// StaleAfter returns how long a job may sit in processing before it is reclaimed.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Worker.StaleAfterSeconds) * time.Second
}

// WorkspaceMaxAge returns the age after which orphaned workspaces are swept.
func (c *Config) WorkspaceMaxAge() time.Duration {
	return time.Duration(c.Worker.WorkspaceMaxAgeHours) * time.Hour
}

// MaxSyncUploadBytes returns the synchronous upload ceiling in bytes.
func (c *Config) MaxSyncUploadBytes() int64 {
	return int64(c.API.MaxSyncUploadMB) << 20
}

// MaxQueuedUploadBytes returns the queued upload ceiling in bytes.
func (c *Config) MaxQueuedUploadBytes() int64 {
	return int64(c.API.MaxQueuedUploadMB) << 20
}

// MinFreeBytes returns the free-space floor for workspace allocation.
func (c *Config) MinFreeBytes() uint64 {
	if c.Worker.MinFreeMB <= 0 {
		return 0
	}
	return uint64(c.Worker.MinFreeMB) << 20
}

// QueueDBPath returns the SQLite database location used by the sqlite queue driver.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

const redactedValue = "********"

// Redacted returns a copy with credentials masked for display.
func (c Config) Redacted() Config {
	mask := func(value string) string {
		if strings.TrimSpace(value) == "" {
			return value
		}
		return redactedValue
	}
	c.API.Token = mask(c.API.Token)
	c.API.WorkerSecret = mask(c.API.WorkerSecret)
	c.Storage.AccessKeyID = mask(c.Storage.AccessKeyID)
	c.Storage.SecretAccessKey = mask(c.Storage.SecretAccessKey)
	c.Queue.DSN = maskURLPassword(c.Queue.DSN)
	c.Notifications.RedisAddr = maskURLPassword(c.Notifications.RedisAddr)
	c.Wakeup.AMQPURL = maskURLPassword(c.Wakeup.AMQPURL)
	return c
}

func maskURLPassword(raw string) string {
	if !strings.Contains(raw, "://") {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return redactedValue
	}
	if _, ok := parsed.User.Password(); ok {
		parsed.User = url.UserPassword(parsed.User.Username(), redactedValue)
	}
	return parsed.String()
}
