package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeQueue()
	c.normalizeToolchain()
	c.normalizeSlicing()
	c.normalizeWorker()
	c.normalizeNotifications()
	c.normalizeWakeup()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		c.API.Token = strings.TrimSpace(os.Getenv("TICKETLESS_API_TOKEN"))
	}
	c.API.WorkerSecret = strings.TrimSpace(c.API.WorkerSecret)
	if c.API.WorkerSecret == "" {
		c.API.WorkerSecret = firstEnv("WORKER_SECRET", "CRON_SECRET")
	}
	if c.API.MaxSyncUploadMB <= 0 {
		c.API.MaxSyncUploadMB = defaultMaxSyncUploadMB
	}
	if c.API.MaxQueuedUploadMB <= 0 {
		c.API.MaxQueuedUploadMB = defaultMaxQueuedUploadMB
	}
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	if strings.TrimSpace(c.Storage.LocalDir) == "" {
		c.Storage.LocalDir = defaultLocalStorageDir
	}
	var err error
	if c.Storage.LocalDir, err = expandPath(c.Storage.LocalDir); err != nil {
		return fmt.Errorf("storage.local_dir: %w", err)
	}
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = strings.TrimSpace(os.Getenv("AWS_BUCKET_NAME"))
	}
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = firstEnv("AWS_REGION", "AWS_DEFAULT_REGION")
	}
	if c.Storage.Region == "" {
		c.Storage.Region = defaultS3Region
	}
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	if c.Storage.Endpoint == "" {
		c.Storage.Endpoint = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL"))
	}
	if c.Storage.AccessKeyID == "" {
		c.Storage.AccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	}
	if c.Storage.SecretAccessKey == "" {
		c.Storage.SecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	}
	if c.Storage.PresignTTLSeconds < 0 {
		c.Storage.PresignTTLSeconds = 0
	}
	return nil
}

func (c *Config) normalizeQueue() {
	c.Queue.Driver = strings.ToLower(strings.TrimSpace(c.Queue.Driver))
	c.Queue.DSN = strings.TrimSpace(c.Queue.DSN)
	if c.Queue.DSN == "" {
		c.Queue.DSN = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if c.Queue.Driver == "" {
		if c.Queue.DSN != "" {
			c.Queue.Driver = QueuePostgres
		} else {
			c.Queue.Driver = defaultQueueDriver
		}
	}
}

func (c *Config) normalizeToolchain() {
	c.Toolchain.FFmpegBinary = strings.TrimSpace(c.Toolchain.FFmpegBinary)
	if c.Toolchain.FFmpegBinary == "" {
		c.Toolchain.FFmpegBinary = defaultFFmpegBinary
	}
	c.Toolchain.FFprobeBinary = strings.TrimSpace(c.Toolchain.FFprobeBinary)
	if c.Toolchain.FFprobeBinary == "" {
		c.Toolchain.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Toolchain.TimeoutSeconds <= 0 {
		c.Toolchain.TimeoutSeconds = defaultToolchainTimeout
	}
}

func (c *Config) normalizeSlicing() {
	c.Slicing.DefaultQuality = strings.ToLower(strings.TrimSpace(c.Slicing.DefaultQuality))
	if c.Slicing.DefaultQuality == "" {
		c.Slicing.DefaultQuality = defaultQuality
	}
	if c.Slicing.ThumbnailMaxWidth <= 0 {
		c.Slicing.ThumbnailMaxWidth = defaultThumbnailMaxWidth
	}
	if c.Slicing.ThumbnailMaxHeight <= 0 {
		c.Slicing.ThumbnailMaxHeight = defaultThumbnailMaxHeight
	}
}

func (c *Config) normalizeWorker() {
	if c.Worker.BatchSize <= 0 {
		c.Worker.BatchSize = defaultWorkerBatchSize
	}
	if c.Worker.MaxRetries <= 0 {
		c.Worker.MaxRetries = defaultWorkerMaxRetries
	}
	c.Worker.Schedule = strings.TrimSpace(c.Worker.Schedule)
	if c.Worker.Schedule == "" {
		c.Worker.Schedule = defaultWorkerSchedule
	}
	if c.Worker.StaleAfterSeconds <= 0 {
		c.Worker.StaleAfterSeconds = defaultStaleAfterSeconds
	}
	if c.Worker.WorkspaceMaxAgeHours <= 0 {
		c.Worker.WorkspaceMaxAgeHours = defaultWorkspaceMaxAgeHours
	}
	if c.Worker.MinFreeMB < 0 {
		c.Worker.MinFreeMB = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.RedisAddr = strings.TrimSpace(c.Notifications.RedisAddr)
	if c.Notifications.RedisAddr == "" {
		c.Notifications.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_URL"))
	}
	c.Notifications.RedisChannel = strings.TrimSpace(c.Notifications.RedisChannel)
	if c.Notifications.RedisChannel == "" {
		c.Notifications.RedisChannel = defaultRedisChannel
	}
}

func (c *Config) normalizeWakeup() {
	c.Wakeup.AMQPURL = strings.TrimSpace(c.Wakeup.AMQPURL)
	if c.Wakeup.AMQPURL == "" {
		c.Wakeup.AMQPURL = strings.TrimSpace(os.Getenv("AMQP_URL"))
	}
	c.Wakeup.Queue = strings.TrimSpace(c.Wakeup.Queue)
	if c.Wakeup.Queue == "" {
		c.Wakeup.Queue = defaultWakeupQueue
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}
