package config

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Queue drivers.
const (
	QueueSQLite   = "sqlite"
	QueuePostgres = "postgres"
)

const (
	defaultConfigPath           = "~/.config/ticketless/config.toml"
	defaultWorkDir              = "~/.local/share/ticketless/work"
	defaultDataDir              = "~/.local/share/ticketless/data"
	defaultLogDir               = "~/.local/share/ticketless/logs"
	defaultLocalStorageDir      = "~/.local/share/ticketless/blobs"
	defaultAPIBind              = "127.0.0.1:7490"
	defaultMaxSyncUploadMB      = 100
	defaultMaxQueuedUploadMB    = 2048
	defaultStorageBackend       = StorageLocal
	defaultS3Region             = "us-east-1"
	defaultQueueDriver          = QueueSQLite
	defaultFFmpegBinary         = "ffmpeg"
	defaultFFprobeBinary        = "ffprobe"
	defaultToolchainTimeout     = 120
	defaultWindowBeforeSeconds  = 20
	defaultWindowAfterSeconds   = 40
	defaultQuality              = "balanced"
	defaultThumbnailMaxWidth    = 640
	defaultThumbnailMaxHeight   = 360
	defaultWorkerBatchSize      = 5
	defaultWorkerMaxRetries     = 3
	defaultWorkerSchedule       = "@every 1m"
	defaultStaleAfterSeconds    = 900
	defaultWorkspaceMaxAgeHours = 24
	defaultMinFreeMB            = 512
	defaultRedisChannel         = "video-jobs"
	defaultWakeupQueue          = "video-jobs.wakeup"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		API: API{
			Bind:              defaultAPIBind,
			MaxSyncUploadMB:   defaultMaxSyncUploadMB,
			MaxQueuedUploadMB: defaultMaxQueuedUploadMB,
		},
		Storage: Storage{
			Backend:  defaultStorageBackend,
			LocalDir: defaultLocalStorageDir,
			Region:   defaultS3Region,
		},
		Toolchain: Toolchain{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			TimeoutSeconds: defaultToolchainTimeout,
		},
		Slicing: Slicing{
			WindowBeforeSeconds: defaultWindowBeforeSeconds,
			WindowAfterSeconds:  defaultWindowAfterSeconds,
			DefaultQuality:      defaultQuality,
			ThumbnailMaxWidth:   defaultThumbnailMaxWidth,
			ThumbnailMaxHeight:  defaultThumbnailMaxHeight,
		},
		Worker: Worker{
			BatchSize:            defaultWorkerBatchSize,
			MaxRetries:           defaultWorkerMaxRetries,
			Schedule:             defaultWorkerSchedule,
			StaleAfterSeconds:    defaultStaleAfterSeconds,
			WorkspaceMaxAgeHours: defaultWorkspaceMaxAgeHours,
			MinFreeMB:            defaultMinFreeMB,
		},
		Notifications: Notifications{
			RedisChannel: defaultRedisChannel,
		},
		Wakeup: Wakeup{
			Queue: defaultWakeupQueue,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
