package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// JobView describes a job row in a transport-friendly format.
type JobView struct {
	ID                int64           `json:"id"`
	Status            string          `json:"status"`
	RetryCount        int             `json:"retry_count"`
	UserID            string          `json:"user_id"`
	ContestID         string          `json:"contest_id"`
	OriginalVideoRef  string          `json:"original_video_ref"`
	TicketTimestamp   string          `json:"ticket_timestamp,omitempty"`
	AutoSlice         bool            `json:"auto_slice"`
	Quality           string          `json:"quality_mode"`
	Description       string          `json:"description,omitempty"`
	Source            string          `json:"source"`
	ProcessedVideoRef string          `json:"processed_video_ref,omitempty"`
	ThumbnailRef      string          `json:"thumbnail_ref,omitempty"`
	ProcessedVideoURL string          `json:"processed_video_url,omitempty"`
	ThumbnailURL      string          `json:"thumbnail_url,omitempty"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	ErrorKind         string          `json:"error_kind,omitempty"`
	ClaimedBy         string          `json:"claimed_by,omitempty"`
	ClaimedAt         string          `json:"claimed_at,omitempty"`
	CreatedAt         string          `json:"created_at,omitempty"`
	UpdatedAt         string          `json:"updated_at,omitempty"`
	CompletedAt       string          `json:"completed_at,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job JobView `json:"job"`
}

// QueueStatsResponse provides a normalized queue stats payload.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// MaintenanceResponse reports how many rows a retry or clear touched.
type MaintenanceResponse struct {
	Affected int64 `json:"affected"`
}

// DependencyStatus captures availability of an external binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// CheckResult mirrors one preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// WorkerRun summarizes the last worker invocation a daemon performed.
type WorkerRun struct {
	WorkerID    string `json:"worker_id"`
	Trigger     string `json:"trigger"`
	StartedAt   string `json:"started_at"`
	Claimed     int    `json:"claimed"`
	Completed   int    `json:"completed"`
	Retried     int    `json:"retried"`
	Failed      int    `json:"failed"`
	Reclaimed   int64  `json:"reclaimed"`
	StateErrors int    `json:"state_errors"`
	Error       string `json:"error,omitempty"`
}

// ServiceStatus aggregates daemon runtime information for API consumers.
type ServiceStatus struct {
	Running          bool               `json:"running"`
	PID              int                `json:"pid"`
	QueueDriver      string             `json:"queue_driver"`
	QueueLocation    string             `json:"queue_location"`
	LockFilePath     string             `json:"lock_file_path,omitempty"`
	StorageBackend   string             `json:"storage_backend"`
	Schedule         string             `json:"schedule,omitempty"`
	ActiveWorkspaces int64              `json:"active_workspaces"`
	Queue            map[string]int     `json:"queue"`
	LastRun          *WorkerRun         `json:"last_run,omitempty"`
	Dependencies     []DependencyStatus `json:"dependencies"`
	Checks           []CheckResult      `json:"checks,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply. Category separates
// "fix your file" from "try again later".
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Category  string `json:"category,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
