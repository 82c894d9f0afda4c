package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a video job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DefaultMaxRetries is the attempt ceiling after which a job stays failed.
const DefaultMaxRetries = 3

// DefaultBatchSize is how many jobs one worker invocation claims.
const DefaultBatchSize = 5

// StalledErrorMessage is recorded when a processing job is reclaimed.
const StalledErrorMessage = "worker stalled; job reclaimed"

// ErrorKindStalled marks a failure recorded by stale reclaim.
const ErrorKindStalled = "stalled"

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a string into a Status if recognized.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Terminal reports whether no further automatic transition will happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one persisted video processing request.
type Job struct {
	ID                int64
	Status            Status
	RetryCount        int
	UserID            string
	ContestID         string
	OriginalVideoRef  string
	TicketTimestamp   *time.Time
	AutoSlice         bool
	Quality           string
	Description       string
	Source            string
	ProcessedVideoRef string
	ThumbnailRef      string
	ProcessedVideoURL string
	ThumbnailURL      string
	ErrorMessage      string
	ErrorKind         string
	ClaimedBy         string
	ClaimedAt         *time.Time
	MetadataJSON      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// NewJob carries the fields an enqueue action supplies.
type NewJob struct {
	UserID           string
	ContestID        string
	OriginalVideoRef string
	TicketTimestamp  *time.Time
	AutoSlice        bool
	Quality          string
	Description      string
	Source           string
}

// Completion records the outputs of a successful attempt.
type Completion struct {
	ProcessedVideoRef string
	ThumbnailRef      string
	ProcessedVideoURL string
	ThumbnailURL      string
	MetadataJSON      string
}

// Failure records a failed attempt. Terminal failures skip remaining retries.
type Failure struct {
	Message  string
	Kind     string
	Terminal bool
}

// ListFilter narrows List results. Zero values mean no restriction.
type ListFilter struct {
	Statuses []Status
	UserID   string
	Limit    int
}

// HealthSummary aggregates job counts for status output.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// DatabaseHealth reports diagnostic details about the queue database.
type DatabaseHealth struct {
	Driver         string
	Location       string
	DatabaseExists bool
	SchemaVersion  int
	TotalJobs      int
}
