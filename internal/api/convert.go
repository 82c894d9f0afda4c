package api

import (
	"encoding/json"
	"time"

	"ticketless/internal/deps"
	"ticketless/internal/preflight"
	"ticketless/internal/queue"
	"ticketless/internal/services"
)

// FromJob converts a queue row to its API representation.
func FromJob(job *queue.Job) JobView {
	if job == nil {
		return JobView{}
	}
	dto := JobView{
		ID:                job.ID,
		Status:            string(job.Status),
		RetryCount:        job.RetryCount,
		UserID:            job.UserID,
		ContestID:         job.ContestID,
		OriginalVideoRef:  job.OriginalVideoRef,
		TicketTimestamp:   formatOptional(job.TicketTimestamp),
		AutoSlice:         job.AutoSlice,
		Quality:           job.Quality,
		Description:       job.Description,
		Source:            job.Source,
		ProcessedVideoRef: job.ProcessedVideoRef,
		ThumbnailRef:      job.ThumbnailRef,
		ProcessedVideoURL: job.ProcessedVideoURL,
		ThumbnailURL:      job.ThumbnailURL,
		ErrorMessage:      job.ErrorMessage,
		ErrorKind:         job.ErrorKind,
		ClaimedBy:         job.ClaimedBy,
		ClaimedAt:         formatOptional(job.ClaimedAt),
		CompletedAt:       formatOptional(job.CompletedAt),
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	if raw := job.MetadataJSON; raw != "" && json.Valid([]byte(raw)) {
		dto.Metadata = json.RawMessage(raw)
	}
	return dto
}

// FromJobs converts a slice of rows, skipping nil entries.
func FromJobs(jobs []*queue.Job) []JobView {
	out := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job))
	}
	return out
}

// MergeQueueStats returns counts keyed by status string with every status
// present, so clients never have to special-case a missing key.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = stats[status]
	}
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// FromDependencies converts binary checks to DTOs.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Version:     dep.Version,
			Detail:      dep.Detail,
		}
	}
	return out
}

// FromChecks converts preflight results to DTOs.
func FromChecks(results []preflight.Result) []CheckResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]CheckResult, len(results))
	for i, result := range results {
		out[i] = CheckResult{Name: result.Name, Passed: result.Passed, Detail: result.Detail}
	}
	return out
}

// Category maps an error onto the caller-facing split between problems with
// the submitted file and problems on the service side.
func Category(err error) string {
	switch services.Classify(err) {
	case "":
		return ""
	case services.KindValidation:
		return "file"
	case services.KindNotFound:
		return "request"
	default:
		return "service"
	}
}

func formatOptional(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
