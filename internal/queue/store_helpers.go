package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, status, retry_count, user_id, contest_id, original_video_ref, ticket_timestamp, auto_slice, quality_mode, description, source, processed_video_ref, thumbnail_ref, processed_video_url, thumbnail_url, error_message, error_kind, claimed_by, claimed_at, metadata_json, created_at, updated_at, completed_at"

// timestampLayout is fixed-width so stored values order lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job            Job
		statusStr      string
		ticketRaw      sql.NullString
		autoSlice      int64
		description    sql.NullString
		processedRef   sql.NullString
		thumbnailRef   sql.NullString
		processedURL   sql.NullString
		thumbnailURL   sql.NullString
		errorMessage   sql.NullString
		errorKind      sql.NullString
		claimedBy      sql.NullString
		claimedAtRaw   sql.NullString
		metadata       sql.NullString
		createdRaw     string
		updatedRaw     string
		completedAtRaw sql.NullString
	)

	if err := scanner.Scan(
		&job.ID,
		&statusStr,
		&job.RetryCount,
		&job.UserID,
		&job.ContestID,
		&job.OriginalVideoRef,
		&ticketRaw,
		&autoSlice,
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
		&claimedAtRaw,
		&metadata,
		&createdRaw,
		&updatedRaw,
		&completedAtRaw,
	); err != nil {
		return nil, err
	}

	job.Status = Status(statusStr)
	job.AutoSlice = autoSlice != 0
	job.Description = description.String
	job.ProcessedVideoRef = processedRef.String
	job.ThumbnailRef = thumbnailRef.String
	job.ProcessedVideoURL = processedURL.String
	job.ThumbnailURL = thumbnailURL.String
	job.ErrorMessage = errorMessage.String
	job.ErrorKind = errorKind.String
	job.ClaimedBy = claimedBy.String
	job.MetadataJSON = metadata.String
	job.TicketTimestamp = parseNullableTime(ticketRaw)
	job.ClaimedAt = parseNullableTime(claimedAtRaw)
	job.CompletedAt = parseNullableTime(completedAtRaw)
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return &job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timestampLayout)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
