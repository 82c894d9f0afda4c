package video

import (
	"time"

	"ticketless/internal/media/ffmpeg"
)

// SliceMethod records how a slice window was chosen.
type SliceMethod string

const (
	MethodGPSAndTimestamp SliceMethod = "gps-and-timestamp"
	MethodTimestampOnly   SliceMethod = "timestamp-only"
	MethodFixedWindow     SliceMethod = "fixed-window"
	MethodFullVideo       SliceMethod = "full-video"
)

// Source names where a submitted video came from.
type Source string

const (
	SourceDashcam Source = "dashcam"
	SourcePhone   Source = "phone"
	SourceUpload  Source = "upload"
)

// ParseSource validates a submitted source value. Empty input means upload.
func ParseSource(value string) (Source, bool) {
	switch Source(value) {
	case "":
		return SourceUpload, true
	case SourceDashcam, SourcePhone, SourceUpload:
		return Source(value), true
	default:
		return "", false
	}
}

// GPSLocation is a WGS84 coordinate pair.
type GPSLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Metadata is everything the extractor learns about a source video.
// HasGPS is true exactly when GPS is non-nil.
type Metadata struct {
	DurationSeconds   float64      `json:"duration_seconds"`
	Codec             string       `json:"codec"`
	Width             int          `json:"width"`
	Height            int          `json:"height"`
	FrameRate         float64      `json:"frame_rate"`
	FileSizeBytes     int64        `json:"file_size_bytes"`
	MimeType          string       `json:"mime_type"`
	VideoTimestamp    *time.Time   `json:"video_timestamp,omitempty"`
	HasGPS            bool         `json:"has_gps"`
	GPS               *GPSLocation `json:"gps_location,omitempty"`
	GPSAccuracyMeters *float64     `json:"gps_accuracy_meters,omitempty"`
}

// SliceInfo is the window the planner selected.
type SliceInfo struct {
	OriginalDurationSeconds float64     `json:"original_duration_seconds"`
	StartSeconds            float64     `json:"slice_start_seconds"`
	DurationSeconds         float64     `json:"slice_duration_seconds"`
	Method                  SliceMethod `json:"method"`
}

// EndSeconds returns the exclusive end of the slice.
func (s SliceInfo) EndSeconds() float64 {
	return s.StartSeconds + s.DurationSeconds
}

// Job is one unit of pipeline work over a local source file.
type Job struct {
	SourcePath      string
	TicketTimestamp *time.Time
	AutoSlice       bool
	Quality         ffmpeg.Quality
	Attempt         int
}

// Result is what the pipeline hands back. Both paths point into the caller's
// workspace; the caller uploads them and then releases the workspace.
type Result struct {
	SlicedVideoPath string
	ThumbnailPath   string
	Metadata        Metadata
	Slice           SliceInfo
}
