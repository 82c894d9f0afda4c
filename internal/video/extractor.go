package video

import (
	"context"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"ticketless/internal/media/ffprobe"
	"ticketless/internal/services"
)

var creationTimeTags = []string{
	"com.apple.quicktime.creationdate",
	"creation_time",
	"date",
}

var locationTags = []string{
	"com.apple.quicktime.location.ISO6709",
	"location",
	"location-eng",
}

var accuracyTags = []string{
	"com.apple.quicktime.location.accuracy.horizontal",
	"location-accuracy",
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006:01:02 15:04:05",
}

// Extractor reads container and stream metadata through the toolchain probe.
type Extractor struct {
	toolchain Toolchain
}

// NewExtractor constructs an extractor over the provided toolchain.
func NewExtractor(toolchain Toolchain) *Extractor {
	return &Extractor{toolchain: toolchain}
}

// Extract probes path and builds its Metadata. Any probe failure is a
// toolchain error; callers should have validated the file first.
func (e *Extractor) Extract(ctx context.Context, path string) (Metadata, error) {
	result, err := e.toolchain.Probe(ctx, path)
	if err != nil {
		return Metadata{}, services.Wrap(services.ErrToolchain, "extract", "probe", "", err)
	}
	container, err := Sniff(path)
	if err != nil {
		return Metadata{}, services.Wrap(services.ErrProcessing, "extract", "sniff", "", err)
	}
	return FromProbe(path, container, result)
}

// FromProbe builds Metadata from an existing probe result.
func FromProbe(path string, container Container, result ffprobe.Result) (Metadata, error) {
	video, ok := result.PrimaryVideo()
	if !ok {
		return Metadata{}, services.Wrap(services.ErrToolchain, "extract", "streams", "probe reported no video stream", nil)
	}
	duration, reason := playableDuration(result)
	if reason != "" {
		return Metadata{}, services.Invalid("validate", reason)
	}

	meta := Metadata{
		DurationSeconds: duration,
		Codec:           strings.ToLower(video.CodecName),
		Width:           video.Width,
		Height:          video.Height,
		FrameRate:       math.Round(video.FrameRate()*1000) / 1000,
		FileSizeBytes:   result.SizeBytes(),
		MimeType:        container.MimeType(),
	}
	if meta.FileSizeBytes == 0 {
		if info, err := os.Stat(path); err == nil {
			meta.FileSizeBytes = info.Size()
		}
	}
	if raw, ok := result.Tag(creationTimeTags...); ok {
		if ts, ok := parseTimestamp(raw); ok {
			meta.VideoTimestamp = &ts
		}
	}
	if raw, ok := result.Tag(locationTags...); ok {
		if loc, ok := parseISO6709(raw); ok {
			meta.HasGPS = true
			meta.GPS = &loc
			if rawAcc, ok := result.Tag(accuracyTags...); ok {
				if acc, err := strconv.ParseFloat(strings.TrimSpace(rawAcc), 64); err == nil && acc >= 0 {
					meta.GPSAccuracyMeters = &acc
				}
			}
		}
	}
	return meta, nil
}

// parseTimestamp accepts the timestamp shapes cameras write. Values without a
// zone are read as UTC. The zero epoch some devices emit is treated as absent.
func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if ts.Year() <= 1970 {
			return time.Time{}, false
		}
		return ts.UTC(), true
	}
	return time.Time{}, false
}
