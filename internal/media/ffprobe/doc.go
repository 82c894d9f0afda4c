// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual audio/video stream properties and tags
//   - Format: container-level metadata (duration, size, bitrate, tags)
//
// Inspect executes ffprobe and returns a parsed Result; Parse decodes a
// payload captured elsewhere. Helper methods on Result cover stream counts,
// duration and frame-rate parsing, and tag lookups across the container and
// its streams.
package ffprobe
