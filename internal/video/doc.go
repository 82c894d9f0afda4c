// Package video validates, inspects, and slices evidence videos.
//
// The pipeline runs four steps over a local file:
//   - Validator: signature sniffing plus a toolchain probe; rejects empty,
//     mislabelled, corrupt, and audio-only files before expensive work
//   - Extractor: duration, codec, resolution, frame rate, creation time, and
//     GPS position read from container and stream tags
//   - Plan: a pure function choosing the slice window around the ticket time
//   - Executor: re-encodes the slice and renders a thumbnail from it
//
// All toolchain access goes through the Toolchain interface so tests can
// substitute a fake. Pipeline never retries; the upload handler and the
// queue worker own retry policy and workspace cleanup.
package video
