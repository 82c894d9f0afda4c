// Package services defines shared utilities consumed by the video pipeline,
// the synchronous upload handler, and the queue worker.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, worker IDs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper. Classify and Retryable
//     turn a marked error into an API status or a queue retry decision, and
//     UserMessage renders the reason a submitter is allowed to see.
//
// Wrap every failure that crosses a package boundary with one of the markers
// so callers can tell a bad upload from a transient service fault.
package services
