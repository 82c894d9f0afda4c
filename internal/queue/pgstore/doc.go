// Package pgstore is the Postgres implementation of the video job queue.
//
// It mirrors queue.Store method for method so callers can switch backends
// through configuration. Batch claims use FOR UPDATE SKIP LOCKED so workers on
// different hosts never block on, or double-claim, the same row; single-row
// claims and the guarded completion and failure updates use the same
// conditional UPDATE shape as the SQLite store.
package pgstore
