// Package queue persists video jobs in SQLite and exposes the transitions
// that drive their lifecycle.
//
// A job moves pending -> processing -> completed, back to pending while
// retries remain, or to failed once they are spent. Every transition is a
// single conditional UPDATE: Claim only succeeds while the row is still
// pending, and Complete and RecordFailure only succeed while the row is
// processing under the caller's claim. A mismatch surfaces as
// services.ErrState so races are logged rather than silently absorbed.
//
// ReclaimStale returns jobs whose worker vanished mid-attempt, counting the
// lost attempt against the retry budget.
//
// The Postgres implementation in pgstore mirrors this API for deployments
// that share one database across hosts.
package queue
