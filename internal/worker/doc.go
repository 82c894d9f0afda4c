// Package worker drains the video job queue.
//
// RunOnce is one scheduler invocation: sweep abandoned workspaces, reclaim
// jobs whose worker vanished, claim up to a batch of pending jobs oldest
// first, and process them one after another. Each job gets its own workspace,
// released before the next job starts. Retryable failures put the job back to
// pending until the retry budget is spent; validation failures are terminal at
// once. Transition conflicts are state errors and are logged loudly, never
// retried.
package worker
