// Package daemon coordinates the long-running ticketless process.
//
// It wires the job table, the worker, the upload handler, and the HTTP API
// into a single lifecycle with flock-based locking to prevent multiple
// instances on one host. Worker invocations come from three triggers: the
// cron schedule, AMQP wakeups published on enqueue, and the shared-secret
// POST /api/worker/run endpoint for external schedulers. Triggers are
// coalesced so at most one invocation runs in this process at a time; the
// claim step keeps invocations in other processes from sharing a job.
//
// Keep orchestration logic here: pipeline and queue semantics live in their
// own packages while the daemon focuses on startup, shutdown, and scheduling.
package daemon
