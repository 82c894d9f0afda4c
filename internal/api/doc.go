// Package api defines wire-format types and the services behind the HTTP
// surface. It translates queue rows into transport DTOs so handlers and the
// CLI never couple to database models.
//
// # Key Types
//
// JobView: transport representation of a job row, including stored refs, URLs,
// and the pipeline metadata recorded on completion.
//
// ServiceStatus: daemon state, queue counts, dependency availability, and
// preflight results.
//
// # Services
//
// QueueService: read and maintenance operations over the job table.
//
// Enqueuer: stores an original in durable storage, inserts a pending job, and
// publishes a wakeup so the daemon does not wait for its next scheduled run.
//
// # Design Notes
//
// DTOs use snake_case JSON tags to match the upload response. Timestamps use
// RFC3339 with milliseconds. Metadata is passed through as json.RawMessage to
// avoid double-encoding.
package api
