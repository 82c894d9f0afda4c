// Package notifications publishes job status events.
//
// The default implementation publishes JSON to a Redis pub/sub channel so
// other services can react to completed or failed evidence videos. When no
// Redis address is configured a no-op service is returned and callers never
// need to branch on whether notifications are enabled.
package notifications
