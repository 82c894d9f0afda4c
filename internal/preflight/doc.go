// Package preflight provides readiness checks for the directories, binaries,
// and external services ticketless depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failure before it
//     begins accepting uploads.
//   - The CLI "ticketless status" command and GET /api/status render the
//     same results for operators.
//
// Each service check is gated by its config: an unset Redis address or AMQP
// URL is skipped rather than reported as a failure.
package preflight
