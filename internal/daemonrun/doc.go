// Package daemonrun assembles the ticketless runtime from configuration.
//
// Build constructs every component the daemon and the one-shot CLI commands
// share: the job table, durable storage, the video pipeline, the workspace
// manager, the worker, and the notification and wakeup clients. Run adds the
// process concerns of a long-running daemon on top: signal handling, the PID
// file, the dependency snapshot, and the daemon lifecycle.
package daemonrun
