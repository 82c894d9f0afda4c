// Package workspace hands out one private scratch directory per job and
// guarantees its removal.
//
// A Workspace is acquired once and released once. Run is the preferred entry
// point: it releases the directory on every exit path, including panics and
// context cancellation, so callers never write their own cleanup. CleanStale
// sweeps directories left behind by a process that was killed outright.
package workspace
