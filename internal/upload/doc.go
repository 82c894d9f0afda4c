// Package upload drives the video pipeline for uploads submitted inline with
// a request.
//
// Handle saves the payload into a fresh workspace, runs validation,
// extraction, planning and slicing, uploads the clip and thumbnail, and
// returns the result record. Nothing is persisted on failure; the caller
// resubmits. The workspace is released on every exit path, including a
// cancelled request.
package upload
