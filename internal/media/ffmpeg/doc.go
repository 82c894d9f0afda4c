// Package ffmpeg runs the ffmpeg family of binaries as subprocesses.
//
// Run captures stdout and stderr separately and reports failures as
// *ToolError, which distinguishes a missing binary, a timeout, and a non-zero
// exit. SliceArgs and FrameArgs build the argument lists for the three
// quality presets (fast, balanced, max-compat) and single-frame renders.
package ffmpeg
