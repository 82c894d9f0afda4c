package video

import (
	"context"
	"errors"
	"time"

	"ticketless/internal/media/ffmpeg"
	"ticketless/internal/media/ffprobe"
)

// DefaultToolTimeout bounds a single toolchain invocation.
const DefaultToolTimeout = 120 * time.Second

// Toolchain is the narrow surface the pipeline needs from the external
// multimedia tools. Errors should be *ffmpeg.ToolError where possible so
// callers can tell a rejected file from a broken toolchain.
type Toolchain interface {
	Probe(ctx context.Context, path string) (ffprobe.Result, error)
	Slice(ctx context.Context, src, dst string, start, duration float64, quality ffmpeg.Quality) error
	Frame(ctx context.Context, src, dst string, offset float64) error
}

// FFToolchain runs ffprobe and ffmpeg binaries with a per-call timeout.
type FFToolchain struct {
	FFprobe string
	FFmpeg  string
	Timeout time.Duration
}

// NewFFToolchain returns a toolchain bound to the given binaries.
func NewFFToolchain(ffprobeBinary, ffmpegBinary string, timeout time.Duration) *FFToolchain {
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	return &FFToolchain{FFprobe: ffprobeBinary, FFmpeg: ffmpegBinary, Timeout: timeout}
}

func (t *FFToolchain) Probe(ctx context.Context, path string) (ffprobe.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()
	return ffprobe.Inspect(ctx, t.FFprobe, path)
}

func (t *FFToolchain) Slice(ctx context.Context, src, dst string, start, duration float64, quality ffmpeg.Quality) error {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()
	_, err := ffmpeg.Run(ctx, t.FFmpeg, ffmpeg.SliceArgs(src, dst, start, duration, quality)...)
	return err
}

func (t *FFToolchain) Frame(ctx context.Context, src, dst string, offset float64) error {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()
	_, err := ffmpeg.Run(ctx, t.FFmpeg, ffmpeg.FrameArgs(src, dst, offset)...)
	return err
}

// fileRejected reports whether err means the tool ran and refused the input,
// as opposed to the tool being missing, killed, or timed out.
func fileRejected(err error) bool {
	var toolErr *ffmpeg.ToolError
	return errors.As(err, &toolErr) && toolErr.Exited()
}

// timedOut reports whether err came from the per-call deadline.
func timedOut(err error) bool {
	var toolErr *ffmpeg.ToolError
	if errors.As(err, &toolErr) && toolErr.TimedOut {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
