package video

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"ticketless/internal/logging"
	"ticketless/internal/media/ffmpeg"
	"ticketless/internal/services"
)

const (
	slicedVideoName = "clip.mp4"
	thumbnailName   = "thumbnail.jpg"
	framePNGName    = "frame.png"
)

// Outputs are the two artifacts the executor writes into the output directory.
type Outputs struct {
	SlicedVideoPath string
	ThumbnailPath   string
}

// Executor turns a planned slice into a re-encoded clip and a thumbnail. It
// never retries; retry policy belongs to the caller.
type Executor struct {
	toolchain Toolchain
	thumbs    ThumbnailBounds
	logger    *slog.Logger
}

// NewExecutor constructs an executor.
func NewExecutor(toolchain Toolchain, thumbs ThumbnailBounds, logger *slog.Logger) *Executor {
	if thumbs.MaxWidth <= 0 || thumbs.MaxHeight <= 0 {
		thumbs = DefaultThumbnailBounds
	}
	return &Executor{
		toolchain: toolchain,
		thumbs:    thumbs,
		logger:    logging.NewComponentLogger(logger, "executor"),
	}
}

// Execute cuts slice out of src into outDir and renders its thumbnail.
func (e *Executor) Execute(ctx context.Context, src string, slice SliceInfo, quality ffmpeg.Quality, outDir string) (Outputs, error) {
	if slice.DurationSeconds <= 0 {
		return Outputs{}, services.Wrap(services.ErrProcessing, "slice", "plan", "slice has no duration", nil)
	}
	if quality == "" {
		quality = ffmpeg.QualityBalanced
	}
	out := Outputs{
		SlicedVideoPath: filepath.Join(outDir, slicedVideoName),
		ThumbnailPath:   filepath.Join(outDir, thumbnailName),
	}

	if err := e.toolchain.Slice(ctx, src, out.SlicedVideoPath, slice.StartSeconds, slice.DurationSeconds, quality); err != nil {
		return Outputs{}, processingError("slice", "ffmpeg", err)
	}
	if info, err := os.Stat(out.SlicedVideoPath); err != nil || info.Size() == 0 {
		return Outputs{}, services.Wrap(services.ErrProcessing, "slice", "ffmpeg", "toolchain produced no output", err)
	}

	if err := e.renderThumbnail(ctx, out.SlicedVideoPath, slice.DurationSeconds/2, outDir, out.ThumbnailPath); err != nil {
		return Outputs{}, err
	}
	return out, nil
}

// renderThumbnail tries the midpoint of the clip first and falls back to the
// first frame when the midpoint cannot be rendered or decoded.
func (e *Executor) renderThumbnail(ctx context.Context, clip string, midpoint float64, outDir, dst string) error {
	frame := filepath.Join(outDir, framePNGName)
	defer os.Remove(frame)

	offsets := []float64{midpoint}
	if midpoint > 0 {
		offsets = append(offsets, 0)
	}

	var lastErr error
	for i, offset := range offsets {
		if err := e.toolchain.Frame(ctx, clip, frame, offset); err != nil {
			lastErr = processingError("thumbnail", "ffmpeg", err)
		} else if err := WriteThumbnail(frame, dst, e.thumbs); err != nil {
			lastErr = services.Wrap(services.ErrProcessing, "thumbnail", "encode", fmt.Sprintf("frame at %.3fs", offset), err)
		} else {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		if i+1 < len(offsets) {
			logging.WarnWithContext(logging.WithContext(ctx, e.logger), "thumbnail midpoint unusable; falling back to first frame", "thumbnail_fallback",
				logging.Float64("offset_seconds", offset),
				logging.Error(lastErr),
				logging.String(logging.FieldImpact, "thumbnail shows the start of the clip"),
			)
		}
	}
	return lastErr
}

// processingError tags a toolchain failure during slicing or thumbnailing.
// Timeouts carry ErrTimeout as well so they classify the same way.
func processingError(stage, operation string, err error) error {
	if timedOut(err) {
		return services.Wrap(services.ErrProcessing, stage, operation, "timed out", fmt.Errorf("%w: %w", services.ErrTimeout, err))
	}
	return services.Wrap(services.ErrProcessing, stage, operation, "", err)
}
