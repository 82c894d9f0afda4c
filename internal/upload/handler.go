package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"ticketless/internal/fileutil"
	"ticketless/internal/logging"
	"ticketless/internal/media/ffmpeg"
	"ticketless/internal/metrics"
	"ticketless/internal/services"
	"ticketless/internal/storage"
	"ticketless/internal/video"
	"ticketless/internal/workspace"
)

// Processor runs the video pipeline over a local source file.
type Processor interface {
	Process(ctx context.Context, job video.Job, outDir string) (video.Result, error)
}

// Request is one inline upload.
type Request struct {
	UserID          string
	ContestID       string
	TicketTimestamp *time.Time
	Description     string
	AutoSlice       bool
	Source          string
	Quality         string
	// Filename is the client's name for the payload; only its extension is used.
	Filename string
	Body     io.Reader
}

// Result is returned to the client on success.
type Result struct {
	RequestID         string             `json:"request_id"`
	ContestID         string             `json:"contest_id"`
	Description       string             `json:"description,omitempty"`
	Source            video.Source       `json:"source"`
	ProcessedVideoURL string             `json:"processed_video_url"`
	ThumbnailURL      string             `json:"thumbnail_url"`
	ProcessedVideoRef string             `json:"processed_video_ref"`
	ThumbnailRef      string             `json:"thumbnail_ref"`
	Slice             video.SliceInfo    `json:"slice_info"`
	HasGPS            bool               `json:"has_gps"`
	GPS               *video.GPSLocation `json:"gps_location,omitempty"`
	GPSAccuracyMeters *float64           `json:"gps_accuracy_meters,omitempty"`
	VideoTimestamp    *time.Time         `json:"video_timestamp,omitempty"`
	Metadata          video.Metadata     `json:"metadata"`
}

// Handler processes synchronous uploads.
type Handler struct {
	pipeline   Processor
	workspaces *workspace.Manager
	store      storage.Store
	maxBytes   int64
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewHandler wires a handler. maxBytes <= 0 disables the size limit. m may
// be nil.
func NewHandler(pipeline Processor, workspaces *workspace.Manager, store storage.Store, maxBytes int64, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		pipeline:   pipeline,
		workspaces: workspaces,
		store:      store,
		maxBytes:   maxBytes,
		metrics:    m,
		logger:     logging.NewComponentLogger(logger, "upload"),
	}
}

// Handle processes req end to end. A request id already on ctx is reused.
func (h *Handler) Handle(ctx context.Context, req Request) (*Result, error) {
	requestID, ok := services.RequestIDFromContext(ctx)
	if !ok || requestID == "" {
		requestID = uuid.NewString()
		ctx = services.WithRequestID(ctx, requestID)
	}
	logger := logging.WithContext(ctx, h.logger)

	source, quality, ext, err := h.check(req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	var result *Result
	err = h.workspaces.Run(ctx, "upload", func(ctx context.Context, ws *workspace.Workspace) error {
		src := ws.Path("source" + ext)
		if err := h.receive(ctx, req.Body, src); err != nil {
			return err
		}

		processed, err := h.pipeline.Process(ctx, video.Job{
			SourcePath:      src,
			TicketTimestamp: req.TicketTimestamp,
			AutoSlice:       req.AutoSlice,
			Quality:         quality,
			Attempt:         1,
		}, ws.OutputDir())
		if err != nil {
			return err
		}

		artifacts, err := storage.PutOutputs(ctx, h.store, req.UserID, requestID, processed.SlicedVideoPath, processed.ThumbnailPath)
		if err != nil {
			return err
		}
		result = buildResult(requestID, req, source, processed, artifacts)
		return nil
	})
	h.metrics.ObservePipeline(metrics.PathSync, time.Since(started), err)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("upload cancelled by client", logging.String(logging.FieldEventType, "upload_cancelled"))
			return nil, err
		}
		logger.Info("upload rejected",
			logging.String(logging.FieldEventType, "upload_failed"),
			logging.String(logging.FieldErrorKind, string(services.Classify(err))),
			logging.Error(err),
		)
		return nil, err
	}

	logger.Info("upload processed",
		logging.String(logging.FieldEventType, "upload_completed"),
		logging.String("method", string(result.Slice.Method)),
		logging.Float64("slice_seconds", result.Slice.DurationSeconds),
		logging.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

func (h *Handler) check(req Request) (video.Source, ffmpeg.Quality, string, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return "", "", "", services.Invalid("upload", "user id is required")
	}
	if strings.TrimSpace(req.ContestID) == "" {
		return "", "", "", services.Invalid("upload", "contest id is required")
	}
	if req.Body == nil {
		return "", "", "", services.Invalid("upload", "video payload is required")
	}
	source, ok := video.ParseSource(req.Source)
	if !ok {
		return "", "", "", services.Invalid("upload", fmt.Sprintf("unknown source %q", req.Source))
	}
	quality, err := ffmpeg.ParseQuality(req.Quality)
	if err != nil {
		return "", "", "", services.Invalid("upload", err.Error())
	}
	ext, err := Extension(req.Filename)
	if err != nil {
		return "", "", "", err
	}
	return source, quality, ext, nil
}

// Extension returns the lower-cased container extension of filename, or a
// validation error when it is not a supported video type. A name without an
// extension is accepted and left to content sniffing.
func Extension(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if ext == "" {
		return "", nil
	}
	if !video.SupportedExtension(ext) {
		return "", services.Invalid("upload", fmt.Sprintf("unsupported file extension %q", ext))
	}
	return ext, nil
}

func (h *Handler) receive(ctx context.Context, body io.Reader, dst string) error {
	_, err := fileutil.SaveStream(body, dst, h.maxBytes)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fileutil.ErrTooLarge):
		return services.Invalid("upload", fmt.Sprintf(
			"video exceeds the %d MB inline limit; submit it as a queued upload instead", h.maxBytes/(1024*1024)))
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return services.Wrap(services.ErrProcessing, "upload", "receive", "", err)
	}
}

func buildResult(requestID string, req Request, source video.Source, processed video.Result, artifacts storage.Artifacts) *Result {
	meta := processed.Metadata
	return &Result{
		RequestID:         requestID,
		ContestID:         req.ContestID,
		Description:       strings.TrimSpace(req.Description),
		Source:            source,
		ProcessedVideoURL: artifacts.VideoURL,
		ThumbnailURL:      artifacts.ThumbnailURL,
		ProcessedVideoRef: artifacts.VideoRef,
		ThumbnailRef:      artifacts.ThumbnailRef,
		Slice:             processed.Slice,
		HasGPS:            meta.HasGPS,
		GPS:               meta.GPS,
		GPSAccuracyMeters: meta.GPSAccuracyMeters,
		VideoTimestamp:    meta.VideoTimestamp,
		Metadata:          meta,
	}
}
