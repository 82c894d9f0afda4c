package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"
	"time"

	"ticketless/internal/fileutil"
	"ticketless/internal/logging"
	"ticketless/internal/media/ffmpeg"
	"ticketless/internal/queue"
	"ticketless/internal/services"
	"ticketless/internal/storage"
	"ticketless/internal/upload"
	"ticketless/internal/video"
	"ticketless/internal/wakeup"
	"ticketless/internal/workspace"
)

// JobInserter is the job table write needed to enqueue.
type JobInserter interface {
	Enqueue(ctx context.Context, req queue.NewJob) (*queue.Job, error)
}

// EnqueueRequest is one queued upload.
type EnqueueRequest struct {
	UserID          string
	ContestID       string
	TicketTimestamp *time.Time
	Description     string
	AutoSlice       bool
	Source          string
	Quality         string
	Filename        string
	Body            io.Reader
}

// Enqueuer stores originals and inserts pending jobs.
type Enqueuer struct {
	store      JobInserter
	blobs      storage.Store
	workspaces *workspace.Manager
	wakeups    wakeup.Publisher
	maxBytes   int64
	logger     *slog.Logger
}

// NewEnqueuer wires an Enqueuer. wakeups may be nil. maxBytes <= 0 disables
// the size limit.
func NewEnqueuer(store JobInserter, blobs storage.Store, workspaces *workspace.Manager, wakeups wakeup.Publisher, maxBytes int64, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{
		store:      store,
		blobs:      blobs,
		workspaces: workspaces,
		wakeups:    wakeups,
		maxBytes:   maxBytes,
		logger:     logging.NewComponentLogger(logger, "enqueue"),
	}
}

// Enqueue stages the payload, uploads it as the job's original, and inserts
// a pending row. The stored original is removed again when the insert fails
// so no blob is left without a job referencing it.
func (e *Enqueuer) Enqueue(ctx context.Context, req EnqueueRequest) (*JobView, error) {
	source, quality, ext, err := checkEnqueue(req)
	if err != nil {
		return nil, err
	}

	var job *queue.Job
	err = e.workspaces.Run(ctx, "enqueue", func(ctx context.Context, ws *workspace.Workspace) error {
		path := ws.Path("original" + ext)
		if err := e.receive(ctx, req.Body, path); err != nil {
			return err
		}
		container, err := video.Sniff(path)
		if err != nil {
			return services.Wrap(services.ErrProcessing, "enqueue", "sniff", "", err)
		}
		if container == video.ContainerUnknown {
			return services.Invalid("enqueue", "file is not a recognized video container")
		}

		key := storage.OriginalKey(req.UserID, req.ContestID, ext)
		if _, err := e.blobs.Put(ctx, key, path, contentType(ext)); err != nil {
			return err
		}

		job, err = e.store.Enqueue(ctx, queue.NewJob{
			UserID:           strings.TrimSpace(req.UserID),
			ContestID:        strings.TrimSpace(req.ContestID),
			OriginalVideoRef: key,
			TicketTimestamp:  req.TicketTimestamp,
			AutoSlice:        req.AutoSlice,
			Quality:          string(quality),
			Description:      strings.TrimSpace(req.Description),
			Source:           string(source),
		})
		if err != nil {
			if delErr := e.blobs.Delete(context.WithoutCancel(ctx), key); delErr != nil {
				e.logger.Warn("orphaned original not removed",
					logging.String(logging.FieldEventType, "original_cleanup_failed"),
					logging.String("key", key),
					logging.Error(delErr),
				)
			}
			return services.Wrap(services.ErrStorage, "enqueue", "insert job", "", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger := logging.WithContext(services.WithJobID(ctx, job.ID), e.logger)
	logger.Info("job enqueued",
		logging.String(logging.FieldEventType, "job_enqueued"),
		logging.String("user_id", job.UserID),
		logging.String("contest_id", job.ContestID),
		logging.String("original_ref", job.OriginalVideoRef),
	)
	e.wake(ctx, logger, job)

	dto := FromJob(job)
	return &dto, nil
}

func (e *Enqueuer) wake(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	if e.wakeups == nil {
		return
	}
	msg := wakeup.Message{JobID: job.ID, Enqueued: job.CreatedAt}
	if err := e.wakeups.Publish(ctx, msg); err != nil {
		logging.WarnWithContext(logger, "wakeup publish failed", "wakeup_failed",
			logging.String(logging.FieldErrorHint, "job will run on the next scheduled worker invocation"),
			logging.Error(err),
		)
	}
}

func (e *Enqueuer) receive(ctx context.Context, body io.Reader, dst string) error {
	_, err := fileutil.SaveStream(body, dst, e.maxBytes)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fileutil.ErrTooLarge):
		return services.Invalid("enqueue", fmt.Sprintf("video exceeds the %d MB upload limit", e.maxBytes/(1024*1024)))
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return services.Wrap(services.ErrProcessing, "enqueue", "receive", "", err)
	}
}

func checkEnqueue(req EnqueueRequest) (video.Source, ffmpeg.Quality, string, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return "", "", "", services.Invalid("enqueue", "user id is required")
	}
	if strings.TrimSpace(req.ContestID) == "" {
		return "", "", "", services.Invalid("enqueue", "contest id is required")
	}
	if req.Body == nil {
		return "", "", "", services.Invalid("enqueue", "video payload is required")
	}
	source, ok := video.ParseSource(req.Source)
	if !ok {
		return "", "", "", services.Invalid("enqueue", fmt.Sprintf("unknown source %q", req.Source))
	}
	quality, err := ffmpeg.ParseQuality(req.Quality)
	if err != nil {
		return "", "", "", services.Invalid("enqueue", err.Error())
	}
	ext, err := upload.Extension(req.Filename)
	if err != nil {
		return "", "", "", err
	}
	return source, quality, ext, nil
}

func contentType(ext string) string {
	if ext == "" {
		return "application/octet-stream"
	}
	if value := mime.TypeByExtension(ext); value != "" {
		return value
	}
	return "video/" + strings.TrimPrefix(ext, ".")
}
