package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"time"

	"ticketless/internal/logging"
	"ticketless/internal/media/ffmpeg"
	"ticketless/internal/metrics"
	"ticketless/internal/notifications"
	"ticketless/internal/queue"
	"ticketless/internal/services"
	"ticketless/internal/storage"
	"ticketless/internal/video"
	"ticketless/internal/workspace"
)

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeRetry
	outcomeFailed
	outcomeStateError
)

// jobMetadata is what the job row keeps about a completed attempt.
type jobMetadata struct {
	Metadata video.Metadata  `json:"metadata"`
	Slice    video.SliceInfo `json:"slice_info"`
}

func (w *Worker) runJob(ctx context.Context, workerID string, job *queue.Job) outcome {
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, w.logger)
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.Int("attempt", job.RetryCount+1),
		logging.String("original_ref", job.OriginalVideoRef),
	)
	w.notify(ctx, logger, job, string(queue.StatusProcessing), "", "")

	started := time.Now()
	done, err := w.process(ctx, job)
	w.deps.Metrics.ObservePipeline(metrics.PathQueue, time.Since(started), err)
	if err != nil {
		return w.fail(ctx, logger, workerID, job, err)
	}

	if err := w.deps.Store.Complete(ctx, job.ID, workerID, done); err != nil {
		w.discard(ctx, logger, done)
		if IsStateError(err) {
			w.reportStateError(logger, "complete", job, err)
			return outcomeStateError
		}
		logger.Error("failed to persist completion; job will be reclaimed",
			logging.String(logging.FieldEventType, "job_persist_failed"),
			logging.Error(err),
		)
		return outcomeRetry
	}

	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("processed_video_ref", done.ProcessedVideoRef),
		logging.Duration("elapsed", time.Since(started)),
	)
	w.notify(ctx, logger, job, string(queue.StatusCompleted), "", done.ProcessedVideoURL)
	return outcomeCompleted
}

// process downloads the original into a fresh workspace, runs the pipeline,
// and uploads the outputs. The workspace is gone when it returns.
func (w *Worker) process(ctx context.Context, job *queue.Job) (queue.Completion, error) {
	quality, err := ffmpeg.ParseQuality(job.Quality)
	if err != nil {
		return queue.Completion{}, services.Invalid("worker", err.Error())
	}

	var done queue.Completion
	label := "job-" + strconv.FormatInt(job.ID, 10)
	err = w.deps.Workspaces.Run(ctx, label, func(ctx context.Context, ws *workspace.Workspace) error {
		src := ws.Path("source" + path.Ext(job.OriginalVideoRef))
		if err := w.deps.Blobs.Fetch(ctx, job.OriginalVideoRef, src); err != nil {
			return err
		}

		result, err := w.deps.Pipeline.Process(ctx, video.Job{
			SourcePath:      src,
			TicketTimestamp: job.TicketTimestamp,
			AutoSlice:       job.AutoSlice,
			Quality:         quality,
			Attempt:         job.RetryCount + 1,
		}, ws.OutputDir())
		if err != nil {
			return err
		}

		meta, err := json.Marshal(jobMetadata{Metadata: result.Metadata, Slice: result.Slice})
		if err != nil {
			return services.Wrap(services.ErrProcessing, "worker", "encode metadata", "", err)
		}

		artifacts, err := storage.PutOutputs(ctx, w.deps.Blobs, job.UserID, label, result.SlicedVideoPath, result.ThumbnailPath)
		if err != nil {
			return err
		}
		done = queue.Completion{
			ProcessedVideoRef: artifacts.VideoRef,
			ThumbnailRef:      artifacts.ThumbnailRef,
			ProcessedVideoURL: artifacts.VideoURL,
			ThumbnailURL:      artifacts.ThumbnailURL,
			MetadataJSON:      string(meta),
		}
		return nil
	})
	return done, err
}

func (w *Worker) fail(ctx context.Context, logger *slog.Logger, workerID string, job *queue.Job, cause error) outcome {
	kind := services.Classify(cause)
	failure := queue.Failure{
		Message:  cause.Error(),
		Kind:     string(kind),
		Terminal: !services.Retryable(cause),
	}
	status, err := w.deps.Store.RecordFailure(ctx, job.ID, workerID, failure, w.opts.MaxRetries)
	if err != nil {
		if IsStateError(err) {
			w.reportStateError(logger, "record failure", job, err)
			return outcomeStateError
		}
		logger.Error("failed to persist job failure; job will be reclaimed",
			logging.String(logging.FieldEventType, "job_persist_failed"),
			logging.String("job_error", cause.Error()),
			logging.Error(err),
		)
		return outcomeRetry
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "job_failed"),
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.String("resolved_status", string(status)),
		logging.Int("attempt", job.RetryCount+1),
		logging.Error(cause),
	}
	w.notify(ctx, logger, job, string(status), services.UserMessage(cause), "")
	if status == queue.StatusPending {
		logger.Warn("job attempt failed; will retry", logging.Args(attrs...)...)
		return outcomeRetry
	}
	attrs = append(attrs, logging.String(logging.FieldImpact, "job will not be retried automatically"))
	logger.Error("job failed", logging.Args(attrs...)...)
	return outcomeFailed
}

// discard removes uploaded artifacts that no job row references.
func (w *Worker) discard(ctx context.Context, logger *slog.Logger, done queue.Completion) {
	for _, key := range []string{done.ProcessedVideoRef, done.ThumbnailRef} {
		if key == "" {
			continue
		}
		if err := w.deps.Blobs.Delete(ctx, key); err != nil {
			logger.Warn("failed to delete unreferenced artifact", logging.String("key", key), logging.Error(err))
		}
	}
}

func (w *Worker) reportStateError(logger *slog.Logger, operation string, job *queue.Job, err error) {
	w.deps.Metrics.ClaimConflict()
	logging.ErrorWithContext(logger, "job transition conflicted", "state_error",
		logging.Alert("state_error"),
		logging.String("operation", operation),
		logging.String(logging.FieldErrorKind, string(services.KindState)),
		logging.String(logging.FieldErrorHint, fmt.Sprintf("inspect job %d; another worker or operator changed it mid-attempt", job.ID)),
		logging.Error(err),
	)
}

func (w *Worker) notify(ctx context.Context, logger *slog.Logger, job *queue.Job, status, reason, url string) {
	retries := job.RetryCount
	if status != string(queue.StatusProcessing) && status != string(queue.StatusCompleted) {
		retries++
	}
	event := notifications.Event{
		JobID:      job.ID,
		Status:     status,
		RetryCount: retries,
		UserID:     job.UserID,
		ContestID:  job.ContestID,
		Error:      reason,
		VideoURL:   url,
	}
	if err := w.deps.Notifier.Publish(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("job notification failed", logging.Error(err))
	}
}
