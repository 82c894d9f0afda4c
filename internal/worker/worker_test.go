package worker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"ticketless/internal/config"
	"ticketless/internal/logging"
	"ticketless/internal/media/ffmpeg"
	"ticketless/internal/queue"
	"ticketless/internal/services"
	"ticketless/internal/storage"
	"ticketless/internal/testsupport"
	"ticketless/internal/video"
	"ticketless/internal/worker"
	"ticketless/internal/workspace"
)

type harness struct {
	cfg       *config.Config
	store     *queue.Store
	blobs     *storage.Local
	toolchain *testsupport.FakeToolchain
	notifier  *testsupport.NotifyRecorder
	worker    *worker.Worker
}

func newHarness(t *testing.T, opts worker.Options) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	blobs, err := storage.NewLocal(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	tc := testsupport.NewFakeToolchain(90, map[string]string{"creation_time": "2026-05-01T08:30:00.000000Z"})
	notifier := &testsupport.NotifyRecorder{}
	w := worker.New(worker.Deps{
		Store:      store,
		Pipeline:   video.NewPipeline(tc, video.Options{}, logging.NewNop()),
		Workspaces: workspace.NewManager(cfg.Paths.WorkDir, 0, logging.NewNop()),
		Blobs:      blobs,
		Notifier:   notifier,
	}, opts, logging.NewNop())
	return &harness{cfg: cfg, store: store, blobs: blobs, toolchain: tc, notifier: notifier, worker: w}
}

// enqueue stores an original built by write and queues a job for it.
func (h *harness) enqueue(t *testing.T, write func(testing.TB, string)) *queue.Job {
	t.Helper()
	src := filepath.Join(t.TempDir(), "upload.mp4")
	write(t, src)
	key := storage.OriginalKey("user-1", "contest-1", ".mp4")
	if _, err := h.blobs.Put(context.Background(), key, src, "video/mp4"); err != nil {
		t.Fatalf("store original: %v", err)
	}
	return testsupport.NewJob(t, h.store, key)
}

func validMP4(t testing.TB, path string) { testsupport.WriteMP4Fixture(t, path, "isom") }

func (h *harness) run(t *testing.T) worker.Summary {
	t.Helper()
	summary, err := h.worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	return summary
}

func (h *harness) job(t *testing.T, id int64) *queue.Job {
	t.Helper()
	job, err := h.store.GetByID(context.Background(), id)
	if err != nil || job == nil {
		t.Fatalf("GetByID(%d): %v", id, err)
	}
	return job
}

func assertNoWorkspaces(t *testing.T, cfg *config.Config) {
	t.Helper()
	entries, err := os.ReadDir(cfg.Paths.WorkDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read workspace root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no workspaces left behind, found %d", len(entries))
	}
}

func TestRunOnceCompletesJob(t *testing.T) {
	h := newHarness(t, worker.Options{})
	job := h.enqueue(t, validMP4)

	summary := h.run(t)
	if summary.Claimed != 1 || summary.Completed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	got := h.job(t, job.ID)
	if got.Status != queue.StatusCompleted || got.RetryCount != 0 {
		t.Fatalf("unexpected job state %s retries=%d", got.Status, got.RetryCount)
	}
	if !strings.HasPrefix(got.ProcessedVideoRef, "processed/user-1/job-") || got.ThumbnailRef == "" {
		t.Fatalf("expected output refs, got %q %q", got.ProcessedVideoRef, got.ThumbnailRef)
	}
	if !strings.Contains(got.MetadataJSON, `"method":"full-video"`) {
		t.Fatalf("expected slice info in metadata json: %s", got.MetadataJSON)
	}
	if got.ClaimedBy != summary.WorkerID {
		t.Fatalf("claimed_by = %q, want %q", got.ClaimedBy, summary.WorkerID)
	}
	if want := []string{"processing", "completed"}; !reflect.DeepEqual(h.notifier.Statuses(), want) {
		t.Fatalf("notifications = %v, want %v", h.notifier.Statuses(), want)
	}
	assertNoWorkspaces(t, h.cfg)
}

func TestFailTwiceThenSucceed(t *testing.T) {
	h := newHarness(t, worker.Options{})
	job := h.enqueue(t, validMP4)
	h.toolchain.SliceErr = &ffmpeg.ToolError{Tool: "ffmpeg", TimedOut: true, Err: context.DeadlineExceeded}

	for attempt := 1; attempt <= 2; attempt++ {
		summary := h.run(t)
		if summary.Retried != 1 {
			t.Fatalf("attempt %d: unexpected summary %+v", attempt, summary)
		}
		got := h.job(t, job.ID)
		if got.Status != queue.StatusPending || got.RetryCount != attempt {
			t.Fatalf("attempt %d: status=%s retries=%d", attempt, got.Status, got.RetryCount)
		}
		if got.ProcessedVideoRef != "" || got.ThumbnailRef != "" {
			t.Fatalf("attempt %d: failed attempt must not populate refs", attempt)
		}
		if got.ErrorMessage == "" || got.ErrorKind == "" {
			t.Fatalf("attempt %d: expected recorded error", attempt)
		}
		assertNoWorkspaces(t, h.cfg)
	}

	h.toolchain.SliceErr = nil
	if summary := h.run(t); summary.Completed != 1 {
		t.Fatalf("third attempt: unexpected summary %+v", summary)
	}
	got := h.job(t, job.ID)
	if got.Status != queue.StatusCompleted || got.RetryCount != 2 {
		t.Fatalf("final status=%s retries=%d", got.Status, got.RetryCount)
	}
	if got.ProcessedVideoRef == "" || got.ThumbnailRef == "" || got.ErrorMessage != "" {
		t.Fatalf("expected clean completion, got %+v", got)
	}
}

func TestRetryExhaustion(t *testing.T) {
	h := newHarness(t, worker.Options{})
	job := h.enqueue(t, validMP4)
	h.toolchain.SliceErr = errors.New("encoder crashed")

	for i := 0; i < 3; i++ {
		h.run(t)
	}
	got := h.job(t, job.ID)
	if got.Status != queue.StatusFailed || got.RetryCount != 3 {
		t.Fatalf("status=%s retries=%d, want failed/3", got.Status, got.RetryCount)
	}

	h.toolchain.SliceErr = nil
	if summary := h.run(t); summary.Claimed != 0 {
		t.Fatalf("failed job must never be claimed again: %+v", summary)
	}
	statuses := h.notifier.Statuses()
	if statuses[len(statuses)-1] != "failed" {
		t.Fatalf("expected final failed notification, got %v", statuses)
	}
}

func TestValidationFailureIsTerminal(t *testing.T) {
	h := newHarness(t, worker.Options{})
	job := h.enqueue(t, testsupport.WriteGarbage)

	summary := h.run(t)
	if summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	got := h.job(t, job.ID)
	if got.Status != queue.StatusFailed || got.RetryCount != 1 || got.ErrorKind != string(services.KindValidation) {
		t.Fatalf("status=%s retries=%d kind=%s", got.Status, got.RetryCount, got.ErrorKind)
	}
	if probes, _, _ := h.toolchain.Calls(); probes != 0 {
		t.Fatalf("garbage must not reach the toolchain, got %d probes", probes)
	}
	assertNoWorkspaces(t, h.cfg)
}

func TestMissingOriginalIsTerminal(t *testing.T) {
	h := newHarness(t, worker.Options{})
	job := testsupport.NewJob(t, h.store, "originals/user-1/contest-1/missing/source.mp4")

	h.run(t)
	got := h.job(t, job.ID)
	if got.Status != queue.StatusFailed || got.ErrorKind != string(services.KindNotFound) {
		t.Fatalf("status=%s kind=%s", got.Status, got.ErrorKind)
	}
}

func TestStorageFailureIsRetried(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	h := newHarness(t, worker.Options{})
	job := h.enqueue(t, validMP4)
	// Remove write permission on the output prefix so uploads fail.
	processed := filepath.Join(h.cfg.Storage.LocalDir, "processed")
	if err := os.MkdirAll(processed, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(processed, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(processed, 0o755) })

	h.run(t)
	got := h.job(t, job.ID)
	if got.Status != queue.StatusPending || got.ErrorKind != string(services.KindStorage) {
		t.Fatalf("status=%s kind=%s", got.Status, got.ErrorKind)
	}
}

func TestBatchIsBoundedAndOldestFirst(t *testing.T) {
	h := newHarness(t, worker.Options{BatchSize: 5})
	var ids []int64
	for i := 0; i < 7; i++ {
		ids = append(ids, h.enqueue(t, validMP4).ID)
	}

	summary := h.run(t)
	if summary.Claimed != 5 || summary.Completed != 5 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	for i, id := range ids {
		want := queue.StatusCompleted
		if i >= 5 {
			want = queue.StatusPending
		}
		if got := h.job(t, id).Status; got != want {
			t.Fatalf("job %d (#%d): status %s, want %s", id, i, got, want)
		}
	}
	if _, slices, _ := h.toolchain.Calls(); slices != 5 {
		t.Fatalf("expected 5 slice calls, got %d", slices)
	}
}

func TestStaleJobIsReclaimedAndProcessed(t *testing.T) {
	h := newHarness(t, worker.Options{StaleAfter: time.Millisecond})
	job := h.enqueue(t, validMP4)
	ok, err := h.store.Claim(context.Background(), job.ID, "crashed-worker", queue.DefaultMaxRetries)
	if err != nil || !ok {
		t.Fatalf("Claim: %v %v", ok, err)
	}
	time.Sleep(5 * time.Millisecond)

	summary := h.run(t)
	if summary.Reclaimed != 1 || summary.Completed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	got := h.job(t, job.ID)
	if got.Status != queue.StatusCompleted || got.RetryCount != 1 {
		t.Fatalf("status=%s retries=%d", got.Status, got.RetryCount)
	}
}

func TestSweepsAbandonedWorkspaces(t *testing.T) {
	h := newHarness(t, worker.Options{WorkspaceMaxAge: time.Hour})
	stale := filepath.Join(h.cfg.Paths.WorkDir, "job-1-abandoned")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	summary := h.run(t)
	if summary.Swept != 1 {
		t.Fatalf("expected one swept workspace, got %+v", summary)
	}
	assertNoWorkspaces(t, h.cfg)
}

// conflictStore completes nothing: every Complete reports a state conflict.
type conflictStore struct {
	*queue.Store
}

func (c conflictStore) Complete(context.Context, int64, string, queue.Completion) error {
	return services.Wrap(services.ErrState, "queue", "complete", "job is not processing", nil)
}

func TestStateErrorIsReportedAndArtifactsDiscarded(t *testing.T) {
	h := newHarness(t, worker.Options{})
	h.enqueue(t, validMP4)
	w := worker.New(worker.Deps{
		Store:      conflictStore{h.store},
		Pipeline:   video.NewPipeline(h.toolchain, video.Options{}, logging.NewNop()),
		Workspaces: workspace.NewManager(h.cfg.Paths.WorkDir, 0, logging.NewNop()),
		Blobs:      h.blobs,
	}, worker.Options{}, logging.NewNop())

	summary, err := w.RunOnce(context.Background())
	if !worker.IsStateError(err) || summary.StateErrors != 1 {
		t.Fatalf("expected state error, got %v %+v", err, summary)
	}
	processed := filepath.Join(h.cfg.Storage.LocalDir, "processed")
	count := 0
	_ = filepath.WalkDir(processed, func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			count++
		}
		return nil
	})
	if count != 0 {
		t.Fatalf("expected unreferenced artifacts removed, found %d", count)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	opts := worker.OptionsFromConfig(cfg)
	if opts.BatchSize != cfg.Worker.BatchSize || opts.MaxRetries != cfg.Worker.MaxRetries || opts.StaleAfter != cfg.StaleAfter() {
		t.Fatalf("unexpected options %+v", opts)
	}
}
