package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ticketless/internal/api"
	"ticketless/internal/queue"
	"ticketless/internal/queueaccess"
	"ticketless/internal/worker"
)

func TestConfigValidateReportsPath(t *testing.T) {
	env := setupCLITestEnv(t)
	out := env.mustRun(t, "config", "validate")
	if !strings.Contains(out, env.configPath) || !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	env := setupCLITestEnv(t)
	out := env.mustRun(t, "config", "show")
	if strings.Contains(out, "test-token") || strings.Contains(out, "test-worker-secret") {
		t.Fatalf("secrets leaked:\n%s", out)
	}
	if !strings.Contains(out, redactedValueForTest) {
		t.Fatalf("expected masked credentials:\n%s", out)
	}
	if !strings.Contains(out, env.cfg.Paths.WorkDir) {
		t.Fatalf("expected work dir in output:\n%s", out)
	}
}

const redactedValueForTest = "********"

func TestConfigInitRefusesOverwrite(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(env.baseDir, "generated", "config.toml")

	out := env.mustRun(t, "config", "init", "--path", target)
	if !strings.Contains(out, target) {
		t.Fatalf("unexpected output: %s", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample not written: %v", err)
	}
	if _, err := env.run(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init to fail without --overwrite")
	}
	env.mustRun(t, "config", "init", "--path", target, "--overwrite")
}

func TestInvalidConfigFailsBeforeCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.WriteFile(env.configPath, []byte("[worker]\nschedule = \"not a schedule\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := env.run(t, "queue", "stats"); err == nil {
		t.Fatal("expected config error")
	}
}

func TestQueueAddListShowStats(t *testing.T) {
	env := setupCLITestEnv(t)
	clip := env.videoFixture(t, "evidence.mp4")

	out := env.mustRun(t, "queue", "add", clip,
		"--user", "user-7", "--contest", "contest-9",
		"--ticket-time", "2024-05-01T10:01:00Z", "--description", "red light", "--json")
	var created api.JobView
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode add output: %v\n%s", err, out)
	}
	if created.ID == 0 || created.Status != string(queue.StatusPending) || created.UserID != "user-7" {
		t.Fatalf("unexpected job: %+v", created)
	}
	if !strings.HasSuffix(created.OriginalVideoRef, ".mp4") {
		t.Fatalf("original ref = %q", created.OriginalVideoRef)
	}

	list := env.mustRun(t, "queue", "list", "--status", "pending")
	if !strings.Contains(list, "user-7") || !strings.Contains(list, "contest-9") {
		t.Fatalf("list missing job:\n%s", list)
	}

	show := env.mustRun(t, "queue", "show", "1")
	if !strings.Contains(show, "red light") || !strings.Contains(show, created.OriginalVideoRef) {
		t.Fatalf("show missing fields:\n%s", show)
	}

	statsOut := env.mustRun(t, "queue", "stats", "--json")
	var stats map[string]int
	if err := json.Unmarshal([]byte(statsOut), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["pending"] != 1 || stats["failed"] != 0 {
		t.Fatalf("stats = %v", stats)
	}
}

func TestQueueAddRejectsNonVideo(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.baseDir, "notes.mp4")
	if err := os.WriteFile(path, []byte("definitely not a video container"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := env.run(t, "queue", "add", path, "--user", "u", "--contest", "c")
	if err == nil || !strings.Contains(err.Error(), "not a recognized video container") {
		t.Fatalf("expected container rejection, got %v", err)
	}
	env.withStore(t, func(store queueaccess.Access) {
		jobs, err := store.List(t.Context(), queue.ListFilter{})
		if err != nil {
			t.Fatal(err)
		}
		if len(jobs) != 0 {
			t.Fatalf("rejected upload was enqueued: %d jobs", len(jobs))
		}
	})
}

func TestQueueListRejectsUnknownStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := env.run(t, "queue", "list", "--status", "exploded"); err == nil {
		t.Fatal("expected unknown status error")
	}
}

func TestQueueShowMissingJob(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := env.run(t, "queue", "show", "42")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.run(t, "queue", "show", "abc"); err == nil {
		t.Fatal("expected invalid id error")
	}
}

func TestQueueRetryAndClearCompleted(t *testing.T) {
	env := setupCLITestEnv(t)
	failed := env.insertJob(t, "originals/failed.mp4")
	done := env.insertJob(t, "originals/done.mp4")

	env.withStore(t, func(store queueaccess.Access) {
		ctx := t.Context()
		if _, err := store.Claim(ctx, failed.ID, "w", 3); err != nil {
			t.Fatal(err)
		}
		if _, err := store.RecordFailure(ctx, failed.ID, "w", queue.Failure{Message: "bad", Kind: "validation", Terminal: true}, 3); err != nil {
			t.Fatal(err)
		}
		if _, err := store.Claim(ctx, done.ID, "w", 3); err != nil {
			t.Fatal(err)
		}
		if err := store.Complete(ctx, done.ID, "w", queue.Completion{ProcessedVideoRef: "p", ThumbnailRef: "t"}); err != nil {
			t.Fatal(err)
		}
	})

	out := env.mustRun(t, "queue", "retry")
	if !strings.Contains(out, "Reset 1 failed job") {
		t.Fatalf("retry output: %s", out)
	}
	out = env.mustRun(t, "queue", "retry")
	if !strings.Contains(out, "No failed jobs") {
		t.Fatalf("second retry output: %s", out)
	}
	out = env.mustRun(t, "queue", "clear-completed")
	if !strings.Contains(out, "Cleared 1 completed") {
		t.Fatalf("clear output: %s", out)
	}

	env.withStore(t, func(store queueaccess.Access) {
		stats, err := store.Stats(t.Context())
		if err != nil {
			t.Fatal(err)
		}
		if stats[queue.StatusPending] != 1 || stats[queue.StatusCompleted] != 0 {
			t.Fatalf("stats after maintenance = %v", stats)
		}
	})
}

func TestWorkerRunOnEmptyQueue(t *testing.T) {
	env := setupCLITestEnv(t)
	out := env.mustRun(t, "worker", "run", "--json")
	var summary worker.Summary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, out)
	}
	if summary.WorkerID == "" || summary.Claimed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestWorkerRunRemoteWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := env.run(t, "worker", "run", "--remote")
	if err == nil || !strings.Contains(err.Error(), "without --remote") {
		t.Fatalf("expected unavailable hint, got %v", err)
	}
}

func TestStatusFallsBackToLocalInspection(t *testing.T) {
	env := setupCLITestEnv(t)
	env.insertJob(t, "originals/a.mp4")

	out := env.mustRun(t, "status", "--json")
	var status api.ServiceStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if status.Running {
		t.Fatal("daemon reported running")
	}
	if status.Queue["pending"] != 1 {
		t.Fatalf("queue = %v", status.Queue)
	}
	if len(status.Dependencies) == 0 {
		t.Fatal("expected dependency report")
	}

	text := env.mustRun(t, "status")
	for _, want := range []string{"== Daemon ==", "not running", "Pending:", "== Dependencies =="} {
		if !strings.Contains(text, want) {
			t.Fatalf("status output missing %q:\n%s", want, text)
		}
	}
}

func TestVideoProbeReportsMetadata(t *testing.T) {
	env := setupCLITestEnv(t)
	clip := env.videoFixture(t, "probe.mp4")

	out := env.mustRun(t, "video", "probe", clip, "--json")
	var report probeReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode probe: %v\n%s", err, out)
	}
	if !report.Valid || report.Metadata == nil {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Metadata.DurationSeconds != 120 || report.Metadata.Codec != "h264" || report.Metadata.VideoTimestamp == nil {
		t.Fatalf("unexpected metadata: %+v", report.Metadata)
	}
}

func TestVideoProbeRejectsMismatchedExtension(t *testing.T) {
	env := setupCLITestEnv(t)
	clip := env.videoFixture(t, "probe.webm")
	_, err := env.run(t, "video", "probe", clip)
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("expected rejection, got %v", err)
	}
	if probes, _, _ := env.toolchain.Calls(); probes != 0 {
		t.Fatalf("probe ran %d times for a mismatched file", probes)
	}
}

func TestVideoPlanAroundTicket(t *testing.T) {
	env := setupCLITestEnv(t)
	clip := env.videoFixture(t, "plan.mp4")

	out := env.mustRun(t, "video", "plan", clip, "--ticket-time", "2024-05-01T10:01:00Z", "--json")
	var report planReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode plan: %v\n%s", err, out)
	}
	if report.Slice.Method != "timestamp-only" || report.Slice.StartSeconds != 40 || report.Slice.DurationSeconds != 60 {
		t.Fatalf("unexpected slice: %+v", report.Slice)
	}

	out = env.mustRun(t, "video", "plan", clip, "--ticket-time", "2024-05-01T10:01:00Z", "--before", "10", "--after", "5", "--json")
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatal(err)
	}
	if report.Slice.StartSeconds != 50 || report.Slice.DurationSeconds != 15 {
		t.Fatalf("override ignored: %+v", report.Slice)
	}

	out = env.mustRun(t, "video", "plan", clip, "--no-auto-slice", "--json")
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatal(err)
	}
	if report.Slice.Method != "full-video" || report.Slice.DurationSeconds != 120 {
		t.Fatalf("expected full video: %+v", report.Slice)
	}
}

func TestVideoProcessExportsArtifacts(t *testing.T) {
	env := setupCLITestEnv(t)
	clip := env.videoFixture(t, "process.mp4")
	outDir := filepath.Join(env.baseDir, "exported")

	out := env.mustRun(t, "video", "process", clip, "--out", outDir, "--ticket-time", "2024-05-01T10:01:00Z", "--json")
	var report processReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode process: %v\n%s", err, out)
	}
	for _, path := range []string{report.VideoPath, report.ThumbnailPath} {
		if filepath.Dir(path) != outDir {
			t.Fatalf("artifact %s outside %s", path, outDir)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("artifact missing: %v", err)
		}
	}
	if len(env.toolchain.SliceCalls) != 1 || env.toolchain.SliceCalls[0].Start != 40 {
		t.Fatalf("slice calls = %+v", env.toolchain.SliceCalls)
	}

	entries, err := os.ReadDir(env.cfg.Paths.WorkDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("workspace left behind: %d entries", len(entries))
	}
}

func TestWorkspaceCleanRemovesStaleDirectories(t *testing.T) {
	env := setupCLITestEnv(t)
	stale := filepath.Join(env.cfg.Paths.WorkDir, "upload-stale")
	fresh := filepath.Join(env.cfg.Paths.WorkDir, "upload-fresh")
	for _, dir := range []string{stale, fresh} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	list := env.mustRun(t, "workspace", "list")
	if !strings.Contains(list, "upload-stale") || !strings.Contains(list, "upload-fresh") {
		t.Fatalf("list output:\n%s", list)
	}

	out := env.mustRun(t, "workspace", "clean", "--max-age", "1h")
	if !strings.Contains(out, "Removed 1 workspace") {
		t.Fatalf("clean output: %s", out)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale workspace still present: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh workspace removed: %v", err)
	}
}
