package upload_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ticketless/internal/config"
	"ticketless/internal/logging"
	"ticketless/internal/services"
	"ticketless/internal/storage"
	"ticketless/internal/testsupport"
	"ticketless/internal/upload"
	"ticketless/internal/video"
	"ticketless/internal/workspace"
)

type fixture struct {
	cfg       *config.Config
	toolchain *testsupport.FakeToolchain
	store     storage.Store
	handler   *upload.Handler
}

func newFixture(t *testing.T, maxBytes int64, wrap func(storage.Store) storage.Store) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	tc := testsupport.NewFakeToolchain(90, map[string]string{
		"creation_time": "2026-05-01T08:30:00.000000Z",
		"location":      "+37.7749-122.4194/",
	})
	local, err := storage.NewLocal(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	var store storage.Store = local
	if wrap != nil {
		store = wrap(local)
	}
	pipeline := video.NewPipeline(tc, video.Options{}, logging.NewNop())
	workspaces := workspace.NewManager(cfg.Paths.WorkDir, 0, logging.NewNop())
	return &fixture{
		cfg:       cfg,
		toolchain: tc,
		store:     store,
		handler:   upload.NewHandler(pipeline, workspaces, store, maxBytes, nil, logging.NewNop()),
	}
}

func (f *fixture) request(t *testing.T, body io.Reader) upload.Request {
	ticket := time.Date(2026, 5, 1, 8, 30, 45, 0, time.UTC)
	return upload.Request{
		UserID:          "user-1",
		ContestID:       "contest-1",
		TicketTimestamp: &ticket,
		Description:     " rear camera ",
		AutoSlice:       true,
		Source:          "dashcam",
		Filename:        "evidence.MP4",
		Body:            body,
	}
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

func countBlobs(t *testing.T, cfg *config.Config) int {
	t.Helper()
	count := 0
	_ = filepath.WalkDir(cfg.Storage.LocalDir, func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			count++
		}
		return nil
	})
	return count
}

func TestHandleProcessesUpload(t *testing.T) {
	f := newFixture(t, 0, nil)
	result, err := f.handler.Handle(context.Background(), f.request(t, bytes.NewReader(testsupport.MP4Bytes(t))))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if result.Slice.Method != video.MethodGPSAndTimestamp || result.Slice.StartSeconds != 25 || result.Slice.DurationSeconds != 60 {
		t.Fatalf("unexpected slice: %+v", result.Slice)
	}
	if !result.HasGPS || result.GPS == nil {
		t.Fatalf("expected gps in result: %+v", result)
	}
	if result.Source != video.SourceDashcam || result.Description != "rear camera" {
		t.Fatalf("unexpected request echo: source=%q description=%q", result.Source, result.Description)
	}
	wantPrefix := "http://blobs.test/processed/user-1/" + result.RequestID + "/"
	if !strings.HasPrefix(result.ProcessedVideoURL, wantPrefix) || !strings.HasPrefix(result.ThumbnailURL, wantPrefix) {
		t.Fatalf("unexpected urls %q %q", result.ProcessedVideoURL, result.ThumbnailURL)
	}
	if countBlobs(t, f.cfg) != 2 {
		t.Fatalf("expected clip and thumbnail in storage")
	}
	if _, slices, _ := f.toolchain.Calls(); slices != 1 {
		t.Fatalf("expected one slice call, got %d", slices)
	}
	if src := f.toolchain.SliceCalls[0].Src; filepath.Ext(src) != ".mp4" {
		t.Fatalf("expected lower-cased extension on saved source, got %s", src)
	}
	assertNoWorkspaces(t, f.cfg)
}

func TestHandleRejectsGarbage(t *testing.T) {
	f := newFixture(t, 0, nil)
	_, err := f.handler.Handle(context.Background(), f.request(t, strings.NewReader(strings.Repeat("not a video ", 64))))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if msg := services.UserMessage(err); !strings.Contains(msg, "not a recognized video container") {
		t.Fatalf("unexpected user message %q", msg)
	}
	if probes, _, _ := f.toolchain.Calls(); probes != 0 {
		t.Fatalf("garbage must not reach the toolchain, got %d probes", probes)
	}
	if countBlobs(t, f.cfg) != 0 {
		t.Fatal("no artifacts may be stored for a rejected upload")
	}
	assertNoWorkspaces(t, f.cfg)
}

func TestHandleRejectsOversizedPayload(t *testing.T) {
	f := newFixture(t, 1<<20, nil)
	payload := append(testsupport.MP4Bytes(t), bytes.Repeat([]byte{0}, 2<<20)...)
	_, err := f.handler.Handle(context.Background(), f.request(t, bytes.NewReader(payload)))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(services.UserMessage(err), "queued upload") {
		t.Fatalf("expected queued-path advice, got %q", services.UserMessage(err))
	}
	assertNoWorkspaces(t, f.cfg)
}

func TestHandleRejectsBadRequests(t *testing.T) {
	f := newFixture(t, 0, nil)
	cases := map[string]func(*upload.Request){
		"missing user":    func(r *upload.Request) { r.UserID = "" },
		"missing contest": func(r *upload.Request) { r.ContestID = " " },
		"missing body":    func(r *upload.Request) { r.Body = nil },
		"bad source":      func(r *upload.Request) { r.Source = "drone" },
		"bad quality":     func(r *upload.Request) { r.Quality = "ultra" },
		"bad extension":   func(r *upload.Request) { r.Filename = "notes.txt" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := f.request(t, strings.NewReader("x"))
			mutate(&req)
			if _, err := f.handler.Handle(context.Background(), req); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	assertNoWorkspaces(t, f.cfg)
}

func TestHandleSliceFailureSurfacesAndCleansUp(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.toolchain.SliceErr = errors.New("encoder crashed")
	_, err := f.handler.Handle(context.Background(), f.request(t, bytes.NewReader(testsupport.MP4Bytes(t))))
	if err == nil || errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected service-side failure, got %v", err)
	}
	if strings.Contains(services.UserMessage(err), "encoder crashed") {
		t.Fatal("user message must not leak toolchain output")
	}
	assertNoWorkspaces(t, f.cfg)
}

type thumbFailStore struct {
	storage.Store
	deleted []string
}

func (s *thumbFailStore) Put(ctx context.Context, key, src, contentType string) (string, error) {
	if strings.Contains(key, "thumbnail") {
		return "", services.Wrap(services.ErrStorage, "storage", "put", key, errors.New("bucket unavailable"))
	}
	return s.Store.Put(ctx, key, src, contentType)
}

func (s *thumbFailStore) Delete(ctx context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return s.Store.Delete(ctx, key)
}

func TestHandleRollsBackPartialUpload(t *testing.T) {
	var wrapped *thumbFailStore
	f := newFixture(t, 0, func(s storage.Store) storage.Store {
		wrapped = &thumbFailStore{Store: s}
		return wrapped
	})
	_, err := f.handler.Handle(context.Background(), f.request(t, bytes.NewReader(testsupport.MP4Bytes(t))))
	if !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if len(wrapped.deleted) != 1 {
		t.Fatalf("expected clip rollback, got %v", wrapped.deleted)
	}
	if countBlobs(t, f.cfg) != 0 {
		t.Fatal("partial artifacts left in storage")
	}
	assertNoWorkspaces(t, f.cfg)
}

// cancellingReader cancels the request context partway through the body.
type cancellingReader struct {
	data   []byte
	cancel context.CancelFunc
	sent   bool
}

func (r *cancellingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, r.data), nil
	}
	r.cancel()
	return 0, context.Canceled
}

func TestHandleCancelledRequestCleansUp(t *testing.T) {
	f := newFixture(t, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	body := &cancellingReader{data: testsupport.MP4Bytes(t), cancel: cancel}
	_, err := f.handler.Handle(ctx, f.request(t, body))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if probes, _, _ := f.toolchain.Calls(); probes != 0 {
		t.Fatal("cancelled upload must not reach the toolchain")
	}
	assertNoWorkspaces(t, f.cfg)
}

func TestExtension(t *testing.T) {
	cases := map[string]string{"a.MOV": ".mov", "clip.webm": ".webm", "noext": ""}
	for name, want := range cases {
		got, err := upload.Extension(name)
		if err != nil || got != want {
			t.Errorf("Extension(%q) = %q, %v; want %q", name, got, err, want)
		}
	}
	if _, err := upload.Extension("doc.pdf"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for pdf, got %v", err)
	}
}
