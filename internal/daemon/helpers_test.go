package daemon

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"ticketless/internal/api"
	"ticketless/internal/config"
	"ticketless/internal/logging"
	"ticketless/internal/metrics"
	"ticketless/internal/queue"
	"ticketless/internal/storage"
	"ticketless/internal/testsupport"
	"ticketless/internal/upload"
	"ticketless/internal/video"
	"ticketless/internal/worker"
	"ticketless/internal/workspace"
)

type testEnv struct {
	cfg       *config.Config
	store     *queue.Store
	blobs     *storage.Local
	toolchain *testsupport.FakeToolchain
	daemon    *Daemon
	handler   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	blobs, err := storage.NewLocal(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	tc := testsupport.NewFakeToolchain(90, map[string]string{"creation_time": "2026-05-01T08:30:00.000000Z"})
	m := metrics.New()
	pipeline := video.NewPipeline(tc, video.Options{Observer: m}, logging.NewNop())
	workspaces := workspace.NewManager(cfg.Paths.WorkDir, 0, logging.NewNop())
	m.TrackWorkspaces(workspaces.Active)

	d, err := New(cfg, Deps{
		Store: store,
		Worker: worker.New(worker.Deps{
			Store:      store,
			Pipeline:   pipeline,
			Workspaces: workspaces,
			Blobs:      blobs,
			Metrics:    m,
		}, worker.OptionsFromConfig(cfg), logging.NewNop()),
		Uploads:    upload.NewHandler(pipeline, workspaces, blobs, cfg.MaxSyncUploadBytes(), m, logging.NewNop()),
		Enqueuer:   api.NewEnqueuer(store, blobs, workspaces, nil, cfg.MaxQueuedUploadBytes(), logging.NewNop()),
		Workspaces: workspaces,
		Metrics:    m,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return &testEnv{
		cfg:       cfg,
		store:     store,
		blobs:     blobs,
		toolchain: tc,
		daemon:    d,
		handler:   d.api.handler,
	}
}

// storeJob puts a valid original in storage and queues a job for it.
func (e *testEnv) storeJob(t *testing.T) *queue.Job {
	t.Helper()
	src := filepath.Join(t.TempDir(), "upload.mp4")
	testsupport.WriteMP4Fixture(t, src, "isom")
	key := storage.OriginalKey("user-1", "contest-1", ".mp4")
	if _, err := e.blobs.Put(context.Background(), key, src, "video/mp4"); err != nil {
		t.Fatalf("store original: %v", err)
	}
	return testsupport.NewJob(t, e.store, key)
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+e.cfg.API.Token)
	req.Header.Set(userHeader, "user-1")
	return req
}

// multipartBody builds a form with fields written before the video part.
func multipartBody(t *testing.T, fields map[string]string, filename string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, key := range []string{"contest_id", "ticket_timestamp", "description", "auto_slice", "source", "quality_mode"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		if err := mw.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if payload != nil {
		part, err := mw.CreateFormFile("video", filename)
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := part.Write(payload); err != nil {
			t.Fatalf("write payload: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}
