package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ticketless/internal/api"
	"ticketless/internal/queue"
	"ticketless/internal/testsupport"
	"ticketless/internal/upload"
	"ticketless/internal/worker"
)

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func TestAPIUploadProcessesVideo(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartBody(t, map[string]string{
		"contest_id":       "contest-1",
		"ticket_timestamp": "2026-05-01T08:31:00Z",
		"source":           "dashcam",
		"description":      "blocked lane",
	}, "clip.mp4", testsupport.MP4Bytes(t))
	req := env.authed(httptest.NewRequest(http.MethodPost, "/api/videos", body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Request-ID", "req-123")

	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") != "req-123" {
		t.Fatalf("request id not echoed: %q", rec.Header().Get("X-Request-ID"))
	}
	result := decode[upload.Result](t, rec)
	if result.RequestID != "req-123" {
		t.Fatalf("expected caller request id to be reused, got %q", result.RequestID)
	}
	if !strings.HasPrefix(result.ProcessedVideoURL, "http://blobs.test/processed/user-1/req-123/") {
		t.Fatalf("unexpected video url %q", result.ProcessedVideoURL)
	}
	if result.Slice.Method == "" || result.Description != "blocked lane" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestAPIUploadRejectsGarbageAsFileProblem(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartBody(t, map[string]string{"contest_id": "contest-1"}, "clip.mp4",
		[]byte(strings.Repeat("not a video ", 100)))
	req := env.authed(httptest.NewRequest(http.MethodPost, "/api/videos", body))
	req.Header.Set("Content-Type", contentType)

	rec := env.do(t, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[api.ErrorResponse](t, rec)
	if resp.Category != "file" || resp.Kind != "validation" || resp.Error == "" {
		t.Fatalf("unexpected error body %+v", resp)
	}
	if probes, _, _ := env.toolchain.Calls(); probes != 0 {
		t.Fatalf("garbage must be rejected before probing, got %d probes", probes)
	}
}

func TestAPIUploadServiceFailureIs503(t *testing.T) {
	env := newTestEnv(t)
	env.toolchain.SliceErr = fmt.Errorf("encoder crashed")
	body, contentType := multipartBody(t, map[string]string{"contest_id": "contest-1"}, "clip.mp4", testsupport.MP4Bytes(t))
	req := env.authed(httptest.NewRequest(http.MethodPost, "/api/videos", body))
	req.Header.Set("Content-Type", contentType)

	rec := env.do(t, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After on service failure")
	}
	resp := decode[api.ErrorResponse](t, rec)
	if resp.Category != "service" || strings.Contains(resp.Error, "encoder crashed") {
		t.Fatalf("unexpected error body %+v", resp)
	}
}

func TestAPIUploadFormErrors(t *testing.T) {
	env := newTestEnv(t)
	tests := map[string]struct {
		fields  map[string]string
		payload []byte
	}{
		"missing video part": {fields: map[string]string{"contest_id": "c"}},
		"bad timestamp":      {fields: map[string]string{"contest_id": "c", "ticket_timestamp": "yesterday"}, payload: []byte("x")},
		"bad auto_slice":     {fields: map[string]string{"contest_id": "c", "auto_slice": "maybe"}, payload: []byte("x")},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.fields, "clip.mp4", tt.payload)
			req := env.authed(httptest.NewRequest(http.MethodPost, "/api/videos", body))
			req.Header.Set("Content-Type", contentType)
			if rec := env.do(t, req); rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}

	req := env.authed(httptest.NewRequest(http.MethodPost, "/api/videos", strings.NewReader("{}")))
	req.Header.Set("Content-Type", "application/json")
	if rec := env.do(t, req); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for non-multipart body, got %d", rec.Code)
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	env := newTestEnv(t)
	for _, header := range []string{"", "Bearer wrong", "Basic test-token"} {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if rec := env.do(t, req); rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestAPIEnqueueAndInspectJobs(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartBody(t, map[string]string{
		"contest_id":   "contest-7",
		"auto_slice":   "false",
		"quality_mode": "max-compat",
	}, "clip.mov", testsupport.MP4Bytes(t))
	req := env.authed(httptest.NewRequest(http.MethodPost, "/api/jobs", body))
	req.Header.Set("Content-Type", contentType)

	rec := env.do(t, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[api.JobResponse](t, rec).Job
	if created.Status != "pending" || created.AutoSlice || created.Quality != "max-compat" || created.ContestID != "contest-7" {
		t.Fatalf("unexpected job %+v", created)
	}

	rec = env.do(t, env.authed(httptest.NewRequest(http.MethodGet, "/api/jobs?status=pending&user_id=user-1", nil)))
	list := decode[api.JobListResponse](t, rec)
	if rec.Code != http.StatusOK || len(list.Jobs) != 1 || list.Jobs[0].ID != created.ID {
		t.Fatalf("unexpected list %d %+v", rec.Code, list)
	}

	rec = env.do(t, env.authed(httptest.NewRequest(http.MethodGet, "/api/jobs?status=completed", nil)))
	if list := decode[api.JobListResponse](t, rec); len(list.Jobs) != 0 || list.Jobs == nil {
		t.Fatalf("expected empty non-nil list, got %+v", list)
	}

	rec = env.do(t, env.authed(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/jobs/%d", created.ID), nil)))
	if rec.Code != http.StatusOK || decode[api.JobResponse](t, rec).Job.ID != created.ID {
		t.Fatalf("unexpected describe %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAPIJobLookupErrors(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]int{
		"/api/jobs/999":          http.StatusNotFound,
		"/api/jobs/abc":          http.StatusBadRequest,
		"/api/jobs?status=stuck": http.StatusBadRequest,
		"/api/jobs?limit=-2":     http.StatusBadRequest,
	}
	for path, want := range cases {
		if rec := env.do(t, env.authed(httptest.NewRequest(http.MethodGet, path, nil))); rec.Code != want {
			t.Fatalf("%s: expected %d, got %d", path, want, rec.Code)
		}
	}
}

func TestAPIWorkerRunRequiresSecret(t *testing.T) {
	env := newTestEnv(t)
	job := env.storeJob(t)

	req := httptest.NewRequest(http.MethodPost, "/api/worker/run", nil)
	req.Header.Set("Authorization", "Bearer "+env.cfg.API.Token)
	if rec := env.do(t, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("api token must not open the worker trigger, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/worker/run", nil)
	req.Header.Set("Authorization", "Bearer "+env.cfg.API.WorkerSecret)
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	summary := decode[worker.Summary](t, rec)
	if summary.Claimed != 1 || summary.Completed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	got, _ := env.store.GetByID(req.Context(), job.ID)
	if got.Status != queue.StatusCompleted {
		t.Fatalf("expected job completed, got %s", got.Status)
	}
}

func TestAPIWorkerRunDisabledWithoutSecret(t *testing.T) {
	env := newTestEnv(t)
	handler := env.daemon.api.routes(env.cfg.API.Token, "")
	req := httptest.NewRequest(http.MethodPost, "/api/worker/run", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestAPIStatusAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.storeJob(t)

	rec := env.do(t, env.authed(httptest.NewRequest(http.MethodGet, "/api/status", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	status := decode[api.ServiceStatus](t, rec)
	if status.Queue["pending"] != 1 || status.Checks != nil {
		t.Fatalf("unexpected status %+v", status)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ticketless_active_workspaces") {
		t.Fatalf("unexpected metrics response %d", rec.Code)
	}
}

func TestAPIRejectsWrongMethod(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, env.authed(httptest.NewRequest(http.MethodDelete, "/api/jobs", nil))); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
