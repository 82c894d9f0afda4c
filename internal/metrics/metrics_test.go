package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"ticketless/internal/services"
)

func TestObservePipelineLabelsByKind(t *testing.T) {
	m := New()
	m.ObservePipeline(PathSync, time.Second, nil)
	m.ObservePipeline(PathQueue, time.Second, services.Invalid("validate", "empty file"))
	m.ObservePipeline(PathQueue, time.Second, services.Wrap(services.ErrStorage, "upload", "put", "", errors.New("boom")))

	if got := testutil.ToFloat64(m.outcomes.WithLabelValues(PathSync, "")); got != 1 {
		t.Fatalf("sync success count = %v", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues(PathQueue, "validation")); got != 1 {
		t.Fatalf("queue validation count = %v", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues(PathQueue, "storage")); got != 1 {
		t.Fatalf("queue storage count = %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStage("slice", time.Second, nil)
	m.ObservePipeline(PathSync, time.Second, nil)
	m.ClaimConflict()
	m.Reclaimed(3)
	m.TrackWorkspaces(func() int64 { return 1 })
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveStage("validate", 10*time.Millisecond, nil)
	m.ClaimConflict()
	m.Reclaimed(2)
	m.TrackWorkspaces(func() int64 { return 4 })
	m.TrackQueue(func() map[string]int { return map[string]int{"pending": 3} })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`ticketless_stage_duration_seconds_count{outcome="ok",stage="validate"} 1`,
		"ticketless_claim_conflicts_total 1",
		"ticketless_stale_jobs_reclaimed_total 2",
		"ticketless_active_workspaces 4",
		`ticketless_queue_jobs{status="pending"} 3`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
