package pgstore

import (
	"math"
	"slices"
	"testing"
	"time"

	"ticketless/internal/queue"
)

func TestClaimOrderOldestFirstThenID(t *testing.T) {
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	jobs := []*queue.Job{
		{ID: math.MaxInt64, CreatedAt: base},
		{ID: 9, CreatedAt: base.Add(time.Minute)},
		{ID: 1, CreatedAt: base},
		{ID: math.MinInt64 + 1, CreatedAt: base},
	}
	slices.SortFunc(jobs, claimOrder)

	want := []int64{math.MinInt64 + 1, 1, math.MaxInt64, 9}
	for i, job := range jobs {
		if job.ID != want[i] {
			t.Fatalf("position %d: got id %d, want %d", i, job.ID, want[i])
		}
	}
}
