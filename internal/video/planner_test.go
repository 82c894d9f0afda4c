package video

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)

func at(offset float64) *time.Time {
	ts := t0.Add(time.Duration(offset * float64(time.Second)))
	return &ts
}

func stamped(duration float64) Metadata {
	start := t0
	return Metadata{DurationSeconds: duration, VideoTimestamp: &start}
}

func TestPlanScenarios(t *testing.T) {
	tests := []struct {
		name     string
		meta     Metadata
		ticket   *time.Time
		start    float64
		duration float64
		method   SliceMethod
	}{
		{"centered on ticket", stamped(90), at(45), 25, 60, MethodTimestampOnly},
		{"shorter than window", stamped(30), at(45), 0, 30, MethodTimestampOnly},
		{"no timestamp short clip", Metadata{DurationSeconds: 50}, at(45), 0, 50, MethodFixedWindow},
		{"no timestamp long clip", Metadata{DurationSeconds: 300}, at(45), 240, 60, MethodFixedWindow},
		{"ticket far after end", stamped(90), at(500), 30, 60, MethodTimestampOnly},
		{"ticket before start", stamped(90), at(-100), 0, 60, MethodTimestampOnly},
		{"window at exact start", stamped(90), at(20), 0, 60, MethodTimestampOnly},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Plan(tc.meta, tc.ticket, true, DefaultWindow)
			if got.Method != tc.method {
				t.Fatalf("method = %s, want %s", got.Method, tc.method)
			}
			if math.Abs(got.StartSeconds-tc.start) > SliceEpsilon {
				t.Fatalf("start = %v, want %v", got.StartSeconds, tc.start)
			}
			if math.Abs(got.DurationSeconds-tc.duration) > SliceEpsilon {
				t.Fatalf("duration = %v, want %v", got.DurationSeconds, tc.duration)
			}
			if got.OriginalDurationSeconds != tc.meta.DurationSeconds {
				t.Fatalf("original = %v, want %v", got.OriginalDurationSeconds, tc.meta.DurationSeconds)
			}
		})
	}
}

func TestPlanGPSMethod(t *testing.T) {
	meta := stamped(90)
	meta.HasGPS = true
	meta.GPS = &GPSLocation{Latitude: 37.77, Longitude: -122.41}
	got := Plan(meta, at(45), true, DefaultWindow)
	if got.Method != MethodGPSAndTimestamp {
		t.Fatalf("method = %s, want %s", got.Method, MethodGPSAndTimestamp)
	}
}

func TestPlanFullVideoFallback(t *testing.T) {
	metas := []Metadata{stamped(90), stamped(12.3456), {DurationSeconds: 500}}
	for _, meta := range metas {
		for _, ticket := range []*time.Time{nil, at(45)} {
			got := Plan(meta, ticket, false, DefaultWindow)
			if got.Method != MethodFullVideo || got.StartSeconds != 0 {
				t.Fatalf("expected full video from 0, got %+v", got)
			}
			if math.Abs(got.DurationSeconds-meta.DurationSeconds) > SliceEpsilon {
				t.Fatalf("full video duration %v, want %v", got.DurationSeconds, meta.DurationSeconds)
			}
		}
	}

	if got := Plan(stamped(90), nil, true, DefaultWindow); got.Method != MethodFullVideo {
		t.Fatalf("missing ticket should use full video, got %s", got.Method)
	}
}

func TestPlanIsIdempotent(t *testing.T) {
	meta := stamped(123.456)
	meta.HasGPS = true
	first := Plan(meta, at(77.7), true, DefaultWindow)
	second := Plan(meta, at(77.7), true, DefaultWindow)
	if first != second {
		t.Fatalf("plans differ: %+v vs %+v", first, second)
	}
}

func TestPlanBoundsHold(t *testing.T) {
	windows := []Window{DefaultWindow, {BeforeSeconds: 5, AfterSeconds: 5}, {BeforeSeconds: 0, AfterSeconds: 90}}
	durations := []float64{0.5, 1, 9.999, 30, 59.99, 60, 60.001, 90, 1234.567}
	offsets := []float64{-1e6, -61, -0.001, 0, 0.5, 19.999, 45, 89.999, 1e6}
	for _, window := range windows {
		for _, duration := range durations {
			for _, offset := range offsets {
				for _, withTimestamp := range []bool{true, false} {
					meta := Metadata{DurationSeconds: duration}
					if withTimestamp {
						meta = stamped(duration)
					}
					got := Plan(meta, at(offset), true, window)
					if got.StartSeconds < 0 {
						t.Fatalf("negative start %+v (window=%+v offset=%v)", got, window, offset)
					}
					if got.EndSeconds() > duration+SliceEpsilon {
						t.Fatalf("slice past end %+v (window=%+v offset=%v)", got, window, offset)
					}
					if got.DurationSeconds <= 0 {
						t.Fatalf("empty slice %+v (window=%+v offset=%v)", got, window, offset)
					}
				}
			}
		}
	}
}

func TestPlanDegenerateInputs(t *testing.T) {
	got := Plan(Metadata{DurationSeconds: math.NaN()}, at(1), true, DefaultWindow)
	if got.Method != MethodFullVideo || got.DurationSeconds != 0 {
		t.Fatalf("NaN duration should collapse to empty full video, got %+v", got)
	}
	got = Plan(stamped(90), at(45), true, Window{})
	if got.Method != MethodFullVideo {
		t.Fatalf("zero window should fall back to full video, got %+v", got)
	}
}
