package video_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ticketless/internal/media/ffmpeg"
	"ticketless/internal/media/ffprobe"
	"ticketless/internal/services"
	"ticketless/internal/testsupport"
	"ticketless/internal/video"
)

func TestValidateAcceptsPlayableVideo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	testsupport.WriteMP4Fixture(t, path, "isom")
	tc := testsupport.NewFakeToolchain(90, nil)

	verdict, err := video.NewValidator(tc).Validate(context.Background(), path)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !verdict.Valid || verdict.Container != video.ContainerMP4 || verdict.SizeBytes == 0 {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
	if verdict.Err() != nil {
		t.Fatalf("valid verdict should have no error, got %v", verdict.Err())
	}
}

func TestValidateRejectsWithoutProbing(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.mp4")
	testsupport.WriteGarbage(t, garbage)
	empty := filepath.Join(dir, "empty.mp4")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	text := filepath.Join(dir, "notes.txt")
	testsupport.WriteMP4Fixture(t, text, "isom")
	mismatch := filepath.Join(dir, "clip.mkv")
	testsupport.WriteMP4Fixture(t, mismatch, "isom")

	cases := map[string]string{
		"garbage":   garbage,
		"empty":     empty,
		"extension": text,
		"mismatch":  mismatch,
		"missing":   filepath.Join(dir, "nope.mp4"),
		"directory": dir,
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			tc := testsupport.NewFakeToolchain(90, nil)
			verdict, err := video.NewValidator(tc).Validate(context.Background(), path)
			if err != nil {
				t.Fatalf("Validate returned error: %v", err)
			}
			if verdict.Valid || verdict.Reason == "" {
				t.Fatalf("expected rejection with reason, got %+v", verdict)
			}
			if !errors.Is(verdict.Err(), services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", verdict.Err())
			}
			if probes, _, _ := tc.Calls(); probes != 0 {
				t.Fatalf("expected no toolchain invocation, got %d probes", probes)
			}
		})
	}
}

func TestValidateRejectsProbeFindings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mov")
	testsupport.WriteMP4Fixture(t, path, "qt  ")

	audioOnly := testsupport.ProbeResult(30, nil)
	audioOnly.Streams = audioOnly.Streams[1:]
	zero := testsupport.ProbeResult(0, nil)
	nearZero := testsupport.ProbeResult(0.0004, nil)
	// 29.97 fps: anything under half a frame interval holds no frame.
	subFrame := testsupport.ProbeResult(0.01, nil)

	for name, result := range map[string]ffprobe.Result{
		"audio only":         audioOnly,
		"zero duration":      zero,
		"near-zero duration": nearZero,
		"shorter than frame": subFrame,
	} {
		t.Run(name, func(t *testing.T) {
			tc := &testsupport.FakeToolchain{Result: result}
			verdict, err := video.NewValidator(tc).Validate(context.Background(), path)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if verdict.Valid {
				t.Fatalf("expected rejection, got %+v", verdict)
			}
			if !errors.Is(verdict.Err(), services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", verdict.Err())
			}
		})
	}
}

func TestValidateAcceptsSingleFrameClip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	testsupport.WriteMP4Fixture(t, path, "isom")
	tc := &testsupport.FakeToolchain{Result: testsupport.ProbeResult(1.0/29.97, nil)}
	verdict, err := video.NewValidator(tc).Validate(context.Background(), path)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !verdict.Valid {
		t.Fatalf("expected one-frame clip to pass, got %q", verdict.Reason)
	}
}

func TestValidateSeparatesCorruptFromBrokenToolchain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	testsupport.WriteMP4Fixture(t, path, "isom")

	corrupt := testsupport.NewFakeToolchain(90, nil)
	corrupt.ProbeErr = &ffmpeg.ToolError{Tool: "ffprobe", ExitCode: 1, Output: "moov atom not found"}
	verdict, err := video.NewValidator(corrupt).Validate(context.Background(), path)
	if err != nil {
		t.Fatalf("corrupt file should be a verdict, got error %v", err)
	}
	if verdict.Valid {
		t.Fatal("expected corrupt file to be rejected")
	}

	missing := testsupport.NewFakeToolchain(90, nil)
	missing.ProbeErr = &ffmpeg.ToolError{Tool: "ffprobe", Missing: true}
	_, err = video.NewValidator(missing).Validate(context.Background(), path)
	if !errors.Is(err, services.ErrToolchain) {
		t.Fatalf("expected toolchain error, got %v", err)
	}
}
