package ffprobe

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"ticketless/internal/media/ffmpeg"
)

const samplePayload = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080,
     "r_frame_rate": "30/1", "avg_frame_rate": "30000/1001",
     "tags": {"creation_time": "2025-03-01T08:15:00.000000Z"}},
    {"index": 1, "codec_name": "aac", "codec_type": "audio"},
    {"index": 2, "codec_name": "mjpeg", "codec_type": "video", "disposition": {"attached_pic": 1}}
  ],
  "format": {"duration": "90.000000", "size": "1000", "bit_rate": "32000", "format_name": "mov,mp4,m4a,3gp,3g2,mj2",
    "tags": {"com.apple.quicktime.location.ISO6709": "+37.7749-122.4194+010.000/"}}
}`

func TestParseAndHelpers(t *testing.T) {
	result, err := Parse([]byte(samplePayload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected cover art to be ignored, got %d video streams", result.VideoStreamCount())
	}
	if result.AudioStreamCount() != 1 {
		t.Fatalf("expected 1 audio stream, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 90 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1000 || result.BitRate() != 32000 {
		t.Fatalf("unexpected size/bitrate: %d %d", result.SizeBytes(), result.BitRate())
	}
	video, ok := result.PrimaryVideo()
	if !ok || video.CodecName != "h264" {
		t.Fatalf("unexpected primary video %+v", video)
	}
	if rate := video.FrameRate(); math.Abs(rate-29.97) > 0.01 {
		t.Fatalf("unexpected frame rate %v", rate)
	}
	if v, ok := result.Tag("CREATION_TIME"); !ok || v != "2025-03-01T08:15:00.000000Z" {
		t.Fatalf("expected stream creation tag, got %q", v)
	}
	if _, ok := result.Tag("location"); ok {
		t.Fatal("unexpected location tag")
	}
	if len(result.RawJSON()) == 0 {
		t.Fatal("expected raw payload to be retained")
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Format: Format{
			Duration: "bad",
			Size:     "-1",
			BitRate:  "nope",
		},
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
	if result.BitRate() != 0 {
		t.Fatalf("expected bitrate 0, got %d", result.BitRate())
	}
	if (Stream{RFrameRate: "0/0"}).FrameRate() != 0 {
		t.Fatal("expected zero frame rate for 0/0")
	}
}

func TestInspectSurfacesToolError(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "ffprobe")
	script := "#!/bin/sh\necho 'Invalid data found when processing input' >&2\nexit 1\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	_, err := Inspect(context.Background(), bin, "/tmp/whatever.mp4")
	var toolErr *ffmpeg.ToolError
	if !errors.As(err, &toolErr) || !toolErr.Exited() {
		t.Fatalf("expected exited tool error, got %v", err)
	}
}

func TestInspectRejectsEmptyPath(t *testing.T) {
	if _, err := Inspect(context.Background(), "ffprobe", " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
