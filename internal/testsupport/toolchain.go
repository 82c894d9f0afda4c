package testsupport

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/disintegration/imaging"

	"ticketless/internal/media/ffmpeg"
	"ticketless/internal/media/ffprobe"
)

// SliceCall records one Slice invocation on FakeToolchain.
type SliceCall struct {
	Src      string
	Dst      string
	Start    float64
	Duration float64
	Quality  ffmpeg.Quality
}

// FakeToolchain satisfies video.Toolchain without external binaries. Probe
// returns Result, Slice writes a small placeholder clip, and Frame writes a
// real PNG so thumbnail encoding can run. FrameErrs are consumed one per call.
type FakeToolchain struct {
	mu sync.Mutex

	Result     ffprobe.Result
	ProbeErr   error
	SliceErr   error
	FrameErrs  []error
	FrameSize  [2]int
	ProbeCalls []string
	SliceCalls []SliceCall
	FrameCalls []float64
}

// NewFakeToolchain returns a fake whose probe reports a single 1080p H.264
// stream of the given duration with the provided format tags.
func NewFakeToolchain(duration float64, tags map[string]string) *FakeToolchain {
	return &FakeToolchain{
		Result:    ProbeResult(duration, tags),
		FrameSize: [2]int{1920, 1080},
	}
}

// ProbeResult builds an ffprobe result describing one video and one audio stream.
func ProbeResult(duration float64, tags map[string]string) ffprobe.Result {
	return ffprobe.Result{
		Streams: []ffprobe.Stream{
			{
				Index:        0,
				CodecName:    "h264",
				CodecType:    "video",
				Width:        1920,
				Height:       1080,
				RFrameRate:   "30000/1001",
				AvgFrameRate: "30000/1001",
				Duration:     strconv.FormatFloat(duration, 'f', 6, 64),
			},
			{Index: 1, CodecName: "aac", CodecType: "audio"},
		},
		Format: ffprobe.Format{
			NBStreams:  2,
			Duration:   strconv.FormatFloat(duration, 'f', 6, 64),
			Size:       "4096",
			FormatName: "mov,mp4,m4a,3gp,3g2,mj2",
			Tags:       tags,
		},
	}
}

func (f *FakeToolchain) Probe(_ context.Context, path string) (ffprobe.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ProbeCalls = append(f.ProbeCalls, path)
	if f.ProbeErr != nil {
		return ffprobe.Result{}, f.ProbeErr
	}
	return f.Result, nil
}

func (f *FakeToolchain) Slice(_ context.Context, src, dst string, start, duration float64, quality ffmpeg.Quality) error {
	f.mu.Lock()
	f.SliceCalls = append(f.SliceCalls, SliceCall{Src: src, Dst: dst, Start: start, Duration: duration, Quality: quality})
	err := f.SliceErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte(fmt.Sprintf("clip %s %.3f+%.3f", src, start, duration)), 0o644)
}

func (f *FakeToolchain) Frame(_ context.Context, _, dst string, offset float64) error {
	f.mu.Lock()
	f.FrameCalls = append(f.FrameCalls, offset)
	var err error
	if len(f.FrameErrs) > 0 {
		err = f.FrameErrs[0]
		f.FrameErrs = f.FrameErrs[1:]
	}
	width, height := f.FrameSize[0], f.FrameSize[1]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		width, height = 320, 180
	}
	img := imaging.New(width, height, color.NRGBA{R: 40, G: 90, B: 160, A: 255})
	return imaging.Save(img, dst)
}

// Calls returns snapshot counts of probe, slice, and frame invocations.
func (f *FakeToolchain) Calls() (probes, slices, frames int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ProbeCalls), len(f.SliceCalls), len(f.FrameCalls)
}
