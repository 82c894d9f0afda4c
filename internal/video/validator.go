package video

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"

	"ticketless/internal/media/ffprobe"
	"ticketless/internal/services"
)

// Verdict is the outcome of validation. Reason is set when Valid is false and
// is safe to show to the submitter.
type Verdict struct {
	Valid     bool
	Reason    string
	Container Container
	SizeBytes int64

	probe *ffprobe.Result
}

// Err converts a rejected verdict into a validation error.
func (v Verdict) Err() error {
	if v.Valid {
		return nil
	}
	return services.Invalid("validate", v.Reason)
}

func reject(reason string) Verdict {
	return Verdict{Reason: reason}
}

// Validator performs the cheap structural checks that run before any
// expensive work. It reads the file header itself and asks the toolchain for
// a probe only once the signature looks like a supported container.
type Validator struct {
	toolchain Toolchain
}

// NewValidator constructs a validator over the provided toolchain.
func NewValidator(toolchain Toolchain) *Validator {
	return &Validator{toolchain: toolchain}
}

// Validate checks path. A file problem yields a Verdict with Valid=false and a
// nil error; the error return is reserved for toolchain faults (missing binary,
// timeout) and I/O failures that say nothing about the file's content.
func (v *Validator) Validate(ctx context.Context, path string) (Verdict, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return reject("file does not exist"), nil
		}
		return Verdict{}, services.Wrap(services.ErrProcessing, "validate", "stat", "", err)
	}
	if info.IsDir() {
		return reject("path is a directory"), nil
	}
	if info.Size() == 0 {
		return reject("file is empty"), nil
	}

	declared, supported := declaredFamily(path)
	if !supported {
		return reject("unsupported file extension"), nil
	}

	container, err := Sniff(path)
	if err != nil {
		return Verdict{}, services.Wrap(services.ErrProcessing, "validate", "sniff", "", err)
	}
	if container == ContainerUnknown {
		return reject("file is not a recognized video container"), nil
	}
	if declared != "" && declared != container.family() {
		return reject(fmt.Sprintf("file extension does not match its %s content", container)), nil
	}

	result, err := v.toolchain.Probe(ctx, path)
	if err != nil {
		if fileRejected(err) {
			return reject("file is corrupt or truncated and cannot be decoded"), nil
		}
		return Verdict{}, services.Wrap(services.ErrToolchain, "validate", "probe", "", err)
	}
	if result.VideoStreamCount() == 0 {
		return reject("file contains no video stream"), nil
	}
	if _, reason := playableDuration(result); reason != "" {
		return reject(reason), nil
	}

	return Verdict{
		Valid:     true,
		Container: container,
		SizeBytes: info.Size(),
		probe:     &result,
	}, nil
}

// minPlayableSeconds is the shortest duration worth slicing: half a frame
// interval, and never below the planner's millisecond resolution.
func minPlayableSeconds(frameRate float64) float64 {
	const floor = 0.001
	if frameRate <= 0 || math.IsNaN(frameRate) || math.IsInf(frameRate, 0) {
		return floor
	}
	return math.Max(floor, 0.5/frameRate)
}

// playableDuration returns the probed duration, or a reason fit for the
// submitter when it is missing or too short to hold a frame.
func playableDuration(result ffprobe.Result) (float64, string) {
	duration := result.DurationSeconds()
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return 0, "video has no playable duration"
	}
	var rate float64
	if stream, ok := result.PrimaryVideo(); ok {
		rate = stream.FrameRate()
	}
	if duration < minPlayableSeconds(rate) {
		return 0, "video is too short to contain a usable frame"
	}
	return duration, ""
}
