package ffmpeg

import (
	"fmt"
	"strconv"
)

// Quality names an encode preset.
type Quality string

const (
	QualityFast       Quality = "fast"
	QualityBalanced   Quality = "balanced"
	QualityMaxCompat  Quality = "max-compat"
	defaultOutputKind         = "mp4"
)

// ParseQuality maps a user-supplied mode to a preset. Empty input selects
// balanced.
func ParseQuality(value string) (Quality, error) {
	switch Quality(value) {
	case "":
		return QualityBalanced, nil
	case QualityFast, QualityBalanced, QualityMaxCompat:
		return Quality(value), nil
	default:
		return "", fmt.Errorf("unknown quality mode %q", value)
	}
}

type preset struct {
	videoCodec   string
	speed        string
	crf          int
	maxHeight    int
	profile      string
	level        string
	audioBitrate string
	stereo       bool
}

var presets = map[Quality]preset{
	QualityFast:      {videoCodec: "libx264", speed: "veryfast", crf: 28, maxHeight: 720, audioBitrate: "96k"},
	QualityBalanced:  {videoCodec: "libx264", speed: "medium", crf: 23, maxHeight: 1080, audioBitrate: "128k"},
	QualityMaxCompat: {videoCodec: "libx264", speed: "medium", crf: 23, maxHeight: 720, profile: "baseline", level: "3.1", audioBitrate: "128k", stereo: true},
}

// SliceArgs builds the ffmpeg argument list that cuts [start, start+duration)
// out of src and re-encodes it into an mp4 at dst.
func SliceArgs(src, dst string, start, duration float64, quality Quality) []string {
	p, ok := presets[quality]
	if !ok {
		p = presets[QualityBalanced]
	}
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", formatSeconds(start),
		"-i", src,
		"-t", formatSeconds(duration),
		"-map", "0:v:0", "-map", "0:a:0?",
		"-vf", fmt.Sprintf("scale=-2:'min(%d,ih)'", p.maxHeight),
		"-c:v", p.videoCodec,
		"-preset", p.speed,
		"-crf", strconv.Itoa(p.crf),
		"-pix_fmt", "yuv420p",
	}
	if p.profile != "" {
		args = append(args, "-profile:v", p.profile)
	}
	if p.level != "" {
		args = append(args, "-level", p.level)
	}
	args = append(args, "-c:a", "aac", "-b:a", p.audioBitrate)
	if p.stereo {
		args = append(args, "-ac", "2")
	}
	args = append(args, "-movflags", "+faststart", "-f", defaultOutputKind, dst)
	return args
}

// FrameArgs builds the ffmpeg argument list that renders the frame at offset
// seconds of src into a PNG at dst.
func FrameArgs(src, dst string, offset float64) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", formatSeconds(offset),
		"-i", src,
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "png",
		dst,
	}
}

func formatSeconds(value float64) string {
	if value < 0 {
		value = 0
	}
	return strconv.FormatFloat(value, 'f', 3, 64)
}
