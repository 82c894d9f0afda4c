package deps

import "strings"

// ToolchainRequirements lists the multimedia binaries the video pipeline
// invokes. Empty names fall back to the PATH defaults.
func ToolchainRequirements(ffmpegBinary, ffprobeBinary string) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     binaryOrDefault(ffmpegBinary, "ffmpeg"),
			Description: "Required for slicing and thumbnail frames",
			VersionArgs: []string{"-hide_banner", "-version"},
		},
		{
			Name:        "FFprobe",
			Command:     binaryOrDefault(ffprobeBinary, "ffprobe"),
			Description: "Required for validation and metadata extraction",
			VersionArgs: []string{"-hide_banner", "-version"},
		},
	}
}

func binaryOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
