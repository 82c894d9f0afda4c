package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ticketless/internal/config"
	"ticketless/internal/fileutil"
	"ticketless/internal/media/ffmpeg"
	"ticketless/internal/video"
	"ticketless/internal/workspace"
)

// newToolchain is replaced in tests so commands run without ffmpeg.
var newToolchain = func(cfg *config.Config) video.Toolchain {
	return video.NewFFToolchain(cfg.Toolchain.FFprobeBinary, cfg.Toolchain.FFmpegBinary, cfg.ToolchainTimeout())
}

type probeReport struct {
	Path      string          `json:"path"`
	Valid     bool            `json:"valid"`
	Reason    string          `json:"reason,omitempty"`
	Container string          `json:"container,omitempty"`
	SizeBytes int64           `json:"size_bytes"`
	Metadata  *video.Metadata `json:"metadata,omitempty"`
}

type planReport struct {
	Path     string          `json:"path"`
	Metadata video.Metadata  `json:"metadata"`
	Slice    video.SliceInfo `json:"slice"`
}

type processReport struct {
	VideoPath     string          `json:"video_path"`
	ThumbnailPath string          `json:"thumbnail_path"`
	Metadata      video.Metadata  `json:"metadata"`
	Slice         video.SliceInfo `json:"slice"`
}

func newVideoCommand(ctx *commandContext) *cobra.Command {
	videoCmd := &cobra.Command{
		Use:   "video",
		Short: "Inspect and process individual video files locally",
	}
	videoCmd.AddCommand(newVideoProbeCommand(ctx))
	videoCmd.AddCommand(newVideoPlanCommand(ctx))
	videoCmd.AddCommand(newVideoProcessCommand(ctx))
	return videoCmd
}

func newVideoProbeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "probe <video-file>",
		Short: "Validate a file and print its extracted metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report, err := probeFile(cmd.Context(), newToolchain(cfg), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				printProbeReport(cmd.OutOrStdout(), report)
			}
			if !report.Valid {
				return fmt.Errorf("video rejected: %s", report.Reason)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the report as JSON")
	return cmd
}

func probeFile(ctx context.Context, toolchain video.Toolchain, path string) (probeReport, error) {
	report := probeReport{Path: path}
	verdict, err := video.NewValidator(toolchain).Validate(ctx, path)
	if err != nil {
		return report, err
	}
	report.Valid = verdict.Valid
	report.Reason = verdict.Reason
	report.Container = string(verdict.Container)
	report.SizeBytes = verdict.SizeBytes
	if !verdict.Valid {
		return report, nil
	}
	meta, err := video.NewExtractor(toolchain).Extract(ctx, path)
	if err != nil {
		return report, err
	}
	report.Metadata = &meta
	return report, nil
}

func newVideoPlanCommand(ctx *commandContext) *cobra.Command {
	var ticketTime string
	var before, after float64
	var noAutoSlice, asJSON bool

	cmd := &cobra.Command{
		Use:   "plan <video-file>",
		Short: "Show the slice window that would be cut from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ticket, err := parseTicketTime(ticketTime)
			if err != nil {
				return err
			}
			window := video.OptionsFromConfig(cfg).Window
			if cmd.Flags().Changed("before") {
				window.BeforeSeconds = before
			}
			if cmd.Flags().Changed("after") {
				window.AfterSeconds = after
			}
			if window.Width() <= 0 {
				return fmt.Errorf("slice window must be positive (before %.1fs, after %.1fs)", window.BeforeSeconds, window.AfterSeconds)
			}

			path := args[0]
			toolchain := newToolchain(cfg)
			verdict, err := video.NewValidator(toolchain).Validate(cmd.Context(), path)
			if err != nil {
				return err
			}
			if err := verdict.Err(); err != nil {
				return err
			}
			meta, err := video.NewExtractor(toolchain).Extract(cmd.Context(), path)
			if err != nil {
				return err
			}
			report := planReport{
				Path:     path,
				Metadata: meta,
				Slice:    video.Plan(meta, ticket, !noAutoSlice, window),
			}
			if asJSON {
				return writeJSON(cmd, report)
			}
			printSlice(cmd.OutOrStdout(), report.Slice)
			return nil
		},
	}

	cmd.Flags().StringVar(&ticketTime, "ticket-time", "", "Ticket issue time (RFC3339)")
	cmd.Flags().Float64Var(&before, "before", 0, "Seconds kept before the ticket moment (default from config)")
	cmd.Flags().Float64Var(&after, "after", 0, "Seconds kept after the ticket moment (default from config)")
	cmd.Flags().BoolVar(&noAutoSlice, "no-auto-slice", false, "Plan the whole clip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the plan as JSON")
	return cmd
}

func newVideoProcessCommand(ctx *commandContext) *cobra.Command {
	var outDir, ticketTime, quality string
	var noAutoSlice, asJSON bool

	cmd := &cobra.Command{
		Use:   "process <video-file>",
		Short: "Run the full pipeline on a file and write the clip and thumbnail locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			ticket, err := parseTicketTime(ticketTime)
			if err != nil {
				return err
			}
			mode, err := ffmpeg.ParseQuality(quality)
			if err != nil {
				return err
			}
			target, err := config.ExpandPath(outDir)
			if err != nil {
				return fmt.Errorf("resolve output dir: %w", err)
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			source := args[0]
			pipeline := video.NewPipeline(newToolchain(cfg), video.OptionsFromConfig(cfg), logger)
			workspaces := workspace.NewManager(cfg.Paths.WorkDir, cfg.MinFreeBytes(), logger)

			var report processReport
			err = workspaces.Run(cmd.Context(), "cli", func(ctx context.Context, ws *workspace.Workspace) error {
				result, err := pipeline.Process(ctx, video.Job{
					SourcePath:      source,
					TicketTimestamp: ticket,
					AutoSlice:       !noAutoSlice,
					Quality:         mode,
					Attempt:         1,
				}, ws.OutputDir())
				if err != nil {
					return err
				}
				report = processReport{Metadata: result.Metadata, Slice: result.Slice}
				if report.VideoPath, err = exportArtifact(result.SlicedVideoPath, target); err != nil {
					return err
				}
				report.ThumbnailPath, err = exportArtifact(result.ThumbnailPath, target)
				return err
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			printSlice(out, report.Slice)
			fmt.Fprintf(out, "Video:     %s\n", report.VideoPath)
			fmt.Fprintf(out, "Thumbnail: %s\n", report.ThumbnailPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory receiving the clip and thumbnail")
	cmd.Flags().StringVar(&ticketTime, "ticket-time", "", "Ticket issue time (RFC3339)")
	cmd.Flags().StringVar(&quality, "quality", "balanced", "Transcode quality (fast, balanced, max-compat)")
	cmd.Flags().BoolVar(&noAutoSlice, "no-auto-slice", false, "Keep the whole clip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the result as JSON")
	return cmd
}

func exportArtifact(src, dir string) (string, error) {
	dst := filepath.Join(dir, filepath.Base(src))
	if err := fileutil.CopyFileAtomic(src, dst); err != nil {
		return "", fmt.Errorf("export %s: %w", filepath.Base(src), err)
	}
	return dst, nil
}

func printProbeReport(out io.Writer, report probeReport) {
	colorize := shouldColorize(out)
	if !report.Valid {
		fmt.Fprintln(out, renderStatusLine("Validation", statusError, report.Reason, colorize))
		return
	}
	fmt.Fprintln(out, renderStatusLine("Validation", statusOK, report.Container, colorize))
	if report.Metadata == nil {
		return
	}
	meta := report.Metadata
	pairs := [][2]string{
		{"Duration", formatSeconds(meta.DurationSeconds)},
		{"Codec", meta.Codec},
		{"Resolution", fmt.Sprintf("%dx%d", meta.Width, meta.Height)},
		{"Frame rate", strconv.FormatFloat(meta.FrameRate, 'f', 3, 64)},
		{"Size", strconv.FormatInt(meta.FileSizeBytes, 10) + " bytes"},
		{"MIME type", meta.MimeType},
		{"GPS", yesNo(meta.HasGPS)},
	}
	if meta.VideoTimestamp != nil {
		pairs = append(pairs, [2]string{"Recorded", meta.VideoTimestamp.UTC().Format(time.RFC3339)})
	}
	if meta.GPS != nil {
		pairs = append(pairs, [2]string{"Location", fmt.Sprintf("%.6f, %.6f", meta.GPS.Latitude, meta.GPS.Longitude)})
	}
	if meta.GPSAccuracyMeters != nil {
		pairs = append(pairs, [2]string{"GPS accuracy", strconv.FormatFloat(*meta.GPSAccuracyMeters, 'f', 1, 64) + " m"})
	}
	fmt.Fprint(out, renderDetails(pairs))
}

func printSlice(out io.Writer, slice video.SliceInfo) {
	fmt.Fprint(out, renderDetails([][2]string{
		{"Method", string(slice.Method)},
		{"Original", formatSeconds(slice.OriginalDurationSeconds)},
		{"Start", formatSeconds(slice.StartSeconds)},
		{"Duration", formatSeconds(slice.DurationSeconds)},
		{"End", formatSeconds(slice.EndSeconds())},
	}))
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64) + "s"
}
