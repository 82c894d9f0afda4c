package video

import (
	"context"
	"log/slog"
	"time"

	"ticketless/internal/config"
	"ticketless/internal/logging"
	"ticketless/internal/services"
)

// Stage names used for context tagging and metrics.
const (
	StageValidate = "validate"
	StageExtract  = "extract"
	StagePlan     = "plan"
	StageSlice    = "slice"
)

// StageObserver receives per-stage timings. Metrics implement it.
type StageObserver interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
}

// Options configures a Pipeline.
type Options struct {
	Window     Window
	Thumbnails ThumbnailBounds
	Observer   StageObserver
}

// Pipeline runs Validator, Extractor, Planner, and Executor in sequence.
// It keeps no state between calls.
type Pipeline struct {
	validator *Validator
	extractor *Extractor
	executor  *Executor
	window    Window
	observer  StageObserver
	logger    *slog.Logger
}

// NewPipeline wires the pipeline components over toolchain.
func NewPipeline(toolchain Toolchain, opts Options, logger *slog.Logger) *Pipeline {
	window := opts.Window
	if window.Width() <= 0 {
		window = DefaultWindow
	}
	return &Pipeline{
		validator: NewValidator(toolchain),
		extractor: NewExtractor(toolchain),
		executor:  NewExecutor(toolchain, opts.Thumbnails, logger),
		window:    window,
		observer:  opts.Observer,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
	}
}

// NewPipelineFromConfig builds a pipeline backed by the configured ffmpeg binaries.
func NewPipelineFromConfig(cfg *config.Config, observer StageObserver, logger *slog.Logger) *Pipeline {
	toolchain := NewFFToolchain(cfg.Toolchain.FFprobeBinary, cfg.Toolchain.FFmpegBinary, cfg.ToolchainTimeout())
	opts := OptionsFromConfig(cfg)
	opts.Observer = observer
	return NewPipeline(toolchain, opts, logger)
}

// OptionsFromConfig maps the slicing section onto pipeline options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Window: Window{
			BeforeSeconds: cfg.Slicing.WindowBeforeSeconds,
			AfterSeconds:  cfg.Slicing.WindowAfterSeconds,
		},
		Thumbnails: ThumbnailBounds{
			MaxWidth:  cfg.Slicing.ThumbnailMaxWidth,
			MaxHeight: cfg.Slicing.ThumbnailMaxHeight,
		},
	}
}

// Validator exposes the pipeline's validator for callers that only need a verdict.
func (p *Pipeline) Validator() *Validator { return p.validator }

// Window returns the evidence window the planner uses.
func (p *Pipeline) Window() Window { return p.window }

// Process runs the full pipeline for job, writing outputs into outDir. The
// returned paths live in outDir; the pipeline keeps no reference to them.
func (p *Pipeline) Process(ctx context.Context, job Job, outDir string) (Result, error) {
	base := p.logger
	if job.Attempt > 0 {
		base = base.With(logging.Int("attempt", job.Attempt))
	}
	logger := logging.WithContext(ctx, base)

	var verdict Verdict
	err := p.stage(ctx, base, StageValidate, func(ctx context.Context) error {
		var err error
		verdict, err = p.validator.Validate(ctx, job.SourcePath)
		if err != nil {
			return err
		}
		return verdict.Err()
	})
	if err != nil {
		return Result{}, err
	}

	var meta Metadata
	err = p.stage(ctx, base, StageExtract, func(ctx context.Context) error {
		var err error
		if verdict.probe != nil {
			meta, err = FromProbe(job.SourcePath, verdict.Container, *verdict.probe)
		} else {
			meta, err = p.extractor.Extract(ctx, job.SourcePath)
		}
		return err
	})
	if err != nil {
		return Result{}, err
	}

	slice := Plan(meta, job.TicketTimestamp, job.AutoSlice, p.window)
	logger.Info("slice planned",
		logging.String(logging.FieldEventType, "slice_planned"),
		logging.String("method", string(slice.Method)),
		logging.Float64("start_seconds", slice.StartSeconds),
		logging.Float64("duration_seconds", slice.DurationSeconds),
		logging.Float64("original_seconds", slice.OriginalDurationSeconds),
		logging.Bool("has_gps", meta.HasGPS),
	)

	var outputs Outputs
	err = p.stage(ctx, base, StageSlice, func(ctx context.Context) error {
		var err error
		outputs, err = p.executor.Execute(ctx, job.SourcePath, slice, job.Quality, outDir)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	return Result{
		SlicedVideoPath: outputs.SlicedVideoPath,
		ThumbnailPath:   outputs.ThumbnailPath,
		Metadata:        meta,
		Slice:           slice,
	}, nil
}

func (p *Pipeline) stage(ctx context.Context, base *slog.Logger, name string, fn func(context.Context) error) error {
	ctx = services.WithStage(ctx, name)
	started := time.Now()
	err := fn(ctx)
	elapsed := time.Since(started)
	if p.observer != nil {
		p.observer.ObserveStage(name, elapsed, err)
	}
	logger := logging.WithContext(ctx, base)
	if err != nil {
		logger.Info("stage failed",
			logging.String(logging.FieldEventType, "stage_failed"),
			logging.String(logging.FieldErrorKind, string(services.Classify(err))),
			logging.Duration("elapsed", elapsed),
			logging.Error(err),
		)
		return err
	}
	logger.Debug("stage completed", logging.Duration("elapsed", elapsed))
	return nil
}
