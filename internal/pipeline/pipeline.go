// Package pipeline sequences a video's analysis stages and reports
// weighted progress while they run.
//
// Stages execute strictly in order: extraction, OCR, vision analysis,
// post-processing (keyframes, correlation, overview), completion. Each
// stage owns a fixed slice of the global 0 to 100 progress range and
// maps its own sub-progress onto that slice linearly. A correlation
// failure degrades the run instead of aborting it; every other stage
// failure is fatal and marks the video failed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/framelens/framelens/internal/analyzer"
	"github.com/framelens/framelens/internal/correlation"
	"github.com/framelens/framelens/internal/extractor"
	"github.com/framelens/framelens/internal/metrics"
	"github.com/framelens/framelens/internal/models"
	"github.com/framelens/framelens/internal/ocr"
	"github.com/framelens/framelens/internal/storage"
)

// ErrRunInProgress is returned when a second run is started for a
// video that already has one active in this process.
var ErrRunInProgress = errors.New("pipeline run already in progress for this video")

// Stage identifies one slice of the progress range.
type Stage string

const (
	StageExtraction  Stage = "extraction"
	StageOCR         Stage = "ocr"
	StageVision      Stage = "vision"
	StagePostProcess Stage = "post_process"
	StageComplete    Stage = "complete"
)

// stageRanges maps each stage onto its global progress window.
var stageRanges = map[Stage][2]float64{
	StageExtraction:  {0, 30},
	StageOCR:         {30, 60},
	StageVision:      {60, 95},
	StagePostProcess: {95, 98},
	StageComplete:    {98, 100},
}

var stageLabels = map[Stage]string{
	StageExtraction:  "Extracting frames",
	StageOCR:         "Reading on-screen text",
	StageVision:      "Analyzing frames",
	StagePostProcess: "Building keyframes and correlations",
	StageComplete:    "Finishing up",
}

// Options controls one pipeline run.
type Options struct {
	FrameInterval    int
	MaxFrames        int
	OCREnabled       bool
	VisionEnabled    bool
	VisionSampleRate int
	MaxVisionFrames  int

	// OnProgress receives the global percentage, the active stage, and
	// a short message. Called synchronously from the run goroutine.
	OnProgress func(percent float64, stage Stage, message string)
	// OnStepChange fires once when a stage begins.
	OnStepChange func(stage Stage, label string)
}

// DefaultOptions enables every stage with the standard sampling knobs.
func DefaultOptions() Options {
	return Options{
		FrameInterval:    15,
		MaxFrames:        200,
		OCREnabled:       true,
		VisionEnabled:    true,
		VisionSampleRate: 2,
		MaxVisionFrames:  50,
	}
}

func (o Options) withDefaults() Options {
	if o.FrameInterval <= 0 {
		o.FrameInterval = 15
	}
	if o.MaxFrames <= 0 {
		o.MaxFrames = 200
	}
	if o.VisionSampleRate <= 0 {
		o.VisionSampleRate = 2
	}
	if o.MaxVisionFrames <= 0 {
		o.MaxVisionFrames = 50
	}
	return o
}

// StageResult records how one stage or sub-stage ended.
type StageResult struct {
	Skipped bool
	Success bool
	Message string
}

// Stats are the run's aggregate counters.
type Stats struct {
	FramesExtracted     int
	OCRProcessed        int
	VisionAnalyzed      int
	Keyframes           int
	CorrelationsCreated int
}

// Result is what a finished run reports back to its caller.
type Result struct {
	Stats        Stats
	StageResults map[string]StageResult
	Success      bool
	Err          error
}

// Store is the persistence surface the orchestrator needs directly.
// Stage components carry their own narrower store interfaces.
type Store interface {
	UpdateVideoStatus(ctx context.Context, videoID int64, status models.AnalysisStatus) error
	InsertFrames(ctx context.Context, frames []models.Frame) error
	VideoByID(ctx context.Context, id int64) (*models.Video, error)
	FrameCounts(ctx context.Context, videoID int64) (storage.FrameCounts, error)
}

// FrameExtractor produces still frames from a playable source.
type FrameExtractor interface {
	Extract(ctx context.Context, videoPath, videoName string, opts extractor.Options) (*extractor.Result, error)
}

// OCRRunner processes all un-OCR'd frames of a video.
type OCRRunner interface {
	Run(ctx context.Context, videoID int64, onProgress func(ocr.Progress)) (ocr.Result, error)
}

// VisionRunner drives the vision model across a frame sample.
type VisionRunner interface {
	Analyze(ctx context.Context, videoID int64, opts analyzer.AnalyzeOptions) (*analyzer.BatchResult, error)
}

// Keyframer recomputes a video's keyframe set.
type Keyframer interface {
	Identify(ctx context.Context, videoID int64) (int, error)
}

// Correlator links transcript segments to frames.
type Correlator interface {
	Correlate(ctx context.Context, videoID int64) (correlation.Result, error)
}

// Overviewer builds the persisted visual summary.
type Overviewer interface {
	Generate(ctx context.Context, videoID int64) (*models.VisualOverview, error)
}

// Orchestrator runs the analysis pipeline for one video at a time per
// video, any number of videos concurrently.
type Orchestrator struct {
	store      Store
	extractor  FrameExtractor
	ocr        OCRRunner
	vision     VisionRunner
	keyframer  Keyframer
	correlator Correlator
	overviewer Overviewer
	logger     *slog.Logger
	tracer     trace.Tracer

	mu     sync.Mutex
	active map[int64]struct{}
}

// New creates a pipeline orchestrator.
func New(store Store, ext FrameExtractor, ocrRunner OCRRunner, vision VisionRunner,
	keyframer Keyframer, correlator Correlator, overviewer Overviewer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		store:      store,
		extractor:  ext,
		ocr:        ocrRunner,
		vision:     vision,
		keyframer:  keyframer,
		correlator: correlator,
		overviewer: overviewer,
		logger:     logger,
		tracer:     otel.Tracer("framelens/pipeline"),
		active:     make(map[int64]struct{}),
	}
}

// Run executes the full pipeline for the video. Only fatal stage
// errors are returned; degraded and per-item failures are folded into
// the result. The video's status is "analyzing" for the duration and
// ends at "analyzed" or "failed".
func (o *Orchestrator) Run(ctx context.Context, video *models.Video, opts Options) (*Result, error) {
	if !o.acquire(video.ID) {
		return nil, ErrRunInProgress
	}
	defer o.release(video.ID)

	opts = opts.withDefaults()

	ctx, span := o.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.Int64("video.id", video.ID)))
	defer span.End()

	result := &Result{StageResults: make(map[string]StageResult)}

	if err := o.store.UpdateVideoStatus(ctx, video.ID, models.StatusAnalyzing); err != nil {
		return nil, fmt.Errorf("mark video analyzing: %w", err)
	}

	if err := o.runStages(ctx, video, opts, result); err != nil {
		result.Err = err
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		if statusErr := o.store.UpdateVideoStatus(ctx, video.ID, models.StatusFailed); statusErr != nil {
			o.logger.Error("failed to mark video failed",
				slog.Int64("video_id", video.ID),
				slog.Any("error", statusErr))
		}
		o.logger.Error("pipeline run failed",
			slog.Int64("video_id", video.ID),
			slog.Any("error", err))
		return result, err
	}

	result.Success = true
	metrics.RunsTotal.WithLabelValues("succeeded").Inc()
	o.logger.Info("pipeline run complete",
		slog.Int64("video_id", video.ID),
		slog.Int("frames_extracted", result.Stats.FramesExtracted),
		slog.Int("vision_analyzed", result.Stats.VisionAnalyzed),
		slog.Int("keyframes", result.Stats.Keyframes),
		slog.Int("correlations", result.Stats.CorrelationsCreated))
	return result, nil
}

func (o *Orchestrator) runStages(ctx context.Context, video *models.Video, opts Options, result *Result) error {
	if err := o.stage(ctx, StageExtraction, func(ctx context.Context) error {
		return o.runExtraction(ctx, video, opts, result)
	}); err != nil {
		return fmt.Errorf("extraction stage: %w", err)
	}

	if err := o.stage(ctx, StageOCR, func(ctx context.Context) error {
		return o.runOCR(ctx, video.ID, opts, result)
	}); err != nil {
		return fmt.Errorf("ocr stage: %w", err)
	}

	if err := o.stage(ctx, StageVision, func(ctx context.Context) error {
		return o.runVision(ctx, video.ID, opts, result)
	}); err != nil {
		return fmt.Errorf("vision stage: %w", err)
	}

	if err := o.stage(ctx, StagePostProcess, func(ctx context.Context) error {
		return o.runPostProcess(ctx, video.ID, opts, result)
	}); err != nil {
		return fmt.Errorf("post-process stage: %w", err)
	}

	return o.stage(ctx, StageComplete, func(ctx context.Context) error {
		o.stepChange(opts, StageComplete)
		if err := o.store.UpdateVideoStatus(ctx, video.ID, models.StatusAnalyzed); err != nil {
			return fmt.Errorf("mark video analyzed: %w", err)
		}
		o.report(opts, StageComplete, 100, "analysis complete")
		return nil
	})
}

// stage wraps one stage in a span, a duration metric, and the step
// callback.
func (o *Orchestrator) stage(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "pipeline."+string(stage))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	return err
}

func (o *Orchestrator) runExtraction(ctx context.Context, video *models.Video, opts Options, result *Result) error {
	o.stepChange(opts, StageExtraction)
	o.report(opts, StageExtraction, 0, "extracting frames")

	extracted, err := o.extractor.Extract(ctx, video.SourcePath, video.Title, extractor.Options{
		Interval:  opts.FrameInterval,
		MaxFrames: opts.MaxFrames,
	})
	if err != nil {
		return err
	}

	frames := make([]models.Frame, 0, len(extracted.Frames))
	for _, f := range extracted.Frames {
		frames = append(frames, models.Frame{
			VideoID:          video.ID,
			TimestampSeconds: f.TimestampSeconds,
			Path:             f.Path,
		})
	}
	if err := o.store.InsertFrames(ctx, frames); err != nil {
		return fmt.Errorf("persist frames: %w", err)
	}

	result.Stats.FramesExtracted = len(frames)
	result.StageResults[string(StageExtraction)] = StageResult{Success: true}
	metrics.FramesExtractedTotal.Add(float64(len(frames)))
	o.report(opts, StageExtraction, 100, fmt.Sprintf("extracted %d frames", len(frames)))
	return nil
}

func (o *Orchestrator) runOCR(ctx context.Context, videoID int64, opts Options, result *Result) error {
	o.stepChange(opts, StageOCR)
	if !opts.OCREnabled {
		result.StageResults[string(StageOCR)] = StageResult{Skipped: true}
		o.report(opts, StageOCR, 100, "ocr disabled")
		return nil
	}

	ocrResult, err := o.ocr.Run(ctx, videoID, func(p ocr.Progress) {
		o.report(opts, StageOCR, subProgress(p.Current, p.Total),
			fmt.Sprintf("ocr %d/%d", p.Current, p.Total))
	})
	if err != nil {
		return err
	}

	result.Stats.OCRProcessed = ocrResult.Succeeded
	result.StageResults[string(StageOCR)] = StageResult{Success: true}
	o.report(opts, StageOCR, 100, fmt.Sprintf("ocr complete, %d frames read", ocrResult.Succeeded))
	return nil
}

func (o *Orchestrator) runVision(ctx context.Context, videoID int64, opts Options, result *Result) error {
	o.stepChange(opts, StageVision)
	if !opts.VisionEnabled {
		result.StageResults[string(StageVision)] = StageResult{Skipped: true}
		o.report(opts, StageVision, 100, "vision analysis disabled")
		return nil
	}

	batch, err := o.vision.Analyze(ctx, videoID, analyzer.AnalyzeOptions{
		SampleOptions: analyzer.SampleOptions{
			SamplingRate: opts.VisionSampleRate,
			MaxFrames:    opts.MaxVisionFrames,
		},
		OnProgress: func(p analyzer.BatchProgress) {
			o.report(opts, StageVision, p.Percentage,
				fmt.Sprintf("vision %d/%d", p.Current, p.Total))
		},
	})
	if err != nil {
		return err
	}

	result.Stats.VisionAnalyzed = batch.Analyzed
	result.StageResults[string(StageVision)] = StageResult{Success: true}
	metrics.VisionCallsTotal.WithLabelValues("analyzed").Add(float64(batch.Analyzed))
	metrics.VisionCallsTotal.WithLabelValues("failed").Add(float64(batch.Failed))
	o.report(opts, StageVision, 100,
		fmt.Sprintf("vision complete: %d analyzed, %d failed, %d skipped",
			batch.Analyzed, batch.Failed, batch.Skipped))
	return nil
}

// runPostProcess identifies keyframes, correlates the transcript, and
// builds the visual overview. Correlation alone is allowed to fail;
// the run then continues degraded with zero correlations.
func (o *Orchestrator) runPostProcess(ctx context.Context, videoID int64, opts Options, result *Result) error {
	o.stepChange(opts, StagePostProcess)
	o.report(opts, StagePostProcess, 0, "post-processing")

	keyframeCount, err := o.keyframer.Identify(ctx, videoID)
	if err != nil {
		return fmt.Errorf("identify keyframes: %w", err)
	}
	result.Stats.Keyframes = keyframeCount
	result.StageResults["keyframes"] = StageResult{Success: true}

	corr, err := o.correlator.Correlate(ctx, videoID)
	if err != nil {
		o.logger.Warn("correlation failed, continuing without contextual links",
			slog.Int64("video_id", videoID),
			slog.Any("error", err))
		result.StageResults["correlation"] = StageResult{Success: false, Message: err.Error()}
	} else {
		result.Stats.CorrelationsCreated = corr.Created
		result.StageResults["correlation"] = StageResult{Success: true}
		metrics.CorrelationsCreatedTotal.Add(float64(corr.Created))
	}

	if _, err := o.overviewer.Generate(ctx, videoID); err != nil {
		return fmt.Errorf("generate overview: %w", err)
	}
	result.StageResults["overview"] = StageResult{Success: true}
	o.report(opts, StagePostProcess, 100, "post-processing complete")
	return nil
}

func (o *Orchestrator) stepChange(opts Options, stage Stage) {
	if opts.OnStepChange != nil {
		opts.OnStepChange(stage, stageLabels[stage])
	}
}

// report maps a stage-internal 0 to 100 sub-progress onto the stage's
// global window and forwards it.
func (o *Orchestrator) report(opts Options, stage Stage, sub float64, message string) {
	if opts.OnProgress == nil {
		return
	}
	opts.OnProgress(GlobalProgress(stage, sub), stage, message)
}

// GlobalProgress converts a stage-internal percentage into the global
// 0 to 100 scale.
func GlobalProgress(stage Stage, sub float64) float64 {
	r := stageRanges[stage]
	sub = math.Max(0, math.Min(100, sub))
	return r[0] + sub/100*(r[1]-r[0])
}

func subProgress(current, total int) float64 {
	if total <= 0 {
		return 100
	}
	return float64(current) / float64(total) * 100
}

func (o *Orchestrator) acquire(videoID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[videoID]; busy {
		return false
	}
	o.active[videoID] = struct{}{}
	return true
}

func (o *Orchestrator) release(videoID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, videoID)
}

// StageProgress is the polling view of per-stage completion.
type StageProgress struct {
	Extraction float64 `json:"extraction"`
	OCR        float64 `json:"ocr"`
	Vision     float64 `json:"vision"`
}

// StatusReport is the pull-based counterpart of the progress callback,
// derived entirely from persisted state.
type StatusReport struct {
	Status   models.AnalysisStatus `json:"status"`
	Frames   storage.FrameCounts   `json:"frames"`
	Progress StageProgress         `json:"progress"`
}

// Status reports a video's analysis state for polling, independent of
// any in-flight run.
func (o *Orchestrator) Status(ctx context.Context, videoID int64) (*StatusReport, error) {
	return Status(ctx, o.store, videoID)
}

// Status derives the polling view from persisted state alone, so a
// status endpoint needs no live pipeline collaborators.
func Status(ctx context.Context, store Store, videoID int64) (*StatusReport, error) {
	video, err := store.VideoByID(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("load video: %w", err)
	}
	counts, err := store.FrameCounts(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("count frames: %w", err)
	}

	report := &StatusReport{Status: video.AnalysisStatus, Frames: counts}
	if counts.Total > 0 {
		report.Progress.Extraction = 100
		report.Progress.OCR = float64(counts.OCRProcessed) / float64(counts.Total) * 100
		report.Progress.Vision = float64(counts.VisionAnalyzed) / float64(counts.Total) * 100
	}
	return report, nil
}
