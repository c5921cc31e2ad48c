package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/framelens/framelens/internal/metrics"
	"github.com/framelens/framelens/internal/models"
)

// FrameStore is the storage surface the sampler needs.
type FrameStore interface {
	UnanalyzedFrames(ctx context.Context, videoID int64) ([]models.Frame, error)
	SaveFrameAnalysis(ctx context.Context, frame *models.Frame) error
}

// SampleOptions bounds which frames are selected for vision analysis.
type SampleOptions struct {
	SamplingRate int // take every Nth eligible frame (default 1 = all)
	MaxFrames    int // cap on the sample size, 0 = unlimited
}

func (o SampleOptions) withDefaults() SampleOptions {
	if o.SamplingRate <= 0 {
		o.SamplingRate = 1
	}
	return o
}

// BatchProgress reports per-frame progress during a vision batch.
type BatchProgress struct {
	Current    int
	Total      int
	Percentage float64
	Analyzed   int
	Failed     int
	Skipped    int
}

// FrameError records one failed vision call.
type FrameError struct {
	FrameID int64
	Message string
}

// BatchResult summarizes a vision batch. A lower-than-requested
// Analyzed count with no error signals quota exhaustion.
type BatchResult struct {
	Analyzed int
	Failed   int
	Skipped  int
	Errors   []FrameError
}

// Embedder turns text into a vector for similar-frame search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingSink stores a frame's scene-description embedding.
type EmbeddingSink interface {
	SetFrameEmbedding(ctx context.Context, frameID int64, embedding []float32) error
}

// Sampler selects a bounded subset of unanalyzed frames and drives the
// vision model across it one frame at a time, respecting the daily quota.
type Sampler struct {
	frames FrameStore
	client VisionClient
	quota  *QuotaTracker
	logger *slog.Logger

	embedder Embedder
	sink     EmbeddingSink
}

// NewSampler creates a quota-aware vision sampler.
func NewSampler(frames FrameStore, client VisionClient, quota *QuotaTracker, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sampler{frames: frames, client: client, quota: quota, logger: logger}
}

// WithEmbeddings enables scene-description embedding after each
// successful analysis. Embedding failures are logged, never fatal.
func (s *Sampler) WithEmbeddings(embedder Embedder, sink EmbeddingSink) *Sampler {
	s.embedder = embedder
	s.sink = sink
	return s
}

// Sample returns at most MaxFrames frames drawn from the video's
// not-yet-analyzed frames, taking every SamplingRate-th in timestamp
// order. Already-analyzed frames are excluded, which makes reruns
// idempotent.
func (s *Sampler) Sample(ctx context.Context, videoID int64, opts SampleOptions) ([]models.Frame, error) {
	opts = opts.withDefaults()

	eligible, err := s.frames.UnanalyzedFrames(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("load unanalyzed frames: %w", err)
	}

	var sample []models.Frame
	for i, frame := range eligible {
		if i%opts.SamplingRate != 0 {
			continue
		}
		sample = append(sample, frame)
		if opts.MaxFrames > 0 && len(sample) >= opts.MaxFrames {
			break
		}
	}
	return sample, nil
}

// AnalyzeOptions configures one vision batch.
type AnalyzeOptions struct {
	SampleOptions
	OnProgress func(BatchProgress)
}

// Analyze runs the vision model over the sample sequentially, one frame
// per external call, re-checking the quota between calls.
//
// Reaching the daily limit stops the remaining batch without an error:
// quota exhaustion is an expected operating condition. A missing backing
// file counts as skipped; a model failure counts as failed with its
// message retained. Both let the batch continue.
func (s *Sampler) Analyze(ctx context.Context, videoID int64, opts AnalyzeOptions) (*BatchResult, error) {
	sample, err := s.Sample(ctx, videoID, opts.SampleOptions)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	if len(sample) == 0 {
		return result, nil
	}

	if ok, err := s.quota.Allow(ctx); err != nil {
		return nil, fmt.Errorf("check vision quota: %w", err)
	} else if !ok {
		metrics.QuotaExhaustedTotal.Inc()
		s.logger.Info("daily vision quota already exhausted",
			slog.Int("limit", s.quota.Limit()),
			slog.Int64("video_id", videoID))
		return result, nil
	}

	for i, frame := range sample {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ok, err := s.quota.Allow(ctx)
		if err != nil {
			return result, fmt.Errorf("check vision quota: %w", err)
		}
		if !ok {
			metrics.QuotaExhaustedTotal.Inc()
			s.logger.Info("daily vision quota reached, stopping batch",
				slog.Int("limit", s.quota.Limit()),
				slog.Int("analyzed", result.Analyzed),
				slog.Int("remaining", len(sample)-i))
			break
		}

		if _, err := os.Stat(frame.Path); err != nil {
			result.Skipped++
			s.logger.Warn("frame file missing, skipping",
				slog.Int64("frame_id", frame.ID),
				slog.String("path", frame.Path))
			s.report(opts.OnProgress, i+1, len(sample), result)
			continue
		}

		analysis, err := s.client.Analyze(ctx, frame.Path)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, FrameError{FrameID: frame.ID, Message: err.Error()})
			s.logger.Warn("vision analysis failed",
				slog.Int64("frame_id", frame.ID),
				slog.Any("error", err))
			s.report(opts.OnProgress, i+1, len(sample), result)
			continue
		}

		frame.SceneDescription = analysis.SceneDescription
		frame.VisualElements = analysis.VisualElements
		frame.ContentType = analysis.ContentType
		frame.OnScreenText = analysis.OnScreenText
		frame.RawAnalysis = analysis.Raw
		if err := s.frames.SaveFrameAnalysis(ctx, &frame); err != nil {
			return result, fmt.Errorf("persist frame analysis: %w", err)
		}

		s.quota.RecordCall()
		result.Analyzed++
		s.embed(ctx, frame.ID, analysis.SceneDescription)
		s.report(opts.OnProgress, i+1, len(sample), result)
	}

	return result, nil
}

func (s *Sampler) report(onProgress func(BatchProgress), current, total int, result *BatchResult) {
	if onProgress == nil {
		return
	}
	onProgress(BatchProgress{
		Current:    current,
		Total:      total,
		Percentage: float64(current) / float64(total) * 100,
		Analyzed:   result.Analyzed,
		Failed:     result.Failed,
		Skipped:    result.Skipped,
	})
}

func (s *Sampler) embed(ctx context.Context, frameID int64, description string) {
	if s.embedder == nil || s.sink == nil || description == "" {
		return
	}
	embedding, err := s.embedder.Embed(ctx, description)
	if err != nil {
		s.logger.Warn("failed to generate embedding",
			slog.Int64("frame_id", frameID),
			slog.Any("error", err))
		return
	}
	if err := s.sink.SetFrameEmbedding(ctx, frameID, embedding); err != nil {
		s.logger.Warn("failed to store embedding",
			slog.Int64("frame_id", frameID),
			slog.Any("error", err))
	}
}
