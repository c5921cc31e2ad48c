// Package overview builds the visual summary persisted on a video
// after analysis: content-type distribution, keyframe counts, and
// coverage totals.
package overview

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/framelens/framelens/internal/models"
)

// Store is the persistence surface the aggregator needs.
type Store interface {
	FramesByVideo(ctx context.Context, videoID int64) ([]models.Frame, error)
	SaveOverview(ctx context.Context, videoID int64, overview *models.VisualOverview) error
}

// Aggregator computes and persists per-video visual overviews.
type Aggregator struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewAggregator creates an overview aggregator.
func NewAggregator(store Store, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{store: store, logger: logger, now: time.Now}
}

// Generate summarizes the video's frames and writes the result onto
// the video record. A video with no frames yields a zeroed overview,
// not an error.
func (a *Aggregator) Generate(ctx context.Context, videoID int64) (*models.VisualOverview, error) {
	frames, err := a.store.FramesByVideo(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("load frames: %w", err)
	}

	overview := Summarize(frames)
	overview.GeneratedAt = a.now().UTC()

	if err := a.store.SaveOverview(ctx, videoID, overview); err != nil {
		return nil, fmt.Errorf("save overview: %w", err)
	}

	a.logger.Info("visual overview generated",
		slog.Int64("video_id", videoID),
		slog.Int("frames", overview.TotalFrames),
		slog.String("dominant_type", overview.DominantType))
	return overview, nil
}

// Summarize computes the overview for an ordered frame list.
func Summarize(frames []models.Frame) *models.VisualOverview {
	overview := &models.VisualOverview{TotalFrames: len(frames)}
	if len(frames) == 0 {
		return overview
	}

	byType := make(map[string]*models.ContentTypeSummary)
	for _, frame := range frames {
		if frame.IsKeyframe {
			overview.Keyframes++
		}
		if frame.OnScreenText != "" {
			overview.FramesWithText++
		}
		if frame.ContentType == "" {
			continue
		}
		overview.FramesWithType++

		summary, ok := byType[frame.ContentType]
		if !ok {
			summary = &models.ContentTypeSummary{
				Type:      frame.ContentType,
				FirstSeen: frame.TimestampSeconds,
				LastSeen:  frame.TimestampSeconds,
			}
			byType[frame.ContentType] = summary
		}
		summary.Count++
		if frame.TimestampSeconds < summary.FirstSeen {
			summary.FirstSeen = frame.TimestampSeconds
		}
		if frame.TimestampSeconds > summary.LastSeen {
			summary.LastSeen = frame.TimestampSeconds
		}
		if frame.IsKeyframe {
			summary.KeyframeCount++
		}
	}

	overview.SpanSeconds = frames[len(frames)-1].TimestampSeconds - frames[0].TimestampSeconds

	for _, summary := range byType {
		summary.Percent = float64(summary.Count) / float64(overview.TotalFrames) * 100
		overview.Distribution = append(overview.Distribution, *summary)
	}
	// Most frequent first; ties broken by name so output is stable.
	sort.Slice(overview.Distribution, func(i, j int) bool {
		a, b := overview.Distribution[i], overview.Distribution[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Type < b.Type
	})
	if len(overview.Distribution) > 0 {
		overview.DominantType = overview.Distribution[0].Type
	}
	return overview
}
