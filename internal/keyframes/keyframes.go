// Package keyframes flags the visually significant frames of a video.
//
// A frame becomes a keyframe when its content type changes, when its
// content type belongs to a fixed important set, or when its on-screen
// text drifts far enough from the previous text. Each run fully
// recomputes the set; no frame keeps a stale flag from an earlier run.
package keyframes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/framelens/framelens/internal/models"
	"github.com/framelens/framelens/internal/textmatch"
)

// textDriftThreshold is the Jaccard similarity below which on-screen
// text counts as a content change.
const textDriftThreshold = 0.3

// importantTypes always mark a frame as a keyframe: structured content
// a viewer is likely to jump back to.
var importantTypes = map[string]struct{}{
	"code":    {},
	"diagram": {},
	"chart":   {},
	"table":   {},
}

// FrameStore is the storage surface the identifier needs.
type FrameStore interface {
	FramesByVideo(ctx context.Context, videoID int64) ([]models.Frame, error)
	SetKeyframes(ctx context.Context, videoID int64, frameIDs []int64) error
}

// Identifier recomputes the keyframe set of a video.
type Identifier struct {
	frames FrameStore
	logger *slog.Logger
}

// NewIdentifier creates a keyframe identifier.
func NewIdentifier(frames FrameStore, logger *slog.Logger) *Identifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Identifier{frames: frames, logger: logger}
}

// Identify classifies all frames of the video and replaces its keyframe
// set in one transaction. Returns the number of keyframes marked.
func (i *Identifier) Identify(ctx context.Context, videoID int64) (int, error) {
	frames, err := i.frames.FramesByVideo(ctx, videoID)
	if err != nil {
		return 0, fmt.Errorf("load frames: %w", err)
	}
	if len(frames) == 0 {
		return 0, nil
	}

	selected := Select(frames)
	if err := i.frames.SetKeyframes(ctx, videoID, selected); err != nil {
		return 0, fmt.Errorf("replace keyframe set: %w", err)
	}

	i.logger.Info("keyframes identified",
		slog.Int64("video_id", videoID),
		slog.Int("keyframes", len(selected)),
		slog.Int("frames", len(frames)))
	return len(selected), nil
}

// Select returns the IDs of the frames that qualify as keyframes. The
// input must be ordered by timestamp; the first frame always qualifies.
//
// The "last seen" trackers only advance on frames that supply a value,
// so gaps in OCR or content-type coverage do not reset the baseline.
func Select(frames []models.Frame) []int64 {
	if len(frames) == 0 {
		return nil
	}

	selected := []int64{frames[0].ID}
	lastType := frames[0].ContentType
	lastText := frames[0].OnScreenText

	for _, frame := range frames[1:] {
		if isKeyframe(frame, lastType, lastText) {
			selected = append(selected, frame.ID)
		}
		if frame.ContentType != "" {
			lastType = frame.ContentType
		}
		if frame.OnScreenText != "" {
			lastText = frame.OnScreenText
		}
	}
	return selected
}

func isKeyframe(frame models.Frame, lastType, lastText string) bool {
	if frame.ContentType != "" && frame.ContentType != lastType {
		return true
	}
	if _, important := importantTypes[frame.ContentType]; important {
		return true
	}
	if frame.OnScreenText != "" && lastText != "" &&
		textmatch.Jaccard(frame.OnScreenText, lastText) < textDriftThreshold {
		return true
	}
	return false
}
