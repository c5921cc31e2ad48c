// Package correlation links transcript segments to the frames shown
// while they were spoken.
//
// Every analyzed frame whose timestamp falls inside a segment's window
// (padded by a small buffer) is scored against the segment text; pairs
// above a minimum score are persisted with an explanation of what
// matched. The correlation set for a video is replaced wholesale on
// each run.
package correlation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/framelens/framelens/internal/models"
	"github.com/framelens/framelens/internal/textmatch"
)

const (
	// windowBuffer pads a segment's time window on both sides, in
	// seconds, so a frame grabbed just before or after the spoken
	// words still counts as a candidate.
	windowBuffer = 2.0

	// minScore is the lowest score worth persisting.
	minScore = 10

	ocrWeight           = 40.0
	sceneWeight         = 30.0
	elementPoints       = 5.0
	elementCap          = 20.0
	contextualRuleBonus = 5.0
	contextualTypeBonus = 5.0
)

// typeKeywords pairs a content type with spoken-word cues that suggest
// the segment is talking about what is on screen.
var typeKeywords = map[string][]string{
	"presentation": {"slide", "slides", "deck"},
	"code":         {"code", "function", "variable", "class", "method"},
	"terminal":     {"command", "terminal", "shell", "run"},
	"chart":        {"chart", "graph", "data", "numbers"},
	"diagram":      {"diagram", "architecture", "flow"},
	"screenshot":   {"screen", "window", "click"},
}

// relevantTypes earn a flat bonus because they tend to carry the
// information the speaker is narrating.
var relevantTypes = map[string]struct{}{
	"code":         {},
	"diagram":      {},
	"chart":        {},
	"presentation": {},
	"screenshot":   {},
}

// Store is the persistence surface the engine needs.
type Store interface {
	SegmentsByVideo(ctx context.Context, videoID int64) ([]models.TranscriptSegment, error)
	FramesByVideo(ctx context.Context, videoID int64) ([]models.Frame, error)
	ReplaceCorrelations(ctx context.Context, videoID int64, correlations []models.Correlation) error
}

// Result reports what a correlation run produced.
type Result struct {
	Created  int
	Segments int
	Frames   int
}

// Engine computes and persists frame/segment correlations.
type Engine struct {
	store  Store
	logger *slog.Logger
}

// NewEngine creates a correlation engine.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{store: store, logger: logger}
}

// Correlate scores every analyzed frame against every transcript
// segment it temporally overlaps and replaces the video's correlation
// set with the qualifying pairs. Missing transcript or frames is a
// no-op, not an error.
func (e *Engine) Correlate(ctx context.Context, videoID int64) (Result, error) {
	segments, err := e.store.SegmentsByVideo(ctx, videoID)
	if err != nil {
		return Result{}, fmt.Errorf("load transcript segments: %w", err)
	}
	frames, err := e.store.FramesByVideo(ctx, videoID)
	if err != nil {
		return Result{}, fmt.Errorf("load frames: %w", err)
	}

	analyzed := make([]models.Frame, 0, len(frames))
	for _, frame := range frames {
		if frame.Analyzed() {
			analyzed = append(analyzed, frame)
		}
	}

	result := Result{Segments: len(segments), Frames: len(analyzed)}
	if len(segments) == 0 || len(analyzed) == 0 {
		e.logger.Info("nothing to correlate",
			slog.Int64("video_id", videoID),
			slog.Int("segments", len(segments)),
			slog.Int("analyzed_frames", len(analyzed)))
		return result, nil
	}

	correlations := Build(videoID, segments, analyzed)
	if err := e.store.ReplaceCorrelations(ctx, videoID, correlations); err != nil {
		return Result{}, fmt.Errorf("replace correlations: %w", err)
	}

	result.Created = len(correlations)
	e.logger.Info("correlations created",
		slog.Int64("video_id", videoID),
		slog.Int("correlations", result.Created),
		slog.Int("segments", result.Segments),
		slog.Int("analyzed_frames", result.Frames))
	return result, nil
}

// Build computes the qualifying correlations for all segment/frame
// pairs. Exposed separately from Correlate so scoring stays testable
// without a store.
func Build(videoID int64, segments []models.TranscriptSegment, frames []models.Frame) []models.Correlation {
	var correlations []models.Correlation
	for _, segment := range segments {
		windowStart := segment.Start - windowBuffer
		windowEnd := segment.End() + windowBuffer

		for _, frame := range frames {
			if frame.TimestampSeconds < windowStart || frame.TimestampSeconds > windowEnd {
				continue
			}
			score, elements := Score(frame, segment)
			if score < minScore {
				continue
			}
			correlations = append(correlations, models.Correlation{
				VideoID:          videoID,
				FrameID:          frame.ID,
				SegmentStart:     segment.Start,
				SegmentDuration:  segment.Duration,
				Score:            score,
				MatchingElements: elements,
			})
		}
	}
	return correlations
}

// Score rates how strongly a frame's visual content matches a spoken
// segment, in [0,100], and explains which signals contributed.
func Score(frame models.Frame, segment models.TranscriptSegment) (int, models.MatchingElements) {
	segmentTokens := textmatch.Tokenize(segment.Text)
	var elements models.MatchingElements
	score := 0.0

	if frame.OnScreenText != "" {
		ocrTokens := textmatch.Tokenize(frame.OnScreenText)
		score += ocrWeight * textmatch.JaccardSets(ocrTokens, segmentTokens)
		elements.TextMatches = textmatch.IntersectionSets(ocrTokens, segmentTokens)
	}

	if frame.SceneDescription != "" {
		sceneTokens := textmatch.Tokenize(frame.SceneDescription)
		score += sceneWeight * textmatch.JaccardSets(sceneTokens, segmentTokens)
		elements.SceneMatches = textmatch.IntersectionSets(sceneTokens, segmentTokens)
	}

	for _, element := range frame.VisualElements {
		if elementMentioned(element, segmentTokens) {
			elements.VisualElements = append(elements.VisualElements, element)
		}
	}
	score += math.Min(elementPoints*float64(len(elements.VisualElements)), elementCap)

	contextual := 0.0
	if keywordPaired(frame.ContentType, segmentTokens) {
		contextual += contextualRuleBonus
		elements.ContentTypeMatch = true
	}
	if _, ok := relevantTypes[frame.ContentType]; ok {
		contextual += contextualTypeBonus
	}
	score += contextual

	final := int(math.Round(math.Min(score, 100)))
	return final, elements
}

// elementMentioned reports whether any token of a visual-element label
// appears in the segment text.
func elementMentioned(element string, segmentTokens map[string]struct{}) bool {
	for token := range textmatch.Tokenize(element) {
		if _, ok := segmentTokens[token]; ok {
			return true
		}
	}
	return false
}

// keywordPaired reports whether the segment uses one of the cue words
// associated with the frame's content type.
func keywordPaired(contentType string, segmentTokens map[string]struct{}) bool {
	for _, keyword := range typeKeywords[strings.ToLower(contentType)] {
		if _, ok := segmentTokens[keyword]; ok {
			return true
		}
	}
	return false
}
