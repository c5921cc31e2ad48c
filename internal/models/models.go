package models

import (
	"time"
)

// AnalysisStatus is the lifecycle state of a video's analysis run.
type AnalysisStatus string

const (
	StatusPending   AnalysisStatus = "pending"
	StatusAnalyzing AnalysisStatus = "analyzing"
	StatusAnalyzed  AnalysisStatus = "analyzed"
	StatusFailed    AnalysisStatus = "failed"
)

// Video is the root entity a pipeline run operates on. AnalysisStatus is
// owned by the orchestrator while a run is active.
type Video struct {
	ID              int64
	Title           string
	SourcePath      string
	DurationSeconds float64
	AnalysisStatus  AnalysisStatus
	VisualOverview  *VisualOverview
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Frame is a still image sampled from a video at a given timestamp.
// Created by extraction, enriched by OCR and vision analysis, never
// deleted by the pipeline.
type Frame struct {
	ID               int64
	VideoID          int64
	TimestampSeconds float64
	Path             string
	OnScreenText     string
	OCRProcessed     bool
	SceneDescription string
	VisualElements   []string
	ContentType      string
	IsKeyframe       bool
	RawAnalysis      string
	CreatedAt        time.Time
}

// Analyzed reports whether the frame has been through vision analysis.
// The raw model payload doubles as the analyzed marker.
func (f Frame) Analyzed() bool {
	return f.RawAnalysis != ""
}

// TranscriptSegment is a time-aligned piece of spoken text. Read-only
// input to correlation.
type TranscriptSegment struct {
	Start    float64
	Duration float64
	Text     string
}

// End returns the segment's end timestamp in seconds.
func (s TranscriptSegment) End() float64 {
	return s.Start + s.Duration
}

// MatchingElements explains why a frame correlated with a segment.
type MatchingElements struct {
	TextMatches      []string `json:"text_matches,omitempty"`
	SceneMatches     []string `json:"scene_matches,omitempty"`
	VisualElements   []string `json:"visual_elements,omitempty"`
	ContentTypeMatch bool     `json:"content_type_match"`
}

// Correlation is a scored association between a transcript segment and
// a frame that temporally overlaps it.
type Correlation struct {
	ID               int64
	VideoID          int64
	FrameID          int64
	SegmentStart     float64
	SegmentDuration  float64
	Score            int
	MatchingElements MatchingElements
}

// ContentTypeSummary aggregates the frames of one content type.
type ContentTypeSummary struct {
	Type          string  `json:"type"`
	Count         int     `json:"count"`
	Percent       float64 `json:"percent"`
	FirstSeen     float64 `json:"first_seen"`
	LastSeen      float64 `json:"last_seen"`
	KeyframeCount int     `json:"keyframe_count"`
}

// VisualOverview summarizes a video's analyzed frames. Persisted on the
// video entity after the post-process stage.
type VisualOverview struct {
	TotalFrames    int                  `json:"total_frames"`
	Keyframes      int                  `json:"keyframes"`
	FramesWithText int                  `json:"frames_with_text"`
	FramesWithType int                  `json:"frames_with_type"`
	SpanSeconds    float64              `json:"span_seconds"`
	DominantType   string               `json:"dominant_type,omitempty"`
	Distribution   []ContentTypeSummary `json:"distribution,omitempty"`
	GeneratedAt    time.Time            `json:"generated_at"`
}

// FrameSearchResult is one hit from a similar-frame lookup.
type FrameSearchResult struct {
	FrameID          int64
	TimestampSeconds float64
	Path             string
	SceneDescription string
	Similarity       float64
}
