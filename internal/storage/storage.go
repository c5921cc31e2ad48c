// Package storage persists videos, frames, transcript segments,
// correlations, and analysis jobs in PostgreSQL.
//
// Consumers depend on narrow interfaces declared in their own packages;
// *Store satisfies all of them.
package storage

// FrameCounts summarizes per-video frame enrichment for status polling.
type FrameCounts struct {
	Total          int `json:"total"`
	OCRProcessed   int `json:"ocr_processed"`
	VisionAnalyzed int `json:"vision_analyzed"`
	Keyframes      int `json:"keyframes"`
	ContentTyped   int `json:"content_typed"`
}
