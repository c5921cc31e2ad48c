// Package transcript fetches the time-aligned spoken text the
// correlation engine consumes, via the bundled helper script that
// talks to the hosting platform. The helper prints a JSON envelope of
// the form {"success": bool, "error": string, "data": {...}} for each
// of its metadata, transcript, and stream subcommands.
package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/framelens/framelens/internal/models"
)

// Metadata describes a remotely hosted video.
type Metadata struct {
	Title       string  `json:"title"`
	Channel     string  `json:"channel"`
	Duration    float64 `json:"duration"`
	Description string  `json:"description"`
	Thumbnail   string  `json:"thumbnail"`
	UploadDate  string  `json:"upload_date"`
	ViewCount   int64   `json:"view_count"`
}

// StreamInfo is a playable URL for a remotely hosted video, suitable
// as frame-extraction input.
type StreamInfo struct {
	StreamURL string  `json:"stream_url"`
	Duration  float64 `json:"duration"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Format    string  `json:"format"`
	Ext       string  `json:"ext"`
}

// Transcript is the helper's transcript payload.
type Transcript struct {
	FullText string          `json:"full_text"`
	Segments []helperSegment `json:"segments"`
	Type     string          `json:"type"`
	Language string          `json:"language"`
}

type helperSegment struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// Fetcher shells out to the platform helper script.
type Fetcher struct {
	python string
	script string
}

// NewFetcher creates a fetcher around the helper script path.
func NewFetcher(script string) *Fetcher {
	return &Fetcher{python: "python3", script: script}
}

// FetchTranscript retrieves the transcript of a remotely hosted video
// by its platform id. A video without a transcript yields an empty
// slice.
func (f *Fetcher) FetchTranscript(ctx context.Context, externalID string) ([]models.TranscriptSegment, error) {
	var payload Transcript
	if err := f.run(ctx, "transcript", externalID, &payload); err != nil {
		return nil, err
	}
	segments := make([]models.TranscriptSegment, 0, len(payload.Segments))
	for _, s := range payload.Segments {
		segments = append(segments, models.TranscriptSegment{
			Start:    s.Start,
			Duration: s.Duration,
			Text:     s.Text,
		})
	}
	return segments, nil
}

// FetchMetadata retrieves title, channel, and duration details.
func (f *Fetcher) FetchMetadata(ctx context.Context, externalID string) (*Metadata, error) {
	var payload Metadata
	if err := f.run(ctx, "metadata", externalID, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// FetchStream resolves a directly playable stream URL.
func (f *Fetcher) FetchStream(ctx context.Context, externalID string) (*StreamInfo, error) {
	var payload StreamInfo
	if err := f.run(ctx, "stream", externalID, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (f *Fetcher) run(ctx context.Context, command, externalID string, out any) error {
	cmd := exec.CommandContext(ctx, f.python, f.script, command, externalID)
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("transcript helper %s: %w", command, err)
	}
	return decodeEnvelope(output, command, out)
}

func decodeEnvelope(output []byte, command string, out any) error {
	var env envelope
	if err := json.Unmarshal(output, &env); err != nil {
		return fmt.Errorf("transcript helper %s: decode envelope: %w", command, err)
	}
	if !env.Success {
		return fmt.Errorf("transcript helper %s: %s", command, env.Error)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("transcript helper %s: decode payload: %w", command, err)
	}
	return nil
}
