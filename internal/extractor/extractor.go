// Package extractor shells out to ffmpeg to sample still frames from a
// video source. Extraction failures are fatal to a pipeline run.
package extractor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Options controls frame sampling. Zero values fall back to the
// documented defaults.
type Options struct {
	Interval  int     // seconds between frames (default 15)
	Width     int     // output width, aspect preserved (default 1280)
	Quality   int     // mjpeg qscale, lower is better (default 2)
	MaxFrames int     // cap on extracted frames, 0 = unlimited
	StartTime float64 // seek offset in seconds
	EndTime   float64 // stop extracting past this timestamp, 0 = full video
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 15
	}
	if o.Width <= 0 {
		o.Width = 1280
	}
	if o.Quality <= 0 {
		o.Quality = 2
	}
	return o
}

// ExtractedFrame is one sampled still, ordered by timestamp.
type ExtractedFrame struct {
	TimestampSeconds float64
	Path             string
}

// Result reports what extraction produced.
type Result struct {
	Frames        []ExtractedFrame
	VideoDuration float64
}

// Extractor runs ffmpeg/ffprobe against a playable source.
type Extractor struct {
	outputDir string
}

// New creates an extractor writing frames under outputDir/<videoName>/.
func New(outputDir string) *Extractor {
	return &Extractor{outputDir: outputDir}
}

// Extract samples frames from the video at the configured interval and
// returns them ordered by timestamp. When frames for the video already
// exist on disk, extraction is skipped and the existing frames are
// returned, so reruns after a crash are safe.
func (e *Extractor) Extract(ctx context.Context, videoPath, videoName string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	// Remote stream URLs are handed straight to ffmpeg.
	if !strings.Contains(videoPath, "://") {
		if _, err := os.Stat(videoPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("video file does not exist at path: '%s'", videoPath)
		}
	}

	frameDir := filepath.Join(e.outputDir, videoName)
	if err := os.MkdirAll(frameDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create frame directory '%s': %v", frameDir, err)
	}

	duration, err := e.probeDuration(ctx, videoPath)
	if err != nil {
		// A missing duration only degrades timestamp capping.
		duration = 0
	}

	if existing, err := e.collectFrames(frameDir, opts); err == nil && len(existing) > 0 {
		return &Result{Frames: existing, VideoDuration: duration}, nil
	}

	args := []string{}
	if opts.StartTime > 0 {
		args = append(args, "-ss", strconv.FormatFloat(opts.StartTime, 'f', 2, 64))
	}
	args = append(args, "-i", videoPath)
	if opts.EndTime > opts.StartTime {
		args = append(args, "-t", strconv.FormatFloat(opts.EndTime-opts.StartTime, 'f', 2, 64))
	}
	args = append(args,
		"-vf", fmt.Sprintf("fps=1/%d,scale=%d:-1", opts.Interval, opts.Width),
		"-q:v", strconv.Itoa(opts.Quality),
	)
	if opts.MaxFrames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(opts.MaxFrames))
	}
	args = append(args, filepath.Join(frameDir, "frame_%04d.jpg"))

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %v\nOutput: %s", err, string(output))
	}

	frames, err := e.collectFrames(frameDir, opts)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames extracted from '%s'", videoPath)
	}
	return &Result{Frames: frames, VideoDuration: duration}, nil
}

// collectFrames lists the extracted jpgs and derives their timestamps
// from the sequential ffmpeg numbering.
func (e *Extractor) collectFrames(frameDir string, opts Options) ([]ExtractedFrame, error) {
	entries, err := os.ReadDir(frameDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frames directory '%s': %v", frameDir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(strings.ToLower(entry.Name()), ".jpg") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	frames := make([]ExtractedFrame, 0, len(names))
	for _, name := range names {
		var num int
		if _, err := fmt.Sscanf(name, "frame_%d.jpg", &num); err != nil {
			continue
		}
		if opts.MaxFrames > 0 && len(frames) >= opts.MaxFrames {
			break
		}
		frames = append(frames, ExtractedFrame{
			TimestampSeconds: opts.StartTime + float64((num-1)*opts.Interval),
			Path:             filepath.Join(frameDir, name),
		})
	}
	return frames, nil
}

func (e *Extractor) probeDuration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}
