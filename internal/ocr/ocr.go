// Package ocr runs optical character recognition over a video's frames
// and records the recognized on-screen text.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/framelens/framelens/internal/models"
)

// Engine is the external OCR collaborator. Init must be idempotent.
type Engine interface {
	Init(ctx context.Context) error
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Progress reports per-frame OCR progress.
type Progress struct {
	Current int
	Total   int
}

// Result counts the outcome of one OCR batch.
type Result struct {
	Succeeded int
	Failed    int
}

// FrameStore is the storage surface the processor needs.
// AppendFrameText implies the processed marker; MarkFrameOCRProcessed
// covers frames where recognition found nothing.
type FrameStore interface {
	FramesByVideo(ctx context.Context, videoID int64) ([]models.Frame, error)
	AppendFrameText(ctx context.Context, frameID int64, text string) error
	MarkFrameOCRProcessed(ctx context.Context, frameID int64) error
}

// Processor drives the engine across all frames of a video that have
// not been through OCR yet.
type Processor struct {
	engine Engine
	frames FrameStore
	logger *slog.Logger
}

// NewProcessor creates an OCR batch processor.
func NewProcessor(engine Engine, frames FrameStore, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Processor{engine: engine, frames: frames, logger: logger}
}

// Run recognizes text in every un-OCR'd frame of the video, reporting
// progress per frame. Frames where recognition yields no text are still
// stamped processed so reruns and progress polling skip them. Per-frame
// failures are counted, left unstamped for the next run, and never
// abort the batch.
func (p *Processor) Run(ctx context.Context, videoID int64, onProgress func(Progress)) (Result, error) {
	if err := p.engine.Init(ctx); err != nil {
		return Result{}, fmt.Errorf("initialize ocr engine: %w", err)
	}

	frames, err := p.frames.FramesByVideo(ctx, videoID)
	if err != nil {
		return Result{}, fmt.Errorf("load frames: %w", err)
	}

	var pending []int
	for i, frame := range frames {
		if !frame.OCRProcessed {
			pending = append(pending, i)
		}
	}

	result := Result{}
	for n, idx := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		frame := frames[idx]

		text, err := p.engine.Recognize(ctx, frame.Path)
		if err != nil {
			result.Failed++
			p.logger.Warn("ocr failed for frame",
				slog.Int64("frame_id", frame.ID),
				slog.String("path", frame.Path),
				slog.Any("error", err))
		} else {
			if text = strings.TrimSpace(text); text != "" {
				if err := p.frames.AppendFrameText(ctx, frame.ID, text); err != nil {
					return result, fmt.Errorf("store ocr text: %w", err)
				}
			} else if err := p.frames.MarkFrameOCRProcessed(ctx, frame.ID); err != nil {
				return result, fmt.Errorf("mark frame ocr processed: %w", err)
			}
			result.Succeeded++
		}

		if onProgress != nil {
			onProgress(Progress{Current: n + 1, Total: len(pending)})
		}
	}
	return result, nil
}

// TesseractEngine shells out to the tesseract binary per frame.
type TesseractEngine struct {
	bin         string
	initialized bool
}

// NewTesseractEngine creates an engine using the given binary name.
func NewTesseractEngine(bin string) *TesseractEngine {
	if bin == "" {
		bin = "tesseract"
	}
	return &TesseractEngine{bin: bin}
}

// Init verifies the binary is available. Safe to call repeatedly.
func (t *TesseractEngine) Init(ctx context.Context) error {
	if t.initialized {
		return nil
	}
	if err := exec.CommandContext(ctx, t.bin, "--version").Run(); err != nil {
		return fmt.Errorf("tesseract not available: %w", err)
	}
	t.initialized = true
	return nil
}

// Recognize extracts text from one frame image.
func (t *TesseractEngine) Recognize(ctx context.Context, imagePath string) (string, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return "", fmt.Errorf("frame file missing: %w", err)
	}
	output, err := exec.CommandContext(ctx, t.bin, imagePath, "stdout").Output()
	if err != nil {
		return "", fmt.Errorf("tesseract failed: %w", err)
	}
	return string(output), nil
}
