package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/framelens/framelens/internal/analyzer"
	"github.com/framelens/framelens/internal/config"
	"github.com/framelens/framelens/internal/correlation"
	"github.com/framelens/framelens/internal/embeddings"
	"github.com/framelens/framelens/internal/extractor"
	"github.com/framelens/framelens/internal/keyframes"
	"github.com/framelens/framelens/internal/ocr"
	"github.com/framelens/framelens/internal/overview"
	"github.com/framelens/framelens/internal/pipeline"
	"github.com/framelens/framelens/internal/storage"
)

// buildOrchestrator assembles the full pipeline against live
// collaborators: Postgres, tesseract, the Ollama vision model, and the
// Ollama embedding model.
func buildOrchestrator(ctx context.Context, cfg *config.Config, store *storage.Store, logger *slog.Logger) (*pipeline.Orchestrator, func(), error) {
	visionAgent, err := analyzer.NewAgent(ctx, analyzer.AgentConfig{
		BaseURL: cfg.OllamaBaseURL,
		Port:    cfg.OllamaPort,
		Model:   cfg.VisionModel,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize vision agent: %w", err)
	}

	embedder := embeddings.NewService(
		fmt.Sprintf("%s:%d", cfg.OllamaBaseURL, cfg.OllamaPort),
		cfg.EmbedModel, 0)

	quota := analyzer.NewQuotaTracker(cfg.DailyVisionQuota, store)
	sampler := analyzer.NewSampler(store, analyzer.NewAgentClient(visionAgent), quota, logger).
		WithEmbeddings(embedder, store)

	orchestrator := pipeline.New(
		store,
		extractor.New(cfg.FramesDir),
		ocr.NewProcessor(ocr.NewTesseractEngine(cfg.TesseractBin), store, logger),
		sampler,
		keyframes.NewIdentifier(store, logger),
		correlation.NewEngine(store, logger),
		overview.NewAggregator(store, logger),
		logger,
	)

	return orchestrator, embedder.Close, nil
}

// pipelineOptions maps config defaults onto run options.
func pipelineOptions(cfg *config.Config) pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.FrameInterval = cfg.FrameInterval
	opts.MaxFrames = cfg.MaxFrames
	opts.VisionSampleRate = cfg.VisionSampleRate
	opts.MaxVisionFrames = cfg.MaxVisionFrames
	return opts
}
