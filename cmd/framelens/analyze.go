package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/framelens/framelens/internal/pipeline"
	"github.com/framelens/framelens/internal/storage"
	"github.com/framelens/framelens/internal/transcript"
)

func newAnalyzeCommand() *cobra.Command {
	var (
		noOCR      bool
		noVision   bool
		interval   int
		maxFrames  int
		sampleRate int
		externalID string
	)

	cmd := &cobra.Command{
		Use:   "analyze [video-file]",
		Short: "Run the full analysis pipeline on a local or remote video",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) == 0 && externalID == "" {
				return fmt.Errorf("provide a video file or --youtube-id")
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(cfg.LogLevel)

			store, err := storage.NewStore(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer store.Close()

			var videoPath, videoName string
			if len(args) == 1 {
				videoPath = args[0]
				videoName = strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
			} else {
				// No local file: resolve a direct stream URL for ffmpeg.
				fetcher := transcript.NewFetcher(cfg.TranscriptHelper)
				stream, err := fetcher.FetchStream(ctx, externalID)
				if err != nil {
					return fmt.Errorf("resolve stream url: %w", err)
				}
				videoPath = stream.StreamURL
				videoName = externalID
				if meta, err := fetcher.FetchMetadata(ctx, externalID); err == nil {
					logger.Info("analyzing remote video", "title", meta.Title, "duration", meta.Duration)
				}
			}

			video, err := store.GetOrCreateVideo(ctx, videoName, videoPath)
			if err != nil {
				return fmt.Errorf("register video: %w", err)
			}

			// An external id pulls the platform transcript so the
			// correlation stage has segments to work with.
			if externalID != "" {
				fetcher := transcript.NewFetcher(cfg.TranscriptHelper)
				segments, err := fetcher.FetchTranscript(ctx, externalID)
				if err != nil {
					logger.Warn("transcript fetch failed, correlation will be empty", "error", err)
				} else if err := store.ReplaceSegments(ctx, video.ID, segments); err != nil {
					return fmt.Errorf("persist transcript: %w", err)
				}
			}

			orchestrator, cleanup, err := buildOrchestrator(ctx, cfg, store, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			bar := progressbar.NewOptions(100,
				progressbar.OptionSetDescription("starting"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(30),
			)

			opts := pipelineOptions(cfg)
			opts.OCREnabled = !noOCR
			opts.VisionEnabled = !noVision
			if interval > 0 {
				opts.FrameInterval = interval
			}
			if maxFrames > 0 {
				opts.MaxFrames = maxFrames
			}
			if sampleRate > 0 {
				opts.VisionSampleRate = sampleRate
			}
			opts.OnProgress = func(percent float64, _ pipeline.Stage, _ string) {
				_ = bar.Set(int(percent))
			}
			opts.OnStepChange = func(_ pipeline.Stage, label string) {
				bar.Describe(label)
			}

			result, err := orchestrator.Run(ctx, video, opts)
			fmt.Println()
			if err != nil {
				return fmt.Errorf("analysis failed: %w", err)
			}

			fmt.Printf("Analysis complete: %d frames, %d analyzed, %d keyframes, %d correlations\n",
				result.Stats.FramesExtracted,
				result.Stats.VisionAnalyzed,
				result.Stats.Keyframes,
				result.Stats.CorrelationsCreated)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noOCR, "no-ocr", false, "Skip the OCR stage")
	cmd.Flags().BoolVar(&noVision, "no-vision", false, "Skip the vision analysis stage")
	cmd.Flags().IntVar(&interval, "interval", 0, "Seconds between extracted frames")
	cmd.Flags().IntVar(&maxFrames, "max-frames", 0, "Maximum frames to extract")
	cmd.Flags().IntVar(&sampleRate, "sample-rate", 0, "Analyze every Nth unprocessed frame")
	cmd.Flags().StringVar(&externalID, "youtube-id", "", "Platform video id to fetch the transcript for")

	return cmd
}
