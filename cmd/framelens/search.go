package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/framelens/framelens/internal/embeddings"
	"github.com/framelens/framelens/internal/storage"
)

func newSearchCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <video-id> <query...>",
		Short: "Find frames whose scene descriptions match a text query",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			videoID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid video id %q", args[0])
			}
			query := strings.Join(args[1:], " ")

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			store, err := storage.NewStore(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer store.Close()

			embedder := embeddings.NewService(
				fmt.Sprintf("%s:%d", cfg.OllamaBaseURL, cfg.OllamaPort),
				cfg.EmbedModel, 1)
			defer embedder.Close()

			queryEmbedding, err := embedder.Embed(ctx, query)
			if err != nil {
				return fmt.Errorf("embed query: %w", err)
			}

			results, err := store.SearchSimilarFrames(ctx, videoID, queryEmbedding, limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("no matching frames")
				return nil
			}

			for _, r := range results {
				fmt.Printf("%8.1fs  %.3f  %s\n", r.TimestampSeconds, r.Similarity, r.SceneDescription)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 5, "Maximum results to return")
	return cmd
}
