package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/framelens/framelens/internal/storage"
)

func newCorrelationsCommand() *cobra.Command {
	var minScore int

	cmd := &cobra.Command{
		Use:   "correlations <video-id>",
		Short: "List frame to transcript correlations for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			videoID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid video id %q", args[0])
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			store, err := storage.NewStore(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer store.Close()

			correlations, err := store.CorrelationsByVideo(ctx, videoID)
			if err != nil {
				return err
			}

			for _, c := range correlations {
				if c.Score < minScore {
					continue
				}
				var elements []string
				if c.MatchingElements.ContentTypeMatch {
					elements = append(elements, "type")
				}
				if len(c.MatchingElements.TextMatches) > 0 {
					elements = append(elements, "text:"+strings.Join(c.MatchingElements.TextMatches, ","))
				}
				if len(c.MatchingElements.SceneMatches) > 0 {
					elements = append(elements, "scene")
				}
				fmt.Printf("%8.1fs +%.1fs  frame %d  score %3d  %s\n",
					c.SegmentStart, c.SegmentDuration, c.FrameID, c.Score, strings.Join(elements, " "))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&minScore, "min-score", 0, "only show correlations at or above this score")
	return cmd
}
