package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"

	"github.com/framelens/framelens/internal/models"
	"github.com/framelens/framelens/internal/queue"
	"github.com/framelens/framelens/internal/storage"
)

func newEnqueueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <video-id>",
		Short: "Queue an analysis job for a registered video",
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

			if _, err := store.VideoByID(ctx, videoID); err != nil {
				return fmt.Errorf("load video: %w", err)
			}

			job := models.NewAnalysisJob(videoID, cfg.MaxRetries)
			if err := store.CreateJob(ctx, job); err != nil {
				return fmt.Errorf("create job: %w", err)
			}

			conn, err := amqp.Dial(cfg.RabbitMQURL)
			if err != nil {
				return fmt.Errorf("connect to rabbitmq: %w", err)
			}
			defer conn.Close()

			pub, err := queue.NewPublisher(conn, cfg.Exchange)
			if err != nil {
				return fmt.Errorf("create publisher: %w", err)
			}

			body, err := json.Marshal(queue.AnalysisRequest{JobID: job.ID, VideoID: videoID})
			if err != nil {
				return fmt.Errorf("encode request: %w", err)
			}
			if err := pub.PublishAnalysisRequest(ctx, body); err != nil {
				return fmt.Errorf("publish request: %w", err)
			}

			fmt.Printf("queued job %s for video %d\n", job.ID, videoID)
			return nil
		},
	}
}
