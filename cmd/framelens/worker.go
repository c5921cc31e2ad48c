package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"

	"github.com/framelens/framelens/internal/metrics"
	"github.com/framelens/framelens/internal/queue"
	"github.com/framelens/framelens/internal/storage"
	"github.com/framelens/framelens/internal/tracing"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume analysis jobs from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(cfg.LogLevel)
			logger.Info("starting framelens worker")

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if cfg.OTLPEndpoint != "" {
				tp, err := tracing.InitTracer(ctx, cfg.OTLPEndpoint)
				if err != nil {
					logger.Warn("tracing init failed, continuing without tracing", slog.Any("error", err))
				} else {
					defer tp.Shutdown(ctx)
				}
			}

			store, err := storage.NewStore(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer store.Close()

			orchestrator, cleanup, err := buildOrchestrator(ctx, cfg, store, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			conn, err := amqp.Dial(cfg.RabbitMQURL)
			if err != nil {
				return fmt.Errorf("connect to rabbitmq: %w", err)
			}
			defer conn.Close()

			pub, err := queue.NewPublisher(conn, cfg.Exchange)
			if err != nil {
				return fmt.Errorf("create publisher: %w", err)
			}

			handler := queue.NewHandler(
				store, store, orchestrator,
				queue.NewStatusPublisher(pub),
				queue.NewDLQPublisher(pub, cfg.DLQ),
				logger,
				queue.HandlerConfig{
					MaxRetries: cfg.MaxRetries,
					Options:    pipelineOptions(cfg),
				},
			)

			metricsSrv := metrics.StartServer(cfg.MetricsPort, logger)

			consumer, err := queue.NewConsumer(queue.ConsumerConfig{
				URL:         cfg.RabbitMQURL,
				Queue:       cfg.AnalysisQueue,
				Exchange:    cfg.Exchange,
				DLQ:         cfg.DLQ,
				StatusQueue: cfg.StatusQueue,
				Prefetch:    cfg.Prefetch,
				WorkerCount: cfg.WorkerCount,
				BaseDelayMs: cfg.RetryBaseDelayMs,
			}, handler.Handle, logger)
			if err != nil {
				return fmt.Errorf("create consumer: %w", err)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				logger.Info("received shutdown signal", slog.String("signal", sig.String()))
				cancel()
			}()

			logger.Info("framelens worker started, consuming messages",
				slog.String("queue", cfg.AnalysisQueue))

			if err := consumer.Start(ctx); err != nil {
				logger.Error("consumer error", slog.Any("error", err))
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			metricsSrv.Shutdown(shutdownCtx)

			consumer.Close()
			logger.Info("framelens worker stopped")
			return nil
		},
	}
}
