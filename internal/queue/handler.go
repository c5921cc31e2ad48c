package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/framelens/framelens/internal/metrics"
	"github.com/framelens/framelens/internal/models"
	"github.com/framelens/framelens/internal/pipeline"
)

// RetryableError reports a failure worth redelivering, carrying the
// attempt count from the job record so the consumer can back off
// without trusting broker headers (a plain requeue never sets
// x-death).
type RetryableError struct {
	Attempt int
	Err     error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable failure (attempt %d): %v", e.Attempt, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// AnalysisRequest is the inbound message that triggers one pipeline
// run.
type AnalysisRequest struct {
	JobID         uuid.UUID `json:"job_id"`
	VideoID       int64     `json:"video_id"`
	OCREnabled    *bool     `json:"ocr_enabled,omitempty"`
	VisionEnabled *bool     `json:"vision_enabled,omitempty"`
}

// StatusMessage is published after every job state change.
type StatusMessage struct {
	JobID        uuid.UUID        `json:"job_id"`
	VideoID      int64            `json:"video_id"`
	Status       models.JobStatus `json:"status"`
	Progress     float64          `json:"progress"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Attempt      int              `json:"attempt"`
	MaxAttempts  int              `json:"max_attempts"`
}

// JobStore is the job persistence surface the handler needs.
type JobStore interface {
	JobByID(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error)
	CreateJob(ctx context.Context, job *models.AnalysisJob) error
	UpdateJob(ctx context.Context, job *models.AnalysisJob) error
}

// VideoStore resolves the video a job refers to.
type VideoStore interface {
	VideoByID(ctx context.Context, id int64) (*models.Video, error)
}

// Runner executes the analysis pipeline.
type Runner interface {
	Run(ctx context.Context, video *models.Video, opts pipeline.Options) (*pipeline.Result, error)
}

// StatusSink publishes job status updates.
type StatusSink interface {
	PublishStatus(ctx context.Context, msg []byte) error
}

// DLQSink parks permanently failed messages.
type DLQSink interface {
	PublishToDLQ(ctx context.Context, msg []byte, reason string) error
}

// Handler turns analysis requests into pipeline runs, tracking each as
// an AnalysisJob with bounded retries.
type Handler struct {
	jobs       JobStore
	videos     VideoStore
	runner     Runner
	status     StatusSink
	dlq        DLQSink
	logger     *slog.Logger
	maxRetries int
	baseOpts   pipeline.Options
}

// HandlerConfig carries the handler's tunables.
type HandlerConfig struct {
	MaxRetries int
	Options    pipeline.Options
}

// NewHandler creates the analysis job handler.
func NewHandler(jobs JobStore, videos VideoStore, runner Runner, status StatusSink, dlq DLQSink,
	logger *slog.Logger, cfg HandlerConfig) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		jobs:       jobs,
		videos:     videos,
		runner:     runner,
		status:     status,
		dlq:        dlq,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		baseOpts:   cfg.Options,
	}
}

// Handle processes one analysis request. A returned error signals the
// consumer to nack and requeue; a nil return acknowledges the message,
// including the cases where it was parked on the DLQ.
func (h *Handler) Handle(ctx context.Context, body []byte) error {
	var msg AnalysisRequest
	if err := json.Unmarshal(body, &msg); err != nil {
		h.logger.Error("failed to unmarshal analysis request", slog.Any("error", err))
		_ = h.dlq.PublishToDLQ(ctx, body, "unmarshal_error: "+err.Error())
		return nil
	}

	log := h.logger.With(
		slog.String("job_id", msg.JobID.String()),
		slog.Int64("video_id", msg.VideoID))

	job, err := h.jobs.JobByID(ctx, msg.JobID)
	if err != nil {
		log.Error("failed to load job", slog.Any("error", err))
		return fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		job = models.NewAnalysisJob(msg.VideoID, h.maxRetries)
		job.ID = msg.JobID
		if err := h.jobs.CreateJob(ctx, job); err != nil {
			log.Error("failed to create job record", slog.Any("error", err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to dead letter queue")
		return h.permanentFailure(ctx, job, body, "max retries exceeded")
	}

	job.MarkProcessing()
	if err := h.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	video, err := h.videos.VideoByID(ctx, msg.VideoID)
	if err != nil {
		return h.retryableFailure(ctx, job, body, "load video: "+err.Error(), log)
	}

	result, err := h.runner.Run(ctx, video, h.options(msg, job))
	if err != nil {
		return h.retryableFailure(ctx, job, body, err.Error(), log)
	}

	encoded, err := json.Marshal(result.Stats)
	if err != nil {
		encoded = []byte("{}")
	}
	job.MarkCompleted(string(encoded))
	if err := h.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("update job completed: %w", err)
	}

	h.publishStatus(ctx, job, log)
	log.Info("analysis job completed",
		slog.Int("frames_extracted", result.Stats.FramesExtracted),
		slog.Int("correlations", result.Stats.CorrelationsCreated))
	return nil
}

// options merges per-message toggles onto the configured defaults and
// wires progress persistence onto the job row.
func (h *Handler) options(msg AnalysisRequest, job *models.AnalysisJob) pipeline.Options {
	opts := h.baseOpts
	if msg.OCREnabled != nil {
		opts.OCREnabled = *msg.OCREnabled
	}
	if msg.VisionEnabled != nil {
		opts.VisionEnabled = *msg.VisionEnabled
	}
	opts.OnProgress = func(percent float64, _ pipeline.Stage, _ string) {
		job.Progress = percent
	}
	// Persisting on every progress tick would hammer the job table, so
	// the row is written once per stage boundary.
	opts.OnStepChange = func(_ pipeline.Stage, _ string) {
		if err := h.jobs.UpdateJob(context.Background(), job); err != nil {
			h.logger.Warn("failed to persist job progress", slog.Any("error", err))
		}
	}
	return opts
}

func (h *Handler) retryableFailure(ctx context.Context, job *models.AnalysisJob, body []byte,
	errMsg string, log *slog.Logger) error {
	job.MarkFailed(errMsg)
	if err := h.jobs.UpdateJob(ctx, job); err != nil {
		log.Error("failed to persist job failure", slog.Any("error", err))
	}

	if !job.CanRetry() {
		return h.permanentFailure(ctx, job, body, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	h.publishStatus(ctx, job, log)
	return &RetryableError{Attempt: job.Attempt, Err: errors.New(errMsg)}
}

func (h *Handler) permanentFailure(ctx context.Context, job *models.AnalysisJob, body []byte, errMsg string) error {
	job.MarkFailed(errMsg)
	if err := h.jobs.UpdateJob(ctx, job); err != nil {
		h.logger.Error("failed to persist terminal job failure", slog.Any("error", err))
	}

	_ = h.dlq.PublishToDLQ(ctx, body, errMsg)
	h.publishStatus(ctx, job, h.logger)
	return nil
}

func (h *Handler) publishStatus(ctx context.Context, job *models.AnalysisJob, log *slog.Logger) {
	msg := StatusMessage{
		JobID:        job.ID,
		VideoID:      job.VideoID,
		Status:       job.Status,
		Progress:     job.Progress,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
	data, _ := json.Marshal(msg)
	if err := h.status.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", slog.Any("error", err))
	}
}
