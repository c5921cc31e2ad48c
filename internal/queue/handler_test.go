package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framelens/framelens/internal/models"
	"github.com/framelens/framelens/internal/pipeline"
)

type fakeJobStore struct {
	jobs map[uuid.UUID]*models.AnalysisJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*models.AnalysisJob)}
}

func (f *fakeJobStore) JobByID(_ context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	return f.jobs[id], nil
}

func (f *fakeJobStore) CreateJob(_ context.Context, job *models.AnalysisJob) error {
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobStore) UpdateJob(_ context.Context, job *models.AnalysisJob) error {
	f.jobs[job.ID] = job
	return nil
}

type fakeVideoStore struct{}

func (fakeVideoStore) VideoByID(_ context.Context, id int64) (*models.Video, error) {
	return &models.Video{ID: id, Title: "demo", SourcePath: "/videos/demo.mp4"}, nil
}

type fakeRunner struct {
	err  error
	opts pipeline.Options
}

func (f *fakeRunner) Run(_ context.Context, _ *models.Video, opts pipeline.Options) (*pipeline.Result, error) {
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Result{
		Success: true,
		Stats:   pipeline.Stats{FramesExtracted: 10, CorrelationsCreated: 4},
	}, nil
}

type fakeStatusSink struct{ published []StatusMessage }

func (f *fakeStatusSink) PublishStatus(_ context.Context, msg []byte) error {
	var decoded StatusMessage
	if err := json.Unmarshal(msg, &decoded); err != nil {
		return err
	}
	f.published = append(f.published, decoded)
	return nil
}

type fakeDLQSink struct{ reasons []string }

func (f *fakeDLQSink) PublishToDLQ(_ context.Context, _ []byte, reason string) error {
	f.reasons = append(f.reasons, reason)
	return nil
}

func newTestHandler(jobs *fakeJobStore, runner *fakeRunner, status *fakeStatusSink, dlq *fakeDLQSink) *Handler {
	return NewHandler(jobs, fakeVideoStore{}, runner, status, dlq, nil, HandlerConfig{
		MaxRetries: 3,
		Options:    pipeline.DefaultOptions(),
	})
}

func requestBody(t *testing.T, msg AnalysisRequest) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return body
}

func TestHandleSuccess(t *testing.T) {
	jobs := newFakeJobStore()
	runner := &fakeRunner{}
	status := &fakeStatusSink{}
	dlq := &fakeDLQSink{}
	handler := newTestHandler(jobs, runner, status, dlq)

	jobID := uuid.New()
	err := handler.Handle(context.Background(), requestBody(t, AnalysisRequest{JobID: jobID, VideoID: 7}))
	require.NoError(t, err)

	job := jobs.jobs[jobID]
	require.NotNil(t, job)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 100.0, job.Progress)
	assert.Contains(t, job.Result, "FramesExtracted")

	require.NotEmpty(t, status.published)
	assert.Equal(t, models.JobStatusCompleted, status.published[len(status.published)-1].Status)
	assert.Empty(t, dlq.reasons)
}

func TestHandleMalformedMessageGoesToDLQ(t *testing.T) {
	jobs := newFakeJobStore()
	dlq := &fakeDLQSink{}
	handler := newTestHandler(jobs, &fakeRunner{}, &fakeStatusSink{}, dlq)

	err := handler.Handle(context.Background(), []byte("not json"))
	assert.NoError(t, err, "malformed messages are acked, not requeued")
	require.Len(t, dlq.reasons, 1)
	assert.Contains(t, dlq.reasons[0], "unmarshal_error")
}

func TestHandleRunFailureRequeues(t *testing.T) {
	jobs := newFakeJobStore()
	runner := &fakeRunner{err: errors.New("extraction stage: ffmpeg exited 1")}
	status := &fakeStatusSink{}
	dlq := &fakeDLQSink{}
	handler := newTestHandler(jobs, runner, status, dlq)

	jobID := uuid.New()
	err := handler.Handle(context.Background(), requestBody(t, AnalysisRequest{JobID: jobID, VideoID: 7}))
	require.Error(t, err, "failures with retries left are nacked for redelivery")

	job := jobs.jobs[jobID]
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, 1, job.Attempt)
	assert.Empty(t, dlq.reasons)
	require.NotEmpty(t, status.published)
	assert.Contains(t, status.published[0].ErrorMessage, "ffmpeg")

	var retryable *RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.Equal(t, 1, retryable.Attempt)
}

func TestHandleFailureErrorTracksAttempts(t *testing.T) {
	jobs := newFakeJobStore()
	runner := &fakeRunner{err: errors.New("still broken")}
	handler := newTestHandler(jobs, runner, &fakeStatusSink{}, &fakeDLQSink{})

	body := requestBody(t, AnalysisRequest{JobID: uuid.New(), VideoID: 7})
	for want := 1; want <= 2; want++ {
		err := handler.Handle(context.Background(), body)
		var retryable *RetryableError
		require.ErrorAs(t, err, &retryable)
		assert.Equal(t, want, retryable.Attempt)
	}
}

func TestHandleExhaustedRetriesParksOnDLQ(t *testing.T) {
	jobs := newFakeJobStore()
	runner := &fakeRunner{err: errors.New("still broken")}
	status := &fakeStatusSink{}
	dlq := &fakeDLQSink{}
	handler := newTestHandler(jobs, runner, status, dlq)

	jobID := uuid.New()
	body := requestBody(t, AnalysisRequest{JobID: jobID, VideoID: 7})

	for i := 0; i < 2; i++ {
		require.Error(t, handler.Handle(context.Background(), body))
	}
	// Third attempt burns the last retry and parks the message.
	err := handler.Handle(context.Background(), body)
	assert.NoError(t, err)
	require.Len(t, dlq.reasons, 1)
	assert.Equal(t, models.JobStatusFailed, jobs.jobs[jobID].Status)

	// A redelivery after exhaustion goes straight to the DLQ.
	require.NoError(t, handler.Handle(context.Background(), body))
	assert.Len(t, dlq.reasons, 2)
}

func TestHandleMessageTogglesOverrideDefaults(t *testing.T) {
	jobs := newFakeJobStore()
	runner := &fakeRunner{}
	handler := newTestHandler(jobs, runner, &fakeStatusSink{}, &fakeDLQSink{})

	disabled := false
	body := requestBody(t, AnalysisRequest{JobID: uuid.New(), VideoID: 7, OCREnabled: &disabled})
	require.NoError(t, handler.Handle(context.Background(), body))
	assert.False(t, runner.opts.OCREnabled)
	assert.True(t, runner.opts.VisionEnabled)
}

func TestBackoffCapsAtOneMinute(t *testing.T) {
	base := time.Second
	assert.Equal(t, time.Second, backoff(base, 1))
	assert.Equal(t, 4*time.Second, backoff(base, 3))
	assert.Equal(t, 60*time.Second, backoff(base, 10))
}

func TestAttemptFromHeaders(t *testing.T) {
	assert.Equal(t, 1, attemptFromHeaders(amqp.Delivery{}))

	d := amqp.Delivery{Headers: amqp.Table{
		"x-death": []interface{}{map[string]interface{}{}, map[string]interface{}{}},
	}}
	assert.Equal(t, 2, attemptFromHeaders(d))
}

func TestAttemptFromErrorPrefersJobAttempt(t *testing.T) {
	// Plain requeues never set x-death, so the handler's count is what
	// drives escalating backoff.
	err := fmt.Errorf("handle: %w", &RetryableError{Attempt: 3, Err: errors.New("boom")})
	assert.Equal(t, 3, attemptFromError(err, amqp.Delivery{}))

	// Untyped errors fall back to the broker header.
	d := amqp.Delivery{Headers: amqp.Table{
		"x-death": []interface{}{map[string]interface{}{}, map[string]interface{}{}},
	}}
	assert.Equal(t, 2, attemptFromError(errors.New("boom"), d))
	assert.Equal(t, 1, attemptFromError(errors.New("boom"), amqp.Delivery{}))
}
