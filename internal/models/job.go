package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a queued analysis job. Terminal
// states are final.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// AnalysisJob tracks one queue-backed pipeline invocation.
type AnalysisJob struct {
	ID           uuid.UUID
	VideoID      int64
	Status       JobStatus
	Progress     float64
	Result       string
	ErrorMessage string
	Attempt      int
	MaxAttempts  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// NewAnalysisJob creates a pending job for a video.
func NewAnalysisJob(videoID int64, maxAttempts int) *AnalysisJob {
	now := time.Now().UTC()
	return &AnalysisJob{
		ID:          uuid.New(),
		VideoID:     videoID,
		Status:      JobStatusPending,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkProcessing moves the job into the processing state and burns an attempt.
func (j *AnalysisJob) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.Progress = 0
	j.ErrorMessage = ""
	j.UpdatedAt = time.Now().UTC()
}

// MarkCompleted finalizes the job with a serialized result.
func (j *AnalysisJob) MarkCompleted(result string) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.Result = result
	j.Progress = 100
	j.UpdatedAt = now
	j.CompletedAt = &now
}

// MarkFailed records a failure. The triggering message is retained for
// display.
func (j *AnalysisJob) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

// CanRetry reports whether the job has attempts left.
func (j *AnalysisJob) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
