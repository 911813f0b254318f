// Package jobs runs extraction in the background. A job extracts candidates
// from raw input, reconciles them against the ledger and parks the result
// until a user reviews and commits it.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/extraction"
	"github.com/dvloznov/finance-reconciler/internal/pipeline"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "PENDING"
	// JobStatusProcessing indicates a worker is extracting and reconciling.
	JobStatusProcessing JobStatus = "PROCESSING"
	// JobStatusAwaitingReview indicates the pending batch is ready.
	JobStatusAwaitingReview JobStatus = "AWAITING_REVIEW"
	// JobStatusFailed indicates the job failed after all retries.
	JobStatusFailed JobStatus = "FAILED"
	// JobStatusCancelled indicates the user discarded the job.
	JobStatusCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether no worker will touch a job in this status again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusAwaitingReview, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

var (
	// ErrJobNotFound is returned for unknown job IDs.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFinished is returned when cancelling a job that already failed.
	ErrJobFinished = errors.New("job already finished")
	// ErrQueueClosed is returned when publishing to a stopped queue.
	ErrQueueClosed = errors.New("queue is closed")
)

// ExtractJob represents one extraction request and its pending batch.
type ExtractJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	Input   extraction.Input          `json:"input"`
	Context pipeline.ReconcileContext `json:"context"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// Result is the reconciled batch awaiting review. It is cleared when
	// the job is cancelled.
	Result *pipeline.BatchResult `json:"result,omitempty"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the latest attempt started.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains the last failure, if any.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Clone returns a copy that shares no mutable state with j.
func (j *ExtractJob) Clone() *ExtractJob {
	c := *j
	if j.Input.Image != nil {
		c.Input.Image = append([]byte(nil), j.Input.Image...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	return &c
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// Publish stores the job as PENDING and enqueues it.
	Publish(ctx context.Context, job *ExtractJob) error

	// Cancel discards the job and any pending result.
	Cancel(ctx context.Context, jobID string) (*ExtractJob, error)

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job and returns the batch to park on it.
// A returned error is retried until MaxRetries is exhausted.
type JobHandler func(ctx context.Context, job *ExtractJob) (*pipeline.BatchResult, error)

// JobStore defines the interface for storing and retrieving job state.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ExtractJob) error

	// GetJob retrieves a job by ID. Unknown IDs return ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*ExtractJob, error)

	// ListJobs retrieves jobs with optional filtering, oldest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ExtractJob, error)

	// Transition applies update only when the job is currently in from.
	// It reports whether the update was applied.
	Transition(ctx context.Context, jobID string, from JobStatus, update func(*ExtractJob)) (bool, error)

	// Cancel moves a non-failed job to CANCELLED and drops its result.
	Cancel(ctx context.Context, jobID string, at time.Time) (*ExtractJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
