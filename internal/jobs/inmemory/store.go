package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/jobs"
)

// Store is an in-memory implementation of JobStore.
// It stores jobs in memory and is safe for concurrent use.
// Data is lost on service restart.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.ExtractJob
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.ExtractJob),
	}
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.ExtractJob) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.JobID] = job.Clone()
	return nil
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.ExtractJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("GetJob: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	return job.Clone(), nil
}

// ListJobs implements the JobStore interface.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.ExtractJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*jobs.ExtractJob{}
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		result = append(result, job.Clone())
	}
	sort.Slice(result, func(i, k int) bool {
		if !result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].CreatedAt.Before(result[k].CreatedAt)
		}
		return result[i].JobID < result[k].JobID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.ExtractJob{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Transition implements the JobStore interface.
func (s *Store) Transition(ctx context.Context, jobID string, from jobs.JobStatus, update func(*jobs.ExtractJob)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return false, fmt.Errorf("Transition: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	if job.Status != from {
		return false, nil
	}
	update(job)
	return true, nil
}

// Cancel implements the JobStore interface. Cancelling twice is a no-op.
func (s *Store) Cancel(ctx context.Context, jobID string, at time.Time) (*jobs.ExtractJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("Cancel: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	switch job.Status {
	case jobs.JobStatusCancelled:
		return job.Clone(), nil
	case jobs.JobStatusFailed:
		return nil, fmt.Errorf("Cancel: %s: %w", jobID, jobs.ErrJobFinished)
	}
	job.Status = jobs.JobStatusCancelled
	job.Result = nil
	job.CompletedAt = &at
	return job.Clone(), nil
}

// Ensure Store implements JobStore interface.
var _ jobs.JobStore = (*Store)(nil)
