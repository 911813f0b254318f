package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/jobs"
	"github.com/dvloznov/finance-reconciler/internal/logger"
)

const (
	defaultWorkers    = 5
	defaultQueueSize  = 100
	defaultMaxRetries = 3
	defaultBackoff    = time.Second
)

// QueueConfig tunes the worker pool. Zero values use the defaults.
type QueueConfig struct {
	Workers    int
	QueueSize  int
	MaxRetries int
	// Backoff is the delay before the first retry. It doubles per retry.
	Backoff time.Duration
	Now     func() time.Time
}

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// This implementation is suitable for single-instance deployments and testing.
type Queue struct {
	jobChan   chan string
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	cfg QueueConfig

	runningMu sync.Mutex
	running   map[string]context.CancelFunc
}

// NewQueue creates a new in-memory job queue.
// QueueSize determines how many jobs can be queued before Publish blocks.
func NewQueue(cfg QueueConfig, store jobs.JobStore) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Queue{
		jobChan:   make(chan string, cfg.QueueSize),
		closeChan: make(chan struct{}),
		store:     store,
		cfg:       cfg,
		running:   make(map[string]context.CancelFunc),
	}
}

// Publish implements the Publisher interface.
// It saves the job as PENDING and enqueues it for asynchronous processing.
func (q *Queue) Publish(ctx context.Context, job *jobs.ExtractJob) error {
	if q.isClosed() {
		return jobs.ErrQueueClosed
	}
	if job.Input.Empty() {
		return fmt.Errorf("Publish: %w", domain.Invalid("input", "text or image is required"))
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	job.Status = jobs.JobStatusPending
	if job.CreatedAt.IsZero() {
		job.CreatedAt = q.cfg.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.cfg.MaxRetries
	}

	if err := q.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("Publish: failed to save job: %w", err)
	}
	return q.enqueue(ctx, job.JobID)
}

func (q *Queue) enqueue(ctx context.Context, jobID string) error {
	if q.isClosed() {
		return jobs.ErrQueueClosed
	}
	select {
	case q.jobChan <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return jobs.ErrQueueClosed
	}
}

func (q *Queue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Cancel implements the Publisher interface. A running extraction is
// interrupted and its result, if it still arrives, is dropped.
func (q *Queue) Cancel(ctx context.Context, jobID string) (*jobs.ExtractJob, error) {
	job, err := q.store.Cancel(ctx, jobID, q.cfg.Now())
	if err != nil {
		return nil, err
	}
	q.runningMu.Lock()
	if cancel, ok := q.running[jobID]; ok {
		cancel()
	}
	q.runningMu.Unlock()

	log := logger.FromContext(ctx)
	log.Info().Str("job_id", jobID).Msg("job cancelled")
	return job, nil
}

// Start implements the Consumer interface.
// The handler is called concurrently for each job, up to Workers workers.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	if handler == nil {
		return fmt.Errorf("Start: handler is required")
	}
	if q.isClosed() {
		return jobs.ErrQueueClosed
	}

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	log := logger.FromContext(ctx)
	log.Info().Int("workers", q.cfg.Workers).Msg("job queue started")
	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case jobID := <-q.jobChan:
			q.processJob(ctx, jobID, handler)
		}
	}
}

// processJob executes a single attempt and schedules a retry on failure.
func (q *Queue) processJob(ctx context.Context, jobID string, handler jobs.JobHandler) {
	log := logger.FromContext(ctx).With().Str("job_id", jobID).Logger()

	var job *jobs.ExtractJob
	started := q.cfg.Now()
	ok, err := q.store.Transition(ctx, jobID, jobs.JobStatusPending, func(j *jobs.ExtractJob) {
		j.Status = jobs.JobStatusProcessing
		j.StartedAt = &started
		job = j.Clone()
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to start job")
		return
	}
	if !ok {
		log.Debug().Msg("job no longer pending, skipping")
		return
	}

	jobCtx, cancel := context.WithCancel(logger.WithContext(ctx, log))
	q.runningMu.Lock()
	q.running[jobID] = cancel
	q.runningMu.Unlock()
	defer func() {
		q.runningMu.Lock()
		delete(q.running, jobID)
		q.runningMu.Unlock()
		cancel()
	}()

	result, herr := handler(jobCtx, job)
	finished := q.cfg.Now()

	if herr == nil {
		applied, err := q.store.Transition(ctx, jobID, jobs.JobStatusProcessing, func(j *jobs.ExtractJob) {
			j.Status = jobs.JobStatusAwaitingReview
			j.Result = result
			j.Error = ""
			j.CompletedAt = &finished
		})
		switch {
		case err != nil:
			log.Error().Err(err).Msg("failed to save job result")
		case !applied:
			log.Warn().Msg("dropping result of cancelled job")
		default:
			log.Info().Msg("job awaiting review")
		}
		return
	}

	var retryIn time.Duration
	applied, err := q.store.Transition(ctx, jobID, jobs.JobStatusProcessing, func(j *jobs.ExtractJob) {
		j.Error = herr.Error()
		if j.RetryCount < j.MaxRetries {
			j.RetryCount++
			j.Status = jobs.JobStatusPending
			j.StartedAt = nil
			retryIn = q.cfg.Backoff << (j.RetryCount - 1)
			return
		}
		j.Status = jobs.JobStatusFailed
		j.CompletedAt = &finished
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to save job failure")
		return
	}
	if !applied {
		log.Debug().Err(herr).Msg("cancelled job stopped")
		return
	}
	if retryIn == 0 {
		log.Error().Err(herr).Msg("job failed")
		return
	}

	log.Warn().Err(herr).Dur("backoff", retryIn).Msg("job failed, retrying")
	time.AfterFunc(retryIn, func() {
		if err := q.enqueue(ctx, jobID); err != nil {
			log.Warn().Err(err).Msg("could not re-enqueue job")
		}
	})
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
