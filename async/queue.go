package async

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/teranos/jobd/errors"
	"github.com/teranos/jobd/logger"
)

// SubscriberChannelBufferSize is the buffer size for subscriber channels
const SubscriberChannelBufferSize = 100

// Config holds the queue's tunables
type Config struct {
	TTL           time.Duration // Retention window for terminal jobs (0 disables)
	MaxItems      int           // Capacity cap on live records (0 disables)
	RunTimeout    time.Duration // Post-hoc execution budget (0 disables)
	MaxConcurrent int           // Simultaneously executing jobs (0 = unlimited)
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		TTL:        DefaultTTL,
		MaxItems:   DefaultMaxItems,
		RunTimeout: DefaultRunTimeout,
	}
}

// Option customises a Queue at construction
type Option func(*Queue)

// WithClock replaces the time source. Durations are measured as differences
// between two calls, so a fake clock controls timeout classification too.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithIDGenerator replaces uuid.NewString for job IDs
func WithIDGenerator(newID func() string) Option {
	return func(q *Queue) { q.newID = newID }
}

// WithLogger sets the logger (default: logger.Logger named "async")
func WithLogger(l *zap.SugaredLogger) Option {
	return func(q *Queue) { q.logger = jobLogger{l} }
}

// SubmitRequest describes one unit of work
type SubmitRequest struct {
	Task           string
	Payload        json.RawMessage
	IdempotencyKey string
}

// Receipt acknowledges a submission. On idempotent replay it carries the
// original job's ID and CreatedAt and its current status.
type Receipt struct {
	JobID      string    `json:"jobId"`
	Status     JobStatus `json:"status"`
	AcceptedAt time.Time `json:"acceptedAt"`
	Replayed   bool      `json:"-"`
}

// HealthSnapshot is the liveness check payload
type HealthSnapshot struct {
	JobsInMemory    int
	IdempotencyKeys int
	TTL             time.Duration
	MaxItems        int
	RunTimeout      time.Duration
	Memory          MemoryStats
}

// Queue is the job orchestrator. All store access happens under mu; the
// executor is always invoked outside it.
type Queue struct {
	mu         sync.Mutex
	store      *Store
	policy     RetentionPolicy
	runTimeout time.Duration
	closed     bool

	executor Executor
	sem      *semaphore.Weighted // nil when unbounded

	now    func() time.Time
	newID  func() string
	logger jobLogger

	ctx    context.Context // lifetime of execution paths, cancelled by Close
	cancel context.CancelFunc
	wg     sync.WaitGroup

	subscribers []chan JobView
}

// NewQueue creates a queue that runs jobs through executor
func NewQueue(executor Executor, cfg Config, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		store:      NewStore(),
		policy:     RetentionPolicy{TTL: cfg.TTL, MaxItems: cfg.MaxItems},
		runTimeout: cfg.RunTimeout,
		executor:   executor,
		now:        time.Now,
		newID:      uuid.NewString,
		logger:     jobLogger{logger.Logger.Named("async")},
		ctx:        ctx,
		cancel:     cancel,
	}
	if cfg.MaxConcurrent > 0 {
		q.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// timestamp returns the current time for recording on a job
func (q *Queue) timestamp() time.Time {
	return q.now().UTC()
}

// sweepLocked runs retention. Caller must hold q.mu.
func (q *Queue) sweepLocked() {
	evicted := q.store.Sweep(q.timestamp(), q.policy)
	if len(evicted) > 0 {
		q.logger.Debugw("Evicted jobs", logger.FieldCount, len(evicted), logger.FieldEvicted, evicted)
	}
}

// Submit registers a job and schedules its execution. It never waits for
// the executor.
func (q *Queue) Submit(ctx context.Context, req SubmitRequest) (Receipt, error) {
	if req.Task == "" {
		return Receipt{}, errUnsupportedTask(req.Task)
	}
	if v, ok := q.executor.(TaskValidator); ok {
		if !v.Supports(req.Task) {
			return Receipt{}, errUnsupportedTask(req.Task)
		}
		if err := v.ValidatePayload(req.Task, req.Payload); err != nil {
			return Receipt{}, errInvalidPayload(req.Task, err)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.sweepLocked()

	if req.IdempotencyKey != "" {
		if existing := q.store.LookupKey(req.IdempotencyKey); existing != nil {
			logger.FromContext(ctx, q.logger.SugaredLogger).Debugw("Idempotent replay",
				logger.FieldJobID, existing.ID,
				logger.FieldIdempotencyKey, req.IdempotencyKey,
				logger.FieldStatus, existing.Status)
			return Receipt{
				JobID:      existing.ID,
				Status:     existing.Status,
				AcceptedAt: existing.CreatedAt,
				Replayed:   true,
			}, nil
		}
	}

	if q.closed {
		return Receipt{}, errShuttingDown()
	}

	job := newJob(q.newID(), req.Task, req.IdempotencyKey, q.timestamp())
	if err := q.store.Put(job); err != nil {
		err = errors.Wrap(err, "failed to submit job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		return Receipt{}, err
	}

	q.notifySubscribers(job)

	payload := append(json.RawMessage(nil), req.Payload...)
	q.wg.Add(1)
	go q.run(job.ID, job.Task, payload)

	logger.FromContext(ctx, q.logger.SugaredLogger).Infow("Job accepted",
		logger.FieldJobID, job.ID,
		logger.FieldTask, job.Task)

	return Receipt{JobID: job.ID, Status: job.Status, AcceptedAt: job.CreatedAt}, nil
}

// Status returns the job without its result
func (q *Queue) Status(id string) (JobView, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.sweepLocked()

	job := q.store.Get(id)
	if job == nil {
		return JobView{}, errJobNotFound(id)
	}
	return job.View(), nil
}

// Result returns the payload of a done job. Every other status is a
// conflict describing why there is no result.
func (q *Queue) Result(id string) (json.RawMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.sweepLocked()

	job := q.store.Get(id)
	if job == nil {
		return nil, errJobNotFound(id)
	}
	if job.Status != JobStatusDone || job.Result == nil {
		return nil, errNoResult(job)
	}
	return append(json.RawMessage(nil), job.Result...), nil
}

// Cancel marks a pending or running job canceled. Canceling a canceled job
// confirms it. A running executor is not interrupted; its outcome is
// discarded when it returns.
func (q *Queue) Cancel(id string) (JobView, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.sweepLocked()

	job := q.store.Get(id)
	if job == nil {
		return JobView{}, errJobNotFound(id)
	}
	switch job.Status {
	case JobStatusDone, JobStatusFailed, JobStatusTimeout:
		return JobView{}, errNotCancelable(job)
	}

	wasCanceled := job.Status == JobStatusCanceled
	job.cancel(q.timestamp())
	if !wasCanceled {
		q.notifySubscribers(job)
		q.logger.Infow("Job canceled", logger.FieldJobID, job.ID, logger.FieldTask, job.Task)
	}
	return job.View(), nil
}

// List returns one page of jobs, newest first. Options are validated
// before the store is touched.
func (q *Queue) List(opts ListOptions) (Page, error) {
	query, err := opts.validate()
	if err != nil {
		return Page{}, err
	}

	q.mu.Lock()
	q.sweepLocked()
	jobs := q.store.All()
	q.mu.Unlock()

	return paginate(jobs, query), nil
}

// Health reports store occupancy and the active policy
func (q *Queue) Health() HealthSnapshot {
	q.mu.Lock()
	q.sweepLocked()
	snap := HealthSnapshot{
		JobsInMemory:    q.store.Len(),
		IdempotencyKeys: q.store.IdempotencyKeys(),
		TTL:             q.policy.TTL,
		MaxItems:        q.policy.MaxItems,
		RunTimeout:      q.runTimeout,
	}
	q.mu.Unlock()

	snap.Memory = readMemoryStats()
	return snap
}

// SetPolicy swaps retention and timeout settings at runtime. Jobs already
// executing keep the budget they started with.
func (q *Queue) SetPolicy(policy RetentionPolicy, runTimeout time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.policy = policy
	q.runTimeout = runTimeout
	q.logger.Infow("Queue policy updated",
		"ttl", policy.TTL,
		"max_items", policy.MaxItems,
		"run_timeout", runTimeout)
	q.sweepLocked()
}

// Subscribe returns a channel that receives a view of every job transition.
// Slow subscribers miss updates rather than blocking the queue.
func (q *Queue) Subscribe() <-chan JobView {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan JobView, SubscriberChannelBufferSize)
	if q.closed {
		close(ch)
		return ch
	}
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// Unsubscribe removes and closes a subscription
func (q *Queue) Unsubscribe(ch <-chan JobView) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, sub := range q.subscribers {
		if (<-chan JobView)(sub) == ch {
			close(sub)
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers sends a job view to all subscribers (non-blocking).
// Caller must hold q.mu.
func (q *Queue) notifySubscribers(job *Job) {
	view := job.View()
	for _, sub := range q.subscribers {
		select {
		case sub <- view:
		default:
			// Channel full, skip notification
		}
	}
}

// Close stops accepting new jobs and waits for in-flight executions.
// If ctx expires first, executor contexts are cancelled, jobs that never
// started are canceled, and ctx.Err() is returned.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.logger.Closing("Queue closing, waiting for in-flight jobs")

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		q.logger.Closing("Queue close deadline reached, cancelling executions")
	}
	q.cancel()

	q.mu.Lock()
	for _, sub := range q.subscribers {
		close(sub)
	}
	q.subscribers = nil
	q.mu.Unlock()

	q.logger.Pulse("Queue closed")
	return err
}
