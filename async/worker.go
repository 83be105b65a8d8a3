package async

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/jobd/errors"
	"github.com/teranos/jobd/logger"
)

// jobLogger wraps zap.SugaredLogger with lifecycle helpers.
// Starting logs at DEBUG, Closing at WARN, Pulse at INFO.
type jobLogger struct {
	*zap.SugaredLogger
}

// Starting logs an opening event
func (l jobLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw("✿ "+msg, keysAndValues...)
}

// Closing logs a closing event
func (l jobLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw("❀ "+msg, keysAndValues...)
}

// Pulse logs general execution activity
func (l jobLogger) Pulse(msg string, keysAndValues ...interface{}) {
	l.Infow(msg, keysAndValues...)
}

// run is the execution path for one submission. It holds the lock only
// around state transitions, never across the executor call.
func (q *Queue) run(id, task string, payload json.RawMessage) {
	defer q.wg.Done()

	if q.sem != nil {
		if err := q.sem.Acquire(q.ctx, 1); err != nil {
			q.abandon(id)
			return
		}
		defer q.sem.Release(1)
	}
	if q.ctx.Err() != nil {
		q.abandon(id)
		return
	}

	budget, ok := q.begin(id)
	if !ok {
		return
	}

	started := q.now()
	result, execErr := q.invoke(id, task, payload)
	elapsed := q.now().Sub(started)

	q.settle(id, result, execErr, elapsed, budget)
}

// begin moves the job to running and returns the timeout budget in force.
// It reports false when the job was canceled or evicted while pending.
func (q *Queue) begin(id string) (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.sweepLocked()

	job := q.store.Get(id)
	if job == nil {
		q.logger.Debugw("Job evicted before start", logger.FieldJobID, id)
		return 0, false
	}
	if job.Status != JobStatusPending {
		q.logger.Debugw("Skipping job", logger.FieldJobID, id, logger.FieldStatus, job.Status)
		return 0, false
	}

	job.start(q.timestamp())
	q.notifySubscribers(job)
	q.logger.Starting("Job running", logger.FieldJobID, id, logger.FieldTask, job.Task)
	return q.runTimeout, true
}

// invoke calls the executor, converting a panic into an error
func (q *Queue) invoke(id, task string, payload json.RawMessage) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
			q.logger.Errorw("Executor panicked",
				logger.FieldJobID, id,
				logger.FieldTask, task,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()

	ctx := logger.WithJobID(q.ctx, id)
	return q.executor.Execute(ctx, task, payload)
}

// settle records the outcome. Precedence: cancel, then timeout, then the
// executor's own error, then success.
func (q *Queue) settle(id string, result json.RawMessage, execErr error, elapsed, budget time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := q.store.Get(id)
	if job == nil {
		q.logger.Debugw("Job evicted while running, outcome dropped", logger.FieldJobID, id)
		return
	}
	if job.Status != JobStatusRunning {
		// canceled while running; the cancel already stamped FinishedAt
		q.logger.Debugw("Outcome discarded", logger.FieldJobID, id, logger.FieldStatus, job.Status)
		return
	}

	now := q.timestamp()
	switch {
	case budget > 0 && elapsed > budget:
		job.timeOut(now)
		q.logger.Warnw("Job timed out",
			logger.FieldJobID, id,
			logger.FieldElapsed, elapsed,
			"budget", budget)
	case execErr != nil:
		job.fail(execErr.Error(), now)
		q.logger.Warnw("Job failed",
			logger.FieldJobID, id,
			logger.FieldError, execErr.Error(),
			logger.FieldElapsed, elapsed)
	default:
		job.complete(result, now)
		q.logger.Pulse("Job done",
			logger.FieldJobID, id,
			logger.FieldTask, job.Task,
			logger.FieldElapsed, elapsed)
	}
	q.notifySubscribers(job)
}

// abandon cancels a job that could not start because the queue shut down
func (q *Queue) abandon(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := q.store.Get(id)
	if job == nil || job.Status != JobStatusPending {
		return
	}
	job.finish(JobStatusCanceled, MessageShutdown, q.timestamp())
	q.notifySubscribers(job)
	q.logger.Closing("Job abandoned", logger.FieldJobID, id)
}
