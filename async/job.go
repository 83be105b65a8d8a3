// Package async provides the in-memory job lifecycle manager: idempotent
// submission, a status state machine, background execution guarded against
// cancellation races, post-hoc timeout classification and retention.
package async

import (
	"encoding/json"
	"time"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusDone     JobStatus = "done"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
	JobStatusTimeout  JobStatus = "timeout"
)

// Fixed messages recorded on the job when it leaves the happy path
const (
	MessageCanceled = "job canceled by user"
	MessageTimeout  = "job exceeded processing timeout"
	MessageShutdown = "job abandoned during shutdown"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []JobStatus{
	JobStatusPending, JobStatusRunning, JobStatusDone,
	JobStatusFailed, JobStatusCanceled, JobStatusTimeout,
}

// ParseStatus returns the JobStatus named by s
func ParseStatus(s string) (JobStatus, bool) {
	for _, status := range AllStatuses {
		if string(status) == s {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transition can leave this status
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusDone, JobStatusFailed, JobStatusCanceled, JobStatusTimeout:
		return true
	default:
		return false
	}
}

// Job is one submitted unit of asynchronous work.
//
// Only the Queue mutates a Job, and only while holding its lock. Everything
// handed to callers is a copy.
type Job struct {
	ID             string          `json:"jobId"`
	Status         JobStatus       `json:"status"`
	Task           string          `json:"task"`
	CreatedAt      time.Time       `json:"createdAt"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	FinishedAt     *time.Time      `json:"finishedAt,omitempty"`
	Error          string          `json:"error,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`

	// seq is the store insertion order, used to break CreatedAt ties
	seq uint64
}

func newJob(id, task, idempotencyKey string, now time.Time) *Job {
	return &Job{
		ID:             id,
		Status:         JobStatusPending,
		Task:           task,
		CreatedAt:      now,
		IdempotencyKey: idempotencyKey,
	}
}

// start moves a pending job to running
func (j *Job) start(now time.Time) {
	j.Status = JobStatusRunning
	j.StartedAt = &now
}

// complete records a successful result
func (j *Job) complete(result json.RawMessage, now time.Time) {
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	j.Result = result
	j.finish(JobStatusDone, "", now)
}

// fail records an executor failure
func (j *Job) fail(message string, now time.Time) {
	j.finish(JobStatusFailed, message, now)
}

// timeOut records that the executor ran past the budget
func (j *Job) timeOut(now time.Time) {
	j.finish(JobStatusTimeout, MessageTimeout, now)
}

// cancel marks the job canceled; confirming an existing cancellation
// keeps the original FinishedAt.
func (j *Job) cancel(now time.Time) {
	if j.Status == JobStatusCanceled {
		return
	}
	j.finish(JobStatusCanceled, MessageCanceled, now)
}

func (j *Job) finish(status JobStatus, message string, now time.Time) {
	j.Status = status
	j.Error = message
	if j.FinishedAt == nil {
		j.FinishedAt = &now
	}
}

// clone returns a deep copy safe to hand outside the lock
func (j *Job) clone() *Job {
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	if j.Result != nil {
		cp.Result = append(json.RawMessage(nil), j.Result...)
	}
	return &cp
}

// JobView is the status projection of a job: everything except the result.
type JobView struct {
	ID         string     `json:"jobId"`
	Status     JobStatus  `json:"status"`
	Task       string     `json:"task"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// View projects the job for status and list responses
func (j *Job) View() JobView {
	cp := j.clone()
	return JobView{
		ID:         cp.ID,
		Status:     cp.Status,
		Task:       cp.Task,
		CreatedAt:  cp.CreatedAt,
		StartedAt:  cp.StartedAt,
		FinishedAt: cp.FinishedAt,
		Error:      cp.Error,
	}
}
