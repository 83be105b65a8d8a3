package async

import (
	"sort"
	"time"
)

const (
	// DefaultTTL is how long a terminal job is kept after it finished
	DefaultTTL = 1800 * time.Second
	// DefaultMaxItems caps the number of live records
	DefaultMaxItems = 200
	// DefaultRunTimeout is the per-job execution budget
	DefaultRunTimeout = 8 * time.Second
)

// RetentionPolicy bounds the store's memory footprint.
// A zero TTL disables expiry; a zero MaxItems disables the capacity cap.
type RetentionPolicy struct {
	TTL      time.Duration
	MaxItems int
}

// DefaultRetentionPolicy returns the 1800s / 200 item policy
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{TTL: DefaultTTL, MaxItems: DefaultMaxItems}
}

// Sweep enforces the policy and returns the IDs it evicted.
//
// Terminal jobs whose FinishedAt is older than TTL go first. If the store is
// still over MaxItems, the oldest records by CreatedAt are removed regardless
// of status, so a running job can be evicted under sustained overload. The
// idempotency index is rebuilt unconditionally afterwards.
func (s *Store) Sweep(now time.Time, policy RetentionPolicy) []string {
	var evicted []string

	if policy.TTL > 0 {
		for id, job := range s.jobs {
			if !job.Status.IsTerminal() || job.FinishedAt == nil {
				continue
			}
			if now.Sub(*job.FinishedAt) > policy.TTL {
				delete(s.jobs, id)
				evicted = append(evicted, id)
			}
		}
	}

	if policy.MaxItems > 0 && len(s.jobs) > policy.MaxItems {
		ordered := make([]*Job, 0, len(s.jobs))
		for _, job := range s.jobs {
			ordered = append(ordered, job)
		}
		sort.Slice(ordered, func(a, b int) bool {
			return olderThan(ordered[a], ordered[b])
		})
		overflow := len(s.jobs) - policy.MaxItems
		for _, job := range ordered[:overflow] {
			delete(s.jobs, job.ID)
			evicted = append(evicted, job.ID)
		}
	}

	s.Reconcile()
	return evicted
}

// olderThan orders by CreatedAt, then by insertion order
func olderThan(a, b *Job) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.seq < b.seq
}
