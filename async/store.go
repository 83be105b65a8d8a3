package async

import (
	"fmt"

	"github.com/teranos/jobd/errors"
)

// ErrDuplicateID is returned by Store.Put when the job ID is already present
var ErrDuplicateID = errors.New("duplicate job id")

// Store is the authoritative mapping of job ID to job record, plus the
// idempotency index derived from it.
//
// Store does no locking of its own. Queue owns the single lock and every
// Store call happens under it.
type Store struct {
	jobs  map[string]*Job
	byKey map[string]string // idempotency key -> job ID, rebuilt by Reconcile
	seq   uint64
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		jobs:  make(map[string]*Job),
		byKey: make(map[string]string),
	}
}

// Put inserts a new record and registers its idempotency key
func (s *Store) Put(job *Job) error {
	if _, exists := s.jobs[job.ID]; exists {
		err := errors.Wrapf(ErrDuplicateID, "failed to insert job %s", job.ID)
		return errors.WithDetail(err, fmt.Sprintf("Task: %s", job.Task))
	}
	s.seq++
	job.seq = s.seq
	s.jobs[job.ID] = job
	if job.IdempotencyKey != "" {
		s.byKey[job.IdempotencyKey] = job.ID
	}
	return nil
}

// Get returns the live record, or nil. Callers must not retain the pointer
// past the lock that guards the store.
func (s *Store) Get(id string) *Job {
	return s.jobs[id]
}

// Delete removes a record unconditionally. The idempotency index is left
// for the next Reconcile.
func (s *Store) Delete(id string) {
	delete(s.jobs, id)
}

// All returns a snapshot of the live records at call time
func (s *Store) All() []*Job {
	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.clone())
	}
	return out
}

// Len returns the number of live records
func (s *Store) Len() int {
	return len(s.jobs)
}

// IdempotencyKeys returns the number of entries in the idempotency index
func (s *Store) IdempotencyKeys() int {
	return len(s.byKey)
}

// LookupKey returns the live record registered under an idempotency key
func (s *Store) LookupKey(key string) *Job {
	id, ok := s.byKey[key]
	if !ok {
		return nil
	}
	return s.jobs[id]
}

// Reconcile recomputes the idempotency index from the live records
func (s *Store) Reconcile() {
	s.byKey = make(map[string]string, len(s.byKey))
	for id, job := range s.jobs {
		if job.IdempotencyKey == "" {
			continue
		}
		// keep the newest record if two ever share a key
		if prev, ok := s.byKey[job.IdempotencyKey]; ok && s.jobs[prev].seq > job.seq {
			continue
		}
		s.byKey[job.IdempotencyKey] = id
	}
}
