package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codebuildervaibhav/whisper-jobs/internal/types"
)

// MemoryStore keeps jobs in a process-local map. Records are lost on restart.
type MemoryStore struct {
	mu              sync.RWMutex
	jobs            map[string]*types.Job
	uniqueFilenames bool
}

// NewMemoryStore creates an empty in-memory store. When uniqueFilenames is
// set, Create rejects a second job with the same filename.
func NewMemoryStore(uniqueFilenames bool) *MemoryStore {
	return &MemoryStore{
		jobs:            make(map[string]*types.Job),
		uniqueFilenames: uniqueFilenames,
	}
}

func (s *MemoryStore) Create(ctx context.Context, job *types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	if s.uniqueFilenames && s.findByFilename(job.Filename) != nil {
		return ErrDuplicateFilename
	}

	stored := *job
	s.jobs[job.ID] = &stored
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *job
	return &out, nil
}

func (s *MemoryStore) GetByFilename(ctx context.Context, filename string) (*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job := s.findByFilename(filename)
	if job == nil {
		return nil, ErrNotFound
	}
	out := *job
	return &out, nil
}

// findByFilename returns the oldest job with the given filename. Caller holds mu.
func (s *MemoryStore) findByFilename(filename string) *types.Job {
	var found *types.Job
	for _, job := range s.jobs {
		if job.Filename != filename {
			continue
		}
		if found == nil || job.CreatedAt.Before(found.CreatedAt) {
			found = job
		}
	}
	return found
}

func (s *MemoryStore) Transition(ctx context.Context, id string, from, to types.Status, result *types.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != from {
		return ErrStaleTransition
	}
	job.Status = to
	job.Result = result
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// Consume implements Consumer.
func (s *MemoryStore) Consume(ctx context.Context, id string) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *job
	if job.Status.Terminal() {
		delete(s.jobs, id)
	}
	return &out, nil
}

// Len returns the number of records currently held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Close() error { return nil }
