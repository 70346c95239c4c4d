package job

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps job snapshots in a map. Jobs are lost on restart.
type MemoryRepository struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryRepository creates a new in-memory job repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		jobs: make(map[string]*Job),
	}
}

// Save stores a clone of job.
func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	snapshot := job.Clone()
	r.mu.Lock()
	r.jobs[snapshot.ID] = snapshot
	r.mu.Unlock()
	return nil
}

// FindByID returns a clone of the stored job.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	stored, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	return stored.Clone(), nil
}

// List returns clones of all jobs, oldest first. Ties on CreatedAt are broken
// by ID so the order is stable.
func (r *MemoryRepository) List(_ context.Context) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.SortedFunc(maps.Values(r.clones()), func(a, b *Job) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	}), nil
}

// clones copies every stored job. Callers hold r.mu.
func (r *MemoryRepository) clones() map[string]*Job {
	out := make(map[string]*Job, len(r.jobs))
	for id, j := range r.jobs {
		out[id] = j.Clone()
	}
	return out
}

// Prune removes terminal jobs that completed before cutoff.
func (r *MemoryRepository) Prune(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.jobs)
	maps.DeleteFunc(r.jobs, func(_ string, j *Job) bool {
		return j.IsTerminal() && j.CompletedAt.Before(cutoff)
	})
	return before - len(r.jobs), nil
}
