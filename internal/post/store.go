package post

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store keeps job records by id. Implementations must be safe for concurrent use.
type Store interface {
	Create(ctx context.Context, job *Job) error
	// Get returns a snapshot; mutating it does not affect the store.
	Get(ctx context.Context, id string) (*Job, error)
	// Update applies fn to the stored record atomically. It refuses to touch a
	// record that already reached a terminal status.
	Update(ctx context.Context, id string, fn func(*Job)) error
	Delete(ctx context.Context, id string) error
	// Evict drops terminal jobs according to the store's retention policy and
	// reports how many were removed.
	Evict(ctx context.Context, now time.Time) (int, error)
}

// Retention bounds how many finished jobs a store keeps. Zero values disable
// the corresponding limit. Jobs that are still started or running are never
// evicted.
type Retention struct {
	TTL        time.Duration
	MaxEntries int
}

type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	retention Retention
}

func NewMemoryStore(retention Retention) *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job), retention: retention}
}

func (s *MemoryStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return ErrJobExists
	}
	s.jobs[job.ID] = job.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status.Terminal() {
		return ErrJobTerminal
	}
	next := j.clone()
	fn(next)
	next.ID = j.ID
	next.CreatedAt = j.CreatedAt
	s.jobs[id] = next
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) Evict(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	if s.retention.TTL > 0 {
		cutoff := now.Add(-s.retention.TTL)
		for id, j := range s.jobs {
			if j.Status.Terminal() && j.UpdatedAt.Before(cutoff) {
				delete(s.jobs, id)
				removed++
			}
		}
	}

	over := len(s.jobs) - s.retention.MaxEntries
	if s.retention.MaxEntries <= 0 || over <= 0 {
		return removed, nil
	}

	finished := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.Status.Terminal() {
			finished = append(finished, j)
		}
	}
	// oldest first
	sort.Slice(finished, func(a, b int) bool {
		return finished[a].UpdatedAt.Before(finished[b].UpdatedAt)
	})
	for i := 0; i < over && i < len(finished); i++ {
		delete(s.jobs, finished[i].ID)
		removed++
	}
	return removed, nil
}

// Len reports how many records the store currently holds.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
