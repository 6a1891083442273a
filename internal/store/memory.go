package store

import (
	"context"
	"sync"

	"github.com/makeasinger/stems/internal/model"
)

// MemoryStore keeps jobs in process memory
type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[string]*model.SeparationJob
	bySubject map[string][]string // job ids in creation order
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]*model.SeparationJob),
		bySubject: make(map[string][]string),
	}
}

// Create stores a new job unless the subject already has one in flight
func (s *MemoryStore) Create(_ context.Context, job *model.SeparationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.bySubject[job.SubjectID] {
		if existing := s.jobs[id]; existing != nil && existing.Status.IsInFlight() {
			return &InFlightError{ExistingJobID: existing.ID}
		}
	}

	s.jobs[job.ID] = job.Clone()
	s.bySubject[job.SubjectID] = append(s.bySubject[job.SubjectID], job.ID)
	return nil
}

// Get returns a copy of the job with the given id
func (s *MemoryStore) Get(_ context.Context, id string) (*model.SeparationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

// LatestBySubject returns the most recently created job for the subject
func (s *MemoryStore) LatestBySubject(_ context.Context, subjectID string) (*model.SeparationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *model.SeparationJob
	for _, id := range s.bySubject[subjectID] {
		job := s.jobs[id]
		if job == nil {
			continue
		}
		// ids are in creation order, so ties on createdAt go to the later one
		if latest == nil || !job.CreatedAt.Before(latest.CreatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest.Clone(), nil
}

// Update applies fn to a copy of the job and stores the result
func (s *MemoryStore) Update(_ context.Context, id string, fn UpdateFunc) (*model.SeparationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if current.Status.IsTerminal() {
		return nil, ErrJobTerminal
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID, next.SubjectID = current.ID, current.SubjectID

	s.jobs[id] = next
	return next.Clone(), nil
}
