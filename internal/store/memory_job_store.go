package store

import (
	"context"
	"sync"
	"time"

	"github.com/dunamismax/photoflow/internal/domain"
)

// MemoryJobStore keeps jobs and usage logs in process memory. It backs the
// API when no Postgres DSN is configured and is used by tests.
type MemoryJobStore struct {
	mu     sync.RWMutex
	jobs   map[string]domain.Job
	usages []domain.UsageLog
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]domain.Job),
	}
}

func (s *MemoryJobStore) Create(_ context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (domain.Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, false, nil
	}
	return cloneJob(job), true, nil
}

func (s *MemoryJobStore) UpdateStatus(_ context.Context, id, status string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}

	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return cloneJob(job), nil
}

func (s *MemoryJobStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}
	s.usages = append(s.usages, usage)
	return nil
}

// UsageLogs returns a copy of the recorded usage logs, oldest first.
func (s *MemoryJobStore) UsageLogs() []domain.UsageLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UsageLog, len(s.usages))
	copy(out, s.usages)
	return out
}

func cloneJob(job domain.Job) domain.Job {
	if job.Edits != nil {
		edits := make([]domain.EditStep, len(job.Edits))
		copy(edits, job.Edits)
		job.Edits = edits
	}
	return job
}
