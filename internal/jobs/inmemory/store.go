package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/subzap/internal/jobs"
)

// Store keeps ingest jobs in process memory. Every read and write goes
// through IngestJob.Clone, so callers never share a job with the store.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*jobs.IngestJob
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{byID: make(map[string]*jobs.IngestJob)}
}

// SaveJob inserts or replaces the job with job.JobID.
func (s *Store) SaveJob(ctx context.Context, job *jobs.IngestJob) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: job ID is required")
	}

	s.mu.Lock()
	s.byID[job.JobID] = job.Clone()
	s.mu.Unlock()
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.IngestJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if job, ok := s.byID[jobID]; ok {
		return job.Clone(), nil
	}
	return nil, fmt.Errorf("GetJob %s: %w", jobID, jobs.ErrJobNotFound)
}

// ListJobs pages through the matching jobs, newest first. Jobs created in
// the same instant are ordered by ID so pages are stable.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.IngestJob, error) {
	s.mu.RLock()
	matched := make([]*jobs.IngestJob, 0, len(s.byID))
	for _, job := range s.byID {
		if filter.Match(job) {
			matched = append(matched, job.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.JobID < b.JobID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return page(matched, filter.Offset, filter.Limit), nil
}

// page cuts list to [offset, offset+limit). A zero limit means no bound.
func page(list []*jobs.IngestJob, offset, limit int) []*jobs.IngestJob {
	if offset >= len(list) {
		return []*jobs.IngestJob{}
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}

var _ jobs.JobStore = (*Store)(nil)
