package tracker

import (
	"context"
	"sync"

	"imagedash/internal/domain"
	"imagedash/internal/infra"
)

// Lister fetches the authoritative job list.
type Lister interface {
	ListJobs(ctx context.Context) ([]domain.Job, error)
}

// ApplyStatus returns jobs with the status of id replaced. The input slice is
// never modified; order and every other field are preserved. The bool is
// false, and jobs is returned as is, when id is absent or already has status.
func ApplyStatus(jobs []domain.Job, id string, status domain.JobStatus) ([]domain.Job, bool) {
	for i := range jobs {
		if jobs[i].ID != id {
			continue
		}
		if jobs[i].Status == status {
			return jobs, false
		}
		next := make([]domain.Job, len(jobs))
		copy(next, jobs)
		next[i].Status = status
		return next, true
	}
	return jobs, false
}

// Store holds the ordered snapshot of known jobs.
//
// Load and ApplyStatus are not ordered relative to each other: a Load that
// started before a push event may land after it and overwrite the pushed
// status with the older fetched one.
type Store struct {
	lister Lister
	logger infra.Logger

	mu   sync.RWMutex
	jobs []domain.Job
}

func NewStore(lister Lister, logger *infra.Logger) *Store {
	return &Store{lister: lister, logger: infra.LoggerOrNop(logger)}
}

// Load replaces the snapshot with the Job Service's list. On failure the
// previous snapshot is kept and the error (wrapping domain.ErrFetch) is returned.
func (s *Store) Load(ctx context.Context) ([]domain.Job, error) {
	jobs, err := s.lister.ListJobs(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("tracker: load job list")
		return nil, err
	}
	fresh := make([]domain.Job, len(jobs))
	copy(fresh, jobs)

	s.mu.Lock()
	s.jobs = fresh
	s.mu.Unlock()

	s.logger.Debug().Int("count", len(fresh)).Msg("tracker: job list loaded")
	return s.Snapshot(), nil
}

// ApplyStatus updates one job in place. It reports whether anything changed;
// unknown ids are ignored.
func (s *Store) ApplyStatus(id string, status domain.JobStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, changed := ApplyStatus(s.jobs, id, status)
	s.jobs = next
	return changed
}

// Upsert appends job when no job with its id is known yet.
func (s *Store) Upsert(job domain.Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID == job.ID {
			return false
		}
	}
	s.jobs = append(s.jobs, job)
	return true
}

// Snapshot returns a copy of the current ordered view.
func (s *Store) Snapshot() []domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}
