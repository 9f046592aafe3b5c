package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"
)

// MemoryRegistry is the default JobRegistry: a mutex-guarded map. Jobs live for the
// life of the process.
type MemoryRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*models.ExportJob
	now  func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		jobs: make(map[string]*models.ExportJob),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

var _ domrepo.JobRegistry = (*MemoryRegistry)(nil)

func (r *MemoryRegistry) Create(_ context.Context, job *models.ExportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return fmt.Errorf("job %s: %w", job.ID, domrepo.ErrJobExists)
	}
	stored := *job
	stored.State = models.JobPending
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.now()
	}
	stored.UpdatedAt = stored.CreatedAt
	r.jobs[job.ID] = &stored
	*job = stored
	return nil
}

func (r *MemoryRegistry) Transition(_ context.Context, id string, state models.JobState, payload models.JobPayload) (*models.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, domrepo.ErrNotFound)
	}
	if !models.CanTransition(job.State, state) {
		return nil, fmt.Errorf("job %s %s -> %s: %w", id, job.State, state, domrepo.ErrInvalidTransition)
	}
	applyTransition(job, state, payload, r.now())
	out := *job
	return &out, nil
}

func (r *MemoryRegistry) Get(_ context.Context, id string) (*models.ExportJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, domrepo.ErrNotFound)
	}
	out := *job
	return &out, nil
}

// applyTransition overwrites state and payload. File path is kept only for completed
// jobs and the error message only for failed ones.
func applyTransition(job *models.ExportJob, state models.JobState, p models.JobPayload, now time.Time) {
	job.State = state
	job.Rows = p.Rows
	job.FilePath = ""
	job.Error = ""
	switch state {
	case models.JobCompleted:
		job.FilePath = p.FilePath
	case models.JobFailed:
		job.Error = p.Error
	}
	job.UpdatedAt = now
}
