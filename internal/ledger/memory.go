package ledger

import (
	"context"
	"sync"

	"github.com/enhancely/api/internal/model"
)

// Memory is an in-process ledger for local development and tests.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*model.Job)}
}

// Create inserts job, failing with ErrExists if the id is taken.
func (m *Memory) Create(ctx context.Context, job *model.Job) error {
	if err := validateNew(job); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return ErrExists
	}
	m.jobs[job.ID] = job.Clone()
	return nil
}

// Get returns a copy of the stored record.
func (m *Memory) Get(ctx context.Context, jobID string) (*model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

// Transition applies t to the stored record under the write lock.
func (m *Memory) Transition(ctx context.Context, jobID string, t Transition) (*model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	next := job.Clone()
	if err := t.Apply(next); err != nil {
		return nil, err
	}
	m.jobs[jobID] = next
	return next.Clone(), nil
}

// Put overwrites a record without any checks. Tests use it to simulate
// records written by an external worker, including corrupted ones.
func (m *Memory) Put(job *model.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}
