package job

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadflow/internal/workflow"
)

var (
	// ErrNotFound is returned for lookups of unknown job ids.
	ErrNotFound = errors.New("job not found")
	// ErrNotCancellable is returned when cancellation is requested for a
	// job already in a terminal state.
	ErrNotCancellable = errors.New("job is not cancellable")
)

// Store is the process-wide registry of jobs. All state lives in memory for
// the process lifetime; a restart forgets every job (run logs persist
// separately). Readers always get deep copies, so the executor — the single
// writer per job — can never expose a half-written record.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	cancels map[string]context.CancelFunc
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{
		jobs:    make(map[string]*Job),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Create allocates a pending job for a snapshot of workflow blocks. Every
// block gets a pending step state up front, so progress readers see the full
// step map from the moment the job id is returned.
func (s *Store) Create(workflowID string, blocks []workflow.BlockConfig) *Job {
	j := &Job{
		ID:          uuid.New().String(),
		WorkflowID:  workflowID,
		Blocks:      workflow.CloneBlocks(blocks),
		Status:      StatusPending,
		CurrentStep: -1,
		StepStates:  make(map[string]StepState, len(blocks)),
		CreatedAt:   time.Now(),
	}
	for _, b := range blocks {
		j.StepStates[b.ID] = StepState{Status: StatusPending}
	}

	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()
	return j.clone()
}

// Get returns a point-in-time copy of a job.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.clone(), nil
}

// List returns copies of all jobs, newest first.
func (s *Store) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.clone())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}

// RequestCancel asks for cooperative cancellation. A pending job is
// cancelled on the spot (it has not started, so every block is skipped); a
// running job gets its cancel flag set and its run context cancelled, and
// the executor finalizes the state at the next safe point. Terminal jobs are
// not cancellable.
func (s *Store) RequestCancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}

	switch j.Status {
	case StatusPending:
		now := time.Now()
		j.Status = StatusCancelled
		j.FinishedAt = &now
		j.cancelRequested = true
		for id, st := range j.StepStates {
			st.Status = StatusSkipped
			j.StepStates[id] = st
		}
		return nil
	case StatusRunning:
		j.cancelRequested = true
		if cancel := s.cancels[id]; cancel != nil {
			cancel()
		}
		return nil
	default:
		return ErrNotCancellable
	}
}

// Delete removes a job. Deleting a running job is harmless: the executor's
// updates on a missing id are no-ops.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(s.jobs, id)
	delete(s.cancels, id)
	return nil
}

// ── Executor-side entry points ─────────────────────────────

// update applies one mutation batch under the store lock. Readers see either
// none or all of a batch, never a mix.
func (s *Store) update(id string, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		fn(j)
	}
}

// bindCancel registers the run context's cancel func so RequestCancel can
// interrupt remote calls mid-block.
func (s *Store) bindCancel(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; ok {
		s.cancels[id] = cancel
	}
}

func (s *Store) unbindCancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancels, id)
}

// snapshot is Get without the not-found error, for executor use.
func (s *Store) snapshot(id string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if j, ok := s.jobs[id]; ok {
		return j.clone()
	}
	return nil
}

// cancelRequested reports whether cancellation was asked for.
func (s *Store) isCancelRequested(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return ok && j.cancelRequested
}
