// Package memory is an in-process implementation of store.Store, used by
// internal/testutil and by package-level tests across the orchestration
// core. It is not the "MemorySubsystem" of spec.md §3 (that's
// internal/memory) — this package exists to give Task/Event/Batch/Pattern
// persistence a dependency-free double for tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/avery-holt/cascade/internal/store"
	"github.com/avery-holt/cascade/internal/task"
)

// Store is a mutex-guarded in-memory implementation of store.Store.
type Store struct {
	mu sync.Mutex

	tasks        map[uuid.UUID]*task.Task
	orchestration map[uuid.UUID]*task.OrchestrationState
	events       map[uuid.UUID][]*task.TaskEvent
	batches      map[uuid.UUID]*task.Batch
	batchMembers map[uuid.UUID]uuid.UUID // taskID -> batchID
	observations map[uuid.UUID][]*task.Observation
	patterns     []*task.Pattern
	archives     []*task.Archive
	modelConfigs map[string]string
}

// New builds an empty in-memory Store.
func New() *Store {
	return &Store{
		tasks:         make(map[uuid.UUID]*task.Task),
		orchestration: make(map[uuid.UUID]*task.OrchestrationState),
		events:        make(map[uuid.UUID][]*task.TaskEvent),
		batches:       make(map[uuid.UUID]*task.Batch),
		batchMembers:  make(map[uuid.UUID]uuid.UUID),
		observations:  make(map[uuid.UUID][]*task.Observation),
		modelConfigs:  make(map[string]string),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, errNotFound("task", id.String())
	}
	cp := *t
	return &cp, nil
}

func (s *Store) GetTaskByIssue(ctx context.Context, repo string, issue int) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.Repo == repo && t.Issue == issue {
			cp := *t
			return &cp, nil
		}
	}
	return nil, errNotFound("task", repo)
}

func (s *Store) GetTasksByStatus(ctx context.Context, status task.Status) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*task.Task
	for _, t := range s.tasks {
		if t.Status == status {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetRecentTasksByRepo(ctx context.Context, repo string, limit int) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*task.Task
	for _, t := range s.tasks {
		if t.Repo == repo {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit && limit > 0 {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateTask(ctx context.Context, t *task.Task, expectedUpdatedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[t.ID]
	if !ok {
		return errNotFound("task", t.ID.String())
	}
	if existing.UpdatedAt.UnixNano() != expectedUpdatedAt {
		return store.ErrStaleWrite
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *Store) InitializeOrchestration(ctx context.Context, taskID uuid.UUID, state *task.OrchestrationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orchestration[taskID] = state
	return nil
}

func (s *Store) GetOrchestrationState(ctx context.Context, taskID uuid.UUID) (*task.OrchestrationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.orchestration[taskID]
	if !ok {
		return nil, errNotFound("orchestration_state", taskID.String())
	}
	return st, nil
}

func (s *Store) UpdateSubtaskStatus(ctx context.Context, taskID uuid.UUID, subtaskID string, patch store.SubtaskPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.orchestration[taskID]
	if !ok {
		return errNotFound("orchestration_state", taskID.String())
	}
	for _, sub := range st.Subtasks {
		if sub.ID != subtaskID {
			continue
		}
		if patch.Status != nil {
			sub.Status = *patch.Status
		}
		if patch.Diff != nil {
			sub.Diff = *patch.Diff
		}
		if patch.AttemptCount != nil {
			sub.AttemptCount = *patch.AttemptCount
		}
		return nil
	}
	return errNotFound("subtask", subtaskID)
}

func (s *Store) CreateTaskEvent(ctx context.Context, e *task.TaskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.TaskID] = append(s.events[e.TaskID], e)
	return nil
}

func (s *Store) GetTaskEvents(ctx context.Context, taskID uuid.UUID) ([]*task.TaskEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*task.TaskEvent(nil), s.events[taskID]...), nil
}

func (s *Store) GetRecentConsensusDecisions(ctx context.Context, repo string, limit int) ([]*task.TaskEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*task.TaskEvent
	for id, t := range s.tasks {
		if t.Repo != repo {
			continue
		}
		for _, e := range s.events[id] {
			if e.Type == task.EventConsensusDecision {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit && limit > 0 {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateBatch(ctx context.Context, b *task.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.ID] = b
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id uuid.UUID) (*task.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, errNotFound("batch", id.String())
	}
	return b, nil
}

func (s *Store) UpdateBatch(ctx context.Context, b *task.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.ID] = b
	return nil
}

func (s *Store) GetPendingBatches(ctx context.Context, repo string) ([]*task.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*task.Batch
	for _, b := range s.batches {
		if b.Repo == repo && b.Status == task.BatchPending {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) GetTasksByBatch(ctx context.Context, batchID uuid.UUID) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*task.Task
	for taskID, bID := range s.batchMembers {
		if bID == batchID {
			if t, ok := s.tasks[taskID]; ok {
				cp := *t
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (s *Store) GetBatchByTask(ctx context.Context, taskID uuid.UUID) (*task.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bID, ok := s.batchMembers[taskID]
	if !ok {
		return nil, errNotFound("batch_membership", taskID.String())
	}
	b, ok := s.batches[bID]
	if !ok {
		return nil, errNotFound("batch", bID.String())
	}
	return b, nil
}

func (s *Store) AddTaskToBatch(ctx context.Context, taskID, batchID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchMembers[taskID] = batchID
	return nil
}

func (s *Store) RemoveTaskFromBatch(ctx context.Context, taskID, batchID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchMembers[taskID] == batchID {
		delete(s.batchMembers, taskID)
	}
	return nil
}

func (s *Store) CreateObservation(ctx context.Context, o *task.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations[o.TaskID] = append(s.observations[o.TaskID], o)
	return nil
}

func (s *Store) GetObservations(ctx context.Context, taskID uuid.UUID) ([]*task.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*task.Observation(nil), s.observations[taskID]...), nil
}

func (s *Store) UpsertPattern(ctx context.Context, p *task.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.patterns {
		if existing.ID == p.ID {
			s.patterns[i] = p
			return nil
		}
	}
	s.patterns = append(s.patterns, p)
	return nil
}

func (s *Store) GetPatterns(ctx context.Context, repo string, kind task.PatternKind) ([]*task.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*task.Pattern
	for _, p := range s.patterns {
		if p.Repo == repo && p.Kind == kind {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) CreateArchive(ctx context.Context, a *task.Archive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archives = append(s.archives, a)
	return nil
}

func (s *Store) GetArchives(ctx context.Context, repo string) ([]*task.Archive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*task.Archive
	for _, a := range s.archives {
		if a.IsGlobal() || a.Repo == repo {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) GetModelConfigs(ctx context.Context, repo string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.modelConfigs))
	for k, v := range s.modelConfigs {
		out[k] = v
	}
	return out, nil
}

// SetModelConfigs lets tests seed the model-config table directly.
func (s *Store) SetModelConfigs(cfgs map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelConfigs = cfgs
}

type notFoundError struct {
	kind string
	key  string
}

func (e notFoundError) Error() string {
	return e.kind + " not found: " + e.key
}

func errNotFound(kind, key string) error {
	return notFoundError{kind: kind, key: key}
}
