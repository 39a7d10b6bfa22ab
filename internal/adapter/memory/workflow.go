package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

// WorkflowStore is an in-memory workflow instance store.
type WorkflowStore struct {
	mu        sync.RWMutex
	instances map[uuid.UUID]*domain.WorkflowInstance
}

// NewWorkflowStore creates an empty store.
func NewWorkflowStore() *WorkflowStore {
	return &WorkflowStore{instances: make(map[uuid.UUID]*domain.WorkflowInstance)}
}

func (s *WorkflowStore) Create(_ context.Context, wf *domain.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[wf.ID]; ok {
		return fmt.Errorf("workflow_instance %s: %w", wf.ID, domain.ErrAlreadyExists)
	}
	c := *wf
	c.Input = maps.Clone(wf.Input)
	c.Output = maps.Clone(wf.Output)
	s.instances[wf.ID] = &c
	return nil
}

func (s *WorkflowStore) Get(_ context.Context, id uuid.UUID) (*domain.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.instances[id]
	if !ok {
		return nil, fmt.Errorf("workflow_instance %s: %w", id, domain.ErrNotFound)
	}
	c := *wf
	return &c, nil
}

// Finish stores wf's final state only if the stored instance is still active.
func (s *WorkflowStore) Finish(_ context.Context, wf *domain.WorkflowInstance) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.instances[wf.ID]
	if !ok || cur.Status != domain.WorkflowActive {
		return false, nil
	}
	cur.Status = wf.Status
	cur.Output = maps.Clone(wf.Output)
	cur.ExternalRef = wf.ExternalRef
	cur.ErrorMessage = wf.ErrorMessage
	cur.CompletedAt = wf.CompletedAt
	return true, nil
}

func (s *WorkflowStore) SetExternalRef(_ context.Context, id uuid.UUID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.instances[id]
	if !ok {
		return fmt.Errorf("workflow_instance %s: %w", id, domain.ErrNotFound)
	}
	cur.ExternalRef = &ref
	return nil
}

func (s *WorkflowStore) ListByDocument(_ context.Context, documentID uuid.UUID) ([]*domain.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.WorkflowInstance
	for _, wf := range s.instances {
		if wf.DocumentID != nil && *wf.DocumentID == documentID {
			c := *wf
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *WorkflowStore) FindActive(ctx context.Context, documentID uuid.UUID, kind domain.WorkflowKind) (*domain.WorkflowInstance, error) {
	all, _ := s.ListByDocument(ctx, documentID)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Kind == kind && all[i].Status == domain.WorkflowActive {
			return all[i], nil
		}
	}
	return nil, fmt.Errorf("active %s workflow for %s: %w", kind, documentID, domain.ErrNotFound)
}

// TxManager runs fn directly. The in-memory stores have no transactions;
// each write is individually atomic.
type TxManager struct{}

func (TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
