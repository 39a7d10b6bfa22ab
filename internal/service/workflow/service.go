// Package workflow dispatches external workflows for documents and records
// their completion.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/domain"
	"github.com/heartmarshall/docflow-backend/internal/service/audit"
)

type instanceRepo interface {
	Create(ctx context.Context, wf *domain.WorkflowInstance) error
	Get(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error)
	Finish(ctx context.Context, wf *domain.WorkflowInstance) (bool, error)
	SetExternalRef(ctx context.Context, id uuid.UUID, ref string) error
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*domain.WorkflowInstance, error)
	FindActive(ctx context.Context, documentID uuid.UUID, kind domain.WorkflowKind) (*domain.WorkflowInstance, error)
}

type engine interface {
	Start(ctx context.Context, wf *domain.WorkflowInstance) (string, error)
}

type auditSink interface {
	Reserve() (audit.Reservation, error)
}

// Service is the workflow dispatcher.
type Service struct {
	log    *slog.Logger
	repo   instanceRepo
	engine engine
	audit  auditSink
	now    func() time.Time
}

// NewService creates a new workflow service.
func NewService(log *slog.Logger, repo instanceRepo, engine engine, audit auditSink) *Service {
	return &Service{
		log:    log.With("service", "workflow"),
		repo:   repo,
		engine: engine,
		audit:  audit,
		now:    time.Now,
	}
}

// DispatchInput describes a workflow to start.
type DispatchInput struct {
	Kind       domain.WorkflowKind
	DocumentID *uuid.UUID
	Payload    map[string]any
	// Gating marks an approval workflow whose outcome decides the document.
	Gating bool
}

// Dispatch creates an active instance and starts it on the engine. When the
// engine refuses, the instance is marked failed and the error is returned.
// Audit capacity for both outcomes is reserved before anything is stored.
func (s *Service) Dispatch(ctx context.Context, in DispatchInput) (*domain.WorkflowInstance, error) {
	if !in.Kind.IsValid() {
		return nil, domain.NewValidationError("kind", "unknown workflow kind")
	}

	dispatched, err := s.audit.Reserve()
	if err != nil {
		return nil, fmt.Errorf("workflow.Dispatch: %w", err)
	}
	failed, err := s.audit.Reserve()
	if err != nil {
		dispatched.Release()
		return nil, fmt.Errorf("workflow.Dispatch: %w", err)
	}

	wf := &domain.WorkflowInstance{
		ID:         uuid.New(),
		DocumentID: in.DocumentID,
		Kind:       in.Kind,
		Status:     domain.WorkflowActive,
		Gating:     in.Gating && in.Kind == domain.WorkflowApproval,
		Input:      maps.Clone(in.Payload),
		StartedAt:  s.now().UTC(),
	}
	if err := s.repo.Create(ctx, wf); err != nil {
		dispatched.Release()
		failed.Release()
		return nil, fmt.Errorf("workflow.Dispatch: create: %w", err)
	}

	dispatched.Commit(ctx, domain.AuditEntry{
		Action:       domain.AuditActionWorkflowDispatched,
		ResourceType: domain.ResourceWorkflow,
		ResourceID:   wf.ID.String(),
		Details:      s.details(wf, nil),
	})

	ref, err := s.engine.Start(ctx, wf)
	if err != nil {
		s.fail(ctx, wf, err, failed)
		return wf, fmt.Errorf("workflow.Dispatch: %s: %w", wf.Kind, errors.Join(domain.ErrWorkflowDispatch, err))
	}
	failed.Release()

	if ref != "" {
		if err := s.repo.SetExternalRef(ctx, wf.ID, ref); err != nil {
			s.log.WarnContext(ctx, "store external ref failed",
				slog.String("instance_id", wf.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		wf.ExternalRef = &ref
	}

	s.log.InfoContext(ctx, "workflow dispatched",
		slog.String("instance_id", wf.ID.String()),
		slog.String("kind", string(wf.Kind)),
		slog.Bool("gating", wf.Gating),
	)
	return wf, nil
}

// fail marks a just-created instance failed and records it on res. The
// dispatch error is what the caller sees.
func (s *Service) fail(ctx context.Context, wf *domain.WorkflowInstance, cause error, res audit.Reservation) {
	msg := cause.Error()
	now := s.now().UTC()
	wf.Status = domain.WorkflowFailed
	wf.ErrorMessage = &msg
	wf.CompletedAt = &now

	ok, err := s.repo.Finish(ctx, wf)
	if err != nil || !ok {
		res.Release()
		if err != nil {
			s.log.ErrorContext(ctx, "mark workflow failed",
				slog.String("instance_id", wf.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	res.Commit(ctx, domain.AuditEntry{
		Action:       domain.AuditActionWorkflowCompleted,
		ResourceType: domain.ResourceWorkflow,
		ResourceID:   wf.ID.String(),
		Details:      s.details(wf, map[string]any{"status": string(wf.Status), "error": msg}),
	})
}

// Complete records the outcome of an instance. Completing an instance that
// is no longer active changes nothing and reports changed=false.
func (s *Service) Complete(ctx context.Context, instanceID uuid.UUID, outcome string, payload map[string]any) (wf *domain.WorkflowInstance, changed bool, err error) {
	if outcome == "" {
		return nil, false, domain.NewValidationError("outcome", "required")
	}

	wf, err = s.repo.Get(ctx, instanceID)
	if err != nil {
		return nil, false, err
	}
	if wf.Status != domain.WorkflowActive {
		return wf, false, nil
	}

	now := s.now().UTC()
	output := maps.Clone(payload)
	if output == nil {
		output = make(map[string]any, 1)
	}
	output["outcome"] = outcome
	wf.Output = output
	wf.CompletedAt = &now
	wf.Status = domain.WorkflowCompleted
	if outcome == domain.OutcomeFailed || outcome == "error" {
		wf.Status = domain.WorkflowFailed
		if msg, ok := payload["error"].(string); ok && msg != "" {
			wf.ErrorMessage = &msg
		}
	}

	res, err := s.audit.Reserve()
	if err != nil {
		return nil, false, fmt.Errorf("workflow.Complete: %w", err)
	}
	ok, err := s.repo.Finish(ctx, wf)
	if err != nil {
		res.Release()
		return nil, false, fmt.Errorf("workflow.Complete: %w", err)
	}
	if !ok {
		res.Release()
		// Another callback finished it first.
		cur, err := s.repo.Get(ctx, instanceID)
		if err != nil {
			return nil, false, err
		}
		return cur, false, nil
	}

	res.Commit(ctx, domain.AuditEntry{
		Action:       domain.AuditActionWorkflowCompleted,
		ResourceType: domain.ResourceWorkflow,
		ResourceID:   wf.ID.String(),
		Details:      s.details(wf, map[string]any{"outcome": outcome, "status": string(wf.Status)}),
	})

	s.log.InfoContext(ctx, "workflow completed",
		slog.String("instance_id", wf.ID.String()),
		slog.String("outcome", outcome),
	)
	return wf, true, nil
}

func (s *Service) details(wf *domain.WorkflowInstance, extra map[string]any) map[string]any {
	d := map[string]any{"kind": string(wf.Kind), "gating": wf.Gating}
	if wf.DocumentID != nil {
		d["document_id"] = wf.DocumentID.String()
	}
	maps.Copy(d, extra)
	return d
}

// Get returns an instance by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error) {
	return s.repo.Get(ctx, id)
}

// ListByDocument returns a document's workflow history.
func (s *Service) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*domain.WorkflowInstance, error) {
	return s.repo.ListByDocument(ctx, documentID)
}

// ActiveGating returns the active gating approval instance of a document,
// or nil when there is none.
func (s *Service) ActiveGating(ctx context.Context, documentID uuid.UUID) (*domain.WorkflowInstance, error) {
	wf, err := s.repo.FindActive(ctx, documentID, domain.WorkflowApproval)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !wf.Gating {
		return nil, nil
	}
	return wf, nil
}

// HasActive reports whether a document has an active workflow of kind.
func (s *Service) HasActive(ctx context.Context, documentID uuid.UUID, kind domain.WorkflowKind) (bool, error) {
	_, err := s.repo.FindActive(ctx, documentID, kind)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
