package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/domain"
	"github.com/heartmarshall/docflow-backend/internal/service/workflow"
)

// Submit accepts a freshly uploaded document for processing.
func (s *Service) Submit(ctx context.Context, id uuid.UUID) error {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("pipeline.Submit: %w", err)
	}
	if doc.Status != domain.StatusUploaded {
		return fmt.Errorf("pipeline.Submit: document %s is %s: %w", id, doc.Status, domain.ErrInvalidState)
	}

	reservation, err := s.audit.Reserve()
	if err != nil {
		return fmt.Errorf("pipeline.Submit: %w", err)
	}
	reservation.Commit(ctx, domain.AuditEntry{
		Action:       domain.AuditActionSubmit,
		ResourceType: domain.ResourceDocument,
		ResourceID:   id.String(),
		Details:      map[string]any{"version": doc.Version},
	})

	s.enqueue(ctx, id)
	return nil
}

// Retry resets a failed, retryable document to the entry state of the stage
// that failed. Automatic retries are refused before the backoff elapses.
func (s *Service) Retry(ctx context.Context, id uuid.UUID, mode domain.RetryMode) (*domain.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("pipeline.Retry: %w", err)
	}
	if doc.Status != domain.StatusFailed || doc.FailedStage == nil {
		return nil, fmt.Errorf("pipeline.Retry: document %s is %s: %w", id, doc.Status, domain.ErrInvalidState)
	}
	if !doc.Retryable {
		return nil, fmt.Errorf("pipeline.Retry: document %s exhausted retries for %s: %w", id, *doc.FailedStage, domain.ErrInvalidState)
	}
	if mode == domain.RetryAutomatic && doc.NextRetryAt != nil && doc.NextRetryAt.After(s.now()) {
		return nil, fmt.Errorf("pipeline.Retry: document %s backoff until %s: %w", id, doc.NextRetryAt, domain.ErrInvalidState)
	}

	stage := *doc.FailedStage
	next := doc.Clone()
	next.Status = stage.EntryStatus()
	next.ProcessingError = nil
	next.FailedStage = nil
	next.NextRetryAt = nil
	next.ProcessedAt = nil

	entry := domain.AuditEntry{
		Action:       domain.AuditActionRetry,
		ResourceType: domain.ResourceDocument,
		ResourceID:   id.String(),
		Details: map[string]any{
			"stage":   string(stage),
			"mode":    string(mode),
			"attempt": doc.RetryCount(stage) + 1,
		},
	}
	if mode == domain.RetryAutomatic {
		entry.Actor = domain.ActorSystem
	}

	saved, err := s.commit(ctx, doc, next, entry)
	if err != nil {
		return nil, fmt.Errorf("pipeline.Retry: %w", err)
	}

	s.log.InfoContext(ctx, "document retry",
		slog.String("document_id", id.String()),
		slog.String("stage", string(stage)),
		slog.String("mode", string(mode)),
	)
	s.enqueue(ctx, id)
	return saved, nil
}

// Withdraw takes a document out of processing. Allowed any time before it
// is indexed; a stage running at that moment loses its version check.
func (s *Service) Withdraw(ctx context.Context, id uuid.UUID, reason string) (*domain.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("pipeline.Withdraw: %w", err)
	}
	if !domain.CanWithdraw(doc.Status) {
		return nil, fmt.Errorf("pipeline.Withdraw: document %s is %s: %w", id, doc.Status, domain.ErrInvalidState)
	}

	now := s.now()
	next := doc.Clone()
	next.Status = domain.StatusWithdrawn
	next.ProcessingError = nil
	next.FailedStage = nil
	next.NextRetryAt = nil
	next.Retryable = false
	next.ProcessedAt = &now

	details := map[string]any{}
	if reason = strings.TrimSpace(reason); reason != "" {
		details["reason"] = reason
	}
	saved, err := s.commit(ctx, doc, next, domain.AuditEntry{
		Action:       domain.AuditActionWithdraw,
		ResourceType: domain.ResourceDocument,
		ResourceID:   id.String(),
		Details:      details,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline.Withdraw: %w", err)
	}
	return saved, nil
}

// Approve records a manual approval of an indexed document.
func (s *Service) Approve(ctx context.Context, id, approverID uuid.UUID) (*domain.Document, error) {
	if err := s.checkManualDecision(ctx, id); err != nil {
		return nil, fmt.Errorf("pipeline.Approve: %w", err)
	}
	doc, err := s.decide(ctx, id, domain.ApprovalApproved, &approverID, "", nil)
	if err != nil {
		return nil, fmt.Errorf("pipeline.Approve: %w", err)
	}
	return doc, nil
}

// Reject records a manual rejection of an indexed document. A document that
// cannot be decided reports InvalidState whatever the reason.
func (s *Service) Reject(ctx context.Context, id, approverID uuid.UUID, reason string) (*domain.Document, error) {
	if err := s.checkManualDecision(ctx, id); err != nil {
		return nil, fmt.Errorf("pipeline.Reject: %w", err)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError("reason", "required")
	}
	doc, err := s.decide(ctx, id, domain.ApprovalRejected, &approverID, reason, nil)
	if err != nil {
		return nil, fmt.Errorf("pipeline.Reject: %w", err)
	}
	return doc, nil
}

// checkManualDecision refuses manual decisions on documents that are not
// awaiting one, and while a gating approval workflow owns the decision.
func (s *Service) checkManualDecision(ctx context.Context, id uuid.UUID) error {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := decidable(doc); err != nil {
		return err
	}
	wf, err := s.workflows.ActiveGating(ctx, id)
	if err != nil {
		return err
	}
	if wf != nil {
		return fmt.Errorf("document %s awaits approval workflow %s: %w", id, wf.ID, domain.ErrInvalidState)
	}
	return nil
}

func decidable(doc *domain.Document) error {
	if doc.Status != domain.StatusIndexed || doc.ApprovalStatus != domain.ApprovalPending {
		return fmt.Errorf("document %s is %s/%s: %w", doc.ID, doc.Status, doc.ApprovalStatus, domain.ErrInvalidState)
	}
	return nil
}

// decide applies an approval decision. approver is nil for decisions made
// by a workflow without a named approver.
func (s *Service) decide(
	ctx context.Context,
	id uuid.UUID,
	decision domain.ApprovalStatus,
	approver *uuid.UUID,
	reason string,
	instanceID *uuid.UUID,
) (*domain.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := decidable(doc); err != nil {
		return nil, err
	}

	now := s.now()
	next := doc.Clone()
	next.ApprovalStatus = decision
	next.ApprovedBy = approver
	next.ApprovedAt = &now
	if decision == domain.ApprovalRejected && reason != "" {
		next.RejectionReason = &reason
	}

	action := domain.AuditActionApprove
	if decision == domain.ApprovalRejected {
		action = domain.AuditActionReject
	}
	entry := domain.AuditEntry{
		Action:       action,
		ResourceType: domain.ResourceDocument,
		ResourceID:   id.String(),
		Details:      map[string]any{"decision": string(decision)},
	}
	if approver != nil {
		entry.Actor = approver.String()
	} else {
		entry.Actor = domain.ActorSystem
	}
	if reason != "" {
		entry.Details["reason"] = reason
	}
	if instanceID != nil {
		entry.Details["workflow_instance_id"] = instanceID.String()
	}

	saved, err := s.commit(ctx, doc, next, entry)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, saved)
	return saved, nil
}

// OnWorkflowComplete records a workflow outcome. When the instance is an
// active gating approval and the outcome is a decision, the decision is
// applied to the document before the instance is finished, so a delivery
// that fails part way leaves the instance active and the engine's
// redelivery completes it.
func (s *Service) OnWorkflowComplete(ctx context.Context, instanceID uuid.UUID, outcome string, payload map[string]any) (*domain.WorkflowInstance, error) {
	wf, err := s.workflows.Get(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("pipeline.OnWorkflowComplete: %w", err)
	}

	if decision, ok := gatingDecision(wf, outcome); ok {
		approver := payloadUUID(payload, "approver_id")
		reason, _ := payload["reason"].(string)
		_, err := s.decide(ctx, *wf.DocumentID, decision, approver, strings.TrimSpace(reason), &wf.ID)
		switch {
		case errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrNotFound):
			s.log.WarnContext(ctx, "workflow decision not applied",
				slog.String("instance_id", wf.ID.String()),
				slog.String("document_id", wf.DocumentID.String()),
				slog.String("error", err.Error()),
			)
		case err != nil:
			return nil, fmt.Errorf("pipeline.OnWorkflowComplete: apply decision: %w", err)
		}
	}

	wf, _, err = s.workflows.Complete(ctx, instanceID, outcome, payload)
	if err != nil {
		return nil, fmt.Errorf("pipeline.OnWorkflowComplete: %w", err)
	}
	return wf, nil
}

// gatingDecision maps outcome to an approval decision when wf still owns
// its document's decision.
func gatingDecision(wf *domain.WorkflowInstance, outcome string) (domain.ApprovalStatus, bool) {
	if wf.Status != domain.WorkflowActive || !wf.Gating || wf.Kind != domain.WorkflowApproval || wf.DocumentID == nil {
		return "", false
	}
	switch outcome {
	case domain.OutcomeApproved:
		return domain.ApprovalApproved, true
	case domain.OutcomeRejected:
		return domain.ApprovalRejected, true
	}
	return "", false
}

// requestApproval dispatches the approval workflow of a newly indexed
// document. Failures are logged; the document stays pending for a manual
// decision.
func (s *Service) requestApproval(ctx context.Context, doc *domain.Document) {
	if !s.cfg.ApprovalEnabled {
		return
	}
	payload := map[string]any{
		"title":        doc.Title,
		"filename":     doc.Filename,
		"uploaded_by":  doc.UploadedBy.String(),
		"needs_review": doc.NeedsReview,
	}
	if doc.Classification != nil {
		payload["classification"] = *doc.Classification
	}
	if doc.Summary != nil {
		payload["summary"] = *doc.Summary
	}
	s.dispatch(ctx, doc.ID, domain.WorkflowApproval, payload, s.cfg.ApprovalGating)
}

// notify dispatches the notification workflow after a decision.
func (s *Service) notify(ctx context.Context, doc *domain.Document) {
	payload := map[string]any{
		"decision":    string(doc.ApprovalStatus),
		"title":       doc.Title,
		"uploaded_by": doc.UploadedBy.String(),
	}
	if doc.ApprovedBy != nil {
		payload["approver_id"] = doc.ApprovedBy.String()
	}
	if doc.RejectionReason != nil {
		payload["reason"] = *doc.RejectionReason
	}
	s.dispatch(ctx, doc.ID, domain.WorkflowNotification, payload, false)
}

func (s *Service) dispatch(ctx context.Context, docID uuid.UUID, kind domain.WorkflowKind, payload map[string]any, gating bool) {
	_, err := s.workflows.Dispatch(ctx, workflow.DispatchInput{
		Kind:       kind,
		DocumentID: &docID,
		Payload:    payload,
		Gating:     gating,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "workflow dispatch failed",
			slog.String("document_id", docID.String()),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}
}

func payloadUUID(payload map[string]any, key string) *uuid.UUID {
	raw, ok := payload[key].(string)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return nil
	}
	return &id
}
