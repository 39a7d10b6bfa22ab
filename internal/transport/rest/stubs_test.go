package rest

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/domain"
	"github.com/heartmarshall/docflow-backend/internal/service/document"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type documentServiceStub struct {
	doc        *domain.Document
	err        error
	uploaded   []document.UploadInput
	lastFilter domain.DocumentFilter
	stats      domain.DocumentStats
	categories []domain.Category
}

func (s *documentServiceStub) Upload(_ context.Context, in document.UploadInput) (*domain.Document, error) {
	s.uploaded = append(s.uploaded, in)
	return s.doc, s.err
}

func (s *documentServiceStub) Get(_ context.Context, _ uuid.UUID) (*domain.Document, error) {
	return s.doc, s.err
}

func (s *documentServiceStub) List(_ context.Context, f domain.DocumentFilter) ([]*domain.Document, int, error) {
	s.lastFilter = f
	if s.err != nil {
		return nil, 0, s.err
	}
	if s.doc == nil {
		return nil, 0, nil
	}
	return []*domain.Document{s.doc}, 1, nil
}

func (s *documentServiceStub) Stats(_ context.Context) (domain.DocumentStats, error) {
	return s.stats, s.err
}

func (s *documentServiceStub) ListCategories(_ context.Context) ([]domain.Category, error) {
	return s.categories, s.err
}

type actionCall struct {
	op     string
	id     uuid.UUID
	user   uuid.UUID
	reason string
	mode   domain.RetryMode
}

type actionsStub struct {
	doc   *domain.Document
	err   error
	calls []actionCall
}

func (s *actionsStub) Retry(_ context.Context, id uuid.UUID, mode domain.RetryMode) (*domain.Document, error) {
	s.calls = append(s.calls, actionCall{op: "retry", id: id, mode: mode})
	return s.doc, s.err
}

func (s *actionsStub) Withdraw(_ context.Context, id uuid.UUID, reason string) (*domain.Document, error) {
	s.calls = append(s.calls, actionCall{op: "withdraw", id: id, reason: reason})
	return s.doc, s.err
}

func (s *actionsStub) Approve(_ context.Context, id, user uuid.UUID) (*domain.Document, error) {
	s.calls = append(s.calls, actionCall{op: "approve", id: id, user: user})
	return s.doc, s.err
}

func (s *actionsStub) Reject(_ context.Context, id, user uuid.UUID, reason string) (*domain.Document, error) {
	s.calls = append(s.calls, actionCall{op: "reject", id: id, user: user, reason: reason})
	return s.doc, s.err
}

type workflowListerStub struct {
	items []*domain.WorkflowInstance
}

func (s *workflowListerStub) Get(_ context.Context, id uuid.UUID) (*domain.WorkflowInstance, error) {
	for _, wf := range s.items {
		if wf.ID == id {
			return wf, nil
		}
	}
	return nil, fmt.Errorf("workflow %s: %w", id, domain.ErrNotFound)
}

func (s *workflowListerStub) ListByDocument(_ context.Context, _ uuid.UUID) ([]*domain.WorkflowInstance, error) {
	return s.items, nil
}

type auditQuerierStub struct {
	entries    []domain.AuditEntry
	summary    domain.AuditSummary
	err        error
	lastFilter domain.AuditFilter
	lastDays   int
}

func (s *auditQuerierStub) Summary(_ context.Context, days int) (domain.AuditSummary, error) {
	s.lastDays = days
	return s.summary, s.err
}

func (s *auditQuerierStub) Query(_ context.Context, f domain.AuditFilter) ([]domain.AuditEntry, int, error) {
	s.lastFilter = f
	return s.entries, len(s.entries), s.err
}

type searcherStub struct {
	hits      []domain.SearchHit
	err       error
	lastQuery string
	lastK     int
}

func (s *searcherStub) Search(_ context.Context, query string, k int) ([]domain.SearchHit, error) {
	s.lastQuery, s.lastK = query, k
	return s.hits, s.err
}

// docsByID resolves documents from a fixed set and reports the rest missing.
type docsByID map[uuid.UUID]*domain.Document

func (d docsByID) Get(_ context.Context, id uuid.UUID) (*domain.Document, error) {
	if doc, ok := d[id]; ok {
		return doc, nil
	}
	return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
}

type completerCall struct {
	id      uuid.UUID
	outcome string
	payload map[string]any
}

type completerStub struct {
	err   error
	calls []completerCall
}

func (s *completerStub) OnWorkflowComplete(_ context.Context, id uuid.UUID, outcome string, payload map[string]any) (*domain.WorkflowInstance, error) {
	s.calls = append(s.calls, completerCall{id: id, outcome: outcome, payload: payload})
	if s.err != nil {
		return nil, s.err
	}
	return &domain.WorkflowInstance{
		ID:     id,
		Kind:   domain.WorkflowApproval,
		Status: domain.WorkflowCompleted,
	}, nil
}

func sampleDocument() *domain.Document {
	text := "extracted body"
	return &domain.Document{
		ID:             uuid.New(),
		Title:          "Invoice",
		Filename:       "invoice.txt",
		ContentType:    "text/plain",
		Status:         domain.StatusUploaded,
		ApprovalStatus: domain.ApprovalPending,
		ExtractedText:  &text,
		UploadedBy:     uuid.New(),
		Version:        1,
	}
}
