package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/adapter/memory"
	"github.com/heartmarshall/docflow-backend/internal/domain"
	"github.com/heartmarshall/docflow-backend/internal/service/audit"
)

func unavailableAudit() (audit.Reservation, error) {
	return nil, fmt.Errorf("audit: 8 entries pending: %w", domain.ErrAuditUnavailable)
}

func okEngine(ref string) *engineMock {
	return &engineMock{
		StartFunc: func(ctx context.Context, wf *domain.WorkflowInstance) (string, error) {
			return ref, nil
		},
	}
}

func newTestService(eng *engineMock, sink *auditSinkMock) (*Service, *memory.WorkflowStore) {
	store := memory.NewWorkflowStore()
	return NewService(slog.Default(), store, eng, sink), store
}

func TestDispatch_Success(t *testing.T) {
	t.Parallel()

	eng := okEngine("exec-1")
	trail := &auditLog{}
	svc, store := newTestService(eng, trail.sink())
	docID := uuid.New()

	wf, err := svc.Dispatch(context.Background(), DispatchInput{
		Kind:       domain.WorkflowApproval,
		DocumentID: &docID,
		Payload:    map[string]any{"title": "Q3"},
		Gating:     true,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	stored, _ := store.Get(context.Background(), wf.ID)
	if stored.Status != domain.WorkflowActive || !stored.Gating {
		t.Errorf("stored = %+v", stored)
	}
	if stored.ExternalRef == nil || *stored.ExternalRef != "exec-1" {
		t.Errorf("external ref = %v, want exec-1", stored.ExternalRef)
	}
	if len(eng.StartCalls()) != 1 {
		t.Errorf("Start calls: got %d, want 1", len(eng.StartCalls()))
	}
	entries := trail.entries()
	if len(entries) != 1 || entries[0].Action != domain.AuditActionWorkflowDispatched {
		t.Fatalf("audit entries = %+v", entries)
	}
	if entries[0].Details["document_id"] != docID.String() {
		t.Errorf("audit details = %v", entries[0].Details)
	}
	if n := trail.outstanding(); n != 0 {
		t.Errorf("outstanding reservations = %d, want 0", n)
	}
}

func TestDispatch_GatingOnlyForApproval(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(okEngine(""), (&auditLog{}).sink())
	wf, err := svc.Dispatch(context.Background(), DispatchInput{Kind: domain.WorkflowNotification, Gating: true})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if wf.Gating {
		t.Error("notification workflow must not gate")
	}
}

func TestDispatch_EngineFailureMarksInstanceFailed(t *testing.T) {
	t.Parallel()

	eng := &engineMock{
		StartFunc: func(ctx context.Context, wf *domain.WorkflowInstance) (string, error) {
			return "", domain.ErrExternalUnavailable
		},
	}
	trail := &auditLog{}
	svc, store := newTestService(eng, trail.sink())

	wf, err := svc.Dispatch(context.Background(), DispatchInput{Kind: domain.WorkflowApproval})
	if !errors.Is(err, domain.ErrWorkflowDispatch) || !errors.Is(err, domain.ErrExternalUnavailable) {
		t.Fatalf("error = %v, want ErrWorkflowDispatch wrapping ErrExternalUnavailable", err)
	}

	stored, _ := store.Get(context.Background(), wf.ID)
	if stored.Status != domain.WorkflowFailed || stored.ErrorMessage == nil {
		t.Errorf("stored = %+v, want failed with message", stored)
	}

	entries := trail.entries()
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want dispatch and failure", len(entries))
	}
	if entries[1].Action != domain.AuditActionWorkflowCompleted || entries[1].Details["status"] != string(domain.WorkflowFailed) {
		t.Errorf("failure entry = %+v", entries[1])
	}
	if n := trail.outstanding(); n != 0 {
		t.Errorf("outstanding reservations = %d, want 0", n)
	}
}

func TestDispatch_AuditUnavailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failAfter int
	}{
		{name: "no capacity", failAfter: 0},
		{name: "no capacity for failure record", failAfter: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			trail := &auditLog{}
			granted := trail.sink()
			sink := &auditSinkMock{}
			sink.ReserveFunc = func() (audit.Reservation, error) {
				if len(sink.ReserveCalls()) > tt.failAfter {
					return unavailableAudit()
				}
				return granted.Reserve()
			}
			eng := okEngine("exec-1")
			svc, store := newTestService(eng, sink)
			docID := uuid.New()

			_, err := svc.Dispatch(context.Background(), DispatchInput{Kind: domain.WorkflowApproval, DocumentID: &docID})
			if !errors.Is(err, domain.ErrAuditUnavailable) {
				t.Fatalf("error = %v, want ErrAuditUnavailable", err)
			}
			if len(eng.StartCalls()) != 0 {
				t.Error("engine started without an audit record")
			}
			if wfs, _ := store.ListByDocument(context.Background(), docID); len(wfs) != 0 {
				t.Errorf("stored instances = %d, want 0", len(wfs))
			}
			if n := trail.outstanding(); n != 0 {
				t.Errorf("outstanding reservations = %d, want 0", n)
			}
		})
	}
}

func TestDispatch_InvalidKind(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(okEngine(""), (&auditLog{}).sink())
	if _, err := svc.Dispatch(context.Background(), DispatchInput{Kind: "escalation"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		outcome    string
		wantStatus domain.WorkflowStatus
	}{
		{name: "approved", outcome: domain.OutcomeApproved, wantStatus: domain.WorkflowCompleted},
		{name: "rejected", outcome: domain.OutcomeRejected, wantStatus: domain.WorkflowCompleted},
		{name: "failed", outcome: domain.OutcomeFailed, wantStatus: domain.WorkflowFailed},
		{name: "error", outcome: "error", wantStatus: domain.WorkflowFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			trail := &auditLog{}
			svc, _ := newTestService(okEngine(""), trail.sink())
			ctx := context.Background()

			wf, err := svc.Dispatch(ctx, DispatchInput{Kind: domain.WorkflowApproval})
			if err != nil {
				t.Fatalf("Dispatch: %v", err)
			}

			got, changed, err := svc.Complete(ctx, wf.ID, tt.outcome, map[string]any{"error": "engine said no"})
			if err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if !changed || got.Status != tt.wantStatus {
				t.Errorf("Complete = (%s, %v), want (%s, true)", got.Status, changed, tt.wantStatus)
			}
			if got.Output["outcome"] != tt.outcome {
				t.Errorf("output = %v", got.Output)
			}
			if n := len(trail.entries()); n != 2 {
				t.Errorf("audit entries = %d, want 2", n)
			}
		})
	}
}

func TestComplete_IsIdempotent(t *testing.T) {
	t.Parallel()

	trail := &auditLog{}
	svc, _ := newTestService(okEngine(""), trail.sink())
	ctx := context.Background()

	wf, _ := svc.Dispatch(ctx, DispatchInput{Kind: domain.WorkflowApproval})
	if _, _, err := svc.Complete(ctx, wf.ID, domain.OutcomeApproved, nil); err != nil {
		t.Fatalf("first Complete: %v", err)
	}

	got, changed, err := svc.Complete(ctx, wf.ID, domain.OutcomeRejected, nil)
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if changed {
		t.Error("second Complete reported a change")
	}
	if got.Output["outcome"] != domain.OutcomeApproved {
		t.Errorf("outcome overwritten: %v", got.Output)
	}
	if n := len(trail.entries()); n != 2 {
		t.Errorf("audit entries = %d, want 2", n)
	}
	if n := trail.outstanding(); n != 0 {
		t.Errorf("outstanding reservations = %d, want 0", n)
	}
}

func TestComplete_AuditUnavailableKeepsInstanceActive(t *testing.T) {
	t.Parallel()

	trail := &auditLog{}
	granted := trail.sink()
	sink := &auditSinkMock{ReserveFunc: granted.ReserveFunc}
	svc, store := newTestService(okEngine(""), sink)
	ctx := context.Background()

	wf, err := svc.Dispatch(ctx, DispatchInput{Kind: domain.WorkflowApproval})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	sink.ReserveFunc = unavailableAudit
	_, changed, err := svc.Complete(ctx, wf.ID, domain.OutcomeApproved, nil)
	if !errors.Is(err, domain.ErrAuditUnavailable) {
		t.Fatalf("error = %v, want ErrAuditUnavailable", err)
	}
	if changed {
		t.Error("Complete reported a change without an audit record")
	}
	stored, _ := store.Get(ctx, wf.ID)
	if stored.Status != domain.WorkflowActive {
		t.Fatalf("status = %s, want active", stored.Status)
	}

	// The engine's redelivery goes through once audit capacity is back.
	sink.ReserveFunc = granted.ReserveFunc
	got, changed, err := svc.Complete(ctx, wf.ID, domain.OutcomeApproved, nil)
	if err != nil || !changed || got.Status != domain.WorkflowCompleted {
		t.Fatalf("redelivery = (%v, %v, %v)", got, changed, err)
	}
	if n := len(trail.entries()); n != 2 {
		t.Errorf("audit entries = %d, want 2", n)
	}
}

func TestComplete_UnknownInstance(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(okEngine(""), (&auditLog{}).sink())
	if _, _, err := svc.Complete(context.Background(), uuid.New(), domain.OutcomeApproved, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestActiveGating(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(okEngine(""), (&auditLog{}).sink())
	ctx := context.Background()
	docID := uuid.New()

	got, err := svc.ActiveGating(ctx, docID)
	if err != nil || got != nil {
		t.Fatalf("ActiveGating on empty = (%v, %v)", got, err)
	}

	wf, _ := svc.Dispatch(ctx, DispatchInput{Kind: domain.WorkflowApproval, DocumentID: &docID, Gating: true})
	got, err = svc.ActiveGating(ctx, docID)
	if err != nil || got == nil || got.ID != wf.ID {
		t.Fatalf("ActiveGating = (%v, %v), want %s", got, err, wf.ID)
	}

	active, err := svc.HasActive(ctx, docID, domain.WorkflowApproval)
	if err != nil || !active {
		t.Errorf("HasActive = (%v, %v), want true", active, err)
	}

	_, _, _ = svc.Complete(ctx, wf.ID, domain.OutcomeApproved, nil)
	got, _ = svc.ActiveGating(ctx, docID)
	if got != nil {
		t.Error("completed instance still reported as gating")
	}
}
