package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

func newDoc() *domain.Document {
	return &domain.Document{
		ID:             uuid.New(),
		Title:          "memo",
		Filename:       "memo.txt",
		ContentType:    "text/plain",
		ContentHash:    "h1",
		UploadedBy:     uuid.New(),
		Status:         domain.StatusUploaded,
		ApprovalStatus: domain.ApprovalPending,
		Retryable:      true,
	}
}

func TestDocumentStore_UpdateIsVersionConditioned(t *testing.T) {
	t.Parallel()
	s := NewDocumentStore(nil)
	ctx := context.Background()

	created, err := s.Create(ctx, newDoc())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	a := created.Clone()
	a.Status = domain.StatusExtracting
	if _, err := s.Update(ctx, a, created.Version); err != nil {
		t.Fatalf("first Update: %v", err)
	}

	b := created.Clone()
	b.Status = domain.StatusWithdrawn
	if _, err := s.Update(ctx, b, created.Version); !errors.Is(err, domain.ErrConcurrentModification) {
		t.Fatalf("second Update error = %v, want ErrConcurrentModification", err)
	}

	got, _ := s.Get(ctx, created.ID)
	if got.Status != domain.StatusExtracting || got.Version != 2 {
		t.Errorf("stored = (%s, %d), want (extracting, 2)", got.Status, got.Version)
	}
}

func TestDocumentStore_UpdateMissing(t *testing.T) {
	t.Parallel()
	s := NewDocumentStore(nil)
	if _, err := s.Update(context.Background(), newDoc(), 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestDocumentStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()
	s := NewDocumentStore(nil)
	ctx := context.Background()
	created, _ := s.Create(ctx, newDoc())

	got, _ := s.Get(ctx, created.ID)
	got.Status = domain.StatusWithdrawn

	again, _ := s.Get(ctx, created.ID)
	if again.Status != domain.StatusUploaded {
		t.Fatal("mutating a returned document changed the store")
	}
}

func TestDocumentStore_ListRunnable(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	s := NewDocumentStore(func() time.Time { return clock })
	ctx := context.Background()

	pre, _ := s.Create(ctx, newDoc())

	stalled, _ := s.Create(ctx, newDoc())
	st := stalled.Clone()
	st.Status = domain.StatusExtracting
	_, _ = s.Update(ctx, st, stalled.Version)

	clock = now.Add(time.Hour)
	fresh, _ := s.Create(ctx, newDoc())
	fr := fresh.Clone()
	fr.Status = domain.StatusExtracting
	_, _ = s.Update(ctx, fr, fresh.Version)

	ids, err := s.ListRunnable(ctx, domain.RunnableQuery{StalledBefore: now.Add(30 * time.Minute)})
	if err != nil {
		t.Fatalf("ListRunnable: %v", err)
	}
	want := map[uuid.UUID]bool{pre.ID: true, stalled.ID: true}
	if len(ids) != 2 {
		t.Fatalf("ListRunnable = %v, want 2 ids", ids)
	}
	for _, id := range ids {
		if !want[id] {
			t.Errorf("unexpected runnable id %s", id)
		}
	}
}

func TestDocumentStore_EnsureCategory(t *testing.T) {
	t.Parallel()
	s := NewDocumentStore(nil)
	ctx := context.Background()

	a, err := s.EnsureCategory(ctx, "Finance")
	if err != nil {
		t.Fatalf("EnsureCategory: %v", err)
	}
	b, _ := s.EnsureCategory(ctx, " finance ")
	if a.ID != b.ID {
		t.Error("EnsureCategory is not case-insensitive")
	}
	if _, err := s.EnsureCategory(ctx, "  "); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("blank name error = %v, want ErrValidation", err)
	}
}
