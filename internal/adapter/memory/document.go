// Package memory provides in-process stores with the same semantics as the
// PostgreSQL repositories, including version-conditioned writes. They back
// the pipeline tests and the single-binary development mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

// DocumentStore is an in-memory document store.
type DocumentStore struct {
	mu         sync.RWMutex
	docs       map[uuid.UUID]*domain.Document
	categories map[uuid.UUID]domain.Category
	now        func() time.Time
}

// NewDocumentStore creates an empty store. now may be nil.
func NewDocumentStore(now func() time.Time) *DocumentStore {
	if now == nil {
		now = time.Now
	}
	return &DocumentStore{
		docs:       make(map[uuid.UUID]*domain.Document),
		categories: make(map[uuid.UUID]domain.Category),
		now:        now,
	}
}

// Create stores doc at version 1.
func (s *DocumentStore) Create(_ context.Context, doc *domain.Document) (*domain.Document, error) {
	if err := doc.CheckInvariants(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.ID]; ok {
		return nil, fmt.Errorf("document %s: %w", doc.ID, domain.ErrAlreadyExists)
	}

	now := s.now().UTC()
	d := doc.Clone()
	d.Version = 1
	d.CreatedAt = now
	d.UpdatedAt = now
	s.docs[d.ID] = d
	return d.Clone(), nil
}

// Get returns a copy of the stored document.
func (s *DocumentStore) Get(_ context.Context, id uuid.UUID) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return d.Clone(), nil
}

// Update replaces the stored document if its version equals expectedVersion.
func (s *DocumentStore) Update(_ context.Context, doc *domain.Document, expectedVersion int64) (*domain.Document, error) {
	if err := doc.CheckInvariants(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.docs[doc.ID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", doc.ID, domain.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return nil, fmt.Errorf("document %s: %w", doc.ID, domain.ErrConcurrentModification)
	}

	d := doc.Clone()
	d.Version = expectedVersion + 1
	d.CreatedAt = cur.CreatedAt
	d.UpdatedAt = s.now().UTC()
	s.docs[d.ID] = d
	return d.Clone(), nil
}

// List returns matching documents newest first, plus the total count.
func (s *DocumentStore) List(_ context.Context, f domain.DocumentFilter) ([]*domain.Document, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.Document
	for _, d := range s.docs {
		if matches(d, f) {
			matched = append(matched, d)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := len(matched)
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	start := min(max(f.Offset, 0), total)
	end := min(start+limit, total)

	out := make([]*domain.Document, 0, end-start)
	for _, d := range matched[start:end] {
		out = append(out, d.Clone())
	}
	return out, total, nil
}

func matches(d *domain.Document, f domain.DocumentFilter) bool {
	switch {
	case f.Status != nil && d.Status != *f.Status:
		return false
	case f.ApprovalStatus != nil && d.ApprovalStatus != *f.ApprovalStatus:
		return false
	case f.CategoryID != nil && (d.CategoryID == nil || *d.CategoryID != *f.CategoryID):
		return false
	case f.UploadedBy != nil && d.UploadedBy != *f.UploadedBy:
		return false
	case f.From != nil && d.CreatedAt.Before(*f.From):
		return false
	case f.To != nil && !d.CreatedAt.Before(*f.To):
		return false
	}
	return true
}

// FindByContentHash returns the oldest non-withdrawn document with hash.
func (s *DocumentStore) FindByContentHash(_ context.Context, hash string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Document
	for _, d := range s.docs {
		if d.ContentHash != hash || d.Status == domain.StatusWithdrawn {
			continue
		}
		if found == nil || d.CreatedAt.Before(found.CreatedAt) {
			found = d
		}
	}
	if found == nil {
		return nil, fmt.Errorf("document with hash %s: %w", hash, domain.ErrNotFound)
	}
	return found.Clone(), nil
}

// ListRunnable mirrors the PostgreSQL query: pre-stage documents plus
// in-stage documents not written since rq.StalledBefore.
func (s *DocumentStore) ListRunnable(_ context.Context, rq domain.RunnableQuery) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var picked []*domain.Document
	for _, d := range s.docs {
		if _, ok := d.Status.PendingStage(); ok {
			picked = append(picked, d)
			continue
		}
		if _, ok := d.Status.ActiveStage(); ok && d.UpdatedAt.Before(rq.StalledBefore) {
			picked = append(picked, d)
		}
	}
	return idsByTime(picked, rq.Limit, func(d *domain.Document) time.Time { return d.UpdatedAt }), nil
}

// ListRetryDue returns failed, retryable documents whose backoff elapsed.
func (s *DocumentStore) ListRetryDue(_ context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var picked []*domain.Document
	for _, d := range s.docs {
		if d.Status == domain.StatusFailed && d.Retryable && d.NextRetryAt != nil && !d.NextRetryAt.After(before) {
			picked = append(picked, d)
		}
	}
	return idsByTime(picked, limit, func(d *domain.Document) time.Time { return *d.NextRetryAt }), nil
}

func idsByTime(docs []*domain.Document, limit int, key func(*domain.Document) time.Time) []uuid.UUID {
	sort.Slice(docs, func(i, j int) bool { return key(docs[i]).Before(key(docs[j])) })
	if limit <= 0 {
		limit = 100
	}
	if len(docs) > limit {
		docs = docs[:limit]
	}
	ids := make([]uuid.UUID, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

// Stats aggregates the same figures as the PostgreSQL repository.
func (s *DocumentStore) Stats(_ context.Context) (domain.DocumentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.DocumentStats{
		ByStatus:   make(map[domain.DocumentStatus]int),
		ByApproval: make(map[domain.ApprovalStatus]int),
		ByCategory: make(map[string]int),
	}
	for _, d := range s.docs {
		stats.Total++
		stats.StorageBytes += d.SizeBytes
		stats.ByStatus[d.Status]++
		stats.ByApproval[d.ApprovalStatus]++
		if d.NeedsReview {
			stats.NeedsReview++
		}
		if d.CategoryID != nil {
			if c, ok := s.categories[*d.CategoryID]; ok {
				stats.ByCategory[c.Name]++
			}
		}
	}
	return stats, nil
}

// EnsureCategory returns the category named name, creating it if needed.
func (s *DocumentStore) EnsureCategory(_ context.Context, name string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, domain.NewValidationError("category", "required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.categories {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	c := domain.Category{ID: uuid.New(), Name: name, CreatedAt: s.now().UTC()}
	s.categories[c.ID] = c
	return c, nil
}

// GetCategory returns a category by ID.
func (s *DocumentStore) GetCategory(_ context.Context, id uuid.UUID) (domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	if !ok {
		return domain.Category{}, fmt.Errorf("category %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

// ListCategories returns all categories ordered by name.
func (s *DocumentStore) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}
