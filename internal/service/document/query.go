package document

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

// Get returns a document by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("document.Get: %w", err)
	}
	return doc, nil
}

// List returns a page of documents and the total match count.
func (s *Service) List(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, int, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, 0, domain.NewValidationError("status", "unknown status")
	}
	if filter.ApprovalStatus != nil && !filter.ApprovalStatus.IsValid() {
		return nil, 0, domain.NewValidationError("approval", "unknown approval status")
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, 0, domain.NewValidationError("to", "must not be before from")
	}
	if filter.Offset < 0 {
		return nil, 0, domain.NewValidationError("offset", "must not be negative")
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultLimit
	case filter.Limit > MaxLimit:
		filter.Limit = MaxLimit
	}

	docs, total, err := s.docs.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("document.List: %w", err)
	}
	return docs, total, nil
}

// Stats returns document counts by status, approval and category.
func (s *Service) Stats(ctx context.Context) (domain.DocumentStats, error) {
	stats, err := s.docs.Stats(ctx)
	if err != nil {
		return domain.DocumentStats{}, fmt.Errorf("document.Stats: %w", err)
	}
	return stats, nil
}

// ListCategories returns all categories ordered by name.
func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	cats, err := s.docs.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("document.ListCategories: %w", err)
	}
	return cats, nil
}
