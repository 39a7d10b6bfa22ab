package pipeline

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/heartmarshall/docflow-backend/internal/adapter/classifier"
	"github.com/heartmarshall/docflow-backend/internal/domain"
)

// execute runs the adapter for stage and returns the document with the
// stage's result fields applied. The lifecycle fields are left to the
// caller.
func (s *Service) execute(ctx context.Context, doc *domain.Document, stage domain.Stage) (*domain.Document, map[string]any, error) {
	switch stage {
	case domain.StageExtract:
		return s.extract(ctx, doc)
	case domain.StageClassify:
		return s.classify(ctx, doc)
	case domain.StageIndex:
		return s.index(ctx, doc)
	}
	return nil, nil, fmt.Errorf("unknown stage %q", stage)
}

func (s *Service) extract(ctx context.Context, doc *domain.Document) (*domain.Document, map[string]any, error) {
	data, err := s.adapters.Objects.Get(ctx, doc.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s: %w", doc.StoragePath, errors.Join(domain.ErrExternalUnavailable, err))
	}

	text, err := s.adapters.Extractor.Extract(ctx, data, doc.ContentType, doc.Filename)
	if err != nil {
		return nil, nil, err
	}

	next := doc.Clone()
	next.ExtractedText = &text
	return next, map[string]any{"chars": utf8.RuneCountInString(text)}, nil
}

func (s *Service) classify(ctx context.Context, doc *domain.Document) (*domain.Document, map[string]any, error) {
	var text string
	if doc.ExtractedText != nil {
		text = *doc.ExtractedText
	}

	res, err := s.adapters.Classifier.Classify(ctx, classifier.Input{
		Text:     text,
		Title:    doc.Title,
		Tags:     doc.Tags,
		Metadata: doc.Metadata,
	})
	if err != nil {
		return nil, nil, err
	}

	next := doc.Clone()
	label := res.Category
	confidence := res.Confidence
	next.Classification = &label
	next.ClassificationConfidence = &confidence
	next.NeedsReview = confidence < s.cfg.ConfidenceThreshold
	if res.Summary != "" {
		next.Summary = &res.Summary
	}
	if len(res.Entities) > 0 {
		next.Entities = res.Entities
	}
	next.Tags = domain.NormalizeTags(append(next.Tags, res.Tags...))

	// A category picked by a person is kept; the classifier label is still
	// recorded in Classification.
	if doc.CategorySource != domain.CategorySourceHuman && label != "" {
		cat, err := s.docs.EnsureCategory(ctx, label)
		if err != nil {
			return nil, nil, fmt.Errorf("ensure category %q: %w", label, err)
		}
		next.CategoryID = &cat.ID
		next.CategorySource = domain.CategorySourceClassifier
	}

	return next, map[string]any{
		"classification": label,
		"confidence":     confidence,
		"needs_review":   next.NeedsReview,
	}, nil
}

func (s *Service) index(ctx context.Context, doc *domain.Document) (*domain.Document, map[string]any, error) {
	text, source := s.indexText(doc)

	attrs := map[string]any{
		"title":        doc.Title,
		"content_type": doc.ContentType,
		"tags":         doc.Tags,
	}
	if doc.Classification != nil {
		attrs["classification"] = *doc.Classification
	}
	if doc.CategoryID != nil {
		attrs["category_id"] = doc.CategoryID.String()
	}

	handle, err := s.adapters.Indexer.Index(ctx, doc.ID, text, attrs)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	next := doc.Clone()
	next.IndexHandle = &handle
	next.IndexedAt = &now
	return next, map[string]any{"handle": handle, "source": source}, nil
}

// indexText picks what goes into the index: the extracted text when it fits
// the size limit, else the summary, else the truncated text.
func (s *Service) indexText(doc *domain.Document) (string, string) {
	var text string
	if doc.ExtractedText != nil {
		text = *doc.ExtractedText
	}
	limit := s.cfg.IndexMaxChars
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, "text"
	}
	if doc.Summary != nil && *doc.Summary != "" && utf8.RuneCountInString(*doc.Summary) <= limit {
		return *doc.Summary, "summary"
	}
	return truncateRunes(text, limit), "truncated"
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
