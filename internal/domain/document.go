package domain

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Document is a single uploaded file and the results of processing it.
// The lifecycle fields (Status, ProcessingError, FailedStage, IndexHandle,
// RetryCounts) are written only by the pipeline orchestrator.
type Document struct {
	ID uuid.UUID

	// Content descriptors, immutable once set.
	Title       string
	Description *string
	Filename    string
	StoragePath string
	FileURL     *string
	SizeBytes   int64
	ContentType string
	ContentHash string

	// Analysis results.
	ExtractedText            *string
	Summary                  *string
	Entities                 map[string][]string
	Classification           *string
	ClassificationConfidence *float64
	NeedsReview              bool

	Tags     []string
	Metadata map[string]any

	CategoryID     *uuid.UUID
	CategorySource CategorySource
	UploadedBy     uuid.UUID

	Status          DocumentStatus
	ProcessingError *string
	FailedStage     *Stage
	RetryCounts     map[Stage]int
	Retryable       bool
	NextRetryAt     *time.Time

	ApprovalStatus  ApprovalStatus
	ApprovedBy      *uuid.UUID
	ApprovedAt      *time.Time
	RejectionReason *string

	IndexHandle *string
	IndexedAt   *time.Time

	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// CategorySource records who assigned Document.CategoryID.
type CategorySource string

const (
	CategorySourceNone       CategorySource = ""
	CategorySourceHuman      CategorySource = "human"
	CategorySourceClassifier CategorySource = "classifier"
)

func (s CategorySource) String() string { return string(s) }

// Category groups documents. Names are unique case-insensitively.
type Category struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// CheckInvariants verifies the structural rules every persisted document
// must satisfy. The store calls it before each write.
func (d *Document) CheckInvariants() error {
	if !d.Status.IsValid() {
		return fmt.Errorf("document %s: unknown status %q: %w", d.ID, d.Status, ErrValidation)
	}
	if !d.ApprovalStatus.IsValid() {
		return fmt.Errorf("document %s: unknown approval status %q: %w", d.ID, d.ApprovalStatus, ErrValidation)
	}
	if (d.IndexHandle != nil) != (d.Status == StatusIndexed) {
		return fmt.Errorf("document %s: index handle must be set iff status is indexed (status %s): %w",
			d.ID, d.Status, ErrValidation)
	}
	if d.ProcessingError != nil && d.Status != StatusFailed {
		return fmt.Errorf("document %s: processing error set in status %s: %w", d.ID, d.Status, ErrValidation)
	}
	if d.Status == StatusFailed && d.FailedStage == nil {
		return fmt.Errorf("document %s: failed without a failed stage: %w", d.ID, ErrValidation)
	}
	if d.ClassificationConfidence != nil {
		if c := *d.ClassificationConfidence; c < 0 || c > 1 {
			return fmt.Errorf("document %s: confidence %v out of range: %w", d.ID, c, ErrValidation)
		}
	}
	return nil
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Description = clonePtr(d.Description)
	c.FileURL = clonePtr(d.FileURL)
	c.ExtractedText = clonePtr(d.ExtractedText)
	c.Summary = clonePtr(d.Summary)
	c.Classification = clonePtr(d.Classification)
	c.ClassificationConfidence = clonePtr(d.ClassificationConfidence)
	c.CategoryID = clonePtr(d.CategoryID)
	c.ProcessingError = clonePtr(d.ProcessingError)
	c.FailedStage = clonePtr(d.FailedStage)
	c.NextRetryAt = clonePtr(d.NextRetryAt)
	c.ApprovedBy = clonePtr(d.ApprovedBy)
	c.ApprovedAt = clonePtr(d.ApprovedAt)
	c.RejectionReason = clonePtr(d.RejectionReason)
	c.IndexHandle = clonePtr(d.IndexHandle)
	c.IndexedAt = clonePtr(d.IndexedAt)
	c.ProcessedAt = clonePtr(d.ProcessedAt)
	c.Tags = slices.Clone(d.Tags)
	c.Metadata = maps.Clone(d.Metadata)
	c.RetryCounts = maps.Clone(d.RetryCounts)
	if d.Entities != nil {
		c.Entities = make(map[string][]string, len(d.Entities))
		for k, v := range d.Entities {
			c.Entities[k] = slices.Clone(v)
		}
	}
	return &c
}

// RetryCount returns how many times stage has failed for this document.
func (d *Document) RetryCount(stage Stage) int {
	return d.RetryCounts[stage]
}

// NormalizeTags lowercases, deduplicates and sorts tags.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = NormalizeText(t)
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
