package rest

import (
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

type documentResponse struct {
	ID                       uuid.UUID           `json:"id"`
	Title                    string              `json:"title"`
	Description              *string             `json:"description,omitempty"`
	Filename                 string              `json:"filename"`
	FileURL                  *string             `json:"file_url,omitempty"`
	SizeBytes                int64               `json:"size_bytes"`
	ContentType              string              `json:"content_type"`
	ContentHash              string              `json:"content_hash"`
	Status                   string              `json:"status"`
	ApprovalStatus           string              `json:"approval_status"`
	ProcessingError          *string             `json:"processing_error,omitempty"`
	FailedStage              *string             `json:"failed_stage,omitempty"`
	RetryCounts              map[string]int      `json:"retry_counts,omitempty"`
	Retryable                bool                `json:"retryable"`
	NextRetryAt              *time.Time          `json:"next_retry_at,omitempty"`
	Classification           *string             `json:"classification,omitempty"`
	ClassificationConfidence *float64            `json:"classification_confidence,omitempty"`
	NeedsReview              bool                `json:"needs_review"`
	Summary                  *string             `json:"summary,omitempty"`
	Entities                 map[string][]string `json:"entities,omitempty"`
	ExtractedText            *string             `json:"extracted_text,omitempty"`
	Tags                     []string            `json:"tags"`
	Metadata                 map[string]any      `json:"metadata,omitempty"`
	CategoryID               *uuid.UUID          `json:"category_id,omitempty"`
	CategorySource           string              `json:"category_source,omitempty"`
	UploadedBy               uuid.UUID           `json:"uploaded_by"`
	ApprovedBy               *uuid.UUID          `json:"approved_by,omitempty"`
	ApprovedAt               *time.Time          `json:"approved_at,omitempty"`
	RejectionReason          *string             `json:"rejection_reason,omitempty"`
	IndexHandle              *string             `json:"index_handle,omitempty"`
	IndexedAt                *time.Time          `json:"indexed_at,omitempty"`
	Version                  int64               `json:"version"`
	CreatedAt                time.Time           `json:"created_at"`
	UpdatedAt                time.Time           `json:"updated_at"`
	ProcessedAt              *time.Time          `json:"processed_at,omitempty"`
}

func toDocumentResponse(d *domain.Document, withText bool) documentResponse {
	resp := documentResponse{
		ID:                       d.ID,
		Title:                    d.Title,
		Description:              d.Description,
		Filename:                 d.Filename,
		FileURL:                  d.FileURL,
		SizeBytes:                d.SizeBytes,
		ContentType:              d.ContentType,
		ContentHash:              d.ContentHash,
		Status:                   string(d.Status),
		ApprovalStatus:           string(d.ApprovalStatus),
		ProcessingError:          d.ProcessingError,
		Retryable:                d.Retryable,
		NextRetryAt:              d.NextRetryAt,
		Classification:           d.Classification,
		ClassificationConfidence: d.ClassificationConfidence,
		NeedsReview:              d.NeedsReview,
		Summary:                  d.Summary,
		Entities:                 d.Entities,
		Tags:                     d.Tags,
		Metadata:                 d.Metadata,
		CategoryID:               d.CategoryID,
		CategorySource:           string(d.CategorySource),
		UploadedBy:               d.UploadedBy,
		ApprovedBy:               d.ApprovedBy,
		ApprovedAt:               d.ApprovedAt,
		RejectionReason:          d.RejectionReason,
		IndexHandle:              d.IndexHandle,
		IndexedAt:                d.IndexedAt,
		Version:                  d.Version,
		CreatedAt:                d.CreatedAt,
		UpdatedAt:                d.UpdatedAt,
		ProcessedAt:              d.ProcessedAt,
	}
	if d.FailedStage != nil {
		s := string(*d.FailedStage)
		resp.FailedStage = &s
	}
	if len(d.RetryCounts) > 0 {
		resp.RetryCounts = make(map[string]int, len(d.RetryCounts))
		for st, n := range d.RetryCounts {
			resp.RetryCounts[string(st)] = n
		}
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if withText {
		resp.ExtractedText = d.ExtractedText
	}
	return resp
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type workflowResponse struct {
	ID           uuid.UUID      `json:"id"`
	DocumentID   *uuid.UUID     `json:"document_id,omitempty"`
	Kind         string         `json:"kind"`
	Status       string         `json:"status"`
	Gating       bool           `json:"gating"`
	Input        map[string]any `json:"input,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	ExternalRef  *string        `json:"external_ref,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

func toWorkflowResponse(wf *domain.WorkflowInstance) workflowResponse {
	return workflowResponse{
		ID:           wf.ID,
		DocumentID:   wf.DocumentID,
		Kind:         string(wf.Kind),
		Status:       string(wf.Status),
		Gating:       wf.Gating,
		Input:        wf.Input,
		Output:       wf.Output,
		ExternalRef:  wf.ExternalRef,
		ErrorMessage: wf.ErrorMessage,
		StartedAt:    wf.StartedAt,
		CompletedAt:  wf.CompletedAt,
	}
}

type auditEntryResponse struct {
	ID           string         `json:"id"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Actor        string         `json:"actor"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Details      map[string]any `json:"details,omitempty"`
	Origin       string         `json:"origin,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
}

func toAuditEntryResponse(e domain.AuditEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:           e.ID,
		OccurredAt:   e.OccurredAt,
		Actor:        e.Actor,
		Action:       string(e.Action),
		ResourceType: string(e.ResourceType),
		ResourceID:   e.ResourceID,
		Details:      e.Details,
		Origin:       e.Origin,
		UserAgent:    e.UserAgent,
	}
}

type auditSummaryResponse struct {
	From       time.Time            `json:"from"`
	To         time.Time            `json:"to"`
	Total      int                  `json:"total"`
	ByAction   map[string]int       `json:"by_action"`
	ByActor    map[string]int       `json:"by_actor"`
	ByResource map[string]int       `json:"by_resource"`
	Timeline   []auditDayResponse   `json:"timeline"`
	TopActors  []auditActorResponse `json:"top_actors"`
}

type auditDayResponse struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

type auditActorResponse struct {
	Actor string `json:"actor"`
	Count int    `json:"count"`
}

func toAuditSummaryResponse(s domain.AuditSummary) auditSummaryResponse {
	resp := auditSummaryResponse{
		From:       s.From,
		To:         s.To,
		Total:      s.Total,
		ByAction:   s.ByAction,
		ByActor:    s.ByActor,
		ByResource: s.ByResource,
		Timeline:   make([]auditDayResponse, len(s.Timeline)),
		TopActors:  make([]auditActorResponse, len(s.TopActors)),
	}
	for i, d := range s.Timeline {
		resp.Timeline[i] = auditDayResponse{Day: d.Day.Format(time.DateOnly), Count: d.Count}
	}
	for i, a := range s.TopActors {
		resp.TopActors[i] = auditActorResponse{Actor: a.Actor, Count: a.Count}
	}
	return resp
}
