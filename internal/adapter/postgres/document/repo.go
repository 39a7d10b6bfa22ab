// Package document implements the versioned document store on PostgreSQL.
package document

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	postgres "github.com/heartmarshall/docflow-backend/internal/adapter/postgres"
	"github.com/heartmarshall/docflow-backend/internal/domain"
)

const table = "documents"

var columns = []string{
	"id", "title", "description", "filename", "storage_path", "file_url", "size_bytes",
	"content_type", "content_hash", "extracted_text", "summary", "entities", "classification",
	"classification_confidence", "needs_review", "tags", "metadata", "category_id",
	"category_source", "uploaded_by", "status", "processing_error", "failed_stage",
	"retry_counts", "retryable", "next_retry_at", "approval_status", "approved_by",
	"approved_at", "rejection_reason", "index_handle", "indexed_at", "version",
	"created_at", "updated_at", "processed_at",
}

// Repo provides document persistence backed by PostgreSQL. Every write is
// conditioned on the version the caller read.
type Repo struct {
	db  postgres.Querier
	now func() time.Time
}

// New creates a new document repository.
func New(db postgres.Querier) *Repo {
	return &Repo{db: db, now: time.Now}
}

// Create inserts a new document at version 1.
func (r *Repo) Create(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	if err := doc.CheckInvariants(); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	d := doc.Clone()
	d.Version = 1
	d.CreatedAt = now
	d.UpdatedAt = now

	row, err := toRow(d)
	if err != nil {
		return nil, fmt.Errorf("document.Create: %w", err)
	}

	query, args, err := postgres.Builder().
		Insert(table).
		Columns(columns...).
		Values(row.values()...).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("document.Create: build: %w", err)
	}

	q := postgres.QuerierFromCtx(ctx, r.db)
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return nil, postgres.MapError(err, "document", d.ID)
	}
	return d, nil
}

// Get returns a document by ID.
func (r *Repo) Get(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	query, args, err := postgres.Builder().
		Select(columns...).
		From(table).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("document.Get: build: %w", err)
	}

	var row docRow
	if err := pgxscan.Get(ctx, postgres.QuerierFromCtx(ctx, r.db), &row, query, args...); err != nil {
		return nil, postgres.MapError(err, "document", id)
	}
	return row.toDomain()
}

// Update writes every mutable field of doc if and only if the stored version
// still equals expectedVersion. On success the returned copy carries the new
// version and updated_at.
func (r *Repo) Update(ctx context.Context, doc *domain.Document, expectedVersion int64) (*domain.Document, error) {
	if err := doc.CheckInvariants(); err != nil {
		return nil, err
	}

	d := doc.Clone()
	d.Version = expectedVersion + 1
	d.UpdatedAt = r.now().UTC()

	row, err := toRow(d)
	if err != nil {
		return nil, fmt.Errorf("document.Update: %w", err)
	}

	query, args, err := postgres.Builder().
		Update(table).
		SetMap(row.mutable()).
		Where(sq.Eq{"id": d.ID, "version": expectedVersion}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("document.Update: build: %w", err)
	}

	q := postgres.QuerierFromCtx(ctx, r.db)
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return nil, postgres.MapError(err, "document", d.ID)
	}
	if tag.RowsAffected() == 0 {
		return nil, r.missOrConflict(ctx, d.ID)
	}
	return d, nil
}

// missOrConflict tells a missing row apart from a lost version race.
func (r *Repo) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := postgres.QuerierFromCtx(ctx, r.db).
		QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, id).
		Scan(&exists)
	if err != nil {
		return postgres.MapError(err, "document", id)
	}
	if !exists {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("document %s: %w", id, domain.ErrConcurrentModification)
}

// List returns documents matching filter, newest first, plus the total count.
func (r *Repo) List(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, int, error) {
	where := filterConditions(filter)

	countQuery, countArgs, err := postgres.Builder().
		Select("count(*)").From(table).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("document.List: build count: %w", err)
	}

	q := postgres.QuerierFromCtx(ctx, r.db)
	var total int
	if err := q.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("document.List: count: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	sel := postgres.Builder().
		Select(columns...).
		From(table).
		Where(where).
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit))
	if filter.Offset > 0 {
		sel = sel.Offset(uint64(filter.Offset))
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("document.List: build: %w", err)
	}

	var rows []docRow
	if err := pgxscan.Select(ctx, q, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("document.List: %w", err)
	}

	docs := make([]*domain.Document, 0, len(rows))
	for i := range rows {
		d, err := rows[i].toDomain()
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, d)
	}
	return docs, total, nil
}

func filterConditions(f domain.DocumentFilter) sq.And {
	where := sq.And{}
	if f.Status != nil {
		where = append(where, sq.Eq{"status": string(*f.Status)})
	}
	if f.ApprovalStatus != nil {
		where = append(where, sq.Eq{"approval_status": string(*f.ApprovalStatus)})
	}
	if f.CategoryID != nil {
		where = append(where, sq.Eq{"category_id": *f.CategoryID})
	}
	if f.UploadedBy != nil {
		where = append(where, sq.Eq{"uploaded_by": *f.UploadedBy})
	}
	if f.From != nil {
		where = append(where, sq.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		where = append(where, sq.Lt{"created_at": *f.To})
	}
	return where
}

// FindByContentHash returns the oldest live document with the given content
// hash, or ErrNotFound.
func (r *Repo) FindByContentHash(ctx context.Context, hash string) (*domain.Document, error) {
	query, args, err := postgres.Builder().
		Select(columns...).
		From(table).
		Where(sq.Eq{"content_hash": hash}).
		Where(sq.NotEq{"status": string(domain.StatusWithdrawn)}).
		OrderBy("created_at").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("document.FindByContentHash: build: %w", err)
	}

	var row docRow
	if err := pgxscan.Get(ctx, postgres.QuerierFromCtx(ctx, r.db), &row, query, args...); err != nil {
		return nil, postgres.MapError(err, "document with hash", hash)
	}
	return row.toDomain()
}

// ListRunnable returns IDs the scheduler should hand to the runner: documents
// sitting in a pre-stage state and in-stage documents whose last write is
// older than rq.StalledBefore.
func (r *Repo) ListRunnable(ctx context.Context, rq domain.RunnableQuery) ([]uuid.UUID, error) {
	limit := rq.Limit
	if limit <= 0 {
		limit = 100
	}

	query, args, err := postgres.Builder().
		Select("id").
		From(table).
		Where(sq.Or{
			sq.Eq{"status": []string{
				string(domain.StatusUploaded), string(domain.StatusExtracted), string(domain.StatusClassified),
			}},
			sq.And{
				sq.Eq{"status": []string{
					string(domain.StatusExtracting), string(domain.StatusClassifying), string(domain.StatusIndexing),
				}},
				sq.Lt{"updated_at": rq.StalledBefore},
			},
		}).
		OrderBy("updated_at").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("document.ListRunnable: build: %w", err)
	}

	var ids []uuid.UUID
	if err := pgxscan.Select(ctx, postgres.QuerierFromCtx(ctx, r.db), &ids, query, args...); err != nil {
		return nil, fmt.Errorf("document.ListRunnable: %w", err)
	}
	return ids, nil
}

// ListRetryDue returns failed, retryable documents whose backoff elapsed.
func (r *Repo) ListRetryDue(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}

	query, args, err := postgres.Builder().
		Select("id").
		From(table).
		Where(sq.Eq{"status": string(domain.StatusFailed), "retryable": true}).
		Where(sq.LtOrEq{"next_retry_at": before}).
		OrderBy("next_retry_at").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("document.ListRetryDue: build: %w", err)
	}

	var ids []uuid.UUID
	if err := pgxscan.Select(ctx, postgres.QuerierFromCtx(ctx, r.db), &ids, query, args...); err != nil {
		return nil, fmt.Errorf("document.ListRetryDue: %w", err)
	}
	return ids, nil
}

// Stats aggregates counts by status, approval and category plus storage use.
func (r *Repo) Stats(ctx context.Context) (domain.DocumentStats, error) {
	stats := domain.DocumentStats{
		ByStatus:   make(map[domain.DocumentStatus]int),
		ByApproval: make(map[domain.ApprovalStatus]int),
		ByCategory: make(map[string]int),
	}
	q := postgres.QuerierFromCtx(ctx, r.db)

	err := q.QueryRow(ctx,
		`SELECT count(*), COALESCE(sum(size_bytes), 0)::bigint, count(*) FILTER (WHERE needs_review) FROM documents`,
	).Scan(&stats.Total, &stats.StorageBytes, &stats.NeedsReview)
	if err != nil {
		return stats, fmt.Errorf("document.Stats: totals: %w", err)
	}

	type bucket struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}

	var byStatus []bucket
	if err := pgxscan.Select(ctx, q, &byStatus,
		`SELECT status AS key, count(*) AS count FROM documents GROUP BY status`); err != nil {
		return stats, fmt.Errorf("document.Stats: by status: %w", err)
	}
	for _, b := range byStatus {
		stats.ByStatus[domain.DocumentStatus(b.Key)] = b.Count
	}

	var byApproval []bucket
	if err := pgxscan.Select(ctx, q, &byApproval,
		`SELECT approval_status AS key, count(*) AS count FROM documents GROUP BY approval_status`); err != nil {
		return stats, fmt.Errorf("document.Stats: by approval: %w", err)
	}
	for _, b := range byApproval {
		stats.ByApproval[domain.ApprovalStatus(b.Key)] = b.Count
	}

	var byCategory []bucket
	if err := pgxscan.Select(ctx, q, &byCategory,
		`SELECT COALESCE(c.name, 'uncategorized') AS key, count(*) AS count
		   FROM documents d LEFT JOIN categories c ON c.id = d.category_id
		  GROUP BY 1`); err != nil {
		return stats, fmt.Errorf("document.Stats: by category: %w", err)
	}
	for _, b := range byCategory {
		stats.ByCategory[b.Key] = b.Count
	}

	return stats, nil
}

// docRow mirrors the documents table for scany.
type docRow struct {
	ID                       uuid.UUID  `db:"id"`
	Title                    string     `db:"title"`
	Description              *string    `db:"description"`
	Filename                 string     `db:"filename"`
	StoragePath              string     `db:"storage_path"`
	FileURL                  *string    `db:"file_url"`
	SizeBytes                int64      `db:"size_bytes"`
	ContentType              string     `db:"content_type"`
	ContentHash              string     `db:"content_hash"`
	ExtractedText            *string    `db:"extracted_text"`
	Summary                  *string    `db:"summary"`
	Entities                 []byte     `db:"entities"`
	Classification           *string    `db:"classification"`
	ClassificationConfidence *float64   `db:"classification_confidence"`
	NeedsReview              bool       `db:"needs_review"`
	Tags                     []string   `db:"tags"`
	Metadata                 []byte     `db:"metadata"`
	CategoryID               *uuid.UUID `db:"category_id"`
	CategorySource           string     `db:"category_source"`
	UploadedBy               uuid.UUID  `db:"uploaded_by"`
	Status                   string     `db:"status"`
	ProcessingError          *string    `db:"processing_error"`
	FailedStage              *string    `db:"failed_stage"`
	RetryCounts              []byte     `db:"retry_counts"`
	Retryable                bool       `db:"retryable"`
	NextRetryAt              *time.Time `db:"next_retry_at"`
	ApprovalStatus           string     `db:"approval_status"`
	ApprovedBy               *uuid.UUID `db:"approved_by"`
	ApprovedAt               *time.Time `db:"approved_at"`
	RejectionReason          *string    `db:"rejection_reason"`
	IndexHandle              *string    `db:"index_handle"`
	IndexedAt                *time.Time `db:"indexed_at"`
	Version                  int64      `db:"version"`
	CreatedAt                time.Time  `db:"created_at"`
	UpdatedAt                time.Time  `db:"updated_at"`
	ProcessedAt              *time.Time `db:"processed_at"`
}

func toRow(d *domain.Document) (docRow, error) {
	entities, err := marshalJSON(d.Entities)
	if err != nil {
		return docRow{}, fmt.Errorf("marshal entities: %w", err)
	}
	metadata, err := marshalJSON(d.Metadata)
	if err != nil {
		return docRow{}, fmt.Errorf("marshal metadata: %w", err)
	}
	retries, err := marshalJSON(d.RetryCounts)
	if err != nil {
		return docRow{}, fmt.Errorf("marshal retry counts: %w", err)
	}

	var failedStage *string
	if d.FailedStage != nil {
		s := d.FailedStage.String()
		failedStage = &s
	}
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}

	return docRow{
		ID:                       d.ID,
		Title:                    d.Title,
		Description:              d.Description,
		Filename:                 d.Filename,
		StoragePath:              d.StoragePath,
		FileURL:                  d.FileURL,
		SizeBytes:                d.SizeBytes,
		ContentType:              d.ContentType,
		ContentHash:              d.ContentHash,
		ExtractedText:            d.ExtractedText,
		Summary:                  d.Summary,
		Entities:                 entities,
		Classification:           d.Classification,
		ClassificationConfidence: d.ClassificationConfidence,
		NeedsReview:              d.NeedsReview,
		Tags:                     tags,
		Metadata:                 metadata,
		CategoryID:               d.CategoryID,
		CategorySource:           d.CategorySource.String(),
		UploadedBy:               d.UploadedBy,
		Status:                   d.Status.String(),
		ProcessingError:          d.ProcessingError,
		FailedStage:              failedStage,
		RetryCounts:              retries,
		Retryable:                d.Retryable,
		NextRetryAt:              d.NextRetryAt,
		ApprovalStatus:           d.ApprovalStatus.String(),
		ApprovedBy:               d.ApprovedBy,
		ApprovedAt:               d.ApprovedAt,
		RejectionReason:          d.RejectionReason,
		IndexHandle:              d.IndexHandle,
		IndexedAt:                d.IndexedAt,
		Version:                  d.Version,
		CreatedAt:                d.CreatedAt,
		UpdatedAt:                d.UpdatedAt,
		ProcessedAt:              d.ProcessedAt,
	}, nil
}

// values returns the row in columns order.
func (r docRow) values() []any {
	return []any{
		r.ID, r.Title, r.Description, r.Filename, r.StoragePath, r.FileURL, r.SizeBytes,
		r.ContentType, r.ContentHash, r.ExtractedText, r.Summary, r.Entities, r.Classification,
		r.ClassificationConfidence, r.NeedsReview, r.Tags, r.Metadata, r.CategoryID,
		r.CategorySource, r.UploadedBy, r.Status, r.ProcessingError, r.FailedStage,
		r.RetryCounts, r.Retryable, r.NextRetryAt, r.ApprovalStatus, r.ApprovedBy,
		r.ApprovedAt, r.RejectionReason, r.IndexHandle, r.IndexedAt, r.Version,
		r.CreatedAt, r.UpdatedAt, r.ProcessedAt,
	}
}

// mutable returns every column except the immutable descriptors.
func (r docRow) mutable() map[string]any {
	return map[string]any{
		"title":                     r.Title,
		"description":               r.Description,
		"file_url":                  r.FileURL,
		"extracted_text":            r.ExtractedText,
		"summary":                   r.Summary,
		"entities":                  r.Entities,
		"classification":            r.Classification,
		"classification_confidence": r.ClassificationConfidence,
		"needs_review":              r.NeedsReview,
		"tags":                      r.Tags,
		"metadata":                  r.Metadata,
		"category_id":               r.CategoryID,
		"category_source":           r.CategorySource,
		"status":                    r.Status,
		"processing_error":          r.ProcessingError,
		"failed_stage":              r.FailedStage,
		"retry_counts":              r.RetryCounts,
		"retryable":                 r.Retryable,
		"next_retry_at":             r.NextRetryAt,
		"approval_status":           r.ApprovalStatus,
		"approved_by":               r.ApprovedBy,
		"approved_at":               r.ApprovedAt,
		"rejection_reason":          r.RejectionReason,
		"index_handle":              r.IndexHandle,
		"indexed_at":                r.IndexedAt,
		"version":                   r.Version,
		"updated_at":                r.UpdatedAt,
		"processed_at":              r.ProcessedAt,
	}
}

func (r docRow) toDomain() (*domain.Document, error) {
	d := &domain.Document{
		ID:                       r.ID,
		Title:                    r.Title,
		Description:              r.Description,
		Filename:                 r.Filename,
		StoragePath:              r.StoragePath,
		FileURL:                  r.FileURL,
		SizeBytes:                r.SizeBytes,
		ContentType:              r.ContentType,
		ContentHash:              r.ContentHash,
		ExtractedText:            r.ExtractedText,
		Summary:                  r.Summary,
		Classification:           r.Classification,
		ClassificationConfidence: r.ClassificationConfidence,
		NeedsReview:              r.NeedsReview,
		Tags:                     r.Tags,
		CategoryID:               r.CategoryID,
		CategorySource:           domain.CategorySource(r.CategorySource),
		UploadedBy:               r.UploadedBy,
		Status:                   domain.DocumentStatus(r.Status),
		ProcessingError:          r.ProcessingError,
		Retryable:                r.Retryable,
		NextRetryAt:              r.NextRetryAt,
		ApprovalStatus:           domain.ApprovalStatus(r.ApprovalStatus),
		ApprovedBy:               r.ApprovedBy,
		ApprovedAt:               r.ApprovedAt,
		RejectionReason:          r.RejectionReason,
		IndexHandle:              r.IndexHandle,
		IndexedAt:                r.IndexedAt,
		Version:                  r.Version,
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
		ProcessedAt:              r.ProcessedAt,
	}
	if r.FailedStage != nil {
		s := domain.Stage(*r.FailedStage)
		d.FailedStage = &s
	}
	if err := unmarshalJSON(r.Entities, &d.Entities); err != nil {
		return nil, fmt.Errorf("document %s: entities: %w", r.ID, err)
	}
	if err := unmarshalJSON(r.Metadata, &d.Metadata); err != nil {
		return nil, fmt.Errorf("document %s: metadata: %w", r.ID, err)
	}
	if err := unmarshalJSON(r.RetryCounts, &d.RetryCounts); err != nil {
		return nil, fmt.Errorf("document %s: retry counts: %w", r.ID, err)
	}
	return d, nil
}

func marshalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return []byte("{}"), nil
	}
	return b, nil
}

func unmarshalJSON(b []byte, dst any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}
