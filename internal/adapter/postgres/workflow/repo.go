// Package workflow implements workflow instance persistence on PostgreSQL.
package workflow

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

const table = "workflow_instances"

var columns = []string{
	"id", "document_id", "kind", "status", "gating", "input", "output",
	"external_ref", "error_message", "started_at", "completed_at",
}

// Repo provides workflow instance persistence backed by PostgreSQL.
type Repo struct {
	db postgres.Querier
}

// New creates a new workflow instance repository.
func New(db postgres.Querier) *Repo {
	return &Repo{db: db}
}

// Create inserts a new instance.
func (r *Repo) Create(ctx context.Context, wf *domain.WorkflowInstance) error {
	row, err := toRow(wf)
	if err != nil {
		return fmt.Errorf("workflow.Create: %w", err)
	}

	query, args, err := postgres.Builder().
		Insert(table).
		Columns(columns...).
		Values(row.values()...).
		ToSql()
	if err != nil {
		return fmt.Errorf("workflow.Create: build: %w", err)
	}

	if _, err := postgres.QuerierFromCtx(ctx, r.db).Exec(ctx, query, args...); err != nil {
		return postgres.MapError(err, "workflow_instance", wf.ID)
	}
	return nil
}

// Get returns an instance by ID.
func (r *Repo) Get(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error) {
	query, args, err := postgres.Builder().
		Select(columns...).From(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("workflow.Get: build: %w", err)
	}

	var row instanceRow
	if err := pgxscan.Get(ctx, postgres.QuerierFromCtx(ctx, r.db), &row, query, args...); err != nil {
		return nil, postgres.MapError(err, "workflow_instance", id)
	}
	return row.toDomain()
}

// Finish moves an active instance to its final status. It reports false when
// the instance was no longer active, leaving it untouched.
func (r *Repo) Finish(ctx context.Context, wf *domain.WorkflowInstance) (bool, error) {
	output, err := marshalJSON(wf.Output)
	if err != nil {
		return false, fmt.Errorf("workflow.Finish: %w", err)
	}

	query, args, err := postgres.Builder().
		Update(table).
		SetMap(map[string]any{
			"status":        string(wf.Status),
			"output":        output,
			"external_ref":  wf.ExternalRef,
			"error_message": wf.ErrorMessage,
			"completed_at":  wf.CompletedAt,
		}).
		Where(sq.Eq{"id": wf.ID, "status": string(domain.WorkflowActive)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("workflow.Finish: build: %w", err)
	}

	tag, err := postgres.QuerierFromCtx(ctx, r.db).Exec(ctx, query, args...)
	if err != nil {
		return false, postgres.MapError(err, "workflow_instance", wf.ID)
	}
	return tag.RowsAffected() == 1, nil
}

// SetExternalRef records the engine's execution identifier.
func (r *Repo) SetExternalRef(ctx context.Context, id uuid.UUID, ref string) error {
	query, args, err := postgres.Builder().
		Update(table).Set("external_ref", ref).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("workflow.SetExternalRef: build: %w", err)
	}
	if _, err := postgres.QuerierFromCtx(ctx, r.db).Exec(ctx, query, args...); err != nil {
		return postgres.MapError(err, "workflow_instance", id)
	}
	return nil
}

// ListByDocument returns every instance started for a document, oldest first.
func (r *Repo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*domain.WorkflowInstance, error) {
	query, args, err := postgres.Builder().
		Select(columns...).
		From(table).
		Where(sq.Eq{"document_id": documentID}).
		OrderBy("started_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("workflow.ListByDocument: build: %w", err)
	}

	var rows []instanceRow
	if err := pgxscan.Select(ctx, postgres.QuerierFromCtx(ctx, r.db), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("workflow.ListByDocument: %w", err)
	}

	out := make([]*domain.WorkflowInstance, 0, len(rows))
	for _, row := range rows {
		wf, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

// FindActive returns the most recent active instance of kind for a document,
// or ErrNotFound.
func (r *Repo) FindActive(ctx context.Context, documentID uuid.UUID, kind domain.WorkflowKind) (*domain.WorkflowInstance, error) {
	query, args, err := postgres.Builder().
		Select(columns...).
		From(table).
		Where(sq.Eq{
			"document_id": documentID,
			"kind":        string(kind),
			"status":      string(domain.WorkflowActive),
		}).
		OrderBy("started_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("workflow.FindActive: build: %w", err)
	}

	var row instanceRow
	if err := pgxscan.Get(ctx, postgres.QuerierFromCtx(ctx, r.db), &row, query, args...); err != nil {
		return nil, postgres.MapError(err, "workflow_instance", documentID)
	}
	return row.toDomain()
}

// ---------------------------------------------------------------------------
// Row mapping
// ---------------------------------------------------------------------------

type instanceRow struct {
	ID           uuid.UUID  `db:"id"`
	DocumentID   *uuid.UUID `db:"document_id"`
	Kind         string     `db:"kind"`
	Status       string     `db:"status"`
	Gating       bool       `db:"gating"`
	Input        []byte     `db:"input"`
	Output       []byte     `db:"output"`
	ExternalRef  *string    `db:"external_ref"`
	ErrorMessage *string    `db:"error_message"`
	StartedAt    time.Time  `db:"started_at"`
	CompletedAt  *time.Time `db:"completed_at"`
}

func toRow(wf *domain.WorkflowInstance) (instanceRow, error) {
	input, err := marshalJSON(wf.Input)
	if err != nil {
		return instanceRow{}, err
	}
	output, err := marshalJSON(wf.Output)
	if err != nil {
		return instanceRow{}, err
	}
	return instanceRow{
		ID:           wf.ID,
		DocumentID:   wf.DocumentID,
		Kind:         string(wf.Kind),
		Status:       string(wf.Status),
		Gating:       wf.Gating,
		Input:        input,
		Output:       output,
		ExternalRef:  wf.ExternalRef,
		ErrorMessage: wf.ErrorMessage,
		StartedAt:    wf.StartedAt.UTC(),
		CompletedAt:  wf.CompletedAt,
	}, nil
}

func (row instanceRow) values() []any {
	return []any{
		row.ID, row.DocumentID, row.Kind, row.Status, row.Gating, row.Input, row.Output,
		row.ExternalRef, row.ErrorMessage, row.StartedAt, row.CompletedAt,
	}
}

func (row instanceRow) toDomain() (*domain.WorkflowInstance, error) {
	wf := &domain.WorkflowInstance{
		ID:           row.ID,
		DocumentID:   row.DocumentID,
		Kind:         domain.WorkflowKind(row.Kind),
		Status:       domain.WorkflowStatus(row.Status),
		Gating:       row.Gating,
		ExternalRef:  row.ExternalRef,
		ErrorMessage: row.ErrorMessage,
		StartedAt:    row.StartedAt,
		CompletedAt:  row.CompletedAt,
	}
	if err := unmarshalJSON(row.Input, &wf.Input); err != nil {
		return nil, fmt.Errorf("workflow_instance %s input: %w", row.ID, err)
	}
	if err := unmarshalJSON(row.Output, &wf.Output); err != nil {
		return nil, fmt.Errorf("workflow_instance %s output: %w", row.ID, err)
	}
	return wf, nil
}

func marshalJSON(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func unmarshalJSON(data []byte, dst *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
