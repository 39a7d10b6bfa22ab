// Package audit implements the append-only audit log on PostgreSQL.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	postgres "github.com/heartmarshall/docflow-backend/internal/adapter/postgres"
	"github.com/heartmarshall/docflow-backend/internal/domain"
)

const (
	table        = "audit_log"
	defaultLimit = 100
	maxLimit     = 1000
)

var columns = []string{
	"id", "actor", "action", "resource_type", "resource_id",
	"details", "origin", "user_agent", "occurred_at",
}

// Repo provides audit log persistence backed by PostgreSQL.
type Repo struct {
	db postgres.Querier
}

// New creates a new audit repository.
func New(db postgres.Querier) *Repo {
	return &Repo{db: db}
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

// Append inserts entries in a single statement, preserving slice order.
// Entries already present (same ID) are skipped so a retried flush does not
// duplicate history.
func (r *Repo) Append(ctx context.Context, entries []domain.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ins := postgres.Builder().Insert(table).Columns(columns...)
	for _, e := range entries {
		details, err := marshalDetails(e.Details)
		if err != nil {
			return fmt.Errorf("audit.Append: entry %s: %w", e.ID, err)
		}
		ins = ins.Values(
			e.ID, e.Actor, string(e.Action), string(e.ResourceType), e.ResourceID,
			details, e.Origin, e.UserAgent, e.OccurredAt.UTC(),
		)
	}

	query, args, err := ins.Suffix("ON CONFLICT (id) DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("audit.Append: build: %w", err)
	}

	if _, err := postgres.QuerierFromCtx(ctx, r.db).Exec(ctx, query, args...); err != nil {
		return postgres.MapError(err, "audit_entry", entries[0].ID)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// Query returns entries matching filter in occurrence order, plus the total
// number of matches.
func (r *Repo) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int, error) {
	where := filterConditions(filter)
	q := postgres.QuerierFromCtx(ctx, r.db)

	countQuery, countArgs, err := postgres.Builder().
		Select("count(*)").From(table).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("audit.Query: build count: %w", err)
	}
	var total int
	if err := q.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit.Query: count: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	query, args, err := postgres.Builder().
		Select(columns...).
		From(table).
		Where(where).
		OrderBy("occurred_at", "id").
		Limit(uint64(limit)).
		Offset(uint64(max(filter.Offset, 0))).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("audit.Query: build: %w", err)
	}

	var rows []entryRow
	if err := pgxscan.Select(ctx, q, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("audit.Query: %w", err)
	}

	entries := make([]domain.AuditEntry, len(rows))
	for i, row := range rows {
		e, err := row.toDomain()
		if err != nil {
			return nil, 0, err
		}
		entries[i] = e
	}
	return entries, total, nil
}

// Summary counts entries in [from, to) grouped by action, actor, resource
// type and UTC day. Days without entries are omitted from the timeline.
func (r *Repo) Summary(ctx context.Context, from, to time.Time) (domain.AuditSummary, error) {
	where := sq.And{
		sq.GtOrEq{"occurred_at": from.UTC()},
		sq.Lt{"occurred_at": to.UTC()},
	}
	q := postgres.QuerierFromCtx(ctx, r.db)

	sum := domain.AuditSummary{From: from, To: to}
	var err error
	if sum.ByAction, err = countBy(ctx, q, "action", where); err != nil {
		return domain.AuditSummary{}, err
	}
	if sum.ByActor, err = countBy(ctx, q, "actor", where); err != nil {
		return domain.AuditSummary{}, err
	}
	if sum.ByResource, err = countBy(ctx, q, "resource_type", where); err != nil {
		return domain.AuditSummary{}, err
	}
	byDay, err := countBy(ctx, q, dayExpr, where)
	if err != nil {
		return domain.AuditSummary{}, err
	}

	for _, n := range sum.ByAction {
		sum.Total += n
	}
	for day, n := range byDay {
		t, err := time.Parse(time.DateOnly, day)
		if err != nil {
			return domain.AuditSummary{}, fmt.Errorf("audit.Summary: day %q: %w", day, err)
		}
		sum.Timeline = append(sum.Timeline, domain.AuditDayCount{Day: t, Count: n})
	}
	slices.SortFunc(sum.Timeline, func(a, b domain.AuditDayCount) int { return a.Day.Compare(b.Day) })
	return sum, nil
}

const dayExpr = "to_char(occurred_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')"

type groupCount struct {
	Key   string `db:"key"`
	Count int    `db:"count"`
}

func countBy(ctx context.Context, q postgres.Querier, expr string, where sq.Sqlizer) (map[string]int, error) {
	query, args, err := postgres.Builder().
		Select(expr+" AS key", "count(*) AS count").
		From(table).
		Where(where).
		GroupBy("1").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("audit.Summary: build: %w", err)
	}

	var rows []groupCount
	if err := pgxscan.Select(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("audit.Summary: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Count
	}
	return out, nil
}

func filterConditions(f domain.AuditFilter) sq.And {
	where := sq.And{}
	if f.Actor != "" {
		where = append(where, sq.Eq{"actor": f.Actor})
	}
	if f.Action != "" {
		where = append(where, sq.Eq{"action": string(f.Action)})
	}
	if f.ResourceType != "" {
		where = append(where, sq.Eq{"resource_type": string(f.ResourceType)})
	}
	if f.ResourceID != "" {
		where = append(where, sq.Eq{"resource_id": f.ResourceID})
	}
	if f.From != nil {
		where = append(where, sq.GtOrEq{"occurred_at": f.From.UTC()})
	}
	if f.To != nil {
		where = append(where, sq.Lt{"occurred_at": f.To.UTC()})
	}
	return where
}

// ---------------------------------------------------------------------------
// Row mapping
// ---------------------------------------------------------------------------

type entryRow struct {
	ID           string    `db:"id"`
	Actor        string    `db:"actor"`
	Action       string    `db:"action"`
	ResourceType string    `db:"resource_type"`
	ResourceID   string    `db:"resource_id"`
	Details      []byte    `db:"details"`
	Origin       string    `db:"origin"`
	UserAgent    string    `db:"user_agent"`
	OccurredAt   time.Time `db:"occurred_at"`
}

func (row entryRow) toDomain() (domain.AuditEntry, error) {
	e := domain.AuditEntry{
		ID:           row.ID,
		Actor:        row.Actor,
		Action:       domain.AuditAction(row.Action),
		ResourceType: domain.ResourceType(row.ResourceType),
		ResourceID:   row.ResourceID,
		Origin:       row.Origin,
		UserAgent:    row.UserAgent,
		OccurredAt:   row.OccurredAt,
	}
	if len(row.Details) > 0 {
		if err := json.Unmarshal(row.Details, &e.Details); err != nil {
			return domain.AuditEntry{}, fmt.Errorf("audit_entry %s unmarshal details: %w", row.ID, err)
		}
	}
	return e, nil
}

func marshalDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(details)
}
