package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	postgres "github.com/heartmarshall/docflow-backend/internal/adapter/postgres"
	"github.com/heartmarshall/docflow-backend/internal/domain"
)

// EnsureCategory returns the category named name, creating it if needed.
// Matching is case-insensitive.
func (r *Repo) EnsureCategory(ctx context.Context, name string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, domain.NewValidationError("category", "required")
	}

	q := postgres.QuerierFromCtx(ctx, r.db)

	var c domain.Category
	err := q.QueryRow(ctx,
		`INSERT INTO categories (id, name) VALUES ($1, $2)
		 ON CONFLICT ((lower(name))) DO NOTHING
		 RETURNING id, name, created_at`,
		uuid.New(), name,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Category{}, postgres.MapError(err, "category", name)
	}

	// The name already exists; read it back.
	err = q.QueryRow(ctx,
		`SELECT id, name, created_at FROM categories WHERE lower(name) = lower($1)`, name,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return domain.Category{}, postgres.MapError(err, "category", name)
	}
	return c, nil
}

// GetCategory returns a category by ID.
func (r *Repo) GetCategory(ctx context.Context, id uuid.UUID) (domain.Category, error) {
	var c domain.Category
	err := postgres.QuerierFromCtx(ctx, r.db).QueryRow(ctx,
		`SELECT id, name, created_at FROM categories WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return domain.Category{}, postgres.MapError(err, "category", id)
	}
	return c, nil
}

// ListCategories returns all categories ordered by name.
func (r *Repo) ListCategories(ctx context.Context) ([]domain.Category, error) {
	type row struct {
		ID        uuid.UUID `db:"id"`
		Name      string    `db:"name"`
		CreatedAt time.Time `db:"created_at"`
	}
	var rows []row
	if err := pgxscan.Select(ctx, postgres.QuerierFromCtx(ctx, r.db), &rows,
		`SELECT id, name, created_at FROM categories ORDER BY lower(name)`); err != nil {
		return nil, fmt.Errorf("document.ListCategories: %w", err)
	}
	out := make([]domain.Category, len(rows))
	for i, r := range rows {
		out[i] = domain.Category{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt}
	}
	return out, nil
}
