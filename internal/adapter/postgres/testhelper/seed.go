package testhelper

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueSuffix returns a short unique string for generating non-conflicting test data.
func uniqueSuffix() string {
	return uuid.New().String()[:8]
}

// SeedCategory inserts a uniquely named category and returns its ID and name.
func SeedCategory(t *testing.T, pool *pgxpool.Pool) (uuid.UUID, string) {
	t.Helper()

	id := uuid.New()
	name := "category-" + uniqueSuffix()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO categories (id, name) VALUES ($1, $2)`, id, name)
	if err != nil {
		t.Fatalf("testhelper: SeedCategory: %v", err)
	}
	return id, name
}

// SeedDocument inserts an uploaded plain-text document with default values
// and returns its ID.
func SeedDocument(t *testing.T, pool *pgxpool.Pool, uploadedBy uuid.UUID) uuid.UUID {
	t.Helper()

	id := uuid.New()
	suffix := uniqueSuffix()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO documents (id, title, filename, storage_path, size_bytes, content_type, content_hash, uploaded_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, "seed "+suffix, "seed-"+suffix+".txt", "documents/"+id.String(), 42, "text/plain", "hash-"+suffix, uploadedBy,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedDocument: %v", err)
	}
	return id
}
