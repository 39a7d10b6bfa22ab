package index

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

// Entry is one stored vector.
type Entry struct {
	DocumentID string
	Vector     []float32
	Attributes map[string]any
	Embedder   string
	UpdatedAt  time.Time
}

// Store persists vectors in SQLite keyed by document id.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the SQLite database at path with WAL mode.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	// SQLite allows one writer.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		`CREATE TABLE IF NOT EXISTS vectors (
			document_id TEXT PRIMARY KEY,
			dims        INTEGER NOT NULL,
			vector      BLOB NOT NULL,
			attributes  TEXT NOT NULL DEFAULT '{}',
			embedder    TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("index: init schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces the vector for e.DocumentID.
func (s *Store) Upsert(ctx context.Context, e Entry) error {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return fmt.Errorf("index: marshal attributes: %w", err)
	}
	if e.Attributes == nil {
		attrs = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vectors (document_id, dims, vector, attributes, embedder, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			dims = excluded.dims,
			vector = excluded.vector,
			attributes = excluded.attributes,
			embedder = excluded.embedder,
			updated_at = excluded.updated_at`,
		e.DocumentID, len(e.Vector), encodeVector(e.Vector), string(attrs), e.Embedder,
		e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("index: upsert %s: %v: %w", e.DocumentID, err, domain.ErrIndexUnavailable)
	}
	return nil
}

// Get returns the entry for documentID or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, documentID string) (*Entry, error) {
	var (
		blob      []byte
		dims      int
		attrs     string
		updatedAt string
		e         = Entry{DocumentID: documentID}
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT dims, vector, attributes, embedder, updated_at FROM vectors WHERE document_id = ?`,
		documentID,
	).Scan(&dims, &blob, &attrs, &e.Embedder, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: %s: %w", documentID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get %s: %v: %w", documentID, err, domain.ErrIndexUnavailable)
	}

	e.Vector, err = decodeVector(blob, dims)
	if err != nil {
		return nil, fmt.Errorf("index: %s: %w", documentID, err)
	}
	if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
		return nil, fmt.Errorf("index: %s attributes: %w", documentID, err)
	}
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &e, nil
}

// Delete removes the entry for documentID. Missing entries are not an error.
func (s *Store) Delete(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vectors WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("index: delete %s: %v: %w", documentID, err, domain.ErrIndexUnavailable)
	}
	return nil
}

// Hit is one scored entry returned by Search.
type Hit struct {
	DocumentID string
	Score      float64
	Attributes map[string]any
}

// Search scans every stored vector and returns the k entries closest to vec
// by cosine similarity, best first. Entries with a different dimension
// (written by another embedder) are skipped.
func (s *Store) Search(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, domain.NewValidationError("k", "must be positive")
	}
	qnorm := norm(vec)
	if qnorm == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, dims, vector, attributes FROM vectors WHERE dims = ?`, len(vec))
	if err != nil {
		return nil, fmt.Errorf("index: search: %v: %w", err, domain.ErrIndexUnavailable)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			id    string
			dims  int
			blob  []byte
			attrs string
		)
		if err := rows.Scan(&id, &dims, &blob, &attrs); err != nil {
			return nil, fmt.Errorf("index: search scan: %v: %w", err, domain.ErrIndexUnavailable)
		}
		v, err := decodeVector(blob, dims)
		if err != nil {
			return nil, fmt.Errorf("index: %s: %w", id, err)
		}
		vnorm := norm(v)
		if vnorm == 0 {
			continue
		}
		h := Hit{DocumentID: id, Score: dot(vec, v) / (qnorm * vnorm)}
		if err := json.Unmarshal([]byte(attrs), &h.Attributes); err != nil {
			return nil, fmt.Errorf("index: %s attributes: %w", id, err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: search: %v: %w", err, domain.ErrIndexUnavailable)
	}

	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.DocumentID, b.DocumentID)
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of stored vectors.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %v: %w", err, domain.ErrIndexUnavailable)
	}
	return n, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte, dims int) ([]float32, error) {
	if len(buf) != 4*dims {
		return nil, fmt.Errorf("vector blob has %d bytes, want %d", len(buf), 4*dims)
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
