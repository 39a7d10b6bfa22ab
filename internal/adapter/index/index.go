// Package index embeds document text and stores the vectors. Writes are
// keyed by document id, so indexing the same document again replaces its
// entry.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

const handlePrefix = "sqlite:"

// Handle returns the index handle for a document.
func Handle(docID uuid.UUID) string {
	return handlePrefix + docID.String()
}

// Indexer combines an embedder with the vector store.
type Indexer struct {
	log      *slog.Logger
	embedder Embedder
	store    *Store
	maxChars int
	now      func() time.Time
}

// New creates an indexer. Text longer than maxChars is refused with
// domain.ErrPayloadTooLarge.
func New(log *slog.Logger, embedder Embedder, store *Store, maxChars int) *Indexer {
	return &Indexer{
		log:      log.With("adapter", "index"),
		embedder: embedder,
		store:    store,
		maxChars: maxChars,
		now:      time.Now,
	}
}

// Index embeds text and upserts it under docID, returning the handle.
func (ix *Indexer) Index(ctx context.Context, docID uuid.UUID, text string, attrs map[string]any) (string, error) {
	if n := utf8.RuneCountInString(text); ix.maxChars > 0 && n > ix.maxChars {
		return "", fmt.Errorf("index: %d characters exceeds %d: %w", n, ix.maxChars, domain.ErrPayloadTooLarge)
	}

	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return "", err
	}
	if err := ix.store.Upsert(ctx, Entry{
		DocumentID: docID.String(),
		Vector:     vec,
		Attributes: attrs,
		Embedder:   ix.embedder.Name(),
		UpdatedAt:  ix.now(),
	}); err != nil {
		return "", err
	}

	ix.log.DebugContext(ctx, "indexed", slog.String("document_id", docID.String()), slog.Int("dims", len(vec)))
	return Handle(docID), nil
}

// Remove deletes the entry for docID.
func (ix *Indexer) Remove(ctx context.Context, docID uuid.UUID) error {
	return ix.store.Delete(ctx, docID.String())
}

// Get returns the stored entry for docID.
func (ix *Indexer) Get(ctx context.Context, docID uuid.UUID) (*Entry, error) {
	return ix.store.Get(ctx, docID.String())
}

// Search embeds query and returns up to k of the closest indexed documents.
func (ix *Indexer) Search(ctx context.Context, query string, k int) ([]domain.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewValidationError("q", "must not be empty")
	}
	if n := utf8.RuneCountInString(query); ix.maxChars > 0 && n > ix.maxChars {
		return nil, domain.NewValidationError("q", fmt.Sprintf("longer than %d characters", ix.maxChars))
	}

	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := ix.store.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SearchHit, 0, len(hits))
	for _, h := range hits {
		id, err := uuid.Parse(h.DocumentID)
		if err != nil {
			ix.log.WarnContext(ctx, "skipping index entry with bad id", slog.String("document_id", h.DocumentID))
			continue
		}
		out = append(out, domain.SearchHit{DocumentID: id, Score: h.Score, Attributes: h.Attributes})
	}
	ix.log.DebugContext(ctx, "searched", slog.Int("k", k), slog.Int("hits", len(out)))
	return out, nil
}
