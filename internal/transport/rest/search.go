package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

const (
	defaultSearchK = 10
	maxSearchK     = 50
)

type searcher interface {
	Search(ctx context.Context, query string, k int) ([]domain.SearchHit, error)
}

type documentGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Document, error)
}

// SearchHandler serves semantic search over indexed documents.
type SearchHandler struct {
	index searcher
	docs  documentGetter
	log   *slog.Logger
}

// NewSearchHandler creates a SearchHandler.
func NewSearchHandler(index searcher, docs documentGetter, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{index: index, docs: docs, log: logger.With("handler", "search")}
}

type searchResult struct {
	Score    float64          `json:"score"`
	Document documentResponse `json:"document"`
}

type searchResponse struct {
	Query   string         `json:"query"`
	Results []searchResult `json:"results"`
}

// Search handles GET /api/documents/search. Hits whose document no longer
// exists are dropped.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	query := r.URL.Query().Get("q")
	k, err := queryInt(r, "k")
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	switch {
	case k < 0:
		handleError(h.log, w, r, domain.NewValidationError("k", "must not be negative"))
		return
	case k == 0:
		k = defaultSearchK
	case k > maxSearchK:
		k = maxSearchK
	}

	hits, err := h.index.Search(r.Context(), query, k)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}

	results := make([]searchResult, 0, len(hits))
	for _, hit := range hits {
		doc, err := h.docs.Get(r.Context(), hit.DocumentID)
		if errors.Is(err, domain.ErrNotFound) {
			h.log.DebugContext(r.Context(), "search hit without document",
				slog.String("document_id", hit.DocumentID.String()))
			continue
		}
		if err != nil {
			handleError(h.log, w, r, err)
			return
		}
		results = append(results, searchResult{Score: hit.Score, Document: toDocumentResponse(doc, false)})
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: query, Results: results})
}
