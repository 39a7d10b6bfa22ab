package domain

import "github.com/google/uuid"

// SearchHit is one document matched by a semantic query. Score is the
// cosine similarity to the query, higher is closer.
type SearchHit struct {
	DocumentID uuid.UUID
	Score      float64
	Attributes map[string]any
}
