// Package classifier assigns a category, summary, entities and tags to
// extracted document text. Providers are stateless; the orchestrator
// persists their results.
package classifier

import (
	"fmt"
	"unicode/utf8"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

// Input is the text and descriptors of one document.
type Input struct {
	Text     string
	Title    string
	Tags     []string
	Metadata map[string]any
}

// Result is the outcome of classifying one document. Confidence is in [0,1].
type Result struct {
	Category   string
	Confidence float64
	Summary    string
	Entities   map[string][]string
	Tags       []string
}

// Config holds limits shared by all providers.
type Config struct {
	MaxInputChars    int
	SummarySentences int
	RulesPath        string
}

func (c Config) withDefaults() Config {
	if c.MaxInputChars <= 0 {
		c.MaxInputChars = 200_000
	}
	if c.SummarySentences <= 0 {
		c.SummarySentences = 3
	}
	return c
}

// checkInput rejects inputs the provider must not process.
func checkInput(in Input, maxChars int) error {
	if n := utf8.RuneCountInString(in.Text); n > maxChars {
		return fmt.Errorf("classifier: text has %d characters, limit %d: %w", n, maxChars, domain.ErrContentTooLarge)
	}
	return nil
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
