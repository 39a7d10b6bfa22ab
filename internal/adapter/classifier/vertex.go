package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/heartmarshall/docflow-backend/internal/adapter/gemini"
	"github.com/heartmarshall/docflow-backend/internal/domain"
)

type generator interface {
	Generate(ctx context.Context, req gemini.Request) (string, error)
}

const vertexSystemPrompt = `You classify business documents.
Respond with a single JSON object with these fields:
  "category": one of %s, or "Other"
  "confidence": number between 0 and 1
  "summary": at most %d sentences
  "entities": object mapping entity kind (person, organization, email, money, date, url, location) to a list of strings
  "tags": up to 5 short lowercase labels
Do not add any other text.`

// Vertex classifies with a Gemini model in JSON mode.
type Vertex struct {
	log        *slog.Logger
	cfg        Config
	gen        generator
	categories []string
}

// NewVertex creates a model-backed classifier. categories lists the labels
// the model may choose from.
func NewVertex(log *slog.Logger, cfg Config, gen *gemini.Client, categories []string) *Vertex {
	return newVertex(log, cfg, gen, categories)
}

func newVertex(log *slog.Logger, cfg Config, gen generator, categories []string) *Vertex {
	return &Vertex{
		log:        log.With("adapter", "classifier", "provider", "vertex"),
		cfg:        cfg.withDefaults(),
		gen:        gen,
		categories: categories,
	}
}

type vertexResponse struct {
	Category   string              `json:"category"`
	Confidence float64             `json:"confidence"`
	Summary    string              `json:"summary"`
	Entities   map[string][]string `json:"entities"`
	Tags       []string            `json:"tags"`
}

func (v *Vertex) Classify(ctx context.Context, in Input) (Result, error) {
	if err := checkInput(in, v.cfg.MaxInputChars); err != nil {
		return Result{}, err
	}

	quoted := make([]string, len(v.categories))
	for i, c := range v.categories {
		quoted[i] = fmt.Sprintf("%q", c)
	}

	var prompt strings.Builder
	if in.Title != "" {
		fmt.Fprintf(&prompt, "Title: %s\n", in.Title)
	}
	if len(in.Tags) > 0 {
		fmt.Fprintf(&prompt, "Existing tags: %s\n", strings.Join(in.Tags, ", "))
	}
	prompt.WriteString("Document text:\n")
	prompt.WriteString(in.Text)

	out, err := v.gen.Generate(ctx, gemini.Request{
		System: fmt.Sprintf(vertexSystemPrompt, strings.Join(quoted, ", "), v.cfg.SummarySentences),
		Parts:  []genai.Part{genai.Text(prompt.String())},
		JSON:   true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("classifier: %w", err)
	}

	var resp vertexResponse
	if err := json.Unmarshal([]byte(stripCodeFence(out)), &resp); err != nil {
		v.log.WarnContext(ctx, "unparseable model response", slog.Int("chars", len(out)))
		return Result{}, fmt.Errorf("classifier: decode model response: %v: %w", err, domain.ErrModelUnavailable)
	}
	if strings.TrimSpace(resp.Category) == "" {
		return Result{}, fmt.Errorf("classifier: model returned no category: %w", domain.ErrModelUnavailable)
	}

	return Result{
		Category:   strings.TrimSpace(resp.Category),
		Confidence: clampConfidence(resp.Confidence),
		Summary:    strings.TrimSpace(resp.Summary),
		Entities:   resp.Entities,
		Tags:       domain.NormalizeTags(resp.Tags),
	}, nil
}

// CategoryNames returns the category labels of a rule set in order, with
// the fallback last.
func (rs *RuleSet) CategoryNames() []string {
	out := make([]string, 0, len(rs.Categories)+1)
	for _, c := range rs.Categories {
		out = append(out, c.Name)
	}
	return append(out, rs.Fallback.Name)
}

// stripCodeFence removes a surrounding ```json fence some model versions
// emit even in JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
