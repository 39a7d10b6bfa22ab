// Package gemini wraps the Vertex AI Gemini client shared by the vision
// extractor and the model-backed classifier.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

// ErrRefused is returned when the model declines the request.
var ErrRefused = errors.New("model refused the request")

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// Client holds one configured generative model.
type Client struct {
	log   *slog.Logger
	base  *genai.Client
	model string
}

// NewClient connects to Vertex AI in projectID/region.
func NewClient(ctx context.Context, log *slog.Logger, projectID, region, model string) (*Client, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("gemini: projectID and region cannot be empty")
	}
	base, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("gemini: genai.NewClient: %w", err)
	}
	return &Client{
		log:   log.With("adapter", "gemini"),
		base:  base,
		model: model,
	}, nil
}

// Request is one generation call.
type Request struct {
	System string
	Parts  []genai.Part
	// JSON forces an application/json response.
	JSON bool
}

// Generate runs req and returns the concatenated text of the first
// candidate. Transport failures wrap domain.ErrModelUnavailable.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	m := c.base.GenerativeModel(c.model)
	if req.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSON {
		m.GenerationConfig = genai.GenerationConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](0.0),
		}
	}

	resp, err := m.GenerateContent(ctx, req.Parts...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("gemini: generate: %v: %w", err, domain.ErrModelUnavailable)
	}

	out := responseText(resp)
	if isRefusal(out) {
		c.log.WarnContext(ctx, "model refusal", slog.Int("chars", len(out)))
		return "", fmt.Errorf("gemini: %w: %w", ErrRefused, domain.ErrModelUnavailable)
	}
	return out, nil
}

// Close releases the client.
func (c *Client) Close() error {
	return c.base.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String())
}

func isRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
