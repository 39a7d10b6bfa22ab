package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint.
type HTTPEmbedder struct {
	log    *slog.Logger
	client *http.Client
	url    string
	apiKey string
	model  string
	dims   int
}

// NewHTTPEmbedder creates an embedder for baseURL. Vectors whose length
// differs from dims are rejected.
func NewHTTPEmbedder(log *slog.Logger, baseURL, apiKey, model string, dims int, timeout time.Duration) *HTTPEmbedder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	url := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(url, "/embeddings") {
		url += "/embeddings"
	}
	return &HTTPEmbedder{
		log:    log.With("adapter", "embedder"),
		client: &http.Client{Timeout: timeout},
		url:    url,
		apiKey: apiKey,
		model:  model,
		dims:   dims,
	}
}

func (e *HTTPEmbedder) Dimensions() int { return e.dims }

func (e *HTTPEmbedder) Name() string { return e.model }

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("embedder: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("embedder: %v: %w", err, domain.ErrIndexUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return nil, fmt.Errorf("embedder: %d characters rejected: %w", len(text), domain.ErrPayloadTooLarge)
	case resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		e.log.WarnContext(ctx, "embedding request failed",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(snippet)))
		return nil, fmt.Errorf("embedder: status %d: %w", resp.StatusCode, domain.ErrIndexUnavailable)
	}

	var out embeddingResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("embedder: decode: %v: %w", err, domain.ErrIndexUnavailable)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("embedder: empty response: %w", domain.ErrIndexUnavailable)
	}
	vec := out.Data[0].Embedding
	if len(vec) != e.dims {
		return nil, fmt.Errorf("embedder: got %d dimensions, want %d: %w", len(vec), e.dims, domain.ErrIndexUnavailable)
	}
	return vec, nil
}
