package workflowengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

// Webhook posts the workflow envelope to an automation endpoint such as an
// n8n webhook node.
type Webhook struct {
	log    *slog.Logger
	url    string
	client *http.Client
}

// NewWebhook creates a webhook engine. A zero timeout means 10 seconds.
func NewWebhook(log *slog.Logger, url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		log:    log.With("adapter", "workflowengine.webhook"),
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Start posts the envelope. A JSON body with an "execution_id" field is
// taken as the external reference.
func (w *Webhook) Start(ctx context.Context, wf *domain.WorkflowInstance) (string, error) {
	body, err := marshalEnvelope(wf)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("workflowengine: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", wf.ID.String())

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("workflowengine: post %s: %v: %w", wf.ID, err, domain.ErrExternalUnavailable)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("workflowengine: webhook returned %d: %s: %w",
			resp.StatusCode, bytes.TrimSpace(respBody), domain.ErrExternalUnavailable)
	}

	var parsed struct {
		ExecutionID string `json:"execution_id"`
	}
	if len(respBody) > 0 && json.Unmarshal(respBody, &parsed) == nil && parsed.ExecutionID != "" {
		return parsed.ExecutionID, nil
	}

	w.log.DebugContext(ctx, "webhook accepted workflow",
		slog.String("instance_id", wf.ID.String()),
		slog.Int("status", resp.StatusCode),
	)
	return "", nil
}
