package rest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

// CallbackTokenHeader carries the shared secret of workflow engine callbacks.
const CallbackTokenHeader = "X-Callback-Token"

type workflowCompleter interface {
	OnWorkflowComplete(ctx context.Context, instanceID uuid.UUID, outcome string, payload map[string]any) (*domain.WorkflowInstance, error)
}

// CallbackHandler receives completion notices from workflow engines.
type CallbackHandler struct {
	completer workflowCompleter
	token     []byte
	log       *slog.Logger
}

// NewCallbackHandler creates a CallbackHandler. An empty token rejects
// every callback.
func NewCallbackHandler(completer workflowCompleter, token string, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{
		completer: completer,
		token:     []byte(token),
		log:       logger.With("handler", "workflow_callback"),
	}
}

type callbackRequest struct {
	WorkflowInstanceID string         `json:"workflow_instance_id"`
	Outcome            string         `json:"outcome"`
	Payload            map[string]any `json:"payload"`
}

// Complete handles POST /api/workflows/callback. The body is either a
// CloudEvent (binary or structured mode) whose data is a callbackRequest,
// or a plain JSON callbackRequest.
func (h *CallbackHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	req, err := h.decode(r)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}

	id, err := uuid.Parse(req.WorkflowInstanceID)
	if err != nil {
		handleError(h.log, w, r, domain.NewValidationError("workflow_instance_id", "invalid id"))
		return
	}
	if req.Outcome == "" {
		handleError(h.log, w, r, domain.NewValidationError("outcome", "required"))
		return
	}

	wf, err := h.completer.OnWorkflowComplete(r.Context(), id, req.Outcome, req.Payload)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowResponse(wf))
}

func (h *CallbackHandler) authorized(r *http.Request) bool {
	if len(h.token) == 0 {
		return false
	}
	got := []byte(r.Header.Get(CallbackTokenHeader))
	return subtle.ConstantTimeCompare(got, h.token) == 1
}

func (h *CallbackHandler) decode(r *http.Request) (callbackRequest, error) {
	var req callbackRequest

	if !isCloudEvent(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, domain.NewValidationError("body", "invalid JSON")
		}
		return req, nil
	}

	ev, err := cloudevents.NewEventFromHTTPRequest(r)
	if err != nil {
		return req, domain.NewValidationError("body", "invalid cloud event")
	}
	if err := ev.DataAs(&req); err != nil {
		return req, domain.NewValidationError("data", "invalid callback payload")
	}
	// The subject names the instance when the engine leaves it out of data.
	if req.WorkflowInstanceID == "" {
		req.WorkflowInstanceID = ev.Subject()
	}
	h.log.DebugContext(r.Context(), "cloud event received",
		slog.String("id", ev.ID()),
		slog.String("type", ev.Type()),
		slog.String("source", ev.Source()),
	)
	return req, nil
}

func isCloudEvent(r *http.Request) bool {
	if r.Header.Get("Ce-Specversion") != "" {
		return true
	}
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/cloudevents")
}
