package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/domain"
	"github.com/heartmarshall/docflow-backend/internal/service/document"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

type documentService interface {
	Upload(ctx context.Context, in document.UploadInput) (*domain.Document, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	List(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, int, error)
	Stats(ctx context.Context) (domain.DocumentStats, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

type documentActions interface {
	Retry(ctx context.Context, id uuid.UUID, mode domain.RetryMode) (*domain.Document, error)
	Withdraw(ctx context.Context, id uuid.UUID, reason string) (*domain.Document, error)
	Approve(ctx context.Context, id, approverID uuid.UUID) (*domain.Document, error)
	Reject(ctx context.Context, id, approverID uuid.UUID, reason string) (*domain.Document, error)
}

type workflowLister interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*domain.WorkflowInstance, error)
}

// DocumentHandler serves the document intake, query and lifecycle endpoints.
type DocumentHandler struct {
	docs      documentService
	actions   documentActions
	workflows workflowLister
	maxUpload int64
	log       *slog.Logger
}

// NewDocumentHandler creates a DocumentHandler. maxUpload bounds the request
// body of an upload.
func NewDocumentHandler(
	docs documentService,
	actions documentActions,
	workflows workflowLister,
	maxUpload int64,
	logger *slog.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		docs:      docs,
		actions:   actions,
		workflows: workflows,
		maxUpload: maxUpload,
		log:       logger.With("handler", "document"),
	}
}

// ---------------------------------------------------------------------------
// Intake
// ---------------------------------------------------------------------------

type uploadResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

// Upload handles POST /api/documents as multipart/form-data.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	// Multipart framing adds a little on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		handleError(h.log, w, r, domain.NewValidationError("file", "required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}

	in := document.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Title:       r.FormValue("title"),
		Category:    r.FormValue("category"),
		Tags:        splitTags(r.FormValue("tags")),
	}
	if v := r.FormValue("description"); v != "" {
		in.Description = &v
	}
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Metadata); err != nil {
			handleError(h.log, w, r, domain.NewValidationError("metadata", "must be a JSON object"))
			return
		}
	}

	doc, err := h.docs.Upload(r.Context(), in)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{ID: doc.ID, Status: string(doc.Status)})
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Get handles GET /api/documents/{id}. The extracted text is included only
// when ?text=true.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.docs.Get(r.Context(), id)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc, r.URL.Query().Get("text") == "true"))
}

// List handles GET /api/documents.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseDocumentFilter(r)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	docs, total, err := h.docs.List(r.Context(), filter)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}

	items := make([]documentResponse, len(docs))
	for i, d := range docs {
		items[i] = toDocumentResponse(d, false)
	}
	writeJSON(w, http.StatusOK, listResponse[documentResponse]{
		Items: items, Total: total, Limit: pageLimit(filter.Limit), Offset: filter.Offset,
	})
}

// pageLimit mirrors the clamping done by the document service.
func pageLimit(limit int) int {
	switch {
	case limit <= 0:
		return document.DefaultLimit
	case limit > document.MaxLimit:
		return document.MaxLimit
	}
	return limit
}

func parseDocumentFilter(r *http.Request) (domain.DocumentFilter, error) {
	q := r.URL.Query()
	var f domain.DocumentFilter

	if v := q.Get("status"); v != "" {
		st := domain.DocumentStatus(v)
		f.Status = &st
	}
	if v := q.Get("approval"); v != "" {
		ap := domain.ApprovalStatus(v)
		f.ApprovalStatus = &ap
	}
	if v := q.Get("category"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, domain.NewValidationError("category", "invalid id")
		}
		f.CategoryID = &id
	}
	if v := q.Get("uploader"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, domain.NewValidationError("uploader", "invalid id")
		}
		f.UploadedBy = &id
	}
	var err error
	if f.From, err = queryTime(r, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryTime(r, "to"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func queryTime(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, domain.NewValidationError(key, "must be RFC 3339")
	}
	return &t, nil
}

// Stats handles GET /api/documents/stats.
func (h *DocumentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.docs.Stats(r.Context())
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type categoryResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Categories handles GET /api/categories.
func (h *DocumentHandler) Categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.docs.ListCategories(r.Context())
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	items := make([]categoryResponse, len(cats))
	for i, c := range cats {
		items[i] = categoryResponse{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Workflows handles GET /api/documents/{id}/workflows.
func (h *DocumentHandler) Workflows(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := h.docs.Get(r.Context(), id); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	wfs, err := h.workflows.ListByDocument(r.Context(), id)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	items := make([]workflowResponse, len(wfs))
	for i, wf := range wfs {
		items[i] = toWorkflowResponse(wf)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Workflow handles GET /api/workflows/{id}.
func (h *DocumentHandler) Workflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	wf, err := h.workflows.Get(r.Context(), id)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowResponse(wf))
}

// ---------------------------------------------------------------------------
// Lifecycle actions
// ---------------------------------------------------------------------------

type reasonRequest struct {
	Reason string `json:"reason"`
}

// Retry handles POST /api/documents/{id}/retry.
func (h *DocumentHandler) Retry(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(ctx context.Context, id, _ uuid.UUID, _ string) (*domain.Document, error) {
		return h.actions.Retry(ctx, id, domain.RetryManual)
	})
}

// Approve handles POST /api/documents/{id}/approve.
func (h *DocumentHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(ctx context.Context, id, user uuid.UUID, _ string) (*domain.Document, error) {
		return h.actions.Approve(ctx, id, user)
	})
}

// Reject handles POST /api/documents/{id}/reject. The body must carry a reason.
func (h *DocumentHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(ctx context.Context, id, user uuid.UUID, reason string) (*domain.Document, error) {
		return h.actions.Reject(ctx, id, user, reason)
	})
}

// Withdraw handles POST /api/documents/{id}/withdraw.
func (h *DocumentHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(ctx context.Context, id, _ uuid.UUID, reason string) (*domain.Document, error) {
		return h.actions.Withdraw(ctx, id, reason)
	})
}

type actionFunc func(ctx context.Context, id, user uuid.UUID, reason string) (*domain.Document, error)

func (h *DocumentHandler) action(w http.ResponseWriter, r *http.Request, fn actionFunc) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		handleError(h.log, w, r, err)
		return
	}

	doc, err := fn(r.Context(), id, user, strings.TrimSpace(req.Reason))
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc, false))
}
