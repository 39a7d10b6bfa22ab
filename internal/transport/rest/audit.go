package rest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

type auditQuerier interface {
	Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int, error)
	Summary(ctx context.Context, days int) (domain.AuditSummary, error)
}

// AuditHandler serves read access to the audit log.
type AuditHandler struct {
	audit auditQuerier
	log   *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit auditQuerier, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, log: logger.With("handler", "audit")}
}

// Query handles GET /api/audit.
func (h *AuditHandler) Query(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	q := r.URL.Query()
	filter := domain.AuditFilter{
		Actor:        q.Get("actor"),
		Action:       domain.AuditAction(q.Get("action")),
		ResourceType: domain.ResourceType(q.Get("resource_type")),
		ResourceID:   q.Get("resource_id"),
	}
	var err error
	if filter.From, err = queryTime(r, "from"); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	if filter.To, err = queryTime(r, "to"); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	switch {
	case filter.Limit == 0:
		filter.Limit = defaultAuditLimit
	case filter.Limit > maxAuditLimit:
		filter.Limit = maxAuditLimit
	}

	entries, total, err := h.audit.Query(r.Context(), filter)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	items := make([]auditEntryResponse, len(entries))
	for i, e := range entries {
		items[i] = toAuditEntryResponse(e)
	}
	writeJSON(w, http.StatusOK, listResponse[auditEntryResponse]{
		Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset,
	})
}

// Summary handles GET /api/audit/summary.
func (h *AuditHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	days, err := queryInt(r, "days")
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	sum, err := h.audit.Summary(r.Context(), days)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditSummaryResponse(sum))
}
