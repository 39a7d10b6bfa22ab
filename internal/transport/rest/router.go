package rest

import (
	"net/http"

	"github.com/heartmarshall/docflow-backend/internal/transport/middleware"
)

// Routes bundles the handlers mounted by NewRouter.
type Routes struct {
	Health    *HealthHandler
	Documents *DocumentHandler
	Audit     *AuditHandler
	Search    *SearchHandler
	Callback  *CallbackHandler

	// UploadLimit wraps the upload endpoint. May be nil.
	UploadLimit middleware.Middleware
}

// NewRouter builds the HTTP handler. Probes bypass the API middleware
// stack; everything under /api/ runs through it.
func NewRouter(routes Routes, api middleware.Middleware) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /live", routes.Health.Live)
	mux.HandleFunc("GET /ready", routes.Health.Ready)
	mux.HandleFunc("GET /health", routes.Health.Health)

	apiMux := http.NewServeMux()

	var upload http.Handler = http.HandlerFunc(routes.Documents.Upload)
	if routes.UploadLimit != nil {
		upload = routes.UploadLimit(upload)
	}
	apiMux.Handle("POST /api/documents", upload)
	apiMux.HandleFunc("GET /api/documents", routes.Documents.List)
	apiMux.HandleFunc("GET /api/documents/stats", routes.Documents.Stats)
	apiMux.HandleFunc("GET /api/documents/search", routes.Search.Search)
	apiMux.HandleFunc("GET /api/documents/{id}", routes.Documents.Get)
	apiMux.HandleFunc("GET /api/documents/{id}/workflows", routes.Documents.Workflows)
	apiMux.HandleFunc("POST /api/documents/{id}/retry", routes.Documents.Retry)
	apiMux.HandleFunc("POST /api/documents/{id}/approve", routes.Documents.Approve)
	apiMux.HandleFunc("POST /api/documents/{id}/reject", routes.Documents.Reject)
	apiMux.HandleFunc("POST /api/documents/{id}/withdraw", routes.Documents.Withdraw)
	apiMux.HandleFunc("GET /api/categories", routes.Documents.Categories)
	apiMux.HandleFunc("GET /api/audit", routes.Audit.Query)
	apiMux.HandleFunc("GET /api/audit/summary", routes.Audit.Summary)
	apiMux.HandleFunc("GET /api/workflows/{id}", routes.Documents.Workflow)
	apiMux.HandleFunc("POST /api/workflows/callback", routes.Callback.Complete)

	var apiHandler http.Handler = apiMux
	if api != nil {
		apiHandler = api(apiMux)
	}
	mux.Handle("/api/", apiHandler)
	return mux
}
