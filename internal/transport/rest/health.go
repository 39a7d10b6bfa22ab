package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds every dependency check in a single health request.
const probeTimeout = 3 * time.Second

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusDown     = "down"
)

type dbPinger interface {
	Ping(ctx context.Context) error
}

type auditBacklog interface {
	Pending() int
}

type queueDepth interface {
	InFlight() int
}

type indexCounter interface {
	Count(ctx context.Context) (int, error)
}

// Probe is a non-critical health check. A failing probe degrades /health
// but never fails readiness; only the database does that.
type Probe struct {
	Name  string
	Check func(ctx context.Context) CompStatus
}

// AuditProbe reports audit entries still waiting for the store.
func AuditProbe(a auditBacklog) Probe {
	return Probe{Name: "audit", Check: func(context.Context) CompStatus {
		if n := a.Pending(); n > 0 {
			return CompStatus{Status: statusDegraded, Backlog: n}
		}
		return CompStatus{Status: statusOK}
	}}
}

// QueueProbe reports documents currently queued or being driven.
func QueueProbe(q queueDepth) Probe {
	return Probe{Name: "pipeline", Check: func(context.Context) CompStatus {
		return CompStatus{Status: statusOK, Backlog: q.InFlight()}
	}}
}

// IndexProbe checks that the vector index answers.
func IndexProbe(ix indexCounter) Probe {
	return Probe{Name: "index", Check: func(ctx context.Context) CompStatus {
		start := time.Now()
		n, err := ix.Count(ctx)
		if err != nil {
			return CompStatus{Status: statusDown, Error: err.Error()}
		}
		return CompStatus{Status: statusOK, Latency: time.Since(start).String(), Entries: n}
	}}
}

// HealthHandler serves the liveness, readiness and health endpoints.
type HealthHandler struct {
	version string
	db      dbPinger
	probes  []Probe
}

func NewHealthHandler(version string, db dbPinger, probes ...Probe) *HealthHandler {
	return &HealthHandler{version: version, db: db, probes: probes}
}

// HealthResponse is the JSON body of every probe endpoint.
type HealthResponse struct {
	Status     string                `json:"status"`
	Version    string                `json:"version,omitempty"`
	Components map[string]CompStatus `json:"components,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
}

type CompStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Backlog int    `json:"backlog,omitempty"`
	Entries int    `json:"entries,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Live always answers 200 while the process serves HTTP.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: statusOK, Timestamp: time.Now()})
}

// Ready answers 503 while the database is unreachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: statusDown, Timestamp: time.Now()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: statusOK, Timestamp: time.Now()})
}

// Health reports every component. The database being down gives 503;
// any failing probe gives "degraded" with 200.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	components := make(map[string]CompStatus, len(h.probes)+1)
	overall := statusOK

	start := time.Now()
	if err := h.db.Ping(ctx); err != nil {
		components["database"] = CompStatus{Status: statusDown, Error: err.Error()}
		overall = statusDown
	} else {
		components["database"] = CompStatus{Status: statusOK, Latency: time.Since(start).String()}
	}

	for _, p := range h.probes {
		c := p.Check(ctx)
		components[p.Name] = c
		if c.Status != statusOK && overall == statusOK {
			overall = statusDegraded
		}
	}

	code := http.StatusOK
	if overall == statusDown {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{
		Status:     overall,
		Version:    h.version,
		Components: components,
		Timestamp:  time.Now(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
