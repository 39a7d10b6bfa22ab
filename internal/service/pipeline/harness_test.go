package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/docflow-backend/internal/adapter/classifier"
	"github.com/heartmarshall/docflow-backend/internal/adapter/memory"
	"github.com/heartmarshall/docflow-backend/internal/adapter/workflowengine"
	"github.com/heartmarshall/docflow-backend/internal/clock"
	"github.com/heartmarshall/docflow-backend/internal/domain"
	"github.com/heartmarshall/docflow-backend/internal/service/audit"
	"github.com/heartmarshall/docflow-backend/internal/service/workflow"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---------------------------------------------------------------------------
// Adapter stubs
// ---------------------------------------------------------------------------

type objectsStub struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (o *objectsStub) Get(_ context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.data[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
	}
	return b, nil
}

type extractorStub struct {
	mu    sync.Mutex
	fn    func(ctx context.Context, data []byte) (string, error)
	calls int
}

func (e *extractorStub) Extract(ctx context.Context, data []byte, _, _ string) (string, error) {
	e.mu.Lock()
	e.calls++
	fn := e.fn
	e.mu.Unlock()
	if fn == nil {
		return string(data), nil
	}
	return fn(ctx, data)
}

func (e *extractorStub) set(fn func(ctx context.Context, data []byte) (string, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fn = fn
}

type classifierStub struct {
	mu  sync.Mutex
	res classifier.Result
	err error
}

func (c *classifierStub) Classify(context.Context, classifier.Input) (classifier.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.res, c.err
}

func (c *classifierStub) set(res classifier.Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res, c.err = res, err
}

type indexerStub struct {
	mu    sync.Mutex
	err   error
	texts map[uuid.UUID]string
}

func (i *indexerStub) Index(_ context.Context, docID uuid.UUID, text string, _ map[string]any) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return "", i.err
	}
	if i.texts == nil {
		i.texts = make(map[uuid.UUID]string)
	}
	i.texts[docID] = text
	return "idx:" + docID.String(), nil
}

func (i *indexerStub) Remove(_ context.Context, docID uuid.UUID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.texts, docID)
	return nil
}

func (i *indexerStub) has(docID uuid.UUID) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.texts[docID]
	return ok
}

func (i *indexerStub) set(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.err = err
}

type queueStub struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (q *queueStub) Enqueue(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return true
}

func (q *queueStub) queued() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]uuid.UUID(nil), q.ids...)
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	clk        *clock.FakeClock
	docs       *memory.DocumentStore
	auditStore *memory.AuditStore
	sink       *audit.Sink
	workflows  *workflow.Service
	wfStore    *memory.WorkflowStore
	objects    *objectsStub
	extractor  *extractorStub
	classifier *classifierStub
	indexer    *indexerStub
	queue      *queueStub
	svc        *Service
}

type harnessOption func(*Config, *audit.Config)

func withApproval(gating bool) harnessOption {
	return func(c *Config, _ *audit.Config) {
		c.ApprovalEnabled = true
		c.ApprovalGating = gating
	}
}

func withAuditBuffer(n int) harnessOption {
	return func(_ *Config, a *audit.Config) { a.BufferSize = n }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := Config{
		MaxRetries:          3,
		StageTimeout:        time.Minute,
		BackoffBase:         30 * time.Second,
		BackoffMax:          10 * time.Minute,
		ConfidenceThreshold: 0.5,
		IndexMaxChars:       1000,
	}
	auditCfg := audit.Config{BufferSize: 64, FlushInterval: time.Second}
	for _, o := range opts {
		o(&cfg, &auditCfg)
	}

	h := &harness{
		clk:        clock.Fake(t0),
		auditStore: memory.NewAuditStore(),
		wfStore:    memory.NewWorkflowStore(),
		objects:    &objectsStub{data: make(map[string][]byte)},
		extractor:  &extractorStub{},
		classifier: &classifierStub{res: classifier.Result{Category: "Financial", Confidence: 0.82, Summary: "Q3 results."}},
		indexer:    &indexerStub{},
		queue:      &queueStub{},
	}
	h.docs = memory.NewDocumentStore(h.clk.Now)
	h.sink = audit.NewSink(testLogger(), h.auditStore, auditCfg, h.clk)
	h.workflows = workflow.NewService(testLogger(), h.wfStore, workflowengine.Noop{}, h.sink)
	h.svc = NewService(testLogger(), h.docs, Adapters{
		Objects:    h.objects,
		Extractor:  h.extractor,
		Classifier: h.classifier,
		Indexer:    h.indexer,
	}, h.sink, h.workflows, memory.TxManager{}, cfg, h.clk)
	h.svc.UseQueue(h.queue)
	return h
}

// upload creates an uploaded document whose stored bytes are body.
func (h *harness) upload(t *testing.T, body string) *domain.Document {
	t.Helper()
	id := uuid.New()
	key := "documents/" + id.String()
	h.objects.mu.Lock()
	h.objects.data[key] = []byte(body)
	h.objects.mu.Unlock()

	doc, err := h.docs.Create(context.Background(), &domain.Document{
		ID:             id,
		Title:          "Q3 report",
		Filename:       "q3.txt",
		StoragePath:    key,
		SizeBytes:      int64(len(body)),
		ContentType:    "text/plain",
		UploadedBy:     uuid.New(),
		Status:         domain.StatusUploaded,
		ApprovalStatus: domain.ApprovalPending,
		Retryable:      true,
	})
	require.NoError(t, err)
	return doc
}

func (h *harness) get(t *testing.T, id uuid.UUID) *domain.Document {
	t.Helper()
	doc, err := h.docs.Get(context.Background(), id)
	require.NoError(t, err)
	return doc
}

// entries returns the audit entries of a document in commit order.
func (h *harness) entries(id uuid.UUID) []domain.AuditEntry {
	var out []domain.AuditEntry
	for _, e := range h.auditStore.All() {
		if e.ResourceType == domain.ResourceDocument && e.ResourceID == id.String() {
			out = append(out, e)
		}
	}
	return out
}

func actions(entries []domain.AuditEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.Action)
		if st, ok := e.Details["stage"].(string); ok {
			out[i] += ":" + st
		}
	}
	return out
}
