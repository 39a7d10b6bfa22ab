// Package pipeline drives documents through extraction, classification and
// indexing. Every transition is a single version-conditioned write of the
// document plus one audit entry; losing a version race means another worker
// already moved the document and the losing result is discarded.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/adapter/classifier"
	"github.com/heartmarshall/docflow-backend/internal/clock"
	"github.com/heartmarshall/docflow-backend/internal/domain"
	"github.com/heartmarshall/docflow-backend/internal/service/audit"
	"github.com/heartmarshall/docflow-backend/internal/service/workflow"
)

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type documentRepo interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	Update(ctx context.Context, doc *domain.Document, expectedVersion int64) (*domain.Document, error)
	EnsureCategory(ctx context.Context, name string) (domain.Category, error)
	ListRunnable(ctx context.Context, rq domain.RunnableQuery) ([]uuid.UUID, error)
	ListRetryDue(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
}

type objectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

type extractor interface {
	Extract(ctx context.Context, data []byte, contentType, filename string) (string, error)
}

type classifierProvider interface {
	Classify(ctx context.Context, in classifier.Input) (classifier.Result, error)
}

type indexer interface {
	Index(ctx context.Context, docID uuid.UUID, text string, attrs map[string]any) (string, error)
	Remove(ctx context.Context, docID uuid.UUID) error
}

type auditSink interface {
	Reserve() (audit.Reservation, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, in workflow.DispatchInput) (*domain.WorkflowInstance, error)
	Complete(ctx context.Context, instanceID uuid.UUID, outcome string, payload map[string]any) (*domain.WorkflowInstance, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error)
	ActiveGating(ctx context.Context, documentID uuid.UUID) (*domain.WorkflowInstance, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type queue interface {
	Enqueue(id uuid.UUID) bool
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Config holds orchestrator tuning.
type Config struct {
	MaxRetries          int
	StageTimeout        time.Duration
	BackoffBase         time.Duration
	BackoffMax          time.Duration
	ConfidenceThreshold float64
	IndexMaxChars       int
	ApprovalEnabled     bool
	ApprovalGating      bool
}

// Adapters groups the stage implementations.
type Adapters struct {
	Objects    objectStore
	Extractor  extractor
	Classifier classifierProvider
	Indexer    indexer
}

// Service is the pipeline orchestrator. It is the only writer of a
// document's lifecycle fields.
type Service struct {
	log       *slog.Logger
	docs      documentRepo
	adapters  Adapters
	audit     auditSink
	workflows dispatcher
	tx        txManager
	clock     clock.Clock
	cfg       Config
	queue     queue
}

// NewService creates the orchestrator. clk may be nil.
func NewService(
	log *slog.Logger,
	docs documentRepo,
	adapters Adapters,
	audit auditSink,
	workflows dispatcher,
	tx txManager,
	cfg Config,
	clk clock.Clock,
) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 5 * time.Minute
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = cfg.BackoffBase
	}
	return &Service{
		log:       log.With("service", "pipeline"),
		docs:      docs,
		adapters:  adapters,
		audit:     audit,
		workflows: workflows,
		tx:        tx,
		clock:     clk,
		cfg:       cfg,
	}
}

// UseQueue makes Submit and Retry hand documents to q. Without a queue the
// scheduler picks them up on its next scan.
func (s *Service) UseQueue(q queue) {
	s.queue = q
}

func (s *Service) enqueue(ctx context.Context, id uuid.UUID) {
	if s.queue == nil {
		return
	}
	if !s.queue.Enqueue(id) {
		s.log.DebugContext(ctx, "document not enqueued", slog.String("document_id", id.String()))
	}
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}
