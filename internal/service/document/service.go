// Package document accepts uploads and serves document queries. It creates
// documents; every later lifecycle change belongs to the pipeline.
package document

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/domain"
	"github.com/heartmarshall/docflow-backend/internal/service/audit"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

type documentRepo interface {
	Create(ctx context.Context, doc *domain.Document) (*domain.Document, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	List(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, int, error)
	FindByContentHash(ctx context.Context, hash string) (*domain.Document, error)
	Stats(ctx context.Context) (domain.DocumentStats, error)
	EnsureCategory(ctx context.Context, name string) (domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

type objectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

type auditSink interface {
	Reserve() (audit.Reservation, error)
}

type submitter interface {
	Submit(ctx context.Context, id uuid.UUID) error
}

// Config holds upload limits.
type Config struct {
	MaxUploadBytes   int64
	RejectDuplicates bool
}

// Service provides document intake and queries.
type Service struct {
	log       *slog.Logger
	docs      documentRepo
	objects   objectStore
	audit     auditSink
	submitter submitter
	cfg       Config
	now       func() time.Time
}

// NewService creates a new document service.
func NewService(
	log *slog.Logger,
	docs documentRepo,
	objects objectStore,
	audit auditSink,
	submitter submitter,
	cfg Config,
) *Service {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	return &Service{
		log:       log.With("service", "document"),
		docs:      docs,
		objects:   objects,
		audit:     audit,
		submitter: submitter,
		cfg:       cfg,
		now:       time.Now,
	}
}
