package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/clock"
	"github.com/heartmarshall/docflow-backend/internal/domain"
)

type runnableSource interface {
	ListRunnable(ctx context.Context, rq domain.RunnableQuery) ([]uuid.UUID, error)
	ListRetryDue(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
}

type retrier interface {
	Retry(ctx context.Context, id uuid.UUID, mode domain.RetryMode) (*domain.Document, error)
}

// SchedulerConfig controls scans.
type SchedulerConfig struct {
	Interval     time.Duration
	StallTimeout time.Duration
	Batch        int
	AutoRetry    bool
}

// Scheduler periodically re-enqueues documents that need work: pre-stage
// documents nobody picked up, in-stage documents whose worker died, and
// failed documents whose backoff has elapsed.
type Scheduler struct {
	log     *slog.Logger
	source  runnableSource
	retrier retrier
	queue   queue
	clock   clock.Clock
	cfg     SchedulerConfig
}

// NewScheduler creates a scheduler. clk may be nil.
func NewScheduler(log *slog.Logger, source runnableSource, retrier retrier, q queue, cfg SchedulerConfig, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	return &Scheduler{
		log:     log.With("service", "pipeline", "component", "scheduler"),
		source:  source,
		retrier: retrier,
		queue:   q,
		clock:   clk,
		cfg:     cfg,
	}
}

// ScanResult counts what one scan did.
type ScanResult struct {
	Enqueued int
	Retried  int
}

// Run scans once immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.scanAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.scanAndLog(ctx)
		}
	}
}

func (s *Scheduler) scanAndLog(ctx context.Context) {
	res, err := s.Scan(ctx)
	if err != nil && ctx.Err() == nil {
		s.log.ErrorContext(ctx, "scan failed", slog.String("error", err.Error()))
		return
	}
	if res.Enqueued > 0 || res.Retried > 0 {
		s.log.InfoContext(ctx, "scan",
			slog.Int("enqueued", res.Enqueued),
			slog.Int("retried", res.Retried),
		)
	}
}

// Scan performs one pass.
func (s *Scheduler) Scan(ctx context.Context) (ScanResult, error) {
	var res ScanResult
	now := s.clock.Now().UTC()

	ids, err := s.source.ListRunnable(ctx, domain.RunnableQuery{
		StalledBefore: now.Add(-s.cfg.StallTimeout),
		Limit:         s.cfg.Batch,
	})
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		if s.queue.Enqueue(id) {
			res.Enqueued++
		}
	}

	if !s.cfg.AutoRetry {
		return res, nil
	}

	due, err := s.source.ListRetryDue(ctx, now, s.cfg.Batch)
	if err != nil {
		return res, err
	}
	for _, id := range due {
		_, err := s.retrier.Retry(ctx, id, domain.RetryAutomatic)
		switch {
		case err == nil:
			res.Retried++
		case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrConcurrentModification):
			s.log.DebugContext(ctx, "automatic retry skipped",
				slog.String("document_id", id.String()),
				slog.String("error", err.Error()),
			)
		case errors.Is(err, domain.ErrAuditUnavailable):
			return res, err
		default:
			s.log.WarnContext(ctx, "automatic retry failed",
				slog.String("document_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return res, nil
}
