package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type driver interface {
	Drive(ctx context.Context, id uuid.UUID) (AdvanceResult, error)
}

// Runner is a bounded worker pool driving documents. A document is queued
// or running at most once per process; enqueueing a running document makes
// its worker drive it once more when done.
type Runner struct {
	log     *slog.Logger
	driver  driver
	workers int
	queue   chan uuid.UUID

	mu sync.Mutex
	// inFlight maps queued or running documents to a rerun request.
	inFlight map[uuid.UUID]bool
}

// NewRunner creates a runner with the given pool and queue sizes.
func NewRunner(log *slog.Logger, d driver, workers, queueSize int) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	return &Runner{
		log:      log.With("service", "pipeline", "component", "runner"),
		driver:   d,
		workers:  workers,
		queue:    make(chan uuid.UUID, queueSize),
		inFlight: make(map[uuid.UUID]bool),
	}
}

// Enqueue schedules id. It returns false only when the queue is full.
func (r *Runner) Enqueue(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.inFlight[id]; ok {
		r.inFlight[id] = true
		return true
	}
	select {
	case r.queue <- id:
		r.inFlight[id] = false
		return true
	default:
		return false
	}
}

// InFlight returns the number of documents queued or running.
func (r *Runner) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inFlight)
}

// Run starts the workers and blocks until ctx is cancelled. Documents still
// queued at shutdown stay in their persisted state for the scheduler.
func (r *Runner) Run(ctx context.Context) error {
	r.log.InfoContext(ctx, "runner started", slog.Int("workers", r.workers))

	g, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case id := <-r.queue:
					r.drive(gctx, id)
				}
			}
		})
	}
	err := g.Wait()

	r.log.InfoContext(ctx, "runner stopped")
	return err
}

func (r *Runner) drive(ctx context.Context, id uuid.UUID) {
	for {
		r.driveOnce(ctx, id)

		r.mu.Lock()
		rerun := r.inFlight[id] && ctx.Err() == nil
		if rerun {
			r.inFlight[id] = false
		} else {
			delete(r.inFlight, id)
		}
		r.mu.Unlock()
		if !rerun {
			return
		}
	}
}

func (r *Runner) driveOnce(ctx context.Context, id uuid.UUID) {
	res, err := r.driver.Drive(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			r.log.ErrorContext(ctx, "drive document",
				slog.String("document_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	r.log.DebugContext(ctx, "document driven",
		slog.String("document_id", id.String()),
		slog.String("status", string(res.To)),
		slog.String("outcome", string(res.Outcome)),
	)
}
