// Package audit provides the buffered, append-only audit sink shared by the
// pipeline, the workflow dispatcher and the HTTP layer.
package audit

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/heartmarshall/docflow-backend/internal/clock"
	"github.com/heartmarshall/docflow-backend/internal/domain"
	"github.com/heartmarshall/docflow-backend/pkg/ctxutil"
)

type auditRepo interface {
	Append(ctx context.Context, entries []domain.AuditEntry) error
	Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int, error)
	Summary(ctx context.Context, from, to time.Time) (domain.AuditSummary, error)
}

const (
	defaultSummaryDays = 7
	maxSummaryDays     = 365
	topActors          = 10
)

// Config controls buffering.
type Config struct {
	// BufferSize bounds buffered plus reserved entries.
	BufferSize    int
	FlushInterval time.Duration
}

// Sink appends audit entries to the repository. Entries the repository
// cannot take right now are buffered in memory and flushed in order; once
// the buffer is full, Reserve fails with domain.ErrAuditUnavailable so that
// callers refuse the state change instead of losing its record.
type Sink struct {
	log   *slog.Logger
	repo  auditRepo
	clock clock.Clock
	cfg   Config

	mu       sync.Mutex
	buf      []domain.AuditEntry
	reserved int

	// writeMu serializes appends so entries reach the repository in the
	// order they were committed.
	writeMu sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewSink creates a sink. clk may be nil.
func NewSink(log *slog.Logger, repo auditRepo, cfg Config, clk clock.Clock) *Sink {
	if clk == nil {
		clk = clock.Real()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	return &Sink{
		log:     log.With("service", "audit"),
		repo:    repo,
		clock:   clk,
		cfg:     cfg,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Reservation is a guaranteed slot for one entry. Exactly one of Commit or
// Release must be called; later calls are ignored.
type Reservation interface {
	// Commit records entry and returns it with its ID and timestamp set.
	Commit(ctx context.Context, entry domain.AuditEntry) domain.AuditEntry
	// Release gives the slot back without recording anything.
	Release()
}

type reservation struct {
	sink *Sink
	once sync.Once
}

// Reserve claims capacity for one entry before the caller performs the state
// write it describes.
func (s *Sink) Reserve() (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf)+s.reserved >= s.cfg.BufferSize {
		return nil, fmt.Errorf("audit: %d entries pending: %w", len(s.buf)+s.reserved, domain.ErrAuditUnavailable)
	}
	s.reserved++
	return &reservation{sink: s}, nil
}

func (r *reservation) Release() {
	r.once.Do(func() {
		r.sink.mu.Lock()
		r.sink.reserved--
		r.sink.mu.Unlock()
	})
}

// Commit never loses the entry: when the repository fails the entry stays
// buffered until the next flush.
func (r *reservation) Commit(ctx context.Context, entry domain.AuditEntry) domain.AuditEntry {
	var out domain.AuditEntry
	r.once.Do(func() {
		out = r.sink.commit(ctx, entry)
	})
	return out
}

func (s *Sink) commit(ctx context.Context, entry domain.AuditEntry) domain.AuditEntry {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	entry = s.stamp(ctx, entry)

	s.mu.Lock()
	s.reserved--
	if len(s.buf) > 0 {
		// Older entries are still waiting; keep order.
		s.buf = append(s.buf, entry)
		s.mu.Unlock()
		return entry
	}
	s.mu.Unlock()

	if err := s.repo.Append(ctx, []domain.AuditEntry{entry}); err != nil {
		s.log.WarnContext(ctx, "audit append failed, buffering",
			slog.String("entry_id", entry.ID),
			slog.String("error", err.Error()),
		)
		s.mu.Lock()
		s.buf = append(s.buf, entry)
		s.mu.Unlock()
	}
	return entry
}

// stamp assigns the ID, timestamp and request origin. Called under writeMu,
// so IDs are monotonic in commit order.
func (s *Sink) stamp(ctx context.Context, entry domain.AuditEntry) domain.AuditEntry {
	now := s.clock.Now().UTC()
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = now
	}
	if entry.ID == "" {
		entry.ID = ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
	}
	if entry.Actor == "" {
		if uid, ok := ctxutil.UserIDFromCtx(ctx); ok {
			entry.Actor = uid.String()
		} else {
			entry.Actor = domain.ActorSystem
		}
	}
	if entry.Origin == "" && entry.UserAgent == "" {
		c := ctxutil.ClientFromCtx(ctx)
		entry.Origin = c.Addr
		entry.UserAgent = c.UserAgent
	}
	if rid := ctxutil.RequestIDFromCtx(ctx); rid != "" {
		if entry.Details == nil {
			entry.Details = make(map[string]any, 1)
		}
		if _, ok := entry.Details["request_id"]; !ok {
			entry.Details["request_id"] = rid
		}
	}
	return entry
}

// Record reserves and commits in one step.
func (s *Sink) Record(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	res, err := s.Reserve()
	if err != nil {
		return domain.AuditEntry{}, err
	}
	return res.Commit(ctx, entry), nil
}

// Flush writes buffered entries to the repository in order.
func (s *Sink) Flush(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	pending := append([]domain.AuditEntry(nil), s.buf...)
	s.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}

	if err := s.repo.Append(ctx, pending); err != nil {
		return fmt.Errorf("audit: flush %d entries: %w", len(pending), err)
	}

	s.mu.Lock()
	s.buf = s.buf[len(pending):]
	s.mu.Unlock()

	s.log.InfoContext(ctx, "audit buffer flushed", slog.Int("count", len(pending)))
	return nil
}

// Pending returns the number of buffered entries.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Run flushes the buffer every FlushInterval until ctx is cancelled, then
// makes a final attempt with a short grace period.
func (s *Sink) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.Flush(flushCtx); err != nil {
				s.log.Error("final audit flush failed",
					slog.Int("pending", s.Pending()),
					slog.String("error", err.Error()),
				)
			}
			return nil
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				s.log.WarnContext(ctx, "audit flush failed",
					slog.Int("pending", s.Pending()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Query returns persisted entries matching filter. Buffered entries become
// visible once flushed.
func (s *Sink) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, 0, domain.NewValidationError("to", "must not be before from")
	}
	if filter.Action != "" && !filter.Action.IsValid() {
		return nil, 0, domain.NewValidationError("action", "unknown audit action")
	}
	if filter.ResourceType != "" && !filter.ResourceType.IsValid() {
		return nil, 0, domain.NewValidationError("resource_type", "unknown resource type")
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, 0, domain.NewValidationError("limit", "must not be negative")
	}
	return s.repo.Query(ctx, filter)
}

// Summary aggregates persisted entries over the last days days (7 when
// zero). The timeline has one point per UTC day in the window, including
// days with no activity.
func (s *Sink) Summary(ctx context.Context, days int) (domain.AuditSummary, error) {
	if days == 0 {
		days = defaultSummaryDays
	}
	if days < 1 || days > maxSummaryDays {
		return domain.AuditSummary{}, domain.NewValidationError("days", fmt.Sprintf("must be between 1 and %d", maxSummaryDays))
	}

	to := s.clock.Now().UTC()
	from := to.AddDate(0, 0, -days)
	sum, err := s.repo.Summary(ctx, from, to)
	if err != nil {
		return domain.AuditSummary{}, fmt.Errorf("audit.Summary: %w", err)
	}

	sum.Timeline = denseTimeline(sum.Timeline, from, to)
	sum.TopActors = make([]domain.AuditActorCount, 0, len(sum.ByActor))
	for actor, n := range sum.ByActor {
		sum.TopActors = append(sum.TopActors, domain.AuditActorCount{Actor: actor, Count: n})
	}
	slices.SortFunc(sum.TopActors, func(a, b domain.AuditActorCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Actor, b.Actor)
	})
	if len(sum.TopActors) > topActors {
		sum.TopActors = sum.TopActors[:topActors]
	}
	return sum, nil
}

func denseTimeline(points []domain.AuditDayCount, from, to time.Time) []domain.AuditDayCount {
	counts := make(map[time.Time]int, len(points))
	for _, p := range points {
		counts[p.Day.UTC().Truncate(24*time.Hour)] += p.Count
	}
	var out []domain.AuditDayCount
	for day := from.Truncate(24 * time.Hour); day.Before(to); day = day.AddDate(0, 0, 1) {
		out = append(out, domain.AuditDayCount{Day: day, Count: counts[day]})
	}
	return out
}
