package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

// AuditStore is an in-memory append-only audit log.
type AuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	seen    map[string]struct{}

	// FailAppend, when set, is returned by Append instead of storing.
	FailAppend error
}

// NewAuditStore creates an empty audit log.
func NewAuditStore() *AuditStore {
	return &AuditStore{seen: make(map[string]struct{})}
}

// Append stores entries in order. Duplicate IDs are skipped.
func (s *AuditStore) Append(_ context.Context, entries []domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAppend != nil {
		return s.FailAppend
	}
	for _, e := range entries {
		if _, dup := s.seen[e.ID]; dup {
			continue
		}
		s.seen[e.ID] = struct{}{}
		e.Details = maps.Clone(e.Details)
		s.entries = append(s.entries, e)
	}
	return nil
}

// SetFailure makes subsequent Append calls fail with err (nil to recover).
func (s *AuditStore) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailAppend = err
}

// Query filters entries and returns them in occurrence order.
func (s *AuditStore) Query(_ context.Context, f domain.AuditFilter) ([]domain.AuditEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.AuditEntry
	for _, e := range s.entries {
		if auditMatches(e, f) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].OccurredAt.Before(matched[j].OccurredAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	start := min(max(f.Offset, 0), total)
	end := min(start+limit, total)
	return append([]domain.AuditEntry(nil), matched[start:end]...), total, nil
}

// Summary counts entries in [from, to) the way the SQL repository does.
func (s *AuditStore) Summary(_ context.Context, from, to time.Time) (domain.AuditSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := domain.AuditSummary{
		From:       from,
		To:         to,
		ByAction:   make(map[string]int),
		ByActor:    make(map[string]int),
		ByResource: make(map[string]int),
	}
	byDay := make(map[time.Time]int)
	for _, e := range s.entries {
		if e.OccurredAt.Before(from) || !e.OccurredAt.Before(to) {
			continue
		}
		sum.Total++
		sum.ByAction[string(e.Action)]++
		sum.ByActor[e.Actor]++
		sum.ByResource[string(e.ResourceType)]++
		byDay[e.OccurredAt.UTC().Truncate(24*time.Hour)]++
	}
	for day, n := range byDay {
		sum.Timeline = append(sum.Timeline, domain.AuditDayCount{Day: day, Count: n})
	}
	sort.Slice(sum.Timeline, func(i, j int) bool { return sum.Timeline[i].Day.Before(sum.Timeline[j].Day) })
	return sum, nil
}

// All returns every stored entry in append order.
func (s *AuditStore) All() []domain.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditEntry(nil), s.entries...)
}

func auditMatches(e domain.AuditEntry, f domain.AuditFilter) bool {
	switch {
	case f.Actor != "" && e.Actor != f.Actor:
		return false
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.ResourceType != "" && e.ResourceType != f.ResourceType:
		return false
	case f.ResourceID != "" && e.ResourceID != f.ResourceID:
		return false
	case f.From != nil && e.OccurredAt.Before(*f.From):
		return false
	case f.To != nil && !e.OccurredAt.Before(*f.To):
		return false
	}
	return true
}
