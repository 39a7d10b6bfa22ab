package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

// maxDriveSteps bounds Drive: three claims, three stage runs and slack.
const maxDriveSteps = 8

// Advance performs at most one transition for the document. Safe to call
// concurrently and repeatedly: a caller whose write loses the version race
// gets OutcomeDiscarded and a nil error.
func (s *Service) Advance(ctx context.Context, id uuid.UUID) (AdvanceResult, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return AdvanceResult{}, fmt.Errorf("pipeline.Advance: %w", err)
	}

	res := AdvanceResult{DocumentID: id, From: doc.Status, To: doc.Status, Outcome: OutcomeNoop}

	if stage, ok := doc.Status.PendingStage(); ok {
		res.Stage = stage
		return s.claim(ctx, doc, stage, res)
	}
	if stage, ok := doc.Status.ActiveStage(); ok {
		res.Stage = stage
		return s.runStage(ctx, doc, stage, res)
	}
	return res, nil
}

// Drive advances the document until it is terminal or stops progressing.
func (s *Service) Drive(ctx context.Context, id uuid.UUID) (AdvanceResult, error) {
	var last AdvanceResult
	for range maxDriveSteps {
		res, err := s.Advance(ctx, id)
		if err != nil {
			return res, err
		}
		last = res
		if !res.Progressed() || res.Outcome == OutcomeFailed || res.To.IsTerminal() {
			break
		}
	}
	return last, nil
}

// claim moves a pre-stage document into its stage.
func (s *Service) claim(ctx context.Context, doc *domain.Document, stage domain.Stage, res AdvanceResult) (AdvanceResult, error) {
	next := doc.Clone()
	next.Status = stage.EntryStatus()

	_, err := s.commit(ctx, doc, next, domain.AuditEntry{
		Actor:        domain.ActorSystem,
		Action:       domain.AuditActionStageStarted,
		ResourceType: domain.ResourceDocument,
		ResourceID:   doc.ID.String(),
		Details: map[string]any{
			"stage":   string(stage),
			"attempt": doc.RetryCount(stage) + 1,
		},
	})
	if err != nil {
		return s.lost(ctx, res, err)
	}

	res.To = next.Status
	res.Outcome = OutcomeClaimed
	return res, nil
}

// runStage invokes the stage adapter and writes its result or failure.
func (s *Service) runStage(ctx context.Context, doc *domain.Document, stage domain.Stage, res AdvanceResult) (AdvanceResult, error) {
	stageCtx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
	next, details, stageErr := s.execute(stageCtx, doc, stage)
	cancel()

	if stageErr != nil && ctx.Err() != nil {
		// Shutdown, not a stage failure. The document stays in its stage
		// and stall recovery picks it up.
		return res, ctx.Err()
	}

	if stageErr != nil {
		return s.fail(ctx, doc, stage, stageErr, res)
	}

	now := s.now()
	next.Status = stage.DoneStatus()
	if next.Status == domain.StatusIndexed {
		next.ProcessedAt = &now
	}
	details["stage"] = string(stage)

	saved, err := s.commit(ctx, doc, next, domain.AuditEntry{
		Actor:        domain.ActorSystem,
		Action:       domain.AuditActionStageCompleted,
		ResourceType: domain.ResourceDocument,
		ResourceID:   doc.ID.String(),
		Details:      details,
	})
	if err != nil {
		if stage == domain.StageIndex && errors.Is(err, domain.ErrConcurrentModification) {
			s.dropOrphanedIndex(ctx, doc.ID)
		}
		return s.lost(ctx, res, err)
	}

	res.To = saved.Status
	res.Outcome = OutcomeCompleted
	s.log.InfoContext(ctx, "stage completed",
		slog.String("document_id", doc.ID.String()),
		slog.String("stage", string(stage)),
	)

	if saved.Status == domain.StatusIndexed {
		s.requestApproval(ctx, saved)
	}
	return res, nil
}

// fail records a stage failure, counting it against the stage's retry cap.
func (s *Service) fail(ctx context.Context, doc *domain.Document, stage domain.Stage, cause error, res AdvanceResult) (AdvanceResult, error) {
	failure := domain.NewStageFailure(stage, cause)
	now := s.now()

	next := doc.Clone()
	if next.RetryCounts == nil {
		next.RetryCounts = make(map[domain.Stage]int, 1)
	}
	next.RetryCounts[stage]++
	count := next.RetryCounts[stage]

	msg := fmt.Sprintf("%s: %v", failure.Kind(), cause)
	next.Status = domain.StatusFailed
	next.FailedStage = &stage
	next.ProcessingError = &msg
	next.ProcessedAt = &now
	next.Retryable = count <= s.cfg.MaxRetries
	next.NextRetryAt = nil
	if next.Retryable {
		at := now.Add(backoff(s.cfg.BackoffBase, s.cfg.BackoffMax, count))
		next.NextRetryAt = &at
	}

	_, err := s.commit(ctx, doc, next, domain.AuditEntry{
		Actor:        domain.ActorSystem,
		Action:       domain.AuditActionStageFailed,
		ResourceType: domain.ResourceDocument,
		ResourceID:   doc.ID.String(),
		Details: map[string]any{
			"stage":       string(stage),
			"kind":        failure.Kind(),
			"error":       cause.Error(),
			"retry_count": count,
			"retryable":   next.Retryable,
		},
	})
	if err != nil {
		return s.lost(ctx, res, err)
	}

	s.log.WarnContext(ctx, "stage failed",
		slog.String("document_id", doc.ID.String()),
		slog.String("stage", string(stage)),
		slog.String("kind", failure.Kind()),
		slog.Int("retry_count", count),
		slog.Bool("retryable", next.Retryable),
		slog.String("error", cause.Error()),
	)

	res.To = domain.StatusFailed
	res.Outcome = OutcomeFailed
	res.Failure = failure
	return res, nil
}

// dropOrphanedIndex removes the entry written by an indexing stage whose
// commit lost, unless the document got indexed by another worker. Entries
// are keyed by document, so a later successful index overwrites it anyway.
func (s *Service) dropOrphanedIndex(ctx context.Context, id uuid.UUID) {
	cur, err := s.docs.Get(ctx, id)
	if err == nil && cur.Status == domain.StatusIndexed {
		return
	}
	if err := s.adapters.Indexer.Remove(ctx, id); err != nil {
		s.log.WarnContext(ctx, "remove orphaned index entry",
			slog.String("document_id", id.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	s.log.InfoContext(ctx, "removed orphaned index entry", slog.String("document_id", id.String()))
}

// lost turns a version conflict into OutcomeDiscarded; other errors pass
// through.
func (s *Service) lost(ctx context.Context, res AdvanceResult, err error) (AdvanceResult, error) {
	if errors.Is(err, domain.ErrConcurrentModification) {
		s.log.DebugContext(ctx, "transition discarded, document changed concurrently",
			slog.String("document_id", res.DocumentID.String()),
			slog.String("from", string(res.From)),
		)
		res.Outcome = OutcomeDiscarded
		return res, nil
	}
	return res, fmt.Errorf("pipeline.Advance %s: %w", res.DocumentID, err)
}

// commit writes next conditioned on prev's version and records entry. The
// audit slot is reserved first, so a full audit buffer refuses the
// transition rather than losing its record.
func (s *Service) commit(ctx context.Context, prev, next *domain.Document, entry domain.AuditEntry) (*domain.Document, error) {
	reservation, err := s.audit.Reserve()
	if err != nil {
		return nil, err
	}

	var saved *domain.Document
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		saved, err = s.docs.Update(ctx, next, prev.Version)
		return err
	})
	if err != nil {
		reservation.Release()
		return nil, err
	}

	// Committed after the transaction so an audit backend failure cannot
	// abort the document write. The reservation guarantees the entry is
	// either appended or buffered.
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	entry.Details["from"] = string(prev.Status)
	entry.Details["to"] = string(saved.Status)
	entry.Details["version"] = saved.Version
	reservation.Commit(ctx, entry)
	return saved, nil
}
