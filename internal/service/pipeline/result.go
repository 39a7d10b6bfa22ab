package pipeline

import (
	"github.com/google/uuid"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

// Outcome tells what a single Advance call did.
type Outcome string

const (
	// OutcomeNoop: the document was terminal, nothing to do.
	OutcomeNoop Outcome = "noop"
	// OutcomeClaimed: a pre-stage document moved into its stage.
	OutcomeClaimed Outcome = "claimed"
	// OutcomeCompleted: the stage ran and its result was written.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed: the stage ran, failed, and the failure was written.
	OutcomeFailed Outcome = "failed"
	// OutcomeDiscarded: another writer changed the document first.
	OutcomeDiscarded Outcome = "discarded"
)

// AdvanceResult describes one Advance step.
type AdvanceResult struct {
	DocumentID uuid.UUID
	Stage      domain.Stage
	From       domain.DocumentStatus
	To         domain.DocumentStatus
	Outcome    Outcome
	// Failure is set when Outcome is OutcomeFailed.
	Failure *domain.StageFailure
}

// Progressed reports whether the step committed a transition.
func (r AdvanceResult) Progressed() bool {
	switch r.Outcome {
	case OutcomeClaimed, OutcomeCompleted, OutcomeFailed:
		return true
	}
	return false
}
