package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowInstance is one execution of an external workflow on behalf of a
// document. Instances are never deleted.
type WorkflowInstance struct {
	ID           uuid.UUID
	DocumentID   *uuid.UUID
	Kind         WorkflowKind
	Status       WorkflowStatus
	Gating       bool
	Input        map[string]any
	Output       map[string]any
	ExternalRef  *string
	ErrorMessage *string
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// Workflow completion outcomes understood by OnWorkflowComplete.
const (
	OutcomeApproved  = "approved"
	OutcomeRejected  = "rejected"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)
