package domain

// DocumentStatus is the lifecycle state of a document.
type DocumentStatus string

const (
	StatusUploaded    DocumentStatus = "uploaded"
	StatusExtracting  DocumentStatus = "extracting"
	StatusExtracted   DocumentStatus = "extracted"
	StatusClassifying DocumentStatus = "classifying"
	StatusClassified  DocumentStatus = "classified"
	StatusIndexing    DocumentStatus = "indexing"
	StatusIndexed     DocumentStatus = "indexed"
	StatusFailed      DocumentStatus = "failed"
	StatusWithdrawn   DocumentStatus = "withdrawn"
)

// AllStatuses lists every lifecycle state in pipeline order.
var AllStatuses = []DocumentStatus{
	StatusUploaded, StatusExtracting, StatusExtracted, StatusClassifying,
	StatusClassified, StatusIndexing, StatusIndexed, StatusFailed, StatusWithdrawn,
}

func (s DocumentStatus) String() string { return string(s) }

func (s DocumentStatus) IsValid() bool {
	switch s {
	case StatusUploaded, StatusExtracting, StatusExtracted, StatusClassifying,
		StatusClassified, StatusIndexing, StatusIndexed, StatusFailed, StatusWithdrawn:
		return true
	}
	return false
}

// IsTerminal reports whether Advance has nothing left to do. A failed
// document can still leave this state through Retry.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusIndexed || s == StatusFailed || s == StatusWithdrawn
}

// PendingStage returns the stage that will be claimed next from a pre-stage
// state (uploaded, extracted, classified).
func (s DocumentStatus) PendingStage() (Stage, bool) {
	switch s {
	case StatusUploaded:
		return StageExtract, true
	case StatusExtracted:
		return StageClassify, true
	case StatusClassified:
		return StageIndex, true
	}
	return "", false
}

// ActiveStage returns the stage in progress for an in-stage state
// (extracting, classifying, indexing).
func (s DocumentStatus) ActiveStage() (Stage, bool) {
	switch s {
	case StatusExtracting:
		return StageExtract, true
	case StatusClassifying:
		return StageClassify, true
	case StatusIndexing:
		return StageIndex, true
	}
	return "", false
}

// Stage is one discrete processing step.
type Stage string

const (
	StageExtract  Stage = "extract"
	StageClassify Stage = "classify"
	StageIndex    Stage = "index"
)

// AllStages lists the stages in execution order.
var AllStages = []Stage{StageExtract, StageClassify, StageIndex}

func (s Stage) String() string { return string(s) }

func (s Stage) IsValid() bool {
	switch s {
	case StageExtract, StageClassify, StageIndex:
		return true
	}
	return false
}

// EntryStatus is the in-stage state a document holds while s runs, and the
// state a retry of s resets to.
func (s Stage) EntryStatus() DocumentStatus {
	switch s {
	case StageExtract:
		return StatusExtracting
	case StageClassify:
		return StatusClassifying
	case StageIndex:
		return StatusIndexing
	}
	return ""
}

// DoneStatus is the state reached when s succeeds.
func (s Stage) DoneStatus() DocumentStatus {
	switch s {
	case StageExtract:
		return StatusExtracted
	case StageClassify:
		return StatusClassified
	case StageIndex:
		return StatusIndexed
	}
	return ""
}

// ApprovalStatus is the human (or workflow) decision on an indexed document.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

func (s ApprovalStatus) String() string { return string(s) }

func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// AuditAction is the verb recorded in an audit entry.
type AuditAction string

const (
	AuditActionUpload             AuditAction = "upload"
	AuditActionSubmit             AuditAction = "submit"
	AuditActionStageStarted       AuditAction = "stage_started"
	AuditActionStageCompleted     AuditAction = "stage_completed"
	AuditActionStageFailed        AuditAction = "stage_failed"
	AuditActionRetry              AuditAction = "retry"
	AuditActionApprove            AuditAction = "approve"
	AuditActionReject             AuditAction = "reject"
	AuditActionWithdraw           AuditAction = "withdraw"
	AuditActionWorkflowDispatched AuditAction = "workflow_dispatched"
	AuditActionWorkflowCompleted  AuditAction = "workflow_completed"
)

func (a AuditAction) String() string { return string(a) }

func (a AuditAction) IsValid() bool {
	switch a {
	case AuditActionUpload, AuditActionSubmit, AuditActionStageStarted, AuditActionStageCompleted,
		AuditActionStageFailed, AuditActionRetry, AuditActionApprove, AuditActionReject,
		AuditActionWithdraw, AuditActionWorkflowDispatched, AuditActionWorkflowCompleted:
		return true
	}
	return false
}

// ResourceType identifies what an audit entry is about.
type ResourceType string

const (
	ResourceDocument ResourceType = "document"
	ResourceWorkflow ResourceType = "workflow"
)

func (r ResourceType) String() string { return string(r) }

func (r ResourceType) IsValid() bool {
	return r == ResourceDocument || r == ResourceWorkflow
}

// WorkflowKind is the purpose of a workflow instance.
type WorkflowKind string

const (
	WorkflowApproval     WorkflowKind = "approval"
	WorkflowNotification WorkflowKind = "notification"
	WorkflowExpiration   WorkflowKind = "expiration"
)

func (k WorkflowKind) String() string { return string(k) }

func (k WorkflowKind) IsValid() bool {
	switch k {
	case WorkflowApproval, WorkflowNotification, WorkflowExpiration:
		return true
	}
	return false
}

// WorkflowStatus is the state of a workflow instance.
type WorkflowStatus string

const (
	WorkflowActive    WorkflowStatus = "active"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
)

func (s WorkflowStatus) String() string { return string(s) }

func (s WorkflowStatus) IsValid() bool {
	switch s {
	case WorkflowActive, WorkflowCompleted, WorkflowFailed:
		return true
	}
	return false
}

// RetryMode distinguishes operator retries from scheduler retries.
type RetryMode string

const (
	RetryManual    RetryMode = "manual"
	RetryAutomatic RetryMode = "automatic"
)

func (m RetryMode) String() string { return string(m) }
