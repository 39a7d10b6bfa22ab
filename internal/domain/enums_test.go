package domain

import "testing"

func TestDocumentStatus_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status DocumentStatus
		want   bool
	}{
		{StatusUploaded, true},
		{StatusExtracting, true},
		{StatusIndexed, true},
		{StatusFailed, true},
		{StatusWithdrawn, true},
		{DocumentStatus("archived"), false},
		{DocumentStatus(""), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			if got := tt.status.IsValid(); got != tt.want {
				t.Errorf("DocumentStatus(%q).IsValid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestDocumentStatus_Stages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status  DocumentStatus
		pending Stage
		active  Stage
	}{
		{StatusUploaded, StageExtract, ""},
		{StatusExtracting, "", StageExtract},
		{StatusExtracted, StageClassify, ""},
		{StatusClassifying, "", StageClassify},
		{StatusClassified, StageIndex, ""},
		{StatusIndexing, "", StageIndex},
		{StatusIndexed, "", ""},
		{StatusFailed, "", ""},
		{StatusWithdrawn, "", ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			if got, _ := tt.status.PendingStage(); got != tt.pending {
				t.Errorf("PendingStage() = %q, want %q", got, tt.pending)
			}
			if got, _ := tt.status.ActiveStage(); got != tt.active {
				t.Errorf("ActiveStage() = %q, want %q", got, tt.active)
			}
		})
	}
}

func TestStage_EntryAndDoneStatus(t *testing.T) {
	t.Parallel()

	for _, s := range AllStages {
		entry := s.EntryStatus()
		if got, ok := entry.ActiveStage(); !ok || got != s {
			t.Errorf("%s: EntryStatus %s does not map back to the stage", s, entry)
		}
		if !CanTransition(entry, s.DoneStatus()) {
			t.Errorf("%s: %s -> %s must be allowed", s, entry, s.DoneStatus())
		}
	}
	if Stage("ocr").IsValid() {
		t.Error("unknown stage reported valid")
	}
}

func TestAuditAction_IsValid(t *testing.T) {
	t.Parallel()

	valid := []AuditAction{
		AuditActionUpload, AuditActionSubmit, AuditActionStageStarted, AuditActionStageCompleted,
		AuditActionStageFailed, AuditActionRetry, AuditActionApprove, AuditActionReject,
		AuditActionWithdraw, AuditActionWorkflowDispatched, AuditActionWorkflowCompleted,
	}
	for _, a := range valid {
		if !a.IsValid() {
			t.Errorf("AuditAction(%q).IsValid() = false", a)
		}
	}
	if AuditAction("delete").IsValid() {
		t.Error("AuditAction(delete).IsValid() = true")
	}
}

func TestWorkflowEnums_IsValid(t *testing.T) {
	t.Parallel()

	if !WorkflowApproval.IsValid() || !WorkflowNotification.IsValid() || !WorkflowExpiration.IsValid() {
		t.Error("known workflow kinds must be valid")
	}
	if WorkflowKind("escalation").IsValid() {
		t.Error("unknown workflow kind reported valid")
	}
	if !WorkflowActive.IsValid() || WorkflowStatus("paused").IsValid() {
		t.Error("workflow status validation mismatch")
	}
}
