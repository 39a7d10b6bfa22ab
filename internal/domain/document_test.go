package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func ptr[T any](v T) *T { return &v }

func validDocument(status DocumentStatus) *Document {
	d := &Document{
		ID:             uuid.New(),
		Title:          "q3.txt",
		Filename:       "q3.txt",
		ContentType:    "text/plain",
		UploadedBy:     uuid.New(),
		Status:         status,
		ApprovalStatus: ApprovalPending,
		Retryable:      true,
	}
	switch status {
	case StatusIndexed:
		d.IndexHandle = ptr("sqlite:" + d.ID.String())
	case StatusFailed:
		d.FailedStage = ptr(StageExtract)
		d.ProcessingError = ptr("corrupt_file: bad header")
	}
	return d
}

func TestDocument_CheckInvariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(d *Document)
		status  DocumentStatus
		wantErr bool
	}{
		{name: "uploaded ok", status: StatusUploaded},
		{name: "indexed ok", status: StatusIndexed},
		{name: "failed ok", status: StatusFailed},
		{
			name:    "handle without indexed",
			status:  StatusClassified,
			mutate:  func(d *Document) { d.IndexHandle = ptr("sqlite:x") },
			wantErr: true,
		},
		{
			name:    "indexed without handle",
			status:  StatusIndexed,
			mutate:  func(d *Document) { d.IndexHandle = nil },
			wantErr: true,
		},
		{
			name:    "error outside failed",
			status:  StatusExtracted,
			mutate:  func(d *Document) { d.ProcessingError = ptr("oops") },
			wantErr: true,
		},
		{
			name:    "failed without stage",
			status:  StatusFailed,
			mutate:  func(d *Document) { d.FailedStage = nil },
			wantErr: true,
		},
		{
			name:    "confidence out of range",
			status:  StatusClassified,
			mutate:  func(d *Document) { d.ClassificationConfidence = ptr(1.5) },
			wantErr: true,
		},
		{
			name:    "unknown status",
			status:  DocumentStatus("archived"),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := validDocument(tt.status)
			if tt.mutate != nil {
				tt.mutate(d)
			}
			err := d.CheckInvariants()
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckInvariants() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestDocument_CloneIsDeep(t *testing.T) {
	t.Parallel()

	d := validDocument(StatusClassified)
	d.Tags = []string{"urgent"}
	d.Entities = map[string][]string{"ORG": {"Acme"}}
	d.RetryCounts = map[Stage]int{StageExtract: 1}
	d.Summary = ptr("short")

	c := d.Clone()
	c.Tags[0] = "draft"
	c.Entities["ORG"][0] = "Globex"
	c.RetryCounts[StageExtract] = 2
	*c.Summary = "changed"

	if d.Tags[0] != "urgent" || d.Entities["ORG"][0] != "Acme" || d.RetryCounts[StageExtract] != 1 || *d.Summary != "short" {
		t.Fatalf("Clone shares state with the original: %+v", d)
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := map[[2]DocumentStatus]bool{
		{StatusUploaded, StatusExtracting}:    true,
		{StatusExtracting, StatusExtracted}:   true,
		{StatusExtracting, StatusFailed}:      true,
		{StatusExtracted, StatusClassifying}:  true,
		{StatusClassifying, StatusClassified}: true,
		{StatusClassifying, StatusFailed}:     true,
		{StatusClassified, StatusIndexing}:    true,
		{StatusIndexing, StatusIndexed}:       true,
		{StatusIndexing, StatusFailed}:        true,
		{StatusFailed, StatusExtracting}:      true,
		{StatusFailed, StatusClassifying}:     true,
		{StatusFailed, StatusIndexing}:        true,
	}
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			want := allowed[[2]DocumentStatus{from, to}]
			if to == StatusWithdrawn {
				want = from != StatusIndexed && from != StatusWithdrawn
			}
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}
