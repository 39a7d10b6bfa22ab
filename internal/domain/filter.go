package domain

import (
	"time"

	"github.com/google/uuid"
)

// DocumentFilter contains filtering/pagination parameters for document listings.
type DocumentFilter struct {
	Status         *DocumentStatus
	ApprovalStatus *ApprovalStatus
	CategoryID     *uuid.UUID
	UploadedBy     *uuid.UUID
	From           *time.Time
	To             *time.Time
	Limit          int
	Offset         int
}

// DocumentStats is the aggregate view served to dashboards.
type DocumentStats struct {
	Total        int                    `json:"total"`
	ByStatus     map[DocumentStatus]int `json:"by_status"`
	ByApproval   map[ApprovalStatus]int `json:"by_approval"`
	ByCategory   map[string]int         `json:"by_category"`
	NeedsReview  int                    `json:"needs_review"`
	StorageBytes int64                  `json:"storage_bytes"`
}

// RunnableQuery selects documents the scheduler should hand to the runner.
type RunnableQuery struct {
	// StalledBefore picks in-stage documents whose last write is older than this.
	StalledBefore time.Time
	Limit         int
}
