package domain

// CanTransition reports whether the lifecycle state machine allows moving a
// document from one status to another. Retry edges (failed to an in-stage
// state) are included; whether the specific stage matches is checked by the
// caller against Document.FailedStage.
func CanTransition(from, to DocumentStatus) bool {
	if to == StatusWithdrawn {
		return CanWithdraw(from)
	}
	switch from {
	case StatusUploaded:
		return to == StatusExtracting
	case StatusExtracting:
		return to == StatusExtracted || to == StatusFailed
	case StatusExtracted:
		return to == StatusClassifying
	case StatusClassifying:
		return to == StatusClassified || to == StatusFailed
	case StatusClassified:
		return to == StatusIndexing
	case StatusIndexing:
		return to == StatusIndexed || to == StatusFailed
	case StatusFailed:
		return to == StatusExtracting || to == StatusClassifying || to == StatusIndexing
	}
	return false
}

// CanWithdraw reports whether a document in status s may be withdrawn.
// Withdrawal is allowed any time before indexing completes.
func CanWithdraw(s DocumentStatus) bool {
	switch s {
	case StatusIndexed, StatusWithdrawn:
		return false
	}
	return s.IsValid()
}
