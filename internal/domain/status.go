package domain

import "fmt"

// Status is the processing state of a statement. It is a closed enumeration:
// every switch over it should handle all declared values.
type Status string

const (
	// StatusUploaded means the file is stored and a statement row exists,
	// but processing has not started.
	StatusUploaded Status = "UPLOADED"
	// StatusProcessing means a worker is extracting and parsing the file.
	StatusProcessing Status = "PROCESSING"
	// StatusCompleted means processing finished and results are persisted.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed means processing failed; ErrorMessage holds the cause.
	StatusFailed Status = "FAILED"
	// StatusReviewNeeded is declared for future use. No pipeline code enters
	// this state yet; low-confidence parses set Transaction.NeedsReview
	// instead of moving the statement here.
	StatusReviewNeeded Status = "REVIEW_NEEDED"
)

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusCompleted, StatusFailed, StatusReviewNeeded:
		return true
	}
	return false
}

// Terminal reports whether a statement in this status is done processing.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusReviewNeeded:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition. Statuses are monotonic: UPLOADED -> PROCESSING -> terminal.
// Re-entering PROCESSING from a terminal status is only legal as part of an
// explicit reprocess request, which callers signal with reprocess=true.
func (s Status) CanTransitionTo(next Status, reprocess bool) bool {
	switch s {
	case StatusUploaded:
		return next == StatusProcessing
	case StatusProcessing:
		return next.Terminal()
	case StatusCompleted, StatusFailed, StatusReviewNeeded:
		return reprocess && next == StatusProcessing
	}
	return false
}

// ParseStatus converts a stored string into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown statement status %q", s)
	}
	return st, nil
}
