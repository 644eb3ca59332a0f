package fetch

import (
	"time"
)

// Reason identifies why an item terminally failed.
type Reason string

const (
	// ReasonInvalidIdentifier - the item failed validation; no request was made.
	ReasonInvalidIdentifier Reason = "invalid_identifier"

	// ReasonNotFound - the API returned 404; retries were short-circuited.
	ReasonNotFound Reason = "not_found"

	// ReasonNetworkUnavailable - the connectivity preflight failed on the
	// final allowed attempt.
	ReasonNetworkUnavailable Reason = "network_unavailable"

	// ReasonRetriesExhausted - every attempt failed with a retryable error.
	ReasonRetriesExhausted Reason = "retries_exhausted"

	// ReasonCancelled - the run context was cancelled mid-item.
	ReasonCancelled Reason = "cancelled"

	// ReasonInternal - the worker panicked; recovered at the pool boundary.
	ReasonInternal Reason = "internal_error"
)

// Outcome is the terminal result of fetching one work item. Exactly one
// Outcome is produced per item; it is immutable once returned.
type Outcome struct {
	// Item is the work item identifier.
	Item string

	// WorkerID is the pool worker that produced this outcome.
	WorkerID int

	// Success is true when the payload was fetched and persisted.
	Success bool

	// Reason is set on failure only.
	Reason Reason

	// Attempts is the number of attempts made (0 when validation failed).
	Attempts int

	// Path is the payload file written on success.
	Path string

	// Elapsed is the wall time spent on this item.
	Elapsed time.Duration

	// Err carries the terminal error on failure.
	Err error
}
