package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when the raw query is structurally
	// absent, before any other processing.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyQuery is returned when the query is empty after
	// normalization (empty or whitespace-only input). Raised before the
	// classifier is ever called.
	ErrEmptyQuery = errors.New("empty query")

	// ErrClassificationUnavailable is returned when the classifier cannot
	// produce both intent flags. The workflow never guesses a routing
	// decision in its place.
	ErrClassificationUnavailable = errors.New("intent classification unavailable")
)

// BranchFailure records one retrieval branch that was dispatched and did
// not produce a result. Branch failures are absorbed into the run's state
// rather than aborting the workflow.
type BranchFailure struct {
	// Branch is the branch that failed.
	Branch Branch
	// Err is the underlying cause, including deadline expiry.
	Err error
}

func (f BranchFailure) Error() string {
	return fmt.Sprintf("%s lookup failed: %v", f.Branch, f.Err)
}

// Unwrap returns the underlying cause.
func (f BranchFailure) Unwrap() error {
	return f.Err
}
