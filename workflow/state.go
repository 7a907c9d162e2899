// Package workflow implements the query-answering workflow: normalization,
// intent classification, conditional routing and the parallel retrieval
// phase. The engine owns one QueryState per run and decides, per query,
// which retrieval branches to dispatch before the answer is generated.
package workflow

import "fmt"

// Phase identifies where a run is in the workflow lifecycle.
type Phase int

const (
	// PhaseStart is the initial phase before any processing.
	PhaseStart Phase = iota
	// PhaseNormalized means the raw query has been normalized.
	PhaseNormalized
	// PhaseClassified means both intent flags have been produced.
	PhaseClassified
	// PhaseRouting means the route has been decided from the flags.
	PhaseRouting
	// PhaseRetrieving means one or both retrieval branches are in flight.
	PhaseRetrieving
	// PhaseMerged means branch results have been folded into the state.
	PhaseMerged
	// PhaseDone is the successful terminal phase.
	PhaseDone
	// PhaseFailed is the terminal phase for aborted runs.
	PhaseFailed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseNormalized:
		return "normalized"
	case PhaseClassified:
		return "classified"
	case PhaseRouting:
		return "routing"
	case PhaseRetrieving:
		return "retrieving"
	case PhaseMerged:
		return "merged"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", p)
	}
}

// Session identifies the caller a run belongs to. The user ID keys
// conversation memory; the session ID is journal metadata only.
type Session struct {
	UserID    int64
	SessionID string
}

// QueryState is the single mutable state of one workflow run. Exactly one
// QueryState exists per run and it is never reused. During the retrieval
// phase each branch reports into its own slot, so MemoryContext and
// DocumentContext are only ever written by their own branch.
//
// MemoryContext and DocumentContext are nil unless the corresponding branch
// was requested by the classifier and completed successfully. An empty
// string is a valid present value (a user with no history, a query with no
// matching passages).
type QueryState struct {
	// RunID is a unique identifier assigned at entry.
	RunID string

	// Session is the caller snapshot the run was started with.
	Session Session

	// RawQuery is the query exactly as received. Immutable once set.
	RawQuery string

	// NormalizedQuery is the lowercased, whitespace-collapsed, trimmed
	// form of RawQuery. All downstream steps consume this, never RawQuery.
	NormalizedQuery string

	// RequiresRAG reports whether the classifier requested document
	// context for this query.
	RequiresRAG bool

	// RequiresMemory reports whether the classifier requested past
	// conversation history for this query.
	RequiresMemory bool

	// Route is the dispatch decision derived from the two flags.
	Route Route

	// MemoryContext holds the formatted recent conversation, when the
	// memory branch ran and succeeded.
	MemoryContext *string

	// DocumentContext holds the retrieved knowledge-base passages, when
	// the context branch ran and succeeded.
	DocumentContext *string

	// Response is the generated answer. The engine leaves it empty; the
	// generation step downstream of the workflow fills it.
	Response string

	// Phase is the phase the run ended in.
	Phase Phase

	// Failures records every branch that was dispatched and failed.
	// Branch failures do not abort the run.
	Failures []BranchFailure
}

// MemoryUsed reports whether the run produced conversation memory.
func (s *QueryState) MemoryUsed() bool {
	return s.MemoryContext != nil
}

// ContextUsed reports whether the run produced document context.
func (s *QueryState) ContextUsed() bool {
	return s.DocumentContext != nil
}

// FailedBranch reports whether the given branch failed during this run.
func (s *QueryState) FailedBranch(branch Branch) bool {
	for _, f := range s.Failures {
		if f.Branch == branch {
			return true
		}
	}
	return false
}
