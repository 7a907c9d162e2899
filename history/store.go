// Package history defines the conversation-history contract shared by the
// storage backends: one table of user/assistant turns that feeds the memory
// branch, and one journal of completed workflow runs.
package history

import (
	"context"
	"time"
)

// Turn is one completed exchange in a user's conversation.
type Turn struct {
	UserID    int64
	Query     string
	Response  string
	CreatedAt time.Time
}

// RunRecord journals one finished workflow run: what came in, what the
// engine produced, and which branches degraded.
type RunRecord struct {
	RunID           string
	SessionID       string
	UserID          int64
	RawQuery        string
	NormalizedQuery string
	MemoryContext   string
	DocumentContext string
	Response        string
	// FailedBranches names the retrieval branches that failed during the
	// run, empty when the run was clean.
	FailedBranches []string
	CreatedAt      time.Time
}

// Store persists conversation turns and run records.
type Store interface {
	// AppendTurn stores one completed exchange for a user.
	AppendTurn(ctx context.Context, turn Turn) error

	// RecentTurns returns up to limit of the user's most recent turns,
	// newest first.
	RecentTurns(ctx context.Context, userID int64, limit int) ([]Turn, error)

	// RecordRun journals a finished workflow run.
	RecordRun(ctx context.Context, rec RunRecord) error
}
