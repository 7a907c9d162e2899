// Package retrieve implements the two retrieval branches the workflow can
// dispatch: conversation memory from the history store and document
// context from the vector store. The branches share nothing; each wraps a
// single collaborator call behind the narrow interface the engine expects.
package retrieve

import (
	"context"
	"fmt"
	"strings"

	"github.com/mukesh145/pdf-knowledge-assistant/history"
	"github.com/mukesh145/pdf-knowledge-assistant/log"
	"github.com/mukesh145/pdf-knowledge-assistant/workflow"
)

// DefaultMemoryTurns is how many recent turns the memory branch folds into
// the conversation block.
const DefaultMemoryTurns = 3

// TurnSource serves recent conversation turns, newest first.
type TurnSource interface {
	RecentTurns(ctx context.Context, userID int64, limit int) ([]history.Turn, error)
}

// TurnCache is an optional read-through cache in front of the turn source.
type TurnCache interface {
	RecentTurns(ctx context.Context, userID int64) ([]history.Turn, bool, error)
	StoreTurns(ctx context.Context, userID int64, turns []history.Turn) error
}

// ConversationMemory is the memory branch: it fetches the caller's recent
// turns and formats them into a single past-conversation block.
type ConversationMemory struct {
	source TurnSource
	cache  TurnCache
	turns  int
	logger log.Logger
}

var _ workflow.MemorySource = (*ConversationMemory)(nil)

// MemoryOption configures a ConversationMemory.
type MemoryOption func(*ConversationMemory)

// WithTurns overrides how many recent turns are included.
func WithTurns(n int) MemoryOption {
	return func(m *ConversationMemory) {
		if n > 0 {
			m.turns = n
		}
	}
}

// WithCache adds a read-through cache in front of the turn source. Cache
// errors are logged and the source is consulted directly; the cache never
// fails a lookup.
func WithCache(cache TurnCache) MemoryOption {
	return func(m *ConversationMemory) {
		m.cache = cache
	}
}

// WithMemoryLogger overrides the package default logger.
func WithMemoryLogger(logger log.Logger) MemoryOption {
	return func(m *ConversationMemory) {
		m.logger = logger
	}
}

// NewConversationMemory creates the memory branch on the given turn
// source.
func NewConversationMemory(source TurnSource, opts ...MemoryOption) *ConversationMemory {
	m := &ConversationMemory{
		source: source,
		turns:  DefaultMemoryTurns,
		logger: log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PastConversation returns the user's recent turns as one block, newest
// first:
//
//	User: <query>
//	Assistant: <response>
//
// with a blank line between turns. A user with no history yields an empty
// string, which is a valid result, not an error.
func (m *ConversationMemory) PastConversation(ctx context.Context, userID int64) (string, error) {
	turns, err := m.recentTurns(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("fetching past conversations: %w", err)
	}

	blocks := make([]string, 0, len(turns))
	for _, turn := range turns {
		blocks = append(blocks, fmt.Sprintf("User: %s\nAssistant: %s", turn.Query, turn.Response))
	}
	return strings.Join(blocks, "\n\n"), nil
}

func (m *ConversationMemory) recentTurns(ctx context.Context, userID int64) ([]history.Turn, error) {
	if m.cache != nil {
		turns, ok, err := m.cache.RecentTurns(ctx, userID)
		if err != nil {
			m.logger.Warn("session cache read failed for user %d: %v", userID, err)
		} else if ok {
			return turns, nil
		}
	}

	turns, err := m.source.RecentTurns(ctx, userID, m.turns)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		if err := m.cache.StoreTurns(ctx, userID, turns); err != nil {
			m.logger.Warn("session cache write failed for user %d: %v", userID, err)
		}
	}
	return turns, nil
}
