// Package sqlite implements history.Store on SQLite for local development
// and single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mukesh145/pdf-knowledge-assistant/history"
)

// Store implements history.Store on SQLite.
type Store struct {
	db *sql.DB
}

var _ history.Store = (*Store)(nil)

// New opens (or creates) the database at path and ensures the schema
// exists.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS conversation_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			user_query TEXT NOT NULL,
			assistant_response TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_conversation_history_user_id ON conversation_history (user_id, created_at DESC);
		CREATE TABLE IF NOT EXISTS workflow_runs (
			run_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			raw_query TEXT NOT NULL,
			normalized_query TEXT NOT NULL,
			memory_context TEXT,
			document_context TEXT,
			response TEXT,
			failed_branches TEXT,
			created_at DATETIME NOT NULL
		);
	`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendTurn stores one completed exchange.
func (s *Store) AppendTurn(ctx context.Context, turn history.Turn) error {
	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO conversation_history (user_id, user_query, assistant_response, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, turn.UserID, turn.Query, turn.Response, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save conversation turn: %w", err)
	}
	return nil
}

// RecentTurns returns up to limit of the user's most recent turns, newest
// first.
func (s *Store) RecentTurns(ctx context.Context, userID int64, limit int) ([]history.Turn, error) {
	query := `
		SELECT user_query, assistant_response, created_at
		FROM conversation_history
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversation turns: %w", err)
	}
	defer rows.Close()

	var turns []history.Turn
	for rows.Next() {
		turn := history.Turn{UserID: userID}
		if err := rows.Scan(&turn.Query, &turn.Response, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation rows: %w", err)
	}

	return turns, nil
}

// RecordRun journals a finished workflow run.
func (s *Store) RecordRun(ctx context.Context, rec history.RunRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO workflow_runs (run_id, session_id, user_id, raw_query, normalized_query, memory_context, document_context, response, failed_branches, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.RunID,
		rec.SessionID,
		rec.UserID,
		rec.RawQuery,
		rec.NormalizedQuery,
		rec.MemoryContext,
		rec.DocumentContext,
		rec.Response,
		strings.Join(rec.FailedBranches, ","),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}
	return nil
}
