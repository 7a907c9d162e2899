// Package postgres implements history.Store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mukesh145/pdf-knowledge-assistant/history"
)

// DBPool defines the interface for the database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements history.Store on PostgreSQL.
type Store struct {
	pool DBPool
}

var _ history.Store = (*Store)(nil)

// New creates a Postgres-backed history store from a connection string.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool creates a store with an existing pool. Useful for testing
// with mocks.
func NewWithPool(pool DBPool) *Store {
	return &Store{pool: pool}
}

// InitSchema creates the necessary tables if they don't exist
func (s *Store) InitSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS conversation_history (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			user_query TEXT NOT NULL,
			assistant_response TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_conversation_history_user_id ON conversation_history (user_id, created_at DESC);
		CREATE TABLE IF NOT EXISTS workflow_runs (
			run_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			raw_query TEXT NOT NULL,
			normalized_query TEXT NOT NULL,
			memory_context TEXT,
			document_context TEXT,
			response TEXT,
			failed_branches TEXT,
			created_at TIMESTAMPTZ NOT NULL
		);
	`

	_, err := s.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// AppendTurn stores one completed exchange.
func (s *Store) AppendTurn(ctx context.Context, turn history.Turn) error {
	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO conversation_history (user_id, user_query, assistant_response, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.pool.Exec(ctx, query, turn.UserID, turn.Query, turn.Response, createdAt)
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
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, userID, limit)
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
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
