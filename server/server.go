// Package server exposes the assistant over HTTP: a JSON query endpoint,
// a streaming variant using server-sent events, and a health check. The
// transport stays thin; all decisions live in the workflow engine and the
// answer generator. Authentication is an upstream concern — the caller
// identity arrives in the X-User-ID header set by the auth proxy.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mukesh145/pdf-knowledge-assistant/history"
	"github.com/mukesh145/pdf-knowledge-assistant/log"
	"github.com/mukesh145/pdf-knowledge-assistant/workflow"
)

// MaxQueryLength caps accepted queries, matching the public API contract.
const MaxQueryLength = 5000

// persistTimeout bounds the post-response bookkeeping writes.
const persistTimeout = 5 * time.Second

// WorkflowRunner runs the query workflow. *workflow.Engine satisfies it.
type WorkflowRunner interface {
	Run(ctx context.Context, rawQuery string, session workflow.Session) (*workflow.QueryState, error)
}

// Generator produces the final answer for a completed run.
type Generator interface {
	Generate(ctx context.Context, state *workflow.QueryState) (string, error)
	GenerateStream(ctx context.Context, state *workflow.QueryState, fn func(chunk string) error) error
}

// CacheInvalidator drops a user's cached session turns after a new turn
// lands. Optional.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

// Options configures a Server.
type Options struct {
	Engine    WorkflowRunner
	Generator Generator
	// History persists turns and run records. Optional; without it the
	// server answers but keeps no conversation history.
	History history.Store
	// Cache is invalidated after each appended turn. Optional.
	Cache CacheInvalidator
	// Logger defaults to the package-level logger.
	Logger log.Logger
}

// Server handles the assistant's HTTP surface.
type Server struct {
	engine    WorkflowRunner
	generator Generator
	store     history.Store
	cache     CacheInvalidator
	logger    log.Logger
}

// New creates a server from the given options.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("workflow engine is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("answer generator is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	return &Server{
		engine:    opts.Engine,
		generator: opts.Generator,
		store:     opts.History,
		cache:     opts.Cache,
		logger:    logger,
	}, nil
}

// Handler returns the assistant's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/query/stream", s.handleQueryStream)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// QueryRequest is the body of both query endpoints.
type QueryRequest struct {
	Query string `json:"query"`
	// SessionID groups turns of one conversation; a new one is assigned
	// when absent.
	SessionID string `json:"session_id,omitempty"`
}

// QueryResponse is the JSON answer of the non-streaming endpoint.
type QueryResponse struct {
	Query           string   `json:"query"`
	Response        string   `json:"response"`
	NormalizedQuery string   `json:"normalized_query"`
	ContextUsed     bool     `json:"context_used"`
	MemoryUsed      bool     `json:"memory_used"`
	SessionID       string   `json:"session_id"`
	RunID           string   `json:"run_id"`
	FailedBranches  []string `json:"failed_branches,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, map[string]any{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := s.identify(w, r)
	if !ok {
		return
	}

	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	session := workflow.Session{UserID: userID, SessionID: req.SessionID}
	if session.SessionID == "" {
		session.SessionID = uuid.NewString()
	}

	ctx := r.Context()
	state, err := s.engine.Run(ctx, req.Query, session)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("query workflow failed for user %d: %v", userID, err)
		sendJSONError(w, clientMessage(err), statusFor(err))
		return
	}

	response, err := s.generator.Generate(ctx, state)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("run %s: answer generation failed: %v", state.RunID, err)
		sendJSONError(w, "AI service error. Please try again later.", http.StatusBadGateway)
		return
	}
	state.Response = response

	s.persist(state)

	sendJSONResponse(w, QueryResponse{
		Query:           state.RawQuery,
		Response:        state.Response,
		NormalizedQuery: state.NormalizedQuery,
		ContextUsed:     state.ContextUsed(),
		MemoryUsed:      state.MemoryUsed(),
		SessionID:       state.Session.SessionID,
		RunID:           state.RunID,
		FailedBranches:  failedBranchNames(state),
	})
}

func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := s.identify(w, r)
	if !ok {
		return
	}

	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	session := workflow.Session{UserID: userID, SessionID: req.SessionID}
	if session.SessionID == "" {
		session.SessionID = uuid.NewString()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		sendJSONError(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	state, err := s.engine.Run(ctx, req.Query, session)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("streaming workflow failed for user %d: %v", userID, err)
		sseEvent(w, flusher, "error", map[string]string{"message": clientMessage(err)})
		sseEvent(w, flusher, "done", nil)
		return
	}

	sseEvent(w, flusher, "metadata", map[string]any{
		"session_id":   state.Session.SessionID,
		"run_id":       state.RunID,
		"context_used": state.ContextUsed(),
		"memory_used":  state.MemoryUsed(),
	})

	var answer string
	err = s.generator.GenerateStream(ctx, state, func(chunk string) error {
		answer += chunk
		sseEvent(w, flusher, "message", map[string]string{
			"content": chunk,
			"role":    "assistant",
		})
		return ctx.Err()
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("run %s: streaming generation failed: %v", state.RunID, err)
		sseEvent(w, flusher, "error", map[string]string{
			"message": "An error occurred while processing your query. Please try again.",
		})
		sseEvent(w, flusher, "done", nil)
		return
	}
	state.Response = answer

	s.persist(state)

	sseEvent(w, flusher, "done", nil)
}

// identify reads the caller identity set by the upstream auth proxy.
func (s *Server) identify(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		sendJSONError(w, "Missing user identity", http.StatusUnauthorized)
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid user identity", http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}

// decodeQuery parses and bounds the request body. The engine rejects
// blank queries itself; only structural problems are handled here.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (QueryRequest, bool) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return QueryRequest{}, false
	}
	if len(req.Query) > MaxQueryLength {
		sendJSONError(w, fmt.Sprintf("Query must not exceed %d characters", MaxQueryLength), http.StatusBadRequest)
		return QueryRequest{}, false
	}
	return req, true
}

// persist journals the finished run and appends the turn. Bookkeeping
// failures are logged, never surfaced to the client, and use their own
// context so a disconnecting client cannot lose the write.
func (s *Server) persist(state *workflow.QueryState) {
	if s.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	turn := history.Turn{
		UserID:    state.Session.UserID,
		Query:     state.RawQuery,
		Response:  state.Response,
		CreatedAt: time.Now(),
	}
	if err := s.store.AppendTurn(ctx, turn); err != nil {
		s.logger.Error("run %s: failed to append turn: %v", state.RunID, err)
	} else if s.cache != nil {
		if err := s.cache.Invalidate(ctx, state.Session.UserID); err != nil {
			s.logger.Warn("run %s: failed to invalidate session cache: %v", state.RunID, err)
		}
	}

	rec := history.RunRecord{
		RunID:           state.RunID,
		SessionID:       state.Session.SessionID,
		UserID:          state.Session.UserID,
		RawQuery:        state.RawQuery,
		NormalizedQuery: state.NormalizedQuery,
		Response:        state.Response,
		FailedBranches:  failedBranchNames(state),
		CreatedAt:       time.Now(),
	}
	if state.MemoryContext != nil {
		rec.MemoryContext = *state.MemoryContext
	}
	if state.DocumentContext != nil {
		rec.DocumentContext = *state.DocumentContext
	}
	if err := s.store.RecordRun(ctx, rec); err != nil {
		s.logger.Error("run %s: failed to record run: %v", state.RunID, err)
	}
}

func failedBranchNames(state *workflow.QueryState) []string {
	if len(state.Failures) == 0 {
		return nil
	}
	names := make([]string, 0, len(state.Failures))
	for _, f := range state.Failures {
		names = append(names, f.Branch.String())
	}
	return names
}

// statusFor maps workflow errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrInvalidInput), errors.Is(err, workflow.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrClassificationUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage sanitizes workflow errors for the client; internals stay
// in the server log.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, workflow.ErrInvalidInput), errors.Is(err, workflow.ErrEmptyQuery):
		return "Query must not be empty."
	case errors.Is(err, workflow.ErrClassificationUnavailable):
		return "AI service error. Please try again later."
	default:
		return "An error occurred while processing your query. Please try again."
	}
}

// sseEvent sends a server-sent event.
func sseEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	var jsonData string
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return
		}
		jsonData = string(bytes)
	} else {
		jsonData = "{}"
	}

	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
	flusher.Flush()
}

// sendJSONResponse sends a JSON response.
func sendJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// sendJSONError sends a JSON error response.
func sendJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": message})
}
