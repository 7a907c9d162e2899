package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mukesh145/pdf-knowledge-assistant/log"
)

// DefaultRetrievalTimeout bounds each retrieval branch when no timeout is
// configured.
const DefaultRetrievalTimeout = 10 * time.Second

// Intent carries the classifier's two independent flags.
type Intent struct {
	// RequiresRAG reports that the query needs document context.
	RequiresRAG bool
	// RequiresMemory reports that the query refers to past conversation.
	RequiresMemory bool
}

// Classifier produces both intent flags for a normalized query. An error
// means the flags could not be produced; the engine treats that as terminal
// and never substitutes a guessed routing decision.
type Classifier interface {
	Classify(ctx context.Context, query string) (Intent, error)
}

// MemorySource serves the conversation-memory branch: the caller's recent
// turns formatted as a single block.
type MemorySource interface {
	PastConversation(ctx context.Context, userID int64) (string, error)
}

// ContextSource serves the document-context branch: knowledge-base passages
// relevant to the normalized query, joined into a single block.
type ContextSource interface {
	RelevantContext(ctx context.Context, query string) (string, error)
}

// EngineOptions configures a workflow engine.
type EngineOptions struct {
	// Classifier produces the intent flags. Required.
	Classifier Classifier

	// Memory serves the conversation-memory branch. Required.
	Memory MemorySource

	// Documents serves the document-context branch. Required.
	Documents ContextSource

	// RetrievalTimeout bounds each branch independently. One branch
	// timing out never shortens the other's budget. Zero selects
	// DefaultRetrievalTimeout.
	RetrievalTimeout time.Duration

	// CombinedDeadline additionally caps the whole retrieval phase.
	// Branches still running when it expires fail individually; the run
	// itself completes with whatever arrived in time. Zero disables it.
	CombinedDeadline time.Duration

	// Logger receives run progress. Defaults to the package-level logger.
	Logger log.Logger
}

// Engine runs the query workflow. It is safe for concurrent use; every Run
// call owns its own QueryState.
type Engine struct {
	classifier       Classifier
	memory           MemorySource
	documents        ContextSource
	retrievalTimeout time.Duration
	combinedDeadline time.Duration
	logger           log.Logger
}

// NewEngine creates a workflow engine from the given options.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if opts.Memory == nil {
		return nil, fmt.Errorf("memory source is required")
	}
	if opts.Documents == nil {
		return nil, fmt.Errorf("context source is required")
	}

	timeout := opts.RetrievalTimeout
	if timeout == 0 {
		timeout = DefaultRetrievalTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	return &Engine{
		classifier:       opts.Classifier,
		memory:           opts.Memory,
		documents:        opts.Documents,
		retrievalTimeout: timeout,
		combinedDeadline: opts.CombinedDeadline,
		logger:           logger,
	}, nil
}

// Run executes the workflow for one query: normalize, classify, route,
// retrieve, merge. On success the returned state is in PhaseDone with its
// Response still empty; generation happens downstream of the engine.
//
// Validation and classification failures return the failed state together
// with a taxonomy error (ErrInvalidInput, ErrEmptyQuery,
// ErrClassificationUnavailable). Cancellation of ctx aborts in-flight
// branch work and returns (nil, ctx.Err()); no partial state is surfaced.
// Branch failures never abort the run; they are recorded in
// QueryState.Failures and the corresponding context field stays nil.
func (e *Engine) Run(ctx context.Context, rawQuery string, session Session) (*QueryState, error) {
	state := &QueryState{
		RunID:    uuid.NewString(),
		Session:  session,
		RawQuery: rawQuery,
		Phase:    PhaseStart,
	}

	if rawQuery == "" {
		state.Phase = PhaseFailed
		return state, ErrInvalidInput
	}

	state.NormalizedQuery = Normalize(rawQuery)
	if state.NormalizedQuery == "" {
		state.Phase = PhaseFailed
		return state, ErrEmptyQuery
	}
	state.Phase = PhaseNormalized

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	intent, err := e.classifier.Classify(ctx, state.NormalizedQuery)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		state.Phase = PhaseFailed
		return state, fmt.Errorf("%w: %v", ErrClassificationUnavailable, err)
	}
	state.RequiresRAG = intent.RequiresRAG
	state.RequiresMemory = intent.RequiresMemory
	state.Phase = PhaseClassified

	state.Route = DecideRoute(intent.RequiresMemory, intent.RequiresRAG)
	state.Phase = PhaseRouting
	e.logger.Debug("run %s: route=%s rag=%t memory=%t", state.RunID, state.Route, state.RequiresRAG, state.RequiresMemory)

	if branches := state.Route.Branches(); len(branches) > 0 {
		state.Phase = PhaseRetrieving
		results, err := e.runBranches(ctx, state, branches)
		if err != nil {
			return nil, err
		}
		e.merge(state, results)
	}
	state.Phase = PhaseMerged

	state.Phase = PhaseDone
	return state, nil
}

type branchResult struct {
	branch Branch
	text   string
	err    error
}

// runBranches dispatches every branch before awaiting any of them, then
// joins. Each branch gets its own timeout context and its own result slot,
// so branches never share mutable state. The only error returned is
// cancellation of the caller's ctx.
func (e *Engine) runBranches(ctx context.Context, state *QueryState, branches []Branch) ([]branchResult, error) {
	retrieveCtx := ctx
	if e.combinedDeadline > 0 {
		var cancel context.CancelFunc
		retrieveCtx, cancel = context.WithTimeout(ctx, e.combinedDeadline)
		defer cancel()
	}

	var wg sync.WaitGroup
	results := make([]branchResult, len(branches))

	for i, branch := range branches {
		idx := i
		b := branch

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[idx] = branchResult{branch: b, err: fmt.Errorf("panic in %s lookup: %v", b, r)}
				}
			}()

			bctx, cancel := context.WithTimeout(retrieveCtx, e.retrievalTimeout)
			defer cancel()

			text, err := e.lookup(bctx, b, state)
			results[idx] = branchResult{branch: b, text: text, err: err}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// lookup executes a single branch against its source. Each branch receives
// only the inputs it needs: the memory branch the session's user, the
// context branch the normalized query.
func (e *Engine) lookup(ctx context.Context, branch Branch, state *QueryState) (string, error) {
	switch branch {
	case BranchMemory:
		return e.memory.PastConversation(ctx, state.Session.UserID)
	case BranchContext:
		return e.documents.RelevantContext(ctx, state.NormalizedQuery)
	default:
		return "", fmt.Errorf("unknown branch %d", branch)
	}
}

// merge folds branch results into the state. Successful branches land in
// their own field, failed ones in Failures; the fields are disjoint, so the
// fold order does not matter.
func (e *Engine) merge(state *QueryState, results []branchResult) {
	for _, res := range results {
		if res.err != nil {
			state.Failures = append(state.Failures, BranchFailure{Branch: res.branch, Err: res.err})
			e.logger.Warn("run %s: %s lookup failed: %v", state.RunID, res.branch, res.err)
			continue
		}
		text := res.text
		switch res.branch {
		case BranchMemory:
			state.MemoryContext = &text
		case BranchContext:
			state.DocumentContext = &text
		}
	}
}
