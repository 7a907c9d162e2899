package retrieve

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"github.com/mukesh145/pdf-knowledge-assistant/log"
	"github.com/mukesh145/pdf-knowledge-assistant/workflow"
)

// DefaultTopK is how many passages the context branch retrieves per query.
const DefaultTopK = 5

// Searcher is the single vector-store call the context branch needs.
// vectorstores.VectorStore satisfies it.
type Searcher interface {
	SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error)
}

// DocumentRetriever is the context branch: it runs a similarity search
// against the knowledge base and joins the matching passages into a single
// context block.
type DocumentRetriever struct {
	searcher Searcher
	topK     int
	logger   log.Logger
}

var _ workflow.ContextSource = (*DocumentRetriever)(nil)

// RetrieverOption configures a DocumentRetriever.
type RetrieverOption func(*DocumentRetriever)

// WithTopK overrides how many passages are retrieved.
func WithTopK(k int) RetrieverOption {
	return func(r *DocumentRetriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithRetrieverLogger overrides the package default logger.
func WithRetrieverLogger(logger log.Logger) RetrieverOption {
	return func(r *DocumentRetriever) {
		r.logger = logger
	}
}

// NewDocumentRetriever creates the context branch on the given searcher.
func NewDocumentRetriever(searcher Searcher, opts ...RetrieverOption) *DocumentRetriever {
	r := &DocumentRetriever{
		searcher: searcher,
		topK:     DefaultTopK,
		logger:   log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RelevantContext returns the top-K passages matching the query, joined by
// blank lines. A query with no matches yields an empty string, which is a
// valid result, not an error.
func (r *DocumentRetriever) RelevantContext(ctx context.Context, query string) (string, error) {
	docs, err := r.searcher.SimilaritySearch(ctx, query, r.topK)
	if err != nil {
		return "", fmt.Errorf("similarity search failed: %w", err)
	}
	r.logger.Debug("retrieved %d passage(s) for query", len(docs))

	passages := make([]string, 0, len(docs))
	for _, doc := range docs {
		text := strings.TrimSpace(doc.PageContent)
		if text == "" {
			continue
		}
		passages = append(passages, text)
	}
	return strings.Join(passages, "\n\n"), nil
}
