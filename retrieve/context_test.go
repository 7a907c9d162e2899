package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"github.com/mukesh145/pdf-knowledge-assistant/log"
)

type fakeSearcher struct {
	docs []schema.Document
	err  error

	lastQuery string
	lastK     int
}

func (f *fakeSearcher) SimilaritySearch(_ context.Context, query string, numDocuments int, _ ...vectorstores.Option) ([]schema.Document, error) {
	f.lastQuery = query
	f.lastK = numDocuments
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

func TestRelevantContext(t *testing.T) {
	searcher := &fakeSearcher{docs: []schema.Document{
		{PageContent: "Refunds are processed within 14 days."},
		{PageContent: "Contact support to start a refund."},
	}}
	retriever := NewDocumentRetriever(searcher, WithRetrieverLogger(&log.NoOpLogger{}))

	got, err := retriever.RelevantContext(context.Background(), "what is the refund policy?")
	require.NoError(t, err)

	want := "Refunds are processed within 14 days.\n\nContact support to start a refund."
	assert.Equal(t, want, got)

	assert.Equal(t, "what is the refund policy?", searcher.lastQuery)
	assert.Equal(t, DefaultTopK, searcher.lastK)
}

func TestRelevantContext_NoMatches(t *testing.T) {
	retriever := NewDocumentRetriever(&fakeSearcher{}, WithRetrieverLogger(&log.NoOpLogger{}))

	got, err := retriever.RelevantContext(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestRelevantContext_SkipsBlankPassages(t *testing.T) {
	searcher := &fakeSearcher{docs: []schema.Document{
		{PageContent: "  \n"},
		{PageContent: "useful passage"},
		{PageContent: ""},
	}}
	retriever := NewDocumentRetriever(searcher, WithRetrieverLogger(&log.NoOpLogger{}))

	got, err := retriever.RelevantContext(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, "useful passage", got)
}

func TestRelevantContext_TopKOption(t *testing.T) {
	searcher := &fakeSearcher{}
	retriever := NewDocumentRetriever(searcher, WithTopK(8), WithRetrieverLogger(&log.NoOpLogger{}))

	_, err := retriever.RelevantContext(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, 8, searcher.lastK)
}

func TestRelevantContext_SearchError(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("index unavailable")}
	retriever := NewDocumentRetriever(searcher, WithRetrieverLogger(&log.NoOpLogger{}))

	_, err := retriever.RelevantContext(context.Background(), "query")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "similarity search failed")
}
