package retrieve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukesh145/pdf-knowledge-assistant/history"
	"github.com/mukesh145/pdf-knowledge-assistant/log"
)

type fakeTurnSource struct {
	turns []history.Turn
	err   error

	lastUser  int64
	lastLimit int
	calls     int
}

func (f *fakeTurnSource) RecentTurns(_ context.Context, userID int64, limit int) ([]history.Turn, error) {
	f.calls++
	f.lastUser = userID
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.turns, nil
}

type fakeTurnCache struct {
	turns  []history.Turn
	hit    bool
	getErr error
	setErr error

	stored []history.Turn
}

func (f *fakeTurnCache) RecentTurns(_ context.Context, _ int64) ([]history.Turn, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	return f.turns, f.hit, nil
}

func (f *fakeTurnCache) StoreTurns(_ context.Context, _ int64, turns []history.Turn) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.stored = turns
	return nil
}

func TestPastConversation_Format(t *testing.T) {
	now := time.Now()
	source := &fakeTurnSource{turns: []history.Turn{
		{UserID: 42, Query: "and in production?", Response: "Use the postgres backend.", CreatedAt: now},
		{UserID: 42, Query: "how do I run it locally?", Response: "Use the sqlite backend.", CreatedAt: now.Add(-time.Minute)},
	}}

	mem := NewConversationMemory(source, WithMemoryLogger(&log.NoOpLogger{}))

	got, err := mem.PastConversation(context.Background(), 42)
	require.NoError(t, err)

	want := "User: and in production?\nAssistant: Use the postgres backend.\n\n" +
		"User: how do I run it locally?\nAssistant: Use the sqlite backend."
	assert.Equal(t, want, got)

	assert.Equal(t, int64(42), source.lastUser)
	assert.Equal(t, DefaultMemoryTurns, source.lastLimit)
}

func TestPastConversation_NoHistory(t *testing.T) {
	mem := NewConversationMemory(&fakeTurnSource{}, WithMemoryLogger(&log.NoOpLogger{}))

	got, err := mem.PastConversation(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestPastConversation_SourceError(t *testing.T) {
	source := &fakeTurnSource{err: errors.New("connection refused")}
	mem := NewConversationMemory(source, WithMemoryLogger(&log.NoOpLogger{}))

	_, err := mem.PastConversation(context.Background(), 42)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fetching past conversations")
}

func TestPastConversation_TurnsOption(t *testing.T) {
	source := &fakeTurnSource{}
	mem := NewConversationMemory(source, WithTurns(5), WithMemoryLogger(&log.NoOpLogger{}))

	_, err := mem.PastConversation(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 5, source.lastLimit)
}

func TestPastConversation_CacheHitSkipsSource(t *testing.T) {
	source := &fakeTurnSource{}
	cache := &fakeTurnCache{
		hit:   true,
		turns: []history.Turn{{UserID: 42, Query: "cached q", Response: "cached a"}},
	}
	mem := NewConversationMemory(source, WithCache(cache), WithMemoryLogger(&log.NoOpLogger{}))

	got, err := mem.PastConversation(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "User: cached q\nAssistant: cached a", got)
	assert.Zero(t, source.calls)
}

func TestPastConversation_CacheMissFillsCache(t *testing.T) {
	source := &fakeTurnSource{turns: []history.Turn{{UserID: 42, Query: "q", Response: "a"}}}
	cache := &fakeTurnCache{}
	mem := NewConversationMemory(source, WithCache(cache), WithMemoryLogger(&log.NoOpLogger{}))

	_, err := mem.PastConversation(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, source.turns, cache.stored)
}

func TestPastConversation_CacheErrorsAreNonFatal(t *testing.T) {
	source := &fakeTurnSource{turns: []history.Turn{{UserID: 42, Query: "q", Response: "a"}}}
	cache := &fakeTurnCache{getErr: errors.New("redis down"), setErr: errors.New("redis down")}
	mem := NewConversationMemory(source, WithCache(cache), WithMemoryLogger(&log.NoOpLogger{}))

	got, err := mem.PastConversation(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "User: q\nAssistant: a", got)
	assert.Equal(t, 1, source.calls)
}
