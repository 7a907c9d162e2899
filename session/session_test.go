package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"

	"github.com/mukesh145/pdf-knowledge-assistant/history"
)

func TestCache_RoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	defer mr.Close()

	cache := NewCache(Options{Addr: mr.Addr()})
	defer cache.Close()

	ctx := context.Background()

	// Miss before anything is stored.
	turns, ok, err := cache.RecentTurns(ctx, 42)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, turns)

	stored := []history.Turn{
		{UserID: 42, Query: "what changed in v2?", Response: "The auth flow.", CreatedAt: time.Now().UTC()},
		{UserID: 42, Query: "hello", Response: "hi", CreatedAt: time.Now().UTC().Add(-time.Minute)},
	}
	err = cache.StoreTurns(ctx, 42, stored)
	assert.NoError(t, err)

	turns, ok, err = cache.RecentTurns(ctx, 42)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, turns, 2)
	assert.Equal(t, "what changed in v2?", turns[0].Query)
	assert.Equal(t, "The auth flow.", turns[0].Response)

	// Another user's cache is untouched.
	_, ok, err = cache.RecentTurns(ctx, 7)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_Invalidate(t *testing.T) {
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	defer mr.Close()

	cache := NewCache(Options{Addr: mr.Addr()})
	defer cache.Close()

	ctx := context.Background()

	err = cache.StoreTurns(ctx, 42, []history.Turn{{UserID: 42, Query: "q", Response: "a"}})
	assert.NoError(t, err)

	err = cache.Invalidate(ctx, 42)
	assert.NoError(t, err)

	_, ok, err := cache.RecentTurns(ctx, 42)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_TTLExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	defer mr.Close()

	cache := NewCache(Options{Addr: mr.Addr(), TTL: time.Second})
	defer cache.Close()

	ctx := context.Background()

	err = cache.StoreTurns(ctx, 42, []history.Turn{{UserID: 42, Query: "q", Response: "a"}})
	assert.NoError(t, err)

	// miniredis advances TTLs manually.
	mr.FastForward(2 * time.Second)

	_, ok, err := cache.RecentTurns(ctx, 42)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_DistinctPrefixes(t *testing.T) {
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	defer mr.Close()

	a := NewCache(Options{Addr: mr.Addr(), Prefix: "a:"})
	defer a.Close()
	b := NewCache(Options{Addr: mr.Addr(), Prefix: "b:"})
	defer b.Close()

	ctx := context.Background()

	err = a.StoreTurns(ctx, 1, []history.Turn{{UserID: 1, Query: "q", Response: "a"}})
	assert.NoError(t, err)

	_, ok, err := b.RecentTurns(ctx, 1)
	assert.NoError(t, err)
	assert.False(t, ok)
}
