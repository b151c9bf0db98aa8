package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type view struct {
	Class string
	Total int
}

func exercise(t *testing.T, c Cache) {
	ctx := context.Background()
	key := MatrixKey("exam-1")

	var got view
	hit, err := c.Get(ctx, key, "Form 4", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, key, "Form 4", view{Class: "Form 4", Total: 65}, time.Minute))
	require.NoError(t, c.Set(ctx, key, "Form 3", view{Class: "Form 3", Total: 40}, time.Minute))
	require.NoError(t, c.Set(ctx, MatrixKey("exam-2"), "Form 4", view{Class: "Form 4", Total: 1}, time.Minute))

	hit, err = c.Get(ctx, key, "Form 4", &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, view{Class: "Form 4", Total: 65}, got)

	require.NoError(t, c.Invalidate(ctx, key))
	for _, field := range []string{"Form 4", "Form 3"} {
		hit, err = c.Get(ctx, key, field, &got)
		require.NoError(t, err)
		assert.False(t, hit, "field %s should be gone", field)
	}
	hit, err = c.Get(ctx, MatrixKey("exam-2"), "Form 4", &got)
	require.NoError(t, err)
	assert.True(t, hit, "other exams are untouched")

	require.NoError(t, c.InvalidatePrefix(ctx, MatrixPrefix()))
	hit, err = c.Get(ctx, MatrixKey("exam-2"), "Form 4", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

// exerciseGenerations checks that a value computed before an invalidation
// is never stored after it.
func exerciseGenerations(t *testing.T, c Cache) {
	ctx := context.Background()
	key := MatrixKey("exam-gen")

	gen, err := c.Generation(ctx, key)
	require.NoError(t, err)
	stored, err := c.SetIfGeneration(ctx, key, "Form 4", gen, view{Total: 1}, time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)

	gen, err = c.Generation(ctx, key)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, key))
	stored, err = c.SetIfGeneration(ctx, key, "Form 4", gen, view{Total: 2}, time.Minute)
	require.NoError(t, err)
	assert.False(t, stored, "invalidated while computing")

	var got view
	hit, err := c.Get(ctx, key, "Form 4", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	// A key never stored still moves on a prefix invalidation
	fresh := MatrixKey("exam-new")
	gen, err = c.Generation(ctx, fresh)
	require.NoError(t, err)
	require.NoError(t, c.InvalidatePrefix(ctx, MatrixPrefix()))
	stored, err = c.SetIfGeneration(ctx, fresh, "Form 4", gen, view{Total: 3}, time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)

	gen, err = c.Generation(ctx, fresh)
	require.NoError(t, err)
	stored, err = c.SetIfGeneration(ctx, fresh, "Form 4", gen, view{Total: 4}, time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)
	hit, err = c.Get(ctx, fresh, "Form 4", &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 4, got.Total)
}

func TestMemoryCache(t *testing.T) {
	exercise(t, NewMemory())
	exerciseGenerations(t, NewMemory())
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemory()
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "f", 1, time.Minute))

	var v int
	hit, _ := c.Get(ctx, "k", "f", &v)
	assert.True(t, hit)

	now = now.Add(2 * time.Minute)
	hit, _ = c.Get(ctx, "k", "f", &v)
	assert.False(t, hit)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("PORTAL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PORTAL_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	exercise(t, NewRedis(client))
	exerciseGenerations(t, NewRedis(client))
}
