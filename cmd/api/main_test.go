package main

import (
	"context"
	"testing"
	"time"

	"github.com/school-system/portal/internal/cache"
	"github.com/school-system/portal/internal/config"
	"github.com/school-system/portal/internal/repository/inmem"
	"github.com/school-system/portal/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSeedBoundaries_DropsCachedMatrices(t *testing.T) {
	ctx := context.Background()
	repo := inmem.New()
	c := cache.NewMemory()
	key := cache.MatrixKey("exam-1")
	require.NoError(t, c.Set(ctx, key, "Form 4", map[string]int{"total": 65}, time.Minute))

	n, err := seedBoundaries(ctx, repo, c, zap.NewNop(), "Form 4")
	require.NoError(t, err)
	assert.Equal(t, len(services.DefaultMarkScale), n)

	var got map[string]int
	hit, err := c.Get(ctx, key, "Form 4", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	_, err = seedBoundaries(ctx, repo, c, zap.NewNop(), "Form 4")
	assert.ErrorIs(t, err, services.ErrBoundariesExist)
}

func TestNewCache(t *testing.T) {
	cfg := &config.Config{}
	assert.IsType(t, &cache.MemoryCache{}, newCache(cfg, zap.NewNop()))

	cfg.Redis = config.RedisConfig{Enabled: true, Addr: "127.0.0.1:1"}
	assert.IsType(t, &cache.RedisCache{}, newCache(cfg, zap.NewNop()))
}
