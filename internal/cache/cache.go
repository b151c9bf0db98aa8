// Package cache stores computed views under a key with per-view fields,
// so every view derived from one exam can be dropped with a single call.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// Get decodes the cached value into dst. It reports false on a miss.
	Get(ctx context.Context, key, field string, dst any) (bool, error)
	Set(ctx context.Context, key, field string, value any, ttl time.Duration) error
	// Invalidate drops every field stored under key.
	Invalidate(ctx context.Context, key string) error
	// InvalidatePrefix drops every key starting with prefix.
	InvalidatePrefix(ctx context.Context, prefix string) error
	// Generation reports how many times key has been invalidated. Read it
	// before computing a value and store with SetIfGeneration.
	Generation(ctx context.Context, key string) (int64, error)
	// SetIfGeneration stores value only while key is still at gen. It
	// reports false when an invalidation happened in between.
	SetIfGeneration(ctx context.Context, key, field string, gen int64, value any, ttl time.Duration) (bool, error)
}

const matrixPrefix = "matrix:"

// MatrixKey is the cache key holding every class view of one exam's results.
func MatrixKey(examID string) string {
	return matrixPrefix + examID
}

// MatrixPrefix matches every cached results matrix.
func MatrixPrefix() string {
	return matrixPrefix
}
