package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/school-system/portal/internal/cache"
	"github.com/school-system/portal/internal/config"
	"github.com/school-system/portal/internal/database"
	"github.com/school-system/portal/internal/logging"
	"github.com/school-system/portal/internal/repository/gormrepo"
	"go.uber.org/zap"
)

// cleanup removes marks whose student or exam no longer exists and drops
// every cached results matrix so the next read is rebuilt from the store.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}
	log := logging.Must(cfg.Server.Env)
	defer log.Sync()

	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	ctx := context.Background()
	n, err := gormrepo.New(db).DeleteOrphanMarks(ctx)
	if err != nil {
		log.Fatal("Failed to delete orphan marks", zap.Error(err))
	}
	log.Info("Deleted orphan marks", zap.Int64("rows", n))

	if n == 0 || !cfg.Redis.Enabled {
		return
	}
	rc := cache.NewRedis(redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}))
	if err := rc.InvalidatePrefix(ctx, cache.MatrixPrefix()); err != nil {
		log.Warn("Failed to drop cached matrices", zap.Error(err))
		return
	}
	log.Info("Dropped cached matrices")
}
