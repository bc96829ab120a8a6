package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spacedog/spacedog/internal/cache"
	"github.com/spacedog/spacedog/internal/config"
	"github.com/spacedog/spacedog/internal/game"
	"github.com/spacedog/spacedog/internal/leaderboard"
	"github.com/spacedog/spacedog/internal/score"
	"github.com/spacedog/spacedog/internal/server"
	"github.com/spacedog/spacedog/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Profile data and the HTTP leaderboard live in Redis when configured,
	// otherwise in process memory.
	var (
		rdb   *redis.Client
		kv    score.KV = score.NewMemoryKV()
		board leaderboard.Board
	)
	if cfg.RedisEnabled() {
		rdb, err = cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Error("connect redis", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()

		kv = cache.NewKV(rdb, "profiles")
		rb := leaderboard.NewRedisBoard(rdb, cfg.LeaderboardMax)
		if err := rb.SeedIfEmpty(ctx, leaderboard.Seed); err != nil {
			logger.Error("seed leaderboard", "err", err)
			os.Exit(1)
		}
		board = rb
	} else {
		logger.Warn("REDIS_ADDR not set, profiles and leaderboard are in memory")
		board = leaderboard.NewMemoryBoard(cfg.LeaderboardMax, leaderboard.Seed)
	}

	// The global store is optional; without it the game runs local-only.
	var global score.GlobalStore
	if cfg.GlobalEnabled() {
		db, err := store.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect db", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		scoreStore := store.NewScoreStore(db)
		migrateCtx, migrateCancel := context.WithTimeout(ctx, cfg.GlobalProbeTimeout)
		if err := scoreStore.Migrate(migrateCtx); err != nil {
			// Unreachable at boot is not fatal; the probe re-enables it later.
			logger.Warn("migrate global store", "err", err)
		}
		migrateCancel()
		global = scoreStore
	}

	scores := score.NewService(kv, global, logger, score.Options{
		Limit:        cfg.LeaderboardMax,
		ReadTimeout:  cfg.GlobalReadTimeout,
		ProbeTimeout: cfg.GlobalProbeTimeout,
	})
	if scores.GlobalConfigured() {
		scores.Probe(ctx)
		go runProbe(ctx, scores, cfg.GlobalProbeInterval)
	}

	metrics := server.NewMetrics()

	// Wire engine and hub (circular dependency resolved via SetHub)
	engine := game.NewEngine(scores, nil, metrics, logger, game.Options{FrameInterval: cfg.FrameInterval})
	hub := server.NewHub(engine, metrics, cfg.WSReadLimit, cfg.WSPingInterval, logger)
	engine.SetHub(hub)

	srv := server.New(cfg, scores, board, hub, metrics, logger)
	if rdb != nil {
		srv.AddHealthCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	limiter := server.NewRateLimiter(30, 60)
	go limiter.RunCleanup(ctx, 5*time.Minute)

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.HandlerWithLimiter(limiter),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.HTTPAddr, "env", cfg.Env, "global", scores.GlobalConfigured())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

// runProbe re-checks global store connectivity until ctx is done.
func runProbe(ctx context.Context, scores *score.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			scores.Probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}
