package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/logging"
	"github.com/spacedog/spacedog/internal/cache"
	"github.com/spacedog/spacedog/internal/config"
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

	var kv score.KV = score.NewMemoryKV()
	if cfg.RedisEnabled() {
		rdb, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Error("connect redis", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		kv = cache.NewKV(rdb, "profiles")
	}

	var global score.GlobalStore
	if cfg.GlobalEnabled() {
		db, err := store.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect db", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		global = store.NewScoreStore(db)
	}

	scores := score.NewService(kv, global, logger, score.Options{
		Limit:        cfg.LeaderboardMax,
		ReadTimeout:  cfg.GlobalReadTimeout,
		ProbeTimeout: cfg.GlobalProbeTimeout,
	})
	scores.Probe(ctx)

	opts := []ssh.Option{
		wish.WithAddress(cfg.SSHAddr),
		wish.WithMiddleware(
			standingsMiddleware(scores, logger),
			logging.Middleware(),
		),
	}
	if cfg.SSHHostKey != "" {
		opts = append(opts, wish.WithHostKeyPath(cfg.SSHHostKey))
	}

	s, err := wish.NewServer(opts...)
	if err != nil {
		logger.Error("create ssh server", "err", err)
		os.Exit(1)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("ssh server starting", "addr", cfg.SSHAddr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			logger.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	if err := s.Shutdown(shutCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

// standingsMiddleware prints the leaderboard for the profile named by the
// SSH user, falling back to that profile's local scores when the global
// store is unavailable.
func standingsMiddleware(scores *score.Service, logger *slog.Logger) wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			profile := sess.User()
			if !server.ValidProfile(profile) {
				wish.Fatalln(sess, "Unknown profile. Connect as ssh <profile>@host")
				return
			}

			st, err := scores.Standings(sess.Context(), profile)
			if err != nil {
				logger.Error("read standings", "profile", profile, "err", err)
				wish.Fatalln(sess, "Could not load leaderboard")
				return
			}
			writeStandings(sess, profile, st)
			next(sess)
		}
	}
}

func writeStandings(w io.Writer, profile string, st score.Standings) {
	title := "GLOBAL LEADERBOARD"
	if st.Source == score.SourceLocal {
		title = "LOCAL LEADERBOARD"
	}
	fmt.Fprintf(w, "\r\n  %s  (%s)\r\n", title, profile)
	fmt.Fprintln(w, "  ─────────────────────────────────────────\r")
	if st.Err != nil {
		fmt.Fprintln(w, "  Global leaderboard unavailable, showing local scores\r")
	}
	if len(st.Entries) == 0 {
		fmt.Fprintln(w, "  No scores yet\r")
	}
	for i, e := range st.Entries {
		date := e.Date
		if t, err := time.Parse(time.RFC3339, e.Date); err == nil {
			date = t.Format("2006-01-02")
		}
		fmt.Fprintf(w, "  %2d. %-15s %8d  %s\r\n", i+1, e.Name, e.Score, date)
	}
	fmt.Fprintln(w, "\r")
}
