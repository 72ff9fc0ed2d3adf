package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/encorelive/encore/internal/broadcast"
	"github.com/encorelive/encore/internal/cache"
	"github.com/encorelive/encore/internal/config"
	"github.com/encorelive/encore/internal/logging"
	"github.com/encorelive/encore/internal/postgres"
	"github.com/encorelive/encore/internal/ratelimit"
	"github.com/encorelive/encore/internal/redisx"
	"github.com/encorelive/encore/internal/server"
	"github.com/encorelive/encore/internal/trending"
	"github.com/encorelive/encore/internal/voting"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := redisx.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, broadcaster *broadcast.Broadcaster, relay *broadcast.Relay, stopScorer func()) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopScorer()
		broadcaster.Stop()
		relay.Close()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(context.Background(), cfg)
	defer func() { _ = redisClient.Close() }()

	voteStore := postgres.NewVoteStore(pool)
	setlistRepo := postgres.NewSetlistRepository(pool)
	trendingRepo := postgres.NewTrendingRepository(pool)

	limiter := ratelimit.New(clock, ratelimit.DefaultWindow, ratelimit.DefaultLimit)
	stopEviction := limiter.StartEvictionTimer(1 * time.Minute)
	defer stopEviction()

	showCache := cache.NewShowSongCache(redisClient, setlistRepo)
	publisher := broadcast.NewPublisher(redisClient)

	votingSvc := voting.NewService(limiter, voteStore, showCache, publisher, clock)

	// Each instance fans vote updates out to its own websocket clients; the
	// Redis relay carries updates published by any instance.
	var relay *broadcast.Relay
	onFirstClient := func(showID uuid.UUID) { relay.Subscribe(showID) }
	onShowEmpty := func(showID uuid.UUID) { relay.Unsubscribe(showID) }
	broadcaster := broadcast.NewBroadcaster(onFirstClient, onShowEmpty, clock, cfg.WSMaxClientsPerShow)
	relay = broadcast.NewRelay(context.Background(), redisClient, broadcaster)

	instanceID := uuid.NewString()
	leaderTTL := cfg.TrendingInterval
	if leaderTTL == 0 {
		leaderTTL = time.Hour
	}
	leader := trending.NewLeaderElection(redisClient, instanceID, leaderTTL)
	scorer := trending.NewScorer(trendingRepo, leader, clock)

	scorerCtx, cancelScorer := context.WithCancel(context.Background())
	if cfg.TrendingInterval > 0 {
		go scorer.Run(scorerCtx, cfg.TrendingInterval)
	}
	stopScorer := func() {
		cancelScorer()
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := leader.ReleaseLease(releaseCtx); err != nil {
			slog.Error("Failed to release trending leader lease", "error", err)
		}
	}

	srv := server.NewServer(cfg, votingSvc, showCache, trendingRepo, scorer, setlistRepo, broadcaster, pool, redisClient)

	done := runGracefulShutdown(srv, broadcaster, relay, stopScorer)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
