package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/brokenphone/internal/api"
	"github.com/eldtechnologies/brokenphone/internal/api/middleware"
	"github.com/eldtechnologies/brokenphone/internal/chain"
	"github.com/eldtechnologies/brokenphone/internal/client"
	"github.com/eldtechnologies/brokenphone/internal/config"
	"github.com/eldtechnologies/brokenphone/internal/crypto"
	"github.com/eldtechnologies/brokenphone/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// The hashing salt never leaves this process; NODE_SALT is only the
	// registration credential and travels to the origin.
	hashSalt := cfg.HashSalt
	if hashSalt == "" {
		var err error
		if hashSalt, err = crypto.NewSalt(); err != nil {
			logger.Fatal().Err(err).Msg("salt generation failed")
		}
	}
	hasher, err := crypto.NewHasher(hashSalt, cfg.HashAlgorithm)
	if err != nil {
		logger.Fatal().Err(err).Str("algorithm", cfg.HashAlgorithm).Msg("invalid hasher configuration")
	}

	peer := client.New(cfg.PlayTimeout)
	node, err := chain.NewNode(chain.Config{
		Name:           cfg.NodeName,
		Self:           cfg.Self(),
		UUID:           cfg.NodeUUID,
		Salt:           cfg.NodeSalt,
		PlayTimeout:    cfg.PlayTimeout,
		ForwardTimeout: cfg.ForwardTimeout,
	}, hasher, peer, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid node configuration")
	}

	// Play archive and rate limiter backends
	plays, redisClient := openArchive(ctx, cfg, logger)
	if plays != nil {
		defer plays.Close()
	}

	router := api.NewRouter(logger, node, plays, api.Options{
		MaxBodyBytes: cfg.MaxBodyBytes,
		PlayTimeout:  cfg.PlayTimeout,
		Redis:        redisClient,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
	})

	// Plays block for up to PlayTimeout, so the write deadline must outlast it
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.PlayTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("node", cfg.NodeName).
			Str("uuid", node.ID().String()).
			Str("hash", hasher.Algorithm()).
			Msg("starting brokenphone node")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	if upstream, ok := cfg.Upstream(); ok {
		joinCtx, cancel := context.WithTimeout(ctx, cfg.ForwardTimeout)
		_, err := node.JoinChain(joinCtx, upstream)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("upstream", upstream.String()).Msg("failed to join chain")
		}
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := node.LeaveChain(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to leave chain")
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

// openArchive connects the first configured play archive. Redis also backs
// the rate limiter, so its client is returned alongside the store.
func openArchive(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.PlayStore, *redis.Client) {
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		logger.Info().Msg("connected to Redis")
		return redisStore, redisStore.Client()
	}

	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		logger.Info().Msg("connected to PostgreSQL")
		return pgStore, nil
	}

	if cfg.SQLitePath != "" {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite archive")
		return sqliteStore, nil
	}

	logger.Info().Msg("no play archive configured")
	return nil, nil
}
