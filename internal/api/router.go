package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/brokenphone/internal/api/middleware"
	"github.com/eldtechnologies/brokenphone/internal/chain"
	"github.com/eldtechnologies/brokenphone/internal/client"
	"github.com/eldtechnologies/brokenphone/internal/handlers"
	"github.com/eldtechnologies/brokenphone/internal/store"
)

const (
	defaultMaxBodyBytes = 1 << 20
	defaultPlayTimeout  = 30 * time.Second
)

// Options tunes the router.
type Options struct {
	// MaxBodyBytes caps request bodies. Defaults to 1MB.
	MaxBodyBytes int64

	// PlayTimeout is the longest a request may block and sizes the latency
	// histogram. Defaults to 30s.
	PlayTimeout time.Duration

	// Redis enables rate limiting when set.
	Redis     *redis.Client
	RateLimit middleware.RateLimiterConfig
}

// NewRouter creates and configures the HTTP router. plays may be nil.
func NewRouter(logger zerolog.Logger, node *chain.Node, plays store.PlayStore, opts Options) *chi.Mux {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.PlayTimeout <= 0 {
		opts.PlayTimeout = defaultPlayTimeout
	}

	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics(opts.PlayTimeout))

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(opts.MaxBodyBytes))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	if opts.Redis != nil {
		limiter := middleware.NewRateLimiter(opts.Redis, logger, opts.RateLimit)
		r.Use(limiter.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", client.GameTimestampHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(node, plays, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/chain", h.Chain)
	r.Get("/chain/{id}", h.Member)
	r.Get("/plays", h.ListPlays)
	r.Get("/plays/{id}", h.GetPlay)

	// Protocol routes
	r.Post("/register-node", h.Register)
	r.Post("/unregister-node", h.Unregister)
	r.Post("/reconfigure", h.Reconfigure)
	r.Post("/relay", h.Relay)
	r.Post("/play", h.Play)

	return r
}
