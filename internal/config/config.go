package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/eldtechnologies/brokenphone/internal/models"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Node identity
	NodeName string
	NodeHost string
	NodeUUID string // generated when empty
	NodeSalt string // registration credential, generated when empty
	HashSalt string // signature hashing salt, generated when empty

	// Chain membership. A node with RegisterHost set joins the chain kept by
	// that origin at startup.
	RegisterHost string
	RegisterPort int

	// Timeouts
	PlayTimeout    time.Duration
	ForwardTimeout time.Duration

	HashAlgorithm string
	MaxBodyBytes  int64

	// Play archive, first configured wins: Redis, Postgres, SQLite
	RedisURL    string
	DatabaseURL string
	SQLitePath  string

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// It panics on malformed values and, in production, on missing required ones.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	port := getEnv("PORT", "8080")
	cfg := &Config{
		Port:             port,
		Env:              getEnv("ENV", "development"),
		NodeName:         getEnv("NODE_NAME", "node-"+port),
		NodeHost:         getEnv("NODE_HOST", "localhost"),
		NodeUUID:         os.Getenv("NODE_UUID"),
		NodeSalt:         os.Getenv("NODE_SALT"),
		HashSalt:         os.Getenv("HASH_SALT"),
		RegisterHost:     os.Getenv("REGISTER_HOST"),
		RegisterPort:     getEnvInt("REGISTER_PORT", 8080),
		PlayTimeout:      time.Duration(getEnvInt("PLAY_TIMEOUT_MS", 30000)) * time.Millisecond,
		ForwardTimeout:   time.Duration(getEnvInt("FORWARD_TIMEOUT_MS", 10000)) * time.Millisecond,
		HashAlgorithm:    getEnv("HASH_ALGORITHM", "sha512"),
		MaxBodyBytes:     int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),
		RedisURL:         os.Getenv("REDIS_URL"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       os.Getenv("SQLITE_PATH"),
		AutoBlockEnabled: getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		panic("PORT must be an integer")
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	// In production, peers must be able to reach us by a real name
	if cfg.Env == "production" && os.Getenv("NODE_HOST") == "" {
		panic("NODE_HOST is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Self returns the address other nodes use to reach this one.
func (c *Config) Self() models.Address {
	port, _ := strconv.Atoi(c.Port)
	return models.Address{Host: c.NodeHost, Port: port}
}

// Upstream returns the origin to join at startup, if any.
func (c *Config) Upstream() (models.Address, bool) {
	if c.RegisterHost == "" {
		return models.Address{}, false
	}
	return models.Address{Host: c.RegisterHost, Port: c.RegisterPort}, true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		panic(fmt.Sprintf("%s must be a positive integer", key))
	}
	return n
}
