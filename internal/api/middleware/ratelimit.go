package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimit caps one route at Requests per Window for each client IP.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// routeLimits are keyed by "METHOD /path". Registration is keyed on the
// caller's address, never on the uuid it sends, since uuids are free to
// mint. Relays and reconfigures come from chain members mid-play and are
// never limited.
var routeLimits = map[string]RateLimit{
	"POST /register-node":   {Requests: 30, Window: time.Minute},
	"POST /unregister-node": {Requests: 30, Window: time.Minute},
	"POST /play":            {Requests: 60, Window: time.Minute},
}

const (
	violationLimit  = 10
	violationWindow = time.Hour
	blockDuration   = 24 * time.Hour
)

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Block IPs that keep hitting the limit
}

// RateLimiter implements fixed window rate limiting on Redis.
type RateLimiter struct {
	client    *redis.Client
	logger    zerolog.Logger
	whitelist Whitelist
	autoBlock bool
}

// NewRateLimiter creates a rate limiter. Malformed whitelist entries are
// logged and skipped.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	whitelist, rejected := ParseWhitelist(cfg.Whitelist)
	for _, entry := range rejected {
		logger.Warn().Str("entry", entry).Msg("invalid rate limit whitelist entry")
	}
	if whitelist.Len() > 0 {
		logger.Info().Int("entries", whitelist.Len()).Msg("rate limit whitelist configured")
	}

	return &RateLimiter{
		client:    client,
		logger:    logger,
		whitelist: whitelist,
		autoBlock: cfg.AutoBlockEnabled,
	}
}

// Middleware returns the rate limiting middleware. Routes without a limit
// and whitelisted clients never touch Redis. When Redis is unreachable the
// request is let through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, limit, ok := limitFor(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if rl.whitelist.Allows(ip) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		if rl.autoBlock && rl.blocked(ctx, ip) {
			rl.logger.Warn().Str("event", "blocked_request").Str("ip", ip).Str("route", route).Msg("blocked IP attempted request")
			rejectJSON(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		count, resetAt, err := rl.hit(ctx, limitKey(route, ip), limit.Window)
		if err != nil {
			rl.logger.Error().Err(err).Str("route", route).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(limit.Requests-count, 0)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if count > limit.Requests {
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())+1))
			rl.logger.Warn().
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("route", route).
				Int("count", count).
				Msg("rate limit exceeded")
			rl.recordViolation(ctx, ip)
			rejectJSON(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// hit counts one request in the current window of key and returns the
// count so far and when the window ends.
func (rl *RateLimiter) hit(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	start := windowStart(time.Now(), window)
	bucket := fmt.Sprintf("%s:%d", key, start.Unix())

	var incr *redis.IntCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, bucket)
		pipe.ExpireNX(ctx, bucket, window)
		return nil
	})
	if err != nil {
		return 0, time.Time{}, err
	}
	return int(incr.Val()), start.Add(window), nil
}

// recordViolation blocks ip once it has exceeded a limit violationLimit
// times within violationWindow.
func (rl *RateLimiter) recordViolation(ctx context.Context, ip string) {
	if !rl.autoBlock {
		return
	}

	key := "violations:ip:" + ip
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	rl.client.ExpireNX(ctx, key, violationWindow)

	if count >= violationLimit {
		rl.client.Set(ctx, blockKey(ip), "repeated rate limit violations", blockDuration)
		rl.logger.Warn().Str("event", "ip_auto_blocked").Str("ip", ip).Int64("violations", count).Msg("IP auto-blocked")
	}
}

func (rl *RateLimiter) blocked(ctx context.Context, ip string) bool {
	n, err := rl.client.Exists(ctx, blockKey(ip)).Result()
	return err == nil && n > 0
}

// limitFor returns the limited route r belongs to.
func limitFor(r *http.Request) (string, RateLimit, bool) {
	route := r.Method + " " + r.URL.Path
	limit, ok := routeLimits[route]
	return route, limit, ok
}

// limitKey scopes a counter to one route and one client, so plays do not
// eat into the registration budget.
func limitKey(route, ip string) string {
	return "ratelimit:" + strings.ReplaceAll(route, " ", ":") + ":" + ip
}

func blockKey(ip string) string {
	return "blocked:ip:" + ip
}

// windowStart truncates now to the start of its fixed window.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

// clientIP returns the caller's address without port. The chi RealIP
// middleware has already folded X-Forwarded-For and X-Real-IP into
// RemoteAddr by the time this runs.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func rejectJSON(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Whitelist matches client IPs exempt from rate limiting.
type Whitelist struct {
	prefixes []netip.Prefix
}

// ParseWhitelist accepts single IPs and CIDRs. Entries that are neither are
// returned in rejected.
func ParseWhitelist(entries []string) (w Whitelist, rejected []string) {
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				rejected = append(rejected, entry)
				continue
			}
			w.prefixes = append(w.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			rejected = append(rejected, entry)
			continue
		}
		addr = addr.Unmap()
		w.prefixes = append(w.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return w, rejected
}

// Allows reports whether ip is whitelisted.
func (w Whitelist) Allows(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range w.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Len returns the number of whitelist entries.
func (w Whitelist) Len() int {
	return len(w.prefixes)
}
