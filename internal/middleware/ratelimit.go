package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// WindowLimiter provides per-client rate limiting for the relay endpoint.
//
// Purpose:
// - Cap each client at a fixed number of requests per sliding window
// - Prevent a stolen or shared API key from hammering the mail provider
// - Track limits per composite key (client IP + presented API key)
//
// Implementation approach:
// - Token bucket (golang.org/x/time/rate) sized to the window budget:
//   burst equals the window cap, refill rate spreads the cap across the
//   window, which approximates a sliding 60-second window
// - Store limiters in memory (sync.Map for thread safety)
// - Periodically clean up idle limiters to prevent memory leaks
//
// The limiter is handed to the HTTP server as an explicit dependency; the
// handler fails open if bookkeeping ever errors, and fails closed when the
// budget is exhausted.
type WindowLimiter struct {
	limiters sync.Map // composite key -> *limiterEntry
	logger   *slog.Logger
	config   RateLimitConfig
	ctx      context.Context
	cancel   context.CancelFunc
}

// limiterEntry wraps a rate limiter with metadata for cleanup.
// lastAccess is stored as Unix timestamp (int64) for thread-safe atomic access.
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess atomic.Int64 // Unix timestamp in seconds
}

// RateLimitConfig holds configuration for the window limiter.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests admitted per window.
	RequestsPerWindow int

	// Window is the sliding interval the cap applies to.
	Window time.Duration

	// CleanupInterval is how often idle limiters are swept.
	CleanupInterval time.Duration

	// InactivityThreshold is how long a limiter may sit unused before
	// the sweep removes it.
	InactivityThreshold time.Duration
}

// DefaultRateLimitConfig returns the relay's default limits:
// 30 requests per 60-second window, hourly cleanup.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow:   30,
		Window:              60 * time.Second,
		CleanupInterval:     time.Hour,
		InactivityThreshold: time.Hour,
	}
}

// NewWindowLimiter creates a window limiter and starts its background
// cleanup goroutine. Call Shutdown during graceful shutdown.
func NewWindowLimiter(logger *slog.Logger, config RateLimitConfig) *WindowLimiter {
	ctx, cancel := context.WithCancel(context.Background())

	rl := &WindowLimiter{
		logger: logger,
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}

	go rl.cleanupOldLimiters()

	return rl
}

// Allow reports whether the client identified by key may proceed. The
// error return exists so callers can distinguish bookkeeping failures
// (fail open) from an exhausted budget (fail closed); the in-memory
// implementation never errors.
func (rl *WindowLimiter) Allow(key string) (bool, error) {
	return rl.getLimiter(key).Allow(), nil
}

// getLimiter returns the limiter for a composite key, creating it on first
// use. Creation is race-free via LoadOrStore.
func (rl *WindowLimiter) getLimiter(key string) *rate.Limiter {
	if entry, exists := rl.limiters.Load(key); exists {
		limEntry := entry.(*limiterEntry)
		limEntry.lastAccess.Store(time.Now().Unix())
		return limEntry.limiter
	}

	perSecond := float64(rl.config.RequestsPerWindow) / rl.config.Window.Seconds()
	limiter := rate.NewLimiter(rate.Limit(perSecond), rl.config.RequestsPerWindow)

	entry := &limiterEntry{
		limiter: limiter,
	}
	entry.lastAccess.Store(time.Now().Unix())
	actual, _ := rl.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry).limiter
}

// cleanupOldLimiters periodically removes limiters that have not been
// touched within the inactivity threshold. Runs until Shutdown.
func (rl *WindowLimiter) cleanupOldLimiters() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var removed int
			currentTime := time.Now().Unix()

			rl.limiters.Range(func(key, value interface{}) bool {
				entry := value.(*limiterEntry)
				lastAccess := entry.lastAccess.Load()
				if currentTime-lastAccess > int64(rl.config.InactivityThreshold.Seconds()) {
					rl.limiters.Delete(key)
					removed++
				}
				return true
			})

			if removed > 0 {
				rl.logger.Info("cleaned up old rate limiters",
					slog.Int("removed", removed))
			}
		case <-rl.ctx.Done():
			rl.logger.Debug("rate limiter cleanup goroutine stopping")
			return
		}
	}
}

// Shutdown stops the background cleanup goroutine.
func (rl *WindowLimiter) Shutdown() {
	if rl.cancel != nil {
		rl.cancel()
	}
}

// ClientIP resolves the client network address for rate-limit keying.
// Resolution order: first X-Forwarded-For hop, then X-Real-IP, then the
// transport-level peer address, then an "unknown" sentinel.
//
// The forwarded headers are trusted as presented; behind an untrusted edge
// they can be spoofed, which only lets an attacker shard their own budget.
func ClientIP(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(req.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	if req.RemoteAddr != "" {
		// The peer address carries a port, which varies per connection;
		// keying on it would give every TCP connection its own budget.
		if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
			return host
		}
		return req.RemoteAddr
	}
	return "unknown"
}

// CompositeKey builds the rate-limit key from the client address and the
// presented API key. Requests without a key share the "no-key" bucket.
func CompositeKey(clientIP, apiKey string) string {
	if apiKey == "" {
		apiKey = "no-key"
	}
	return clientIP + "-" + apiKey
}
