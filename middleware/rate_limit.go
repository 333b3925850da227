package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/upb/tier-router/internal/observability"
	"github.com/upb/tier-router/utils"
)

// RateLimitConfig sizes the per-caller token buckets.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	IdleTTL           time.Duration // buckets unused for this long are dropped
}

type caller struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles callers by token subject, or by client IP when the
// request is unauthenticated.
type RateLimiter struct {
	cfg    RateLimitConfig
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	callers map[string]*caller
}

// NewRateLimiter creates a RateLimiter. Call StartCleanupWorker to evict idle callers.
func NewRateLimiter(cfg RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 3 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		callers: make(map[string]*caller),
	}
}

// Limit rejects requests over the caller's budget with 429 and a Retry-After hint.
func (l *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := callerKey(r)
		now := l.now()

		res := l.limiterFor(key, now).ReserveN(now, 1)
		if delay := res.DelayFrom(now); delay > 0 {
			res.CancelAt(now)
			retryAfter := int(math.Ceil(delay.Seconds()))
			observability.WithRequest(r.Context(), l.logger).Warn("rate limit exceeded",
				zap.String("caller", key),
				zap.Duration("retry_after", delay))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			_ = utils.WriteError(w, http.StatusTooManyRequests, "Rate limit exceeded", map[string]interface{}{
				"retryAfterSeconds": retryAfter,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.callers[key]
	if !ok {
		c = &caller{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.callers[key] = c
	}
	c.lastSeen = now
	return c.limiter
}

// Evict drops callers idle for longer than IdleTTL and returns how many were removed.
func (l *RateLimiter) Evict() int {
	cutoff := l.now().Add(-l.cfg.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, c := range l.callers {
		if c.lastSeen.Before(cutoff) {
			delete(l.callers, key)
			removed++
		}
	}
	return removed
}

// Callers returns the number of tracked callers.
func (l *RateLimiter) Callers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.callers)
}

// StartCleanupWorker evicts idle callers every interval until ctx is cancelled.
func (l *RateLimiter) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := l.Evict(); n > 0 {
					l.logger.Debug("evicted idle rate limit callers", zap.Int("count", n))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// callerKey prefers the authenticated subject. RealIP has already rewritten RemoteAddr.
func callerKey(r *http.Request) string {
	if claims := GetClaimsFromContext(r.Context()); claims != nil && claims.Sub != "" {
		return "sub:" + claims.Sub
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
