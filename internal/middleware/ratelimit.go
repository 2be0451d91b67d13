package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/cache"
)

// RateLimiter checks token buckets.
type RateLimiter interface {
	CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
	CheckIPRateLimit(ctx context.Context, scope, ip string, ratePerSecond, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter RateLimiter

	// UserEnabled turns on per-user buckets sized by role.
	UserEnabled bool

	// IPEnabled turns on per-address buckets for the public routes.
	IPEnabled bool
	IPRPS     int
	IPBurst   int
}

// bucket is what a limiter decided for one request. A nil *bucket means
// the request is not subject to limiting.
type bucket struct {
	result *cache.RateLimitResult
	limit  int // advertised in X-RateLimit-Limit; 0 hides the headers
	attrs  []any
}

type bucketCheck func(r *http.Request) (*bucket, error)

// RateLimitUser limits signed-in callers by role. Must be applied after Auth.
func RateLimitUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return cfg.enforce(cfg.UserEnabled, "user", func(r *http.Request) (*bucket, error) {
		caller := auth.AuthFromContext(r.Context())
		if caller == nil {
			return nil, nil
		}
		limits := caller.GetRateLimitConfig()
		if limits.RequestsPerMinute == 0 {
			return nil, nil
		}
		res, err := cfg.Limiter.CheckUserRateLimit(r.Context(), caller.UserID, limits.RequestsPerMinute, limits.Burst)
		if err != nil {
			return nil, err
		}
		return &bucket{
			result: res,
			limit:  limits.RequestsPerMinute,
			attrs:  []any{slog.String("user_id", caller.UserID)},
		}, nil
	})
}

// RateLimitIP limits requests per client address within scope, so login
// attempts and assistant calls draw on separate budgets.
func RateLimitIP(cfg RateLimitConfig, scope string) func(http.Handler) http.Handler {
	return cfg.enforce(cfg.IPEnabled, "ip", func(r *http.Request) (*bucket, error) {
		res, err := cfg.Limiter.CheckIPRateLimit(r.Context(), scope, ClientIP(r), cfg.IPRPS, cfg.IPBurst)
		if err != nil {
			return nil, err
		}
		return &bucket{result: res, attrs: []any{slog.String("scope", scope)}}, nil
	})
}

// enforce runs check for every request. Limiter errors let the request
// through: a Redis outage must not take the API down with it.
func (cfg RateLimitConfig) enforce(enabled bool, kind string, check bucketCheck) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, err := check(r)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("type", kind),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if b == nil {
				next.ServeHTTP(w, r)
				return
			}

			if b.limit > 0 {
				h := w.Header()
				h.Set("X-RateLimit-Limit", strconv.Itoa(b.limit))
				h.Set("X-RateLimit-Remaining", strconv.FormatInt(b.result.Remaining, 10))
				h.Set("X-RateLimit-Reset", strconv.FormatInt(b.result.ResetAt.Unix(), 10))
			}
			if b.result.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := retryAfterSeconds(b.result.RetryAfter)
			attrs := append([]any{
				slog.String("type", kind),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.Int("retry_after_seconds", retry),
				slog.String("request_id", GetRequestID(r.Context())),
			}, b.attrs...)
			cfg.Logger.Warn("rate limit exceeded", attrs...)

			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED",
				fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", retry))
		})
	}
}

// retryAfterSeconds rounds up, so a client never retries early.
func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}
