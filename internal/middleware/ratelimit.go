package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/taskboard/taskboard/internal/auth"
	"github.com/taskboard/taskboard/internal/cache"
	"github.com/taskboard/taskboard/internal/metrics"
	"github.com/taskboard/taskboard/internal/model"
)

// Limiter consumes rate limit tokens.
type Limiter interface {
	CheckCallerRateLimit(ctx context.Context, keyID string, userID int64, ratePerMinute, burst int) (*cache.RateLimitResult, error)
	CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter Limiter
	Metrics metrics.Recorder
	Enabled bool
	// Anonymous callers are limited per client address.
	AnonRPS   int
	AnonBurst int
}

// RateLimit limits authenticated callers by their key's tier and
// anonymous callers by address. It must run after Authenticate.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			var (
				result *cache.RateLimitResult
				err    error
				limit  int
				attrs  []any
			)

			if authCtx := auth.AuthFromContext(r.Context()); authCtx != nil {
				tier := model.TierConfig(authCtx.RateLimitTier)
				if tier.RequestsPerMinute == 0 {
					next.ServeHTTP(w, r)
					return
				}
				limit = tier.RequestsPerMinute
				attrs = []any{slog.String("type", "caller"), slog.String("key_id", authCtx.KeyID), slog.Int64("user_id", authCtx.UserID)}
				result, err = cfg.Limiter.CheckCallerRateLimit(r.Context(), authCtx.KeyID, authCtx.UserID, tier.RequestsPerMinute, tier.Burst)
			} else {
				ip := clientIP(r)
				limit = cfg.AnonRPS * 60
				attrs = []any{slog.String("type", "anonymous"), slog.String("ip", ip)}
				result, err = cfg.Limiter.CheckIPRateLimit(r.Context(), ip, cfg.AnonRPS, cfg.AnonBurst)
			}

			if err != nil {
				cfg.Logger.Error("rate limit check failed", append(attrs, slog.String("error", err.Error()))...)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, limit, result.Remaining, result.ResetAt)

			if !result.Allowed {
				cfg.Metrics.IncRateLimited()
				cfg.Logger.Warn("rate limit exceeded", append(attrs,
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int64("retry_after_seconds", int64(result.RetryAfter.Seconds())),
					slog.String("request_id", GetRequestID(r.Context())),
				)...)

				w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
				writeError(w, http.StatusTooManyRequests, CodeRateLimited,
					fmt.Sprintf("Request was throttled. Expected available in %d seconds.", int(result.RetryAfter.Seconds())))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// setRateLimitHeaders sets standard rate limit response headers.
func setRateLimitHeaders(w http.ResponseWriter, limit int, remaining int64, resetAt time.Time) {
	if limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
	}
}

// clientIP returns the host part of RemoteAddr. chi's RealIP runs earlier
// and has already applied X-Forwarded-For and X-Real-IP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
