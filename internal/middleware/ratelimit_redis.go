package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"

	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/apierror"
	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/auth"
)

var (
	rlRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_requests_total",
			Help: "Total requests seen by the per-caller rate limiter",
		},
		[]string{"scope"},
	)
	rlBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_blocked_total",
			Help: "Total requests blocked by the per-caller rate limiter",
		},
		[]string{"scope"},
	)
)

func init() {
	prometheus.MustRegister(rlRequests, rlBlocked)
}

// NewRedisClient connects to addr and pings it. A nil client with a nil
// error means Redis is not configured.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// CallerRateLimit is a fixed-window limiter keyed by the verified caller id
// (falling back to the client address) and shared through Redis INCR/EXPIRE,
// so every replica enforces the same budget. It fails open when Redis is
// unavailable.
func CallerRateLimit(client *redis.Client, maxRequests int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	if client == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if logger == nil {
		logger = slog.Default()
	}
	windowSecs := strconv.FormatInt(int64(window.Seconds()), 10)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := "user"
			ident, ok := auth.CallerID(r.Context())
			if !ok {
				scope = "ip"
				ident = "ip:" + clientIP(r)
			}
			key := "tasks_rl:" + windowSecs + ":" + ident
			ctx := r.Context()

			val, err := client.Incr(ctx, key).Result()
			if err != nil {
				logger.Warn("rate_limit_unavailable", slog.String("error", err.Error()))
				w.Header().Set("X-RateLimit-Error", "redis-error")
				next.ServeHTTP(w, r)
				return
			}
			if val == 1 {
				client.Expire(ctx, key, window)
			}

			remaining := int64(maxRequests) - val
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if val > int64(maxRequests) {
				rlBlocked.WithLabelValues(scope).Inc()
				w.Header().Set("Retry-After", windowSecs)
				apierror.Write(w, http.StatusTooManyRequests, apierror.CodeRateLimited, "rate limit exceeded", nil)
				return
			}

			rlRequests.WithLabelValues(scope).Inc()
			next.ServeHTTP(w, r)
		})
	}
}
