package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"github.com/zonewarden/server/internal/auth"
	"github.com/zonewarden/server/internal/logging"
)

const (
	rateLimitExceededJSON = `{"error":"Rate limit exceeded","message":"Too many requests. Please try again later.","retry_after":%d}`
)

// RateLimitMiddleware limits requests per client IP.
func RateLimitMiddleware(limit int, window time.Duration, logger logging.Logger) func(http.Handler) http.Handler {
	instance := newLimiter(limit, window)
	return func(next http.Handler) http.Handler {
		return rateLimited(instance, next, getClientIP, logger)
	}
}

// UserLimiter budgets overlap checks per authenticated user, falling back to
// the client IP when a caller carries no identity. One budget covers both the
// HTTP routes and live checks over the websocket.
type UserLimiter struct {
	instance *limiter.Limiter
	logger   logging.Logger
}

// NewUserLimiter creates a UserLimiter allowing limit checks per window.
func NewUserLimiter(limit int, window time.Duration, logger logging.Logger) *UserLimiter {
	if logger == nil {
		logger = logging.Noop()
	}
	return &UserLimiter{instance: newLimiter(limit, window), logger: logger}
}

// Middleware limits HTTP requests. It must run inside the auth middleware
// to see the user.
func (l *UserLimiter) Middleware(next http.Handler) http.Handler {
	return rateLimited(l.instance, next, userKey, l.logger)
}

// Allow spends one unit of key's budget. When the budget is spent it
// reports false and how long until it resets. A nil UserLimiter allows
// everything.
func (l *UserLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	lctx, err := l.instance.Get(ctx, key)
	if err != nil {
		l.logger.Error(ctx, "rate limiter error", logging.Err(err))
		return true, 0
	}
	if lctx.Reached {
		return false, time.Duration(retryAfterSeconds(lctx.Reset)) * time.Second
	}
	return true, 0
}

func newLimiter(limit int, window time.Duration) *limiter.Limiter {
	store := memory.NewStore()
	rate := limiter.Rate{
		Period: window,
		Limit:  int64(limit),
	}
	return limiter.New(store, rate)
}

// userKey is the limiter key for the identity on r.
func userKey(r *http.Request) string {
	if userID, ok := auth.GetUserID(r); ok {
		return fmt.Sprintf("user:%d", userID)
	}
	return getClientIP(r)
}

func retryAfterSeconds(reset int64) int {
	retryAfter := int(time.Until(time.Unix(reset, 0)).Seconds())
	if retryAfter < 0 {
		return 0
	}
	return retryAfter
}

func rateLimited(instance *limiter.Limiter, next http.Handler, keyFunc func(*http.Request) string, logger logging.Logger) http.Handler {
	if logger == nil {
		logger = logging.Noop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		context, err := instance.Get(r.Context(), keyFunc(r))
		if err != nil {
			// A failing limiter must not take the service down with it
			logger.Error(r.Context(), "rate limiter error", logging.Err(err))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(context.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(context.Remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(context.Reset, 10))

		if context.Reached {
			retryAfter := retryAfterSeconds(context.Reset)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.WriteHeader(http.StatusTooManyRequests)
			if _, err := fmt.Fprintf(w, rateLimitExceededJSON, retryAfter); err != nil {
				logger.Warn(r.Context(), "failed to write rate limit response", logging.Err(err))
			}
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP address from the request
// Handles X-Forwarded-For header for proxied requests
func getClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs, take the first one
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	// Fall back to RemoteAddr without the port
	ip := r.RemoteAddr
	if i := strings.LastIndexByte(ip, ':'); i >= 0 {
		return ip[:i]
	}
	return ip
}
