package security

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles anonymous submissions with a fixed window per
// client IP backed by redis, so the limit holds across server restarts.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
	}
}

// Allow reports whether the key may perform one more operation in the
// current window.
func (r *RateLimiter) Allow(e *core.RequestEvent, key string) (bool, error) {
	ctx := e.Request.Context()
	windowKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := r.redis.Incr(ctx, windowKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		r.redis.Expire(ctx, windowKey, r.window)
	}

	return count <= int64(r.limit), nil
}

// SubmissionRateLimit is route middleware for the public create-request
// endpoint. Redis failures let the request through: the limiter guards
// against floods, it is not an availability dependency.
func (r *RateLimiter) SubmissionRateLimit() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		key := e.RealIP()
		if e.Auth != nil {
			key = fmt.Sprintf("user:%s", e.Auth.Id)
		}

		ok, err := r.Allow(e, key)
		if err != nil {
			slog.Error("rate limiter unavailable", "error", err)
			return e.Next()
		}
		if !ok {
			return apis.NewTooManyRequestsError("Rate limit exceeded. Please try again later.", nil)
		}

		return e.Next()
	}
}
