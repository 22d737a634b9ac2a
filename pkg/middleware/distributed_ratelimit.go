package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/greenroomhq/greenroom/pkg/httputil"
)

// DistributedRateLimiter counts requests in Redis so every instance
// draws from the same per-caller budget. Fixed window: INCR on a key
// that expires when the window rolls over.
type DistributedRateLimiter struct {
	redis  *redis.Client
	prefix string
}

func NewDistributedRateLimiter(redisClient *redis.Client, prefix string) *DistributedRateLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &DistributedRateLimiter{redis: redisClient, prefix: prefix}
}

// Take counts one request against the caller's window. It reports
// whether the request is admitted, how much budget remains, and how
// long a refused caller should wait before retrying.
func (rl *DistributedRateLimiter) Take(ctx context.Context, key string, q Quota) (allowed bool, remaining int, retryAfter time.Duration, err error) {
	redisKey := rl.prefix + ":" + key

	count, err := rl.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, 0, err
	}
	if count == 1 {
		// First hit starts the window. If this expire is lost the key
		// leaks until the next deploy flush, so log-and-continue would
		// hide a growing counter; surface the error instead.
		if err := rl.redis.Expire(ctx, redisKey, q.Window).Err(); err != nil {
			return false, 0, 0, err
		}
	}

	limit := int64(q.capacity())
	remaining = int(limit - count)
	if remaining < 0 {
		remaining = 0
	}
	if count <= limit {
		return true, remaining, 0, nil
	}

	retryAfter = q.Window
	if ttl, err := rl.redis.TTL(ctx, redisKey).Result(); err == nil && ttl > 0 {
		retryAfter = ttl
	}
	return false, 0, retryAfter, nil
}

// DistributedRateLimitMiddleware admits or refuses requests against
// per-caller tier budgets shared through Redis. Redis outages fail
// open: losing admission control must not take request traffic down
// with it.
type DistributedRateLimitMiddleware struct {
	limiter *DistributedRateLimiter
}

func NewDistributedRateLimitMiddleware(redisClient *redis.Client) *DistributedRateLimitMiddleware {
	return &DistributedRateLimitMiddleware{
		limiter: NewDistributedRateLimiter(redisClient, "ratelimit"),
	}
}

func (m *DistributedRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, quota := limitKey(r)

		allowed, remaining, retryAfter, err := m.limiter.Take(r.Context(), key, quota)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		setQuotaHeaders(w.Header(), quota, remaining)
		if !allowed {
			httputil.WriteRateLimited(w, int(retryAfter.Seconds()))
			return
		}
		next.ServeHTTP(w, r)
	})
}
