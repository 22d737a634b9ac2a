package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/greenroomhq/greenroom/pkg/httputil"
	"github.com/greenroomhq/greenroom/pkg/tier"
)

// Quota is the admission budget for one caller: a sustained rate over
// a window plus headroom for short spikes.
type Quota struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// capacity is the bucket size: the sustained budget plus spike headroom.
func (q Quota) capacity() int {
	return q.Requests + q.Burst
}

// Budgets are keyed by tier. Higher tiers operate on wider slices of
// the hierarchy, and platform-tier identities include service
// integrations that poll aggressively, so each tier gets its own
// budget. Unauthenticated traffic shares a small per-address budget.
var tierQuotas = map[tier.Tier]Quota{
	tier.User:     {Requests: 300, Window: time.Minute, Burst: 30},
	tier.Account:  {Requests: 600, Window: time.Minute, Burst: 60},
	tier.Tenant:   {Requests: 1200, Window: time.Minute, Burst: 120},
	tier.Platform: {Requests: 5000, Window: time.Minute, Burst: 250},
}

var anonymousQuota = Quota{Requests: 60, Window: time.Minute, Burst: 10}

// QuotaForTier returns the budget for a tier. Unknown tiers get the
// anonymous budget rather than a free pass.
func QuotaForTier(t tier.Tier) Quota {
	if q, ok := tierQuotas[t]; ok {
		return q
	}
	return anonymousQuota
}

// limitKey picks the bucket key and budget for a request. Authenticated
// callers are keyed per identity within their tier; everyone else is
// keyed by client address.
func limitKey(r *http.Request) (string, Quota) {
	if authCtx := GetAuthContext(r); authCtx != nil && authCtx.Identity != nil {
		t := authCtx.Identity.Tier
		return string(t) + ":" + authCtx.Identity.ID, QuotaForTier(t)
	}
	return "anon:" + clientAddr(r), anonymousQuota
}

// RateLimiter is an in-memory token bucket store, one bucket per
// caller. Suitable for a single instance; deployments with several
// replicas use the Redis-backed limiter instead.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	quota      Quota
	tokens     float64
	lastRefill time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*bucket)}
}

// Take spends one token from the caller's bucket, creating a full
// bucket on first sight. It reports whether the request is admitted
// and how many tokens remain.
func (rl *RateLimiter) Take(key string, q Quota) (bool, int) {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{quota: q, tokens: float64(q.capacity()), lastRefill: now}
		rl.buckets[key] = b
	}

	refill := now.Sub(b.lastRefill).Seconds() * float64(b.quota.Requests) / b.quota.Window.Seconds()
	b.tokens += refill
	if max := float64(b.quota.capacity()); b.tokens > max {
		b.tokens = max
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false, 0
	}
	b.tokens--
	return true, int(b.tokens)
}

// Sweep drops buckets idle long enough to have refilled completely.
func (rl *RateLimiter) Sweep() {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, b := range rl.buckets {
		if now.Sub(b.lastRefill) > 2*b.quota.Window {
			delete(rl.buckets, key)
		}
	}
}

// StartSweeper sweeps idle buckets until the context is cancelled.
func (rl *RateLimiter) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimitMiddleware admits or refuses requests against per-caller
// tier budgets held in memory.
type RateLimitMiddleware struct {
	limiter *RateLimiter
}

func NewRateLimitMiddleware() *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: NewRateLimiter()}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, quota := limitKey(r)
		allowed, remaining := m.limiter.Take(key, quota)
		setQuotaHeaders(w.Header(), quota, remaining)
		if !allowed {
			httputil.WriteRateLimited(w, int(quota.Window.Seconds()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func setQuotaHeaders(h http.Header, q Quota, remaining int) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(q.capacity()))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
}

// clientAddr identifies an unauthenticated caller, preferring the
// proxy-supplied headers over the socket address.
func clientAddr(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// The first entry is the originating client.
		return strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
